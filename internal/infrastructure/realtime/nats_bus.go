package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"partshub/internal/domain/entity"
	"partshub/pkg/logger"
)

type NatsConfig struct {
	Servers []string
	Subject string
	Name    string
}

type natsBus struct {
	log     *logger.Logger
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
}

func NewNatsBus(cfg NatsConfig, log *logger.Logger) (Bus, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("nats servers missing")
	}
	if cfg.Subject == "" {
		cfg.Subject = "partshub.unread"
	}
	log = log.With("component", "NatsUnreadBus")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &natsBus{log: log, nc: nc, subject: cfg.Subject}, nil
}

func (b *natsBus) Publish(ctx context.Context, event entity.UnreadEvent) error {
	raw, err := encode(event)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, raw)
}

func (b *natsBus) StartForwarder(ctx context.Context, onEvent func(entity.UnreadEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		event, err := decode(m.Data)
		if err != nil {
			b.log.Warn("bad unread event payload", "error", err)
			return
		}
		onEvent(event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	b.sub = sub

	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return nil
}

func (b *natsBus) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats status: %s", b.nc.Status())
	}
	return nil
}

func (b *natsBus) Close() error {
	if b.sub != nil {
		_ = b.sub.Drain()
	}
	return b.nc.Drain()
}
