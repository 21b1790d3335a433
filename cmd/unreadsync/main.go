package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"partshub/internal/adapter/client"
	"partshub/internal/unreadsync"
	"partshub/internal/unreadsync/surface"
	"partshub/pkg/config"
	"partshub/pkg/logger"
)

// unreadsync is a headless client: it keeps one viewer's unread badge in sync
// with the API and logs what the badges and dropdown would show. SIGUSR1
// opens the dropdown, SIGUSR2 toggles visibility and SIGHUP reads the top
// unread conversation.
func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()
	logger.SetDefault(appLog)

	if cfg.AuthToken == "" {
		appLog.Error("AUTH_TOKEN is required")
		os.Exit(1)
	}

	backend, err := client.NewRESTBackend(client.Options{
		BaseURL:   cfg.APIBaseURL,
		AuthToken: cfg.AuthToken,
		Timeout:   cfg.RequestTimeout,
	})
	if err != nil {
		appLog.Error("invalid API configuration", "error", err)
		os.Exit(1)
	}

	channel, err := client.NewWebsocketChannel(cfg.WebsocketURL, cfg.AuthToken, appLog)
	if err != nil {
		appLog.Error("invalid websocket configuration", "error", err)
		os.Exit(1)
	}

	syncer, err := unreadsync.New(unreadsync.Options{
		Backend:          backend,
		Channel:          channel,
		Logger:           appLog,
		RefreshInterval:  cfg.RefreshInterval,
		PullAttempts:     cfg.PullAttempts,
		MarkReadAttempts: cfg.MarkReadAttempts,
		ResyncAttempts:   cfg.ResyncAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay,
	})
	if err != nil {
		appLog.Error("failed to create synchronizer", "error", err)
		os.Exit(1)
	}
	defer syncer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start before mounting so the first connect joins the initial pull.
	syncer.Start(ctx)

	header := surface.NewHeaderBadge(appLog)
	navbar := surface.NewNavbarBadge(appLog)
	dropdown := surface.NewDropdownPanel(cfg.DropdownLimit, appLog)

	header.Mount(syncer)
	navbar.Mount(syncer)
	dropdown.Mount(syncer)
	defer header.Unmount()
	defer navbar.Unmount()
	defer dropdown.Unmount()

	for _, id := range cfg.WatchConversations {
		marker := surface.NewConversationMarker(id, appLog)
		marker.Mount(syncer)
		defer marker.Unmount()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer signal.Stop(signals)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		visible := true
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-signals:
				switch sig {
				case syscall.SIGUSR1:
					dropdown.Open()
				case syscall.SIGUSR2:
					visible = !visible
					syncer.SetVisible(visible)
					appLog.Info("visibility changed", "visible", visible)
				case syscall.SIGHUP:
					for _, c := range dropdown.Items() {
						if c.UnreadCount > 0 {
							syncer.AcknowledgeConversation(c.ID)
							appLog.Info("conversation acknowledged", "conversationID", c.ID)
							break
						}
					}
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		syncer.Close()
		state := syncer.State()
		appLog.Info("agent stopped", "total", state.Total, "sequence", state.Sequence, "source", state.LastUpdateSource.String())
		return nil
	})

	if err := g.Wait(); err != nil {
		appLog.Error("agent stopped with error", "error", err)
	}
}
