package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"partshub/internal/domain/entity"
	"partshub/pkg/errors"
	"partshub/pkg/response"
)

type Options struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration

	HTTPClient *http.Client
}

// RESTBackend talks to the chat API's unread endpoints. Retries are left to
// the caller; non-retryable failures come back wrapped in backoff.Permanent.
type RESTBackend struct {
	baseURL    string
	authToken  string
	timeout    time.Duration
	httpClient *http.Client
}

func NewRESTBackend(opts Options) (*RESTBackend, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &RESTBackend{
		baseURL:    baseURL,
		authToken:  strings.TrimSpace(opts.AuthToken),
		timeout:    timeout,
		httpClient: hc,
	}, nil
}

func (c *RESTBackend) FetchUnreadSummary(ctx context.Context) (*entity.UnreadSummary, error) {
	var summary entity.UnreadSummary
	if err := c.doJSON(ctx, http.MethodGet, "/v1/unread-summary", nil, &summary); err != nil {
		return nil, err
	}
	if summary.Conversations == nil {
		summary.Conversations = []entity.ConversationSummary{}
	}
	return &summary, nil
}

func (c *RESTBackend) MarkConversationRead(ctx context.Context, conversationID string) error {
	var out struct {
		Success bool `json:"success"`
	}
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return err
	}
	if !out.Success {
		return errors.Internal("mark read was not acknowledged", nil)
	}
	return nil
}

// envelope mirrors response.Response with a typed payload.
type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

func (c *RESTBackend) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return backoff.Permanent(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.TransientNetwork("request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.TransientNetwork("read response", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(resp.StatusCode, env.Error)
	}
	if decodeErr != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", decodeErr))
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode data: %w", err))
	}
	return nil
}

// httpError maps a failed status to an AppError. Server errors and throttling
// are worth retrying; other client errors are not.
func httpError(status int, info *response.ErrorInfo) error {
	code, message := "HTTP_ERROR", http.StatusText(status)
	if info != nil {
		code, message = info.Code, info.Message
	}
	appErr := errors.New(code, message, status, nil)
	if status >= 500 || status == http.StatusTooManyRequests {
		return errors.TransientNetwork(message, appErr)
	}
	return backoff.Permanent(appErr)
}
