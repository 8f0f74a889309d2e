package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/logging"
)

// APIError is a non-2xx response from the control API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control API returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a control API server.
type Client struct {
	address    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	reconnect  *rate.Limiter
	logger     *logging.Logger
}

// ClientConfig holds configuration for the control client.
type ClientConfig struct {
	Address string        // host:port (default: 127.0.0.1:8081)
	Timeout time.Duration // per-request timeout (default: 10s)

	// ReconnectInterval paces Watch reconnect attempts (default: 1s, burst 1).
	ReconnectInterval time.Duration
	Logger            *logging.Logger
}

// NewClient creates a control API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("control")
	}
	return &Client{
		address:    cfg.Address,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		reconnect:  rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		logger:     cfg.Logger,
	}
}

// Status fetches the coordinator snapshot.
func (c *Client) Status(ctx context.Context) (lifecycle.Snapshot, error) {
	return c.do(ctx, http.MethodGet, "/api/status", nil)
}

// Begin asks the server to enter mode.
func (c *Client) Begin(ctx context.Context, mode lifecycle.RunMode) (lifecycle.Snapshot, error) {
	return c.do(ctx, http.MethodPost, "/api/begin", BeginRequest{Mode: mode.String()})
}

// End asks the server to stop.
func (c *Client) End(ctx context.Context) (lifecycle.Snapshot, error) {
	return c.do(ctx, http.MethodPost, "/api/end", nil)
}

// Restart asks the server to restart its current mode.
func (c *Client) Restart(ctx context.Context) (lifecycle.Snapshot, error) {
	return c.do(ctx, http.MethodPost, "/api/restart", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (lifecycle.Snapshot, error) {
	var snap lifecycle.Snapshot

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return snap, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.address+path, reader)
	if err != nil {
		return snap, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return snap, fmt.Errorf("failed to reach control API at %s: %w", c.address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return snap, &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("failed to decode response: %w", err)
	}
	return snap, nil
}

// Watch streams status events to fn until ctx is cancelled, reconnecting
// whenever the stream drops. Events published while disconnected are lost.
func (c *Client) Watch(ctx context.Context, fn func(lifecycle.StatusEvent)) error {
	for {
		if err := c.reconnect.Wait(ctx); err != nil {
			return ctx.Err()
		}

		err := c.stream(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Debugf("event stream dropped: %v", err)
	}
}

// stream runs one websocket connection.
func (c *Client) stream(ctx context.Context, fn func(lifecycle.StatusEvent)) error {
	conn, _, err := c.dialer.DialContext(ctx, "ws://"+c.address+"/api/events", nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev lifecycle.StatusEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("server closed the stream")
			}
			return err
		}
		fn(ev)
	}
}
