// Package mirror forwards lifecycle status events to Redis.
//
// Every event goes to two places:
//
//	ilocalserver                                  Redis
//	┌─────────────┐  PUBLISH ilocalserver:status:X  ┌─────────────┐
//	│   Redis     │ ─────────────────────────────▶  │  Pub/Sub    │ → live dashboards
//	│  Publisher  │                                 └─────────────┘
//	│             │  XADD ilocalserver:status:stream┌─────────────┐
//	│             │ ─────────────────────────────▶  │  Streams    │ → later consumers
//	└─────────────┘                                 └─────────────┘
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/logging"
	"github.com/aceteam-ai/ilocalserver/internal/pubsub"
)

const (
	// DefaultStream is the stream events are appended to.
	DefaultStream = "ilocalserver:status:stream"
	// DefaultMaxLen caps the stream length (approximate trimming).
	DefaultMaxLen = 1000

	messageVersion = "1.0"
	publishTimeout = 5 * time.Second
)

// nodeIDPattern only allows alphanumeric characters, hyphens, underscores, and dots.
var nodeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// StatusMessage is the payload published for each event.
type StatusMessage struct {
	Version string                `json:"version"`
	NodeID  string                `json:"nodeId"`
	Event   lifecycle.StatusEvent `json:"event"`
}

// RedisPublisher mirrors status events to Redis Pub/Sub and a Stream.
type RedisPublisher struct {
	client  *redis.Client
	nodeID  string
	channel string
	stream  string
	maxLen  int64
	logger  *logging.Logger
}

// RedisPublisherConfig holds configuration for the Redis mirror.
type RedisPublisherConfig struct {
	RedisURL      string
	RedisPassword string // Overrides the password in the URL (optional)

	// NodeID identifies this device (default: hostname)
	NodeID string

	// Channel overrides the pub/sub channel. If empty, uses
	// "ilocalserver:status:{NodeID}".
	Channel string

	Stream string // default: DefaultStream
	MaxLen int64  // default: DefaultMaxLen
	Logger *logging.Logger
}

// NewRedisPublisher creates a publisher. It does not connect until the first
// command.
func NewRedisPublisher(cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.NodeID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to determine node ID: %w", err)
		}
		cfg.NodeID = hostname
	}
	if !nodeIDPattern.MatchString(cfg.NodeID) {
		return nil, fmt.Errorf("invalid node ID %q: must be 1-64 alphanumeric characters, hyphens, underscores, or dots", cfg.NodeID)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}

	if cfg.Channel == "" {
		cfg.Channel = fmt.Sprintf("ilocalserver:status:%s", cfg.NodeID)
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultMaxLen
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("mirror")
	}

	return &RedisPublisher{
		client:  redis.NewClient(opts),
		nodeID:  cfg.NodeID,
		channel: cfg.Channel,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		logger:  cfg.Logger,
	}, nil
}

// Ping verifies the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Run forwards events from sub until ctx is cancelled or sub is closed.
// Publish failures are logged and the event is dropped.
func (p *RedisPublisher) Run(ctx context.Context, sub *pubsub.Subscription[lifecycle.StatusEvent]) error {
	p.logger.Debugf("mirroring to channel %s and stream %s", p.channel, p.stream)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := p.Publish(pctx, ev); err != nil {
				p.logger.Printf("mirror %s event failed: %v", ev.State, err)
			}
			cancel()
		}
	}
}

// Publish sends one event to Pub/Sub and appends it to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, ev lifecycle.StatusEvent) error {
	data, err := json.Marshal(StatusMessage{
		Version: messageVersion,
		NodeID:  p.nodeID,
		Event:   ev,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to Pub/Sub: %w", err)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"nodeId":  p.nodeID,
			"eventId": ev.ID,
			"mode":    ev.Mode.String(),
			"state":   string(ev.State),
			"payload": string(data),
		},
		MaxLen: p.maxLen,
		Approx: true,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	p.logger.Debugf("mirrored %s/%s event %s", ev.Mode, ev.State, ev.ID)
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NodeID returns the configured node ID.
func (p *RedisPublisher) NodeID() string {
	return p.nodeID
}

// Channel returns the Pub/Sub channel name.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// StreamName returns the Stream name.
func (p *RedisPublisher) StreamName() string {
	return p.stream
}
