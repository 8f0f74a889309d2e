package mirror

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/logging"
	"github.com/aceteam-ai/ilocalserver/internal/pubsub"
)

// setupMiniredis starts a miniredis instance and returns a publisher plus a
// raw client for assertions.
func setupMiniredis(t *testing.T) (*RedisPublisher, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	pub, err := NewRedisPublisher(RedisPublisherConfig{
		RedisURL: "redis://" + mr.Addr(),
		NodeID:   "test-node",
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewRedisPublisher() error = %v", err)
	}
	t.Cleanup(func() { pub.Close() })

	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })

	return pub, raw
}

func testEvent(state lifecycle.State) lifecycle.StatusEvent {
	return lifecycle.StatusEvent{
		ID:      "evt-" + string(state),
		Mode:    lifecycle.ModeElevated,
		State:   state,
		Message: "Local server is running in elevated mode",
		Time:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewRedisPublisher(t *testing.T) {
	tests := []struct {
		name        string
		config      RedisPublisherConfig
		wantErr     bool
		wantChannel string
		wantStream  string
	}{
		{
			name:        "valid config",
			config:      RedisPublisherConfig{RedisURL: "redis://localhost:6379", NodeID: "kitchen-tablet"},
			wantChannel: "ilocalserver:status:kitchen-tablet",
			wantStream:  DefaultStream,
		},
		{
			name: "overrides",
			config: RedisPublisherConfig{
				RedisURL: "redis://localhost:6379",
				NodeID:   "n1",
				Channel:  "custom",
				Stream:   "custom:stream",
			},
			wantChannel: "custom",
			wantStream:  "custom:stream",
		},
		{
			name:    "invalid redis URL",
			config:  RedisPublisherConfig{RedisURL: "not-a-valid-url", NodeID: "test"},
			wantErr: true,
		},
		{
			name:    "invalid node ID",
			config:  RedisPublisherConfig{RedisURL: "redis://localhost:6379", NodeID: "bad node;id"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Logger = logging.Discard()
			pub, err := NewRedisPublisher(tt.config)
			if tt.wantErr {
				if err == nil {
					pub.Close()
					t.Error("NewRedisPublisher() should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRedisPublisher() error = %v", err)
			}
			defer pub.Close()

			if pub.Channel() != tt.wantChannel {
				t.Errorf("Channel() = %v, want %v", pub.Channel(), tt.wantChannel)
			}
			if pub.StreamName() != tt.wantStream {
				t.Errorf("StreamName() = %v, want %v", pub.StreamName(), tt.wantStream)
			}
		})
	}
}

func TestPublishSendsToChannelAndStream(t *testing.T) {
	pub, raw := setupMiniredis(t)
	ctx := context.Background()

	if err := pub.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	// Subscribe BEFORE publishing (Pub/Sub has no replay)
	ps := raw.Subscribe(ctx, pub.Channel())
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	ev := testEvent(lifecycle.StateRunning)
	if err := pub.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msg, err := ps.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("failed to receive message: %v", err)
	}
	var got StatusMessage
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	if got.NodeID != "test-node" || got.Version != "1.0" {
		t.Errorf("message header = %+v", got)
	}
	if got.Event.ID != ev.ID || got.Event.Mode != lifecycle.ModeElevated || got.Event.State != lifecycle.StateRunning {
		t.Errorf("Event = %+v, want %+v", got.Event, ev)
	}

	entries, err := raw.XRange(ctx, pub.StreamName(), "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stream has %d entries, want 1", len(entries))
	}
	values := entries[0].Values
	if values["state"] != "running" || values["mode"] != "elevated" || values["eventId"] != ev.ID {
		t.Errorf("stream values = %v", values)
	}
}

func TestRunForwardsUntilSubscriptionCloses(t *testing.T) {
	pub, raw := setupMiniredis(t)
	ctx := context.Background()

	events := pubsub.New[lifecycle.StatusEvent](8)
	sub := events.Subscribe()

	done := make(chan error, 1)
	go func() { done <- pub.Run(ctx, sub) }()

	events.Publish(testEvent(lifecycle.StateStarting))
	events.Publish(testEvent(lifecycle.StateRunning))
	events.Publish(testEvent(lifecycle.StateStopped))

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := raw.XLen(ctx, pub.StreamName()).Result()
		if err != nil {
			t.Fatalf("XLen() error = %v", err)
		}
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stream has %d entries, want 3", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	events.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after the broadcaster closed")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	pub, _ := setupMiniredis(t)
	events := pubsub.New[lifecycle.StatusEvent](1)
	sub := events.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Run(ctx, sub) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestPublishWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	pub, err := NewRedisPublisher(RedisPublisherConfig{
		RedisURL: "redis://" + mr.Addr(),
		NodeID:   "test-node",
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, testEvent(lifecycle.StateFailed)); err == nil {
		t.Error("Publish() should fail when Redis is unreachable")
	}
}
