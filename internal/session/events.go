package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"supa-artistry/internal/auth"

	"github.com/redis/go-redis/v9"
)

// EventType names a change in a session's auth state.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is one line of the session change stream.
type Event struct {
	Type      EventType  `json:"event"`
	User      *auth.User `json:"user"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Bus fans session events out to every stream watching a session,
// across service instances, using Redis pub/sub.
type Bus struct {
	client *redis.Client
	prefix string
}

func NewBus(client *redis.Client) *Bus {
	return &Bus{
		client: client,
		prefix: "session-events:",
	}
}

func (b *Bus) channel(sessionID string) string {
	return b.prefix + sessionID
}

// Publish delivers ev to current watchers of the session. Events are not
// retained: a watcher that connects later reads state from the store instead.
func (b *Bus) Publish(ctx context.Context, sessionID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("session: failed to marshal event: %w", err)
	}
	return b.client.Publish(ctx, b.channel(sessionID), data).Err()
}

// Subscription is a live feed of one session's events.
type Subscription struct {
	ps *redis.PubSub
	C  <-chan Event
}

// Close stops the feed and closes C.
func (s *Subscription) Close() error {
	return s.ps.Close()
}

// Subscribe starts receiving events for the session. The subscription is
// confirmed before Subscribe returns, so no later Publish is missed.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("session: subscribe: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Subscription{ps: ps, C: out}, nil
}
