package identity

import "context"

// EventType mirrors the auth provider's session change notifications.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is one provider notification. Identity is nil when the provider
// has no session.
type Event struct {
	Type     EventType
	Identity *AuthIdentity
}

// Provider is the external auth service as the resolver sees it.
type Provider interface {
	// CurrentSession returns the signed-in identity, or nil.
	CurrentSession(ctx context.Context) (*AuthIdentity, error)

	// Subscribe delivers the current state first and every change after
	// it, in order. The channel closes when ctx ends or the feed stops.
	Subscribe(ctx context.Context) (<-chan Event, error)

	// SignOut ends the provider session. Without one it is a no-op.
	SignOut(ctx context.Context) error
}

// Storage is durable, process-local key-value storage.
// Get reports a missing key with kv.ErrNotFound.
type Storage interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Remove(key string) error
}
