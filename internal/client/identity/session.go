// Package identity resolves who the client is acting as: an authenticated
// user, an anonymous guest, or nobody. The Resolver is the only writer of
// that answer; everything else reads it.
package identity

import "errors"

var (
	// ErrProviderUnavailable wraps failures talking to the auth provider.
	ErrProviderUnavailable = errors.New("auth provider unavailable")

	// ErrInvalidGuestTransition is returned when a guest identity is
	// requested while a user is signed in.
	ErrInvalidGuestTransition = errors.New("cannot continue as guest while signed in")

	// ErrStorageUnavailable marks durable storage failures. Operations never
	// fail with it; the guest identifier falls back to memory instead.
	ErrStorageUnavailable = errors.New("durable storage unavailable")

	// ErrLoading is returned by actions that need a resolved session
	// before the provider has reported one.
	ErrLoading = errors.New("session is still loading")

	// ErrNotStarted is returned by calls made before Start.
	ErrNotStarted = errors.New("resolver not started")

	// ErrClosed is returned once the resolver has stopped.
	ErrClosed = errors.New("resolver closed")
)

// AuthIdentity is the signed-in user as reported by the auth provider.
// The resolver never modifies it.
type AuthIdentity struct {
	ID    string
	Email string
	Phone string
}

// Kind tags a ResolvedSession.
type Kind int

const (
	KindLoading Kind = iota
	KindNone
	KindGuest
	KindAuthenticated
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindNone:
		return "none"
	case KindGuest:
		return "guest"
	case KindAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// ResolvedSession is the single authoritative identity value. User is set
// only for KindAuthenticated and GuestID only for KindGuest.
type ResolvedSession struct {
	Kind    Kind
	User    *AuthIdentity
	GuestID string
}

func None() ResolvedSession {
	return ResolvedSession{Kind: KindNone}
}

func Guest(id string) ResolvedSession {
	return ResolvedSession{Kind: KindGuest, GuestID: id}
}

func Authenticated(user *AuthIdentity) ResolvedSession {
	return ResolvedSession{Kind: KindAuthenticated, User: user}
}

// ActiveIdentifier returns the id that tags downstream requests: the
// user id, the guest token, or false when there is neither.
func (s ResolvedSession) ActiveIdentifier() (string, bool) {
	switch s.Kind {
	case KindAuthenticated:
		if s.User != nil && s.User.ID != "" {
			return s.User.ID, true
		}
	case KindGuest:
		if s.GuestID != "" {
			return s.GuestID, true
		}
	}
	return "", false
}

func (s ResolvedSession) String() string {
	switch s.Kind {
	case KindAuthenticated:
		return "authenticated(" + s.User.ID + ")"
	case KindGuest:
		return "guest(" + s.GuestID + ")"
	default:
		return s.Kind.String()
	}
}
