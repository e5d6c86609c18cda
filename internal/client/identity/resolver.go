package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"supa-artistry/internal/auth"
	"supa-artistry/internal/client/kv"
	"supa-artistry/internal/logger"

	"github.com/google/uuid"
)

const (
	// GuestStorageKey is where the guest identifier is persisted.
	GuestStorageKey = "guestSessionId"

	GuestPrefix = auth.GuestPrefix
)

// NewGuestID returns a fresh guest identifier with 122 bits of randomness.
func NewGuestID() string {
	return GuestPrefix + uuid.NewString()
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithObserver registers fn to be called, on the resolver goroutine, with
// every published state in order. fn must not call back into the resolver.
func WithObserver(fn func(ResolvedSession)) Option {
	return func(r *Resolver) {
		r.observers = append(r.observers, fn)
	}
}

// WithGuestIDGenerator replaces NewGuestID.
func WithGuestIDGenerator(fn func() string) Option {
	return func(r *Resolver) {
		r.newGuestID = fn
	}
}

// Resolver owns the ResolvedSession. Provider events and user actions are
// applied one at a time, in arrival order, on a single goroutine.
type Resolver struct {
	provider   Provider
	storage    Storage
	newGuestID func() string
	observers  []func(ResolvedSession)

	started atomic.Bool
	cmds    chan func()
	done    chan struct{}
	ready   chan struct{}

	// owned by the run goroutine
	user       *AuthIdentity
	guestID    string
	memoryOnly bool
	loaded     bool

	mu          sync.RWMutex
	current     ResolvedSession
	watchers    map[int]chan ResolvedSession
	nextWatcher int
	stopped     bool
}

func NewResolver(provider Provider, storage Storage, opts ...Option) *Resolver {
	r := &Resolver{
		provider:   provider,
		storage:    storage,
		newGuestID: NewGuestID,
		cmds:       make(chan func()),
		done:       make(chan struct{}),
		ready:      make(chan struct{}),
		current:    ResolvedSession{Kind: KindLoading},
		watchers:   make(map[int]chan ResolvedSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to the provider and reads the stored guest identifier.
// The state stays KindLoading until the provider's first event; a stored
// guest id is never published ahead of it. The resolver runs until ctx ends.
func (r *Resolver) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("resolver already started")
	}

	events, err := r.provider.Subscribe(ctx)
	if err != nil {
		r.started.Store(false)
		return fmt.Errorf("%w: subscribe: %v", ErrProviderUnavailable, err)
	}

	// Storage is synchronous, so the stored guest id is known before
	// the first provider event can be applied.
	r.guestID = r.loadGuest()

	go r.run(ctx, events)
	return nil
}

func (r *Resolver) run(ctx context.Context, events <-chan Event) {
	defer close(r.done)
	defer r.closeWatchers()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				logger.Warn("auth event stream closed", map[string]any{
					"state": r.Current().String(),
				})
				events = nil
				continue
			}
			r.apply(ev)

		case cmd := <-r.cmds:
			cmd()
		}
	}
}

// apply handles one provider event.
func (r *Resolver) apply(ev Event) {
	r.loaded = true

	if ev.Identity != nil {
		r.clearGuest()
		r.user = ev.Identity
		r.publish(Authenticated(ev.Identity))
		return
	}

	r.user = nil
	if r.guestID != "" {
		r.publish(Guest(r.guestID))
		return
	}
	r.publish(None())
}

// ContinueAsGuest creates and persists a guest identifier when nobody is
// signed in. It returns the existing token when already a guest and
// ErrInvalidGuestTransition when a user is signed in.
func (r *Resolver) ContinueAsGuest(ctx context.Context) (string, error) {
	var (
		token string
		err   error
	)

	doErr := r.do(ctx, func() {
		switch {
		case !r.loaded:
			err = ErrLoading
		case r.user != nil:
			err = ErrInvalidGuestTransition
		case r.guestID != "":
			token = r.guestID
		default:
			token = r.newGuestID()
			r.guestID = token
			r.saveGuest(token)
			r.publish(Guest(token))
		}
	})
	if doErr != nil {
		return "", doErr
	}

	return token, err
}

// SignOut signs out at the provider, then clears the guest identifier and
// publishes None whatever the provider said. A provider failure is
// returned, wrapped in ErrProviderUnavailable, after the local cleanup.
func (r *Resolver) SignOut(ctx context.Context) error {
	providerErr := r.provider.SignOut(ctx)

	// local cleanup must happen even if ctx was cancelled mid sign-out
	err := r.do(context.WithoutCancel(ctx), func() {
		r.clearGuest()
		if !r.loaded {
			// the provider's first event decides; publishing now would
			// be a guess made before any authoritative state exists
			return
		}
		r.user = nil
		r.publish(None())
	})
	if err != nil {
		return err
	}

	if providerErr != nil {
		return fmt.Errorf("%w: sign out: %v", ErrProviderUnavailable, providerErr)
	}
	return nil
}

// Sync asks the provider for its current session and applies the answer
// like a pushed event.
func (r *Resolver) Sync(ctx context.Context) error {
	user, err := r.provider.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: current session: %v", ErrProviderUnavailable, err)
	}

	return r.do(ctx, func() {
		r.apply(Event{Type: EventInitialSession, Identity: user})
	})
}

// Current returns the latest published state.
func (r *Resolver) Current() ResolvedSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// ActiveIdentifier is Current().ActiveIdentifier().
func (r *Resolver) ActiveIdentifier() (string, bool) {
	return r.Current().ActiveIdentifier()
}

// Ready is closed once the first authoritative state is published.
func (r *Resolver) Ready() <-chan struct{} {
	return r.ready
}

// Done is closed when the resolver stops.
func (r *Resolver) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the first authoritative state and returns it.
func (r *Resolver) Wait(ctx context.Context) (ResolvedSession, error) {
	select {
	case <-r.ready:
		return r.Current(), nil
	case <-r.done:
		return ResolvedSession{}, ErrClosed
	case <-ctx.Done():
		return ResolvedSession{}, ctx.Err()
	}
}

// Watch returns a channel holding the latest published state. Slow readers
// skip intermediate states. The channel is closed when the resolver stops.
// Call cancel to stop watching earlier.
func (r *Resolver) Watch() (<-chan ResolvedSession, func()) {
	ch := make(chan ResolvedSession, 1)

	r.mu.Lock()
	if r.current.Kind != KindLoading {
		ch <- r.current
	}
	if r.stopped {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := r.nextWatcher
	r.nextWatcher++
	r.watchers[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, id)
			r.mu.Unlock()
		})
	}
	return ch, cancel
}

// do runs fn on the resolver goroutine and waits for it.
func (r *Resolver) do(ctx context.Context, fn func()) error {
	if !r.started.Load() {
		return ErrNotStarted
	}

	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-finished
	return nil
}

// closeWatchers closes every watch channel; the last state stays readable.
func (r *Resolver) closeWatchers() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for id, ch := range r.watchers {
		close(ch)
		delete(r.watchers, id)
	}
}

func (r *Resolver) publish(s ResolvedSession) {
	r.mu.Lock()
	r.current = s
	for _, ch := range r.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
	r.mu.Unlock()

	select {
	case <-r.ready:
	default:
		close(r.ready)
	}

	for _, fn := range r.observers {
		fn(s)
	}
}

func (r *Resolver) loadGuest() string {
	id, err := r.storage.Get(GuestStorageKey)
	switch {
	case err == nil:
		return id
	case errors.Is(err, kv.ErrNotFound):
		return ""
	default:
		r.memoryOnly = true
		logger.Warn("guest id unreadable, continuing without it", map[string]any{
			"error": fmt.Errorf("%w: %v", ErrStorageUnavailable, err).Error(),
		})
		return ""
	}
}

func (r *Resolver) saveGuest(id string) {
	if err := r.storage.Set(GuestStorageKey, id); err != nil {
		r.memoryOnly = true
		logger.Warn("guest id kept in memory only", map[string]any{
			"error": fmt.Errorf("%w: %v", ErrStorageUnavailable, err).Error(),
		})
	}
}

// clearGuest drops the guest id from memory and storage. Storage is
// cleared even when memory holds nothing, so a stale id never survives.
func (r *Resolver) clearGuest() {
	r.guestID = ""
	if err := r.storage.Remove(GuestStorageKey); err != nil {
		logger.Warn("guest id not removed from storage", map[string]any{
			"error": fmt.Errorf("%w: %v", ErrStorageUnavailable, err).Error(),
		})
	}
}

// MemoryOnly reports whether the guest id could not be persisted.
func (r *Resolver) MemoryOnly() bool {
	var v bool
	if err := r.do(context.Background(), func() { v = r.memoryOnly }); err != nil {
		return false
	}
	return v
}
