package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"supa-artistry/internal/client/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	events chan Event

	mu         sync.Mutex
	current    *AuthIdentity
	signOutErr error
	signOuts   int
	subErr     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: make(chan Event, 16)}
}

func (p *fakeProvider) CurrentSession(context.Context) (*AuthIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakeProvider) Subscribe(context.Context) (<-chan Event, error) {
	if p.subErr != nil {
		return nil, p.subErr
	}
	return p.events, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	p.current = nil
	return p.signOutErr
}

func (p *fakeProvider) push(user *AuthIdentity) {
	typ := EventSignedIn
	if user == nil {
		typ = EventSignedOut
	}
	p.events <- Event{Type: typ, Identity: user}
}

func (p *fakeProvider) initial(user *AuthIdentity) {
	p.events <- Event{Type: EventInitialSession, Identity: user}
}

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) Get(string) (string, error) { return "", errors.New("disk gone") }
func (brokenStore) Set(string, string) error   { return errors.New("disk gone") }
func (brokenStore) Remove(string) error        { return errors.New("disk gone") }

type recorder struct {
	mu     sync.Mutex
	states []ResolvedSession
}

func (r *recorder) observe(s ResolvedSession) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) all() []ResolvedSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ResolvedSession(nil), r.states...)
}

func startResolver(t *testing.T, p Provider, store Storage, opts ...Option) (*Resolver, *recorder) {
	t.Helper()

	rec := &recorder{}
	opts = append(opts, WithObserver(rec.observe))
	r := NewResolver(p, store, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})

	require.NoError(t, r.Start(ctx))
	return r, rec
}

func waitReady(t *testing.T, r *Resolver) ResolvedSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := r.Wait(ctx)
	require.NoError(t, err)
	return s
}

func waitKind(t *testing.T, r *Resolver, kind Kind) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.Current().Kind == kind
	}, time.Second, 5*time.Millisecond)
}

func TestStartWithNothingPublishesNone(t *testing.T) {
	p := newFakeProvider()
	r, rec := startResolver(t, p, kv.NewMemoryStore())

	assert.Equal(t, KindLoading, r.Current().Kind)

	p.initial(nil)
	s := waitReady(t, r)

	assert.Equal(t, None(), s)
	_, ok := r.ActiveIdentifier()
	assert.False(t, ok)
	assert.Equal(t, []ResolvedSession{None()}, rec.all())
}

func TestStartWithStoredGuestPublishesGuest(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(GuestStorageKey, "guest_abc123"))

	p := newFakeProvider()
	r, _ := startResolver(t, p, store)

	p.initial(nil)
	s := waitReady(t, r)

	assert.Equal(t, Guest("guest_abc123"), s)
	id, ok := r.ActiveIdentifier()
	assert.True(t, ok)
	assert.Equal(t, "guest_abc123", id)
}

func TestStartWithSessionDiscardsStoredGuest(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(GuestStorageKey, "guest_abc123"))

	p := newFakeProvider()
	r, rec := startResolver(t, p, store)

	p.initial(&AuthIdentity{ID: "u_42"})
	s := waitReady(t, r)

	assert.Equal(t, KindAuthenticated, s.Kind)
	assert.Equal(t, "u_42", s.User.ID)

	_, err := store.Get(GuestStorageKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	states := rec.all()
	require.NotEmpty(t, states)
	assert.Equal(t, KindAuthenticated, states[0].Kind, "a stored guest must never be published first")
	for _, st := range states {
		assert.NotEqual(t, KindGuest, st.Kind)
	}
}

func TestContinueAsGuestFromNone(t *testing.T) {
	store := kv.NewMemoryStore()
	p := newFakeProvider()
	r, _ := startResolver(t, p, store)

	p.initial(nil)
	waitReady(t, r)

	token, err := r.ContinueAsGuest(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Contains(t, token, GuestPrefix)
	assert.Equal(t, Guest(token), r.Current())

	stored, err := store.Get(GuestStorageKey)
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestContinueAsGuestTokensAreDistinct(t *testing.T) {
	p := newFakeProvider()
	r, _ := startResolver(t, p, kv.NewMemoryStore())

	p.initial(nil)
	waitReady(t, r)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		token, err := r.ContinueAsGuest(context.Background())
		require.NoError(t, err)
		assert.False(t, seen[token], "token %s issued twice", token)
		seen[token] = true

		require.NoError(t, r.SignOut(context.Background()))
	}
}

func TestContinueAsGuestWhileGuestKeepsToken(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(GuestStorageKey, "guest_abc123"))

	p := newFakeProvider()
	calls := 0
	r, _ := startResolver(t, p, store, WithGuestIDGenerator(func() string {
		calls++
		return fmt.Sprintf("guest_%d", calls)
	}))

	p.initial(nil)
	waitReady(t, r)

	token, err := r.ContinueAsGuest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "guest_abc123", token)
	assert.Zero(t, calls)
}

func TestContinueAsGuestWhileAuthenticatedIsRejected(t *testing.T) {
	store := kv.NewMemoryStore()
	p := newFakeProvider()
	r, rec := startResolver(t, p, store)

	p.initial(&AuthIdentity{ID: "u_42"})
	waitReady(t, r)

	_, err := r.ContinueAsGuest(context.Background())
	require.ErrorIs(t, err, ErrInvalidGuestTransition)

	assert.Equal(t, KindAuthenticated, r.Current().Kind)
	assert.Len(t, rec.all(), 1)
	_, err = store.Get(GuestStorageKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestContinueAsGuestWhileLoading(t *testing.T) {
	p := newFakeProvider()
	r, _ := startResolver(t, p, kv.NewMemoryStore())

	_, err := r.ContinueAsGuest(context.Background())
	assert.ErrorIs(t, err, ErrLoading)
	assert.Equal(t, KindLoading, r.Current().Kind)
}

func TestSignInClearsGuest(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(GuestStorageKey, "guest_abc123"))

	p := newFakeProvider()
	r, rec := startResolver(t, p, store)

	p.initial(nil)
	waitReady(t, r)
	require.Equal(t, Guest("guest_abc123"), r.Current())

	p.push(&AuthIdentity{ID: "u_42", Email: "a@example.com"})
	waitKind(t, r, KindAuthenticated)

	id, ok := r.ActiveIdentifier()
	assert.True(t, ok)
	assert.Equal(t, "u_42", id)

	_, err := store.Get(GuestStorageKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	states := rec.all()
	require.Len(t, states, 2)
	assert.Equal(t, KindGuest, states[0].Kind)
	assert.Equal(t, KindAuthenticated, states[1].Kind)
}

func TestProviderSignOutEventKeepsNoGuest(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(GuestStorageKey, "guest_abc123"))

	p := newFakeProvider()
	r, _ := startResolver(t, p, store)

	p.initial(&AuthIdentity{ID: "u_42"})
	waitReady(t, r)

	p.push(nil)
	waitKind(t, r, KindNone)
}

func TestSignOutIsIdempotent(t *testing.T) {
	p := newFakeProvider()
	p.current = &AuthIdentity{ID: "u_42"}
	r, _ := startResolver(t, p, kv.NewMemoryStore())

	p.initial(p.current)
	waitReady(t, r)

	require.NoError(t, r.SignOut(context.Background()))
	assert.Equal(t, None(), r.Current())

	require.NoError(t, r.SignOut(context.Background()))
	assert.Equal(t, None(), r.Current())
	assert.Equal(t, 2, p.signOuts)
}

func TestSignOutClearsGuest(t *testing.T) {
	store := kv.NewMemoryStore()
	p := newFakeProvider()
	r, _ := startResolver(t, p, store)

	p.initial(nil)
	waitReady(t, r)

	_, err := r.ContinueAsGuest(context.Background())
	require.NoError(t, err)

	require.NoError(t, r.SignOut(context.Background()))
	assert.Equal(t, None(), r.Current())

	_, err = store.Get(GuestStorageKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestSignOutProviderFailureStillClearsLocalState(t *testing.T) {
	store := kv.NewMemoryStore()
	p := newFakeProvider()
	p.signOutErr = errors.New("connection refused")
	r, _ := startResolver(t, p, store)

	p.initial(&AuthIdentity{ID: "u_42"})
	waitReady(t, r)

	err := r.SignOut(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, None(), r.Current())
}

func TestSignOutConvergesWithProviderEvent(t *testing.T) {
	p := newFakeProvider()
	r, _ := startResolver(t, p, kv.NewMemoryStore())

	p.initial(&AuthIdentity{ID: "u_42"})
	waitReady(t, r)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.push(nil)
	}()
	require.NoError(t, r.SignOut(context.Background()))
	wg.Wait()

	waitKind(t, r, KindNone)
	assert.Never(t, func() bool {
		return r.Current().Kind != KindNone
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestGuestSurvivesRestart(t *testing.T) {
	store := kv.NewMemoryStore()

	p1 := newFakeProvider()
	r1 := NewResolver(p1, store)
	ctx1, cancel1 := context.WithCancel(context.Background())
	require.NoError(t, r1.Start(ctx1))

	p1.initial(nil)
	waitReady(t, r1)
	token, err := r1.ContinueAsGuest(context.Background())
	require.NoError(t, err)

	cancel1()
	<-r1.Done()

	p2 := newFakeProvider()
	r2, _ := startResolver(t, p2, store)
	p2.initial(nil)

	assert.Equal(t, Guest(token), waitReady(t, r2))
}

func TestNeverGuestAndAuthenticatedTogether(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(GuestStorageKey, "guest_abc123"))

	p := newFakeProvider()
	r, rec := startResolver(t, p, store)
	ctx := context.Background()

	p.initial(nil)
	waitReady(t, r)

	p.push(&AuthIdentity{ID: "u_1"})
	waitKind(t, r, KindAuthenticated)
	_, err := r.ContinueAsGuest(ctx)
	require.ErrorIs(t, err, ErrInvalidGuestTransition)

	require.NoError(t, r.SignOut(ctx))
	_, err = r.ContinueAsGuest(ctx)
	require.NoError(t, err)

	p.push(&AuthIdentity{ID: "u_2"})
	waitKind(t, r, KindAuthenticated)
	p.push(nil)
	waitKind(t, r, KindNone)

	for _, s := range rec.all() {
		switch s.Kind {
		case KindAuthenticated:
			assert.NotNil(t, s.User)
			assert.Empty(t, s.GuestID)
		case KindGuest:
			assert.Nil(t, s.User)
			assert.NotEmpty(t, s.GuestID)
		case KindNone:
			assert.Nil(t, s.User)
			assert.Empty(t, s.GuestID)
		default:
			t.Fatalf("published %s", s)
		}
	}
}

func TestStorageFailureFallsBackToMemory(t *testing.T) {
	p := newFakeProvider()
	r, _ := startResolver(t, p, brokenStore{})

	p.initial(nil)
	assert.Equal(t, None(), waitReady(t, r))
	assert.True(t, r.MemoryOnly())

	token, err := r.ContinueAsGuest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Guest(token), r.Current())

	p.push(&AuthIdentity{ID: "u_42"})
	waitKind(t, r, KindAuthenticated)
}

func TestSyncAppliesCurrentSession(t *testing.T) {
	p := newFakeProvider()
	r, _ := startResolver(t, p, kv.NewMemoryStore())

	p.initial(nil)
	waitReady(t, r)

	p.mu.Lock()
	p.current = &AuthIdentity{ID: "u_7"}
	p.mu.Unlock()

	require.NoError(t, r.Sync(context.Background()))
	id, ok := r.ActiveIdentifier()
	assert.True(t, ok)
	assert.Equal(t, "u_7", id)
}

func TestWatchDeliversLatestState(t *testing.T) {
	p := newFakeProvider()
	r, _ := startResolver(t, p, kv.NewMemoryStore())

	ch, cancel := r.Watch()
	defer cancel()

	p.initial(nil)
	select {
	case s := <-ch:
		assert.Equal(t, None(), s)
	case <-time.After(time.Second):
		t.Fatal("no state delivered")
	}

	token, err := r.ContinueAsGuest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Guest(token), <-ch)
}

func TestWatchClosesWhenResolverStops(t *testing.T) {
	p := newFakeProvider()
	r := NewResolver(p, kv.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))

	ch, stop := r.Watch()
	defer stop()

	p.initial(nil)
	waitReady(t, r)
	cancel()

	var seen []ResolvedSession
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for s := range ch {
			seen = append(seen, s)
		}
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after stop")
	}
	assert.Equal(t, []ResolvedSession{None()}, seen)

	late, lateStop := r.Watch()
	lateStop()
	s, ok := <-late
	assert.True(t, ok)
	assert.Equal(t, None(), s)
	_, ok = <-late
	assert.False(t, ok)
}

func TestMisuse(t *testing.T) {
	p := newFakeProvider()
	r := NewResolver(p, kv.NewMemoryStore())

	_, err := r.ContinueAsGuest(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)

	p.subErr = errors.New("dial tcp: refused")
	err = r.Start(context.Background())
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	p.subErr = nil
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	assert.Error(t, r.Start(ctx))

	cancel()
	<-r.Done()
	assert.ErrorIs(t, r.SignOut(context.Background()), ErrClosed)

	_, err = r.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
