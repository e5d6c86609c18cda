package cli

import (
	"context"
	"errors"
	"fmt"

	"supa-artistry/internal/client/authclient"
	"supa-artistry/internal/client/identity"
	"supa-artistry/internal/client/kv"
	"supa-artistry/internal/logger"

	"github.com/spf13/cobra"
)

// clientSession is one command's view of the world: local state, the
// server client and a started resolver.
type clientSession struct {
	store    kv.Store
	client   *authclient.Client
	provider *authclient.Provider
	resolver *identity.Resolver
	cancel   context.CancelFunc
}

func openStore(opts *RootOptions) (kv.Store, error) {
	if opts.Ephemeral {
		return kv.NewMemoryStore(), nil
	}

	path := opts.State
	if path == "" {
		p, err := kv.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locate state file: %w", err)
		}
		path = p
	}

	store := kv.NewFileStore(path)
	logger.Info("using state", map[string]any{
		"store": store.String(),
	})
	return store, nil
}

// openSession starts the resolver and waits for its first answer.
func openSession(cmd *cobra.Command, opts *RootOptions) (*clientSession, error) {
	sess, err := startSession(cmd, opts)
	if err != nil {
		return nil, err
	}

	if err := sess.wait(opts); err != nil {
		sess.Close()
		return nil, WrapExitError(ExitCommandError, "server did not report a session", err)
	}
	return sess, nil
}

// startSession starts the resolver without waiting for the server.
func startSession(cmd *cobra.Command, opts *RootOptions) (*clientSession, error) {
	store, err := openStore(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "state unavailable", err)
	}

	client, err := authclient.New(opts.Server, store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --server", err)
	}
	provider := authclient.NewProvider(client)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	resolver := identity.NewResolver(provider, store, identity.WithObserver(func(s identity.ResolvedSession) {
		logger.Info("session resolved", map[string]any{
			"state": s.String(),
		})
	}))

	if err := resolver.Start(ctx); err != nil {
		cancel()
		return nil, WrapExitError(ExitCommandError, "cannot reach "+opts.Server, err)
	}

	return &clientSession{
		store:    store,
		client:   client,
		provider: provider,
		resolver: resolver,
		cancel:   cancel,
	}, nil
}

// wait blocks until the first resolved session or --timeout.
func (s *clientSession) wait(opts *RootOptions) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	_, err := s.resolver.Wait(ctx)
	return err
}

func (s *clientSession) Close() {
	s.cancel()
	<-s.resolver.Done()
}

// awaitKind blocks until the resolver publishes kind. Sign-in is pushed to
// the resolver asynchronously; commands wait for it so storage is settled
// before the process exits.
func (s *clientSession) awaitKind(ctx context.Context, kind identity.Kind) error {
	ch, stop := s.resolver.Watch()
	defer stop()

	for {
		if s.resolver.Current().Kind == kind {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-ch:
			if !ok {
				return identity.ErrClosed
			}
			if st.Kind == kind {
				return nil
			}
		}
	}
}

// actionError maps server and resolver errors to exit codes.
func actionError(message string, err error) error {
	var apiErr *authclient.APIError
	switch {
	case errors.As(err, &apiErr):
		return WrapExitError(ExitFailure, message, err)
	case errors.Is(err, identity.ErrInvalidGuestTransition):
		return WrapExitError(ExitFailure, message, err)
	default:
		return WrapExitError(ExitCommandError, message, err)
	}
}

func sessionView(s identity.ResolvedSession) map[string]any {
	view := map[string]any{"kind": s.Kind.String()}
	if id, ok := s.ActiveIdentifier(); ok {
		view["id"] = id
	}
	if s.User != nil {
		if s.User.Email != "" {
			view["email"] = s.User.Email
		}
		if s.User.Phone != "" {
			view["phone"] = s.User.Phone
		}
	}
	return view
}

func sessionText(s identity.ResolvedSession) string {
	switch s.Kind {
	case identity.KindAuthenticated:
		contact := s.User.Email
		if contact == "" {
			contact = s.User.Phone
		}
		if contact == "" {
			return "signed in as " + s.User.ID
		}
		return fmt.Sprintf("signed in as %s (%s)", s.User.ID, contact)
	case identity.KindGuest:
		return "guest " + s.GuestID
	default:
		return "not signed in"
	}
}
