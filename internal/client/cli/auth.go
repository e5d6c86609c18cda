package cli

import (
	"context"
	"errors"

	"supa-artistry/internal/client/authclient"
	"supa-artistry/internal/client/identity"
	"supa-artistry/internal/logger"

	"github.com/spf13/cobra"
)

func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who requests are made as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			current := sess.resolver.Current()
			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(sessionView(current), sessionText(current))
		},
	}
}

func NewGuestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "guest",
		Short: "Continue without an account",
		Long: `Continue without an account.

Creates a guest identity and keeps it in the state file, so later runs act
as the same guest. Signing in later replaces it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			token, err := sess.resolver.ContinueAsGuest(cmd.Context())
			if err != nil {
				if errors.Is(err, identity.ErrInvalidGuestTransition) {
					return WrapExitError(ExitFailure, "already signed in; sign out first", err)
				}
				return actionError("continue as guest", err)
			}

			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(sessionView(identity.Guest(token)), "guest "+token)
		},
	}
}

type credentialOptions struct {
	*RootOptions
	Email    string
	Password string
}

func NewSignUpCommand(rootOpts *RootOptions) *cobra.Command {
	return newCredentialCommand(rootOpts, "signup", "Create an account with email and password",
		func(ctx context.Context, p *authclient.Provider, email, password string) (*authclient.SessionInfo, error) {
			return p.SignUp(ctx, email, password)
		})
}

func NewSignInCommand(rootOpts *RootOptions) *cobra.Command {
	return newCredentialCommand(rootOpts, "signin", "Sign in with email and password",
		func(ctx context.Context, p *authclient.Provider, email, password string) (*authclient.SessionInfo, error) {
			return p.SignIn(ctx, email, password)
		})
}

type signInFunc func(ctx context.Context, p *authclient.Provider, email, password string) (*authclient.SessionInfo, error)

func newCredentialCommand(rootOpts *RootOptions, use, short string, fn signInFunc) *cobra.Command {
	opts := &credentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			if sess.resolver.Current().Kind == identity.KindAuthenticated {
				return NewExitError(ExitFailure, "already signed in; sign out first")
			}

			if _, err := fn(ctx, sess.provider, opts.Email, opts.Password); err != nil {
				return actionError(use+" failed", err)
			}
			return finishSignIn(cmd, sess, opts.RootOptions)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// finishSignIn waits for the resolver to take the new session, which also
// drops any stored guest identity, and prints it.
func finishSignIn(cmd *cobra.Command, sess *clientSession, rootOpts *RootOptions) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
	defer cancel()

	if err := sess.awaitKind(ctx, identity.KindAuthenticated); err != nil {
		return WrapExitError(ExitCommandError, "signed in, but the session did not arrive", err)
	}

	current := sess.resolver.Current()
	out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
	return out.print(sessionView(current), sessionText(current))
}

type otpOptions struct {
	*RootOptions
	Phone string
	Code  string
}

func NewOTPCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &otpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "otp",
		Short: "Sign in with a code sent by SMS",
		Long: `Sign in with a code sent by SMS.

Example:
  artistry otp request --phone "+1 201 555 0123"
  artistry otp verify --phone "+1 201 555 0123" --code 123456`,
	}
	cmd.PersistentFlags().StringVar(&opts.Phone, "phone", "", "phone number")
	_ = cmd.MarkPersistentFlagRequired("phone")

	request := &cobra.Command{
		Use:   "request",
		Short: "Send a code to --phone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts.RootOptions)
			if err != nil {
				return WrapExitError(ExitCommandError, "state unavailable", err)
			}
			client, err := authclient.New(opts.Server, store)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --server", err)
			}

			phone, err := authclient.NewProvider(client).RequestOTP(cmd.Context(), opts.Phone)
			if err != nil {
				return actionError("code not sent", err)
			}

			out := printer{format: opts.Format, w: cmd.OutOrStdout()}
			return out.print(map[string]any{"status": "code_sent", "phone": phone}, "code sent to "+phone)
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Sign in with the code sent to --phone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer sess.Close()

			if _, err := sess.provider.VerifyOTP(cmd.Context(), opts.Phone, opts.Code); err != nil {
				return actionError("verification failed", err)
			}
			return finishSignIn(cmd, sess, opts.RootOptions)
		},
	}
	verify.Flags().StringVar(&opts.Code, "code", "", "code from the SMS")
	_ = verify.MarkFlagRequired("code")

	cmd.AddCommand(request, verify)
	return cmd
}

func NewSignOutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the guest identity",
		Long: `Sign out and forget the guest identity.

Local state is cleared even when the server cannot be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// no waiting on the server first: it may be the thing that is down
			sess, err := startSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.wait(rootOpts); err != nil {
				logger.Warn("no session from server, signing out locally", map[string]any{
					"error": err.Error(),
				})
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}

			if err := sess.resolver.SignOut(ctx); err != nil {
				if errors.Is(err, identity.ErrProviderUnavailable) {
					_ = out.print(sessionView(identity.None()), "signed out locally")
					return WrapExitError(ExitFailure, "server sign-out failed", err)
				}
				return actionError("sign out", err)
			}

			return out.print(sessionView(identity.None()), "signed out")
		},
	}
}

func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Extend the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			if sess.resolver.Current().Kind != identity.KindAuthenticated {
				return NewExitError(ExitFailure, "not signed in")
			}

			info, err := sess.provider.Refresh(cmd.Context())
			if err != nil {
				return actionError("refresh failed", err)
			}

			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(info, "session valid until "+info.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		},
	}
}
