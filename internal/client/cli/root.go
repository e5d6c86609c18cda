// Package cli is the artistry command line: sign in, continue as a guest
// and run the demos as whoever the session resolver says you are.
package cli

import (
	"fmt"
	"os"
	"time"

	"supa-artistry/internal/logger"

	"github.com/spf13/cobra"
)

const (
	envServer = "ARTISTRY_SERVER"
	envState  = "ARTISTRY_STATE"

	defaultServer = "http://localhost:8080"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server    string
	State     string
	Ephemeral bool
	Verbose   bool
	Format    string // "json" | "text"
	Timeout   time.Duration
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "artistry",
		Short: "Supa Artistry client",
		Long: `Supa Artistry client.

Sign up, sign in or continue as a guest, then run the generative AI demos.
Your session and guest identity are kept in a local state file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			logger.InitConsole(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr(envServer, defaultServer), "server base URL (env "+envServer+")")
	cmd.PersistentFlags().StringVar(&opts.State, "state", os.Getenv(envState), "state file path (env "+envState+", default under the user config dir)")
	cmd.PersistentFlags().BoolVar(&opts.Ephemeral, "ephemeral", false, "keep state in memory only")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "how long to wait for the server")

	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewGuestCommand(opts))
	cmd.AddCommand(NewSignUpCommand(opts))
	cmd.AddCommand(NewSignInCommand(opts))
	cmd.AddCommand(NewOTPCommand(opts))
	cmd.AddCommand(NewSignOutCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
