package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"supa-artistry/internal/client/authclient"

	"github.com/spf13/cobra"
)

const envAPIKey = "ARTISTRY_API_KEY"

// GenerateOptions holds flags shared by the demo commands.
type GenerateOptions struct {
	*RootOptions
	APIKey  string
	Backend string
	Prompt  string
	File    string
}

func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run a generative AI demo",
		Long: `Run a generative AI demo.

Requests are made as the signed-in user or, failing that, as the guest
created by 'artistry guest'.

Example:
  artistry generate text --prompt "a haiku about rain"
  artistry generate image --file cat.png`,
	}

	cmd.PersistentFlags().StringVar(&opts.APIKey, "api-key", os.Getenv(envAPIKey), "Google AI API key (env "+envAPIKey+")")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "gemini-api", "gemini-api or vertex-ai")

	text := &cobra.Command{
		Use:   "text",
		Short: "Generate text from --prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, opts, func(c *authclient.Client, id string) (*authclient.DemoResult, error) {
				return c.GenerateText(cmd.Context(), id, opts.demo(), opts.Prompt)
			})
		},
	}
	text.Flags().StringVar(&opts.Prompt, "prompt", "", "prompt text")

	video := &cobra.Command{
		Use:   "video",
		Short: "Generate a video from --prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, opts, func(c *authclient.Client, id string) (*authclient.DemoResult, error) {
				return c.GenerateVideo(cmd.Context(), id, opts.demo(), opts.Prompt)
			})
		},
	}
	video.Flags().StringVar(&opts.Prompt, "prompt", "", "prompt text")

	image := &cobra.Command{
		Use:   "image",
		Short: "Describe the image in --file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts, func(c *authclient.Client, id string, img authclient.ImageUpload) (*authclient.DemoResult, error) {
				return c.AnalyzeImage(cmd.Context(), id, opts.demo(), img)
			})
		},
	}
	image.Flags().StringVar(&opts.File, "file", "", "image file")

	multimodal := &cobra.Command{
		Use:   "multimodal",
		Short: "Answer --prompt about the image in --file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd, opts, func(c *authclient.Client, id string, img authclient.ImageUpload) (*authclient.DemoResult, error) {
				return c.TextAndImage(cmd.Context(), id, opts.demo(), opts.Prompt, img)
			})
		},
	}
	multimodal.Flags().StringVar(&opts.File, "file", "", "image file")
	multimodal.Flags().StringVar(&opts.Prompt, "prompt", "", "question about the image")

	cmd.AddCommand(text, image, multimodal, video)
	return cmd
}

func (o *GenerateOptions) demo() authclient.DemoOptions {
	return authclient.DemoOptions{APIKey: o.APIKey, Backend: o.Backend}
}

type demoFunc func(c *authclient.Client, activeID string) (*authclient.DemoResult, error)

func runDemo(cmd *cobra.Command, opts *GenerateOptions, fn demoFunc) error {
	sess, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer sess.Close()

	activeID, ok := sess.resolver.ActiveIdentifier()
	if !ok {
		return NewExitError(ExitFailure, "sign in or run 'artistry guest' first")
	}

	res, err := fn(sess.client, activeID)
	if err != nil {
		return actionError("demo failed", err)
	}

	out := printer{format: opts.Format, w: cmd.OutOrStdout()}
	return out.print(res, demoText(res))
}

func runUpload(cmd *cobra.Command, opts *GenerateOptions, fn func(*authclient.Client, string, authclient.ImageUpload) (*authclient.DemoResult, error)) error {
	var img authclient.ImageUpload
	if opts.File != "" {
		f, err := os.Open(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot open image", err)
		}
		defer f.Close()
		img = authclient.ImageUpload{Name: filepath.Base(opts.File), Data: f}
	}

	return runDemo(cmd, opts, func(c *authclient.Client, id string) (*authclient.DemoResult, error) {
		return fn(c, id, img)
	})
}

func demoText(res *authclient.DemoResult) string {
	var b strings.Builder
	who := "user"
	if res.Guest {
		who = "guest"
	}
	fmt.Fprintf(&b, "[%s %s]\n", who, res.SessionID)
	if res.Result != nil {
		b.WriteString(res.Result.Text)
		if res.Result.VideoURL != "" {
			b.WriteString("\n" + res.Result.VideoURL)
		}
		fmt.Fprintf(&b, "\n(%s, %dms)", res.Result.Backend, res.Result.Elapsed)
	}
	return b.String()
}
