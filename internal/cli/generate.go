package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"foto-produk-maker/internal/config"
	"foto-produk-maker/internal/gallery"
	"foto-produk-maker/internal/imagefile"
	"foto-produk-maker/internal/prompt"
	"foto-produk-maker/internal/session"
)

type generateFlags struct {
	image  string
	prompt string
	style  string
	auto   bool
	out    string
	count  int
}

func newGenerateCommand(factory ClientFactory) *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate studio shots for one product photo",
		Long: `Select a product photo, optionally let the model write the style
prompt, then generate one or more studio shots and save them to --out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, factory, flags)
		},
	}

	cmd.Flags().StringVar(&flags.image, "image", "", "Product photo to transform")
	cmd.Flags().StringVar(&flags.prompt, "prompt", "", "Style prompt; empty uses the default style")
	cmd.Flags().StringVar(&flags.style, "style", "", "Style preset key; see the styles command")
	cmd.Flags().BoolVar(&flags.auto, "auto", false, "Let the model write the style prompt first")
	cmd.Flags().StringVar(&flags.out, "out", ".", "Directory for the generated images")
	cmd.Flags().IntVar(&flags.count, "count", 1, "Number of images to generate")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

func runGenerate(cmd *cobra.Command, factory ClientFactory, flags generateFlags) error {
	if flags.count < 1 {
		return errors.New("--count must be at least 1")
	}
	if flags.style != "" && flags.prompt != "" {
		return errors.New("--style and --prompt are mutually exclusive")
	}

	stylePrompt := flags.prompt
	if flags.style != "" {
		preset, ok := prompt.Lookup(flags.style)
		if !ok {
			return fmt.Errorf("unknown style %q", flags.style)
		}
		stylePrompt = preset.Prompt
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg, cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	img, err := readImage(ctx, flags.image, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	client, err := factory(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create generation client: %w", err)
	}

	sess := session.New("cli", session.Options{Client: client, Logger: logger})
	sess.SelectImage(img)
	if stylePrompt != "" {
		sess.SetPrompt(stylePrompt)
	}

	if flags.auto {
		if err := withTimeout(ctx, cfg.RequestTimeout, sess.RequestAutoPrompt); err != nil {
			return sessionError(sess, err)
		}
		fmt.Fprintf(out, "prompt: %s\n", sess.Snapshot().Prompt)
	}

	if err := os.MkdirAll(flags.out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	results := gallery.New(sess, time.Local)
	for i := 0; i < flags.count; i++ {
		if err := withTimeout(ctx, cfg.RequestTimeout, sess.RequestGenerate); err != nil {
			return sessionError(sess, err)
		}

		dl, err := results.Export(sess.Results()[0].ID)
		if err != nil {
			return err
		}
		path := filepath.Join(flags.out, dl.Filename)
		if err := os.WriteFile(path, dl.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintln(out, path)
	}
	return nil
}

func readImage(ctx context.Context, path string, maxBytes int64) (imagefile.ImageFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return imagefile.ImageFile{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, err := imagefile.Decode(ctx, imagefile.Upload{
		Name:         filepath.Base(path),
		DeclaredType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Body:         f,
		MaxBytes:     maxBytes,
	})
	if errors.Is(err, imagefile.ErrInvalidType) {
		return imagefile.ImageFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, err
}

func withTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return op(ctx)
}

// sessionError prefers the message the session recorded for the user.
func sessionError(sess *session.Session, err error) error {
	if msg := sess.Snapshot().Error; msg != "" {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return err
}
