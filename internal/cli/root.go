// Package cli defines the studio command, a one-shot run of the photo
// session against local files.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"foto-produk-maker/internal/config"
	"foto-produk-maker/internal/gemini"
	"foto-produk-maker/internal/httpclient"
	"foto-produk-maker/internal/session"
)

var version = "dev" // set via ldflags at build time

// ClientFactory builds the generation client once config is loaded.
type ClientFactory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.GenerationClient, error)

func NewRootCommand(factory ClientFactory) *cobra.Command {
	if factory == nil {
		factory = geminiClient
	}

	root := &cobra.Command{
		Use:           "studio",
		Short:         "Turn product snapshots into studio product photos",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newGenerateCommand(factory))
	root.AddCommand(newStylesCommand())
	return root
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCommand(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func geminiClient(ctx context.Context, cfg config.Config, logger *slog.Logger) (session.GenerationClient, error) {
	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	client, err := gemini.New(ctx, gemini.Options{
		APIKey:            cfg.GeminiAPIKey,
		BaseURL:           cfg.GeminiBaseURL,
		APIVersion:        cfg.GeminiAPIVersion,
		PromptModel:       cfg.GeminiPromptModel,
		ImageModel:        cfg.GeminiImageModel,
		RequestsPerMinute: cfg.GeminiRequestsPerMinute,
		HTTPClient:        httpClient,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
