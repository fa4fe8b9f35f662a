package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"wedding-site/internal/config"
	"wedding-site/internal/database"
	"wedding-site/internal/models"
	"wedding-site/internal/rsvp"
)

// ResponsesOptions holds flags for the responses commands.
type ResponsesOptions struct {
	*RootOptions
	Status string
	Search string
	Out    string
}

type responseLister interface {
	List(ctx context.Context) ([]models.Response, error)
}

// openResponses connects to the response store. Tests replace it.
var openResponses = func(ctx context.Context, cfg *config.Config) (responseLister, func() error, error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, nil, err
	}
	store, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return rsvp.NewService(store), store.Close, nil
}

// NewResponsesCommand creates the responses command group.
func NewResponsesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResponsesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Inspect RSVP responses",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List responses, newest first",
		Example: `  wedding responses list
  wedding responses list --status yes --search cruz --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts)
		},
	}
	addFilterFlags(list, opts)

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarize responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, opts)
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Export responses as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}
	addFilterFlags(export, opts)
	export.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")

	cmd.AddCommand(list, stats, export)
	return cmd
}

func addFilterFlags(cmd *cobra.Command, opts *ResponsesOptions) {
	cmd.Flags().StringVar(&opts.Status, "status", "all", "filter by status (all|yes|maybe|no)")
	cmd.Flags().StringVar(&opts.Search, "search", "", "case-insensitive search over names, guests and messages")
}

func loadResponses(cmd *cobra.Command, opts *ResponsesOptions) ([]models.Response, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	src, closeFn, err := openResponses(ctx, opts.Config)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	responses, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	return responses, nil
}

func runList(cmd *cobra.Command, opts *ResponsesOptions) error {
	responses, err := loadResponses(cmd, opts)
	if err != nil {
		return err
	}
	responses = rsvp.Filter(responses, opts.Status, opts.Search)
	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), map[string]any{"responses": responses})
	}
	return printResponses(cmd.OutOrStdout(), responses)
}

func runStats(cmd *cobra.Command, opts *ResponsesOptions) error {
	responses, err := loadResponses(cmd, opts)
	if err != nil {
		return err
	}
	st := rsvp.Summarize(responses)
	if opts.Format == "json" {
		return printJSON(cmd.OutOrStdout(), st)
	}
	return printStats(cmd.OutOrStdout(), st)
}

func runExport(cmd *cobra.Command, opts *ResponsesOptions) error {
	responses, err := loadResponses(cmd, opts)
	if err != nil {
		return err
	}
	responses = rsvp.Filter(responses, opts.Status, opts.Search)

	var w io.Writer = cmd.OutOrStdout()
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := rsvp.WriteCSV(w, responses); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if opts.Out != "" {
		opts.Log.Info().Str("file", opts.Out).Int("responses", len(responses)).Msg("Exported responses")
	}
	return nil
}
