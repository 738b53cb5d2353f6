package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which indexes sources
// into the persisted collection. Already-indexed sources are skipped.
func NewIngestCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "ingest [source...]",
		Short: "Index documents into the collection",
		Long: `Load, clean, split and embed documents into the persisted collection.

A source is a PDF or text file, a directory (searched recursively for .pdf,
.txt and .md files) or an http(s) URL when DOCQA_REMOTE_SOURCES is enabled.
Sources already in the collection are skipped, so re-running is cheap.
Without arguments the sources in DOCQA_SOURCES are used.

Examples:
  docqa ingest ./handbook.pdf
  DOCQA_REMOTE_SOURCES=true docqa ingest ./docs --source https://example.com/policy.pdf
  DOCQA_SOURCES=a.pdf,b.pdf docqa ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close()
			ctx = logging.WithLogger(ctx, a.log)

			all := slices.Concat(args, sources)
			if len(all) == 0 {
				all = a.settings.Sources
			}
			if len(all) == 0 {
				return fmt.Errorf("ingest: no sources given (pass paths or set DOCQA_SOURCES)")
			}

			report, err := a.ingest(ctx, all, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if n := report.Count(ingestion.StatusFailed); n > 0 {
				return fmt.Errorf("ingest: %d source(s) failed", n)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "Source to ingest (repeatable)")

	return cmd
}
