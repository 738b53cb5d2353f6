package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// previewChars truncates chunk text in the inspect listing.
const previewChars = 200

// NewInspectCmd constructs the `docqa inspect` command, which prints the
// collection size, pinned dimension and the first stored chunks.
func NewInspectCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show what the collection contains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			defer a.Close()
			ctx = logging.WithLogger(ctx, a.log)

			stats, err := a.index.Stats(ctx)
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			fmt.Fprintf(out, "Collection: %s\n", stats.Collection)
			fmt.Fprintf(out, "Documents:  %d\n", stats.Count)
			fmt.Fprintf(out, "Dimension:  %d\n", stats.Dimension)
			if stats.Count == 0 || limit <= 0 {
				return nil
			}

			chunks, err := a.index.Peek(ctx, limit)
			if err != nil {
				return fmt.Errorf("inspect: %w", err)
			}
			for i, c := range chunks {
				text := strings.Join(strings.Fields(c.Text), " ")
				if r := []rune(text); len(r) > previewChars {
					text = string(r[:previewChars]) + "…"
				}
				fmt.Fprintf(out, "\n[%d] id=%s source=%s page=%d offset=%d\n    %s\n",
					i+1, c.ID, c.SourceURI, c.PageNumber, c.StartOffset, text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Number of stored chunks to print")

	return cmd
}
