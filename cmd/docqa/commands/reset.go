package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewResetCmd constructs the `docqa reset` command, which deletes the
// collection and its ingestion checkpoints.
func NewResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every entry in the collection",
		Long: `Delete the collection, its pinned embedding dimension and any ingestion
checkpoints. Required after changing the embedding model.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("reset: refusing to delete the collection without --yes")
			}
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			defer a.Close()
			ctx = logging.WithLogger(ctx, a.log)

			if err := a.index.DeleteCollection(ctx); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted collection %s\n", a.settings.Index.Collection)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")

	return cmd
}
