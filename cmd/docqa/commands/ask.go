package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewAskCmd constructs the `docqa ask` command, which answers one question
// and exits.
func NewAskCmd() *cobra.Command {
	var showContext bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Long: `Answer one question from the indexed documents.

Sources in DOCQA_SOURCES are ingested first (already-indexed sources are
skipped).

Examples:
  docqa ask "what is the refund window?"
  docqa ask --context "who approves travel expenses?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()
			ctx = logging.WithLogger(ctx, a.log)

			if _, err := a.ingest(ctx, a.settings.Sources, cmd.ErrOrStderr()); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			qa, err := a.newAgent(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			state, err := qa.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			printAnswer(out, state.Answer, len(state.Context))
			if showContext {
				for i, c := range state.Context {
					fmt.Fprintf(out, "\n[%d] %s p.%d @%d (score %.3f)\n%s\n",
						i+1, c.SourceURI, c.PageNumber, c.StartOffset, c.Score, c.Text)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showContext, "context", false, "Print the retrieved context chunks after the answer")

	return cmd
}

// printAnswer writes the answer and the context count in the REPL's format.
func printAnswer(out io.Writer, answer string, contextDocs int) {
	fmt.Fprintf(out, "Answer: %s\n", answer)
	fmt.Fprintf(out, "Used %d context documents\n", contextDocs)
}
