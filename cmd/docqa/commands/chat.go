package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/logging"
)

// replPrompt is printed before every line read.
const replPrompt = "Enter your query('exit' to quit): "

// asker answers one question. *agent.Agent satisfies it.
type asker interface {
	Ask(ctx context.Context, question string) (agent.QueryState, error)
}

// NewChatCmd constructs the `docqa chat` command, the interactive loop.
func NewChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: `Start an interactive question loop over the indexed documents.

Sources in DOCQA_SOURCES are ingested first. Each line is answered from the
top-k most similar chunks. Type a line containing "exit" to quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer a.Close()
			ctx = logging.WithLogger(ctx, a.log)

			if _, err := a.ingest(ctx, a.settings.Sources, cmd.ErrOrStderr()); err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			qa, err := a.newAgent(ctx)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			return runREPL(ctx, os.Stdin, cmd.OutOrStdout(), qa)
		},
	}
}

// runREPL reads one question per line from in until a line contains "exit"
// (any case), the input ends, or ctx is cancelled. A failed question prints
// "Error: <message>" and the loop continues.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, qa asker) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(out, replPrompt)
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := sc.Text()
		if strings.Contains(strings.ToLower(line), "exit") {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		state, err := qa.Ask(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		printAnswer(out, state.Answer, len(state.Context))
	}
}
