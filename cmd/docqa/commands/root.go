// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

// rootFlags holds the persistent flag values shared by every subcommand.
type rootFlags struct {
	// configPath is the --config YAML override.
	configPath string
	// envFile is the --env-file override (default .env).
	envFile string
	// loadedConfigPath is the YAML file actually applied, for audit logging.
	loadedConfigPath string
}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about your documents",
		Long: `docqa indexes PDF and text documents into a persistent vector collection
and answers questions about them with an LLM, using the most similar chunks
as context.

Configuration comes from environment variables, optionally seeded from a
.env file and a YAML config file (~/.docqa/config.yaml). Environment
variables always win. The model backend is selected with MODEL_PROVIDER.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(flags.envFile); err != nil {
				return err
			}

			log := logging.New()
			path, err := config.Load(flags.configPath, log)
			if err != nil {
				return err
			}
			flags.loadedConfigPath = path

			audit.LogCommandStart(log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML config file (default: ~/.docqa/config.yaml)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Path to a dotenv file; missing files are ignored")

	root.AddCommand(
		NewChatCmd(),
		NewAskCmd(),
		NewIngestCmd(),
		NewServeCmd(),
		NewInspectCmd(),
		NewResetCmd(),
		NewVersionCmd(),
	)

	return root
}
