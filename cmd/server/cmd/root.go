package cmd

import (
	"fmt"
	"os"

	"github.com/Togather-Foundation/historia/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions holds the global flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "historia",
		Short: "Historia - historical event ingestion and staging pipeline",
		Long: `Historia pages historical events out of Wikidata, normalizes and
deduplicates them, and stages them for review before they are promoted
into the canonical dataset.

It provides:
- Paged Wikidata SPARQL imports into staging or the canonical table
- Title-list imports resolved through Wikipedia
- A review API to approve or reject staged records
- Scheduled imports and staging cleanup through River`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML file overlaying import settings (optional)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		newServeCommand(opts),
		newImportCommand(opts),
		newMigrateCommand(opts),
		newVersionCommand(),
		newHealthcheckCommand(),
	)
	return root
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file, the environment and the optional YAML
// overlay, then applies the logging flags.
func loadConfig(opts *rootOptions) (config.Config, error) {
	if opts.envFile != "" {
		config.LoadEnvFile(opts.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if opts.configPath != "" {
		if err := config.ApplyFile(&cfg, opts.configPath); err != nil {
			return config.Config{}, err
		}
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	return cfg, nil
}
