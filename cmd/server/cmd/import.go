package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/Togather-Foundation/historia/internal/config"
	"github.com/Togather-Foundation/historia/internal/domain/history"
	"github.com/spf13/cobra"
)

func newImportCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run an import once and print its summary",
	}
	cmd.AddCommand(newImportWikidataCommand(root), newImportTitlesCommand(root))
	return cmd
}

func newImportWikidataCommand(root *rootOptions) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "wikidata",
		Short: "Page through the Wikidata events query",
		Long: `Run the configured SPARQL query page by page until an empty page,
writing admitted records to staging (default) or straight to the canonical
table. Pages committed before a failure are kept.

Examples:
  historia import wikidata
  historia import wikidata --target canonical`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := history.ParseTarget(target)
			if err != nil {
				return err
			}
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				result, err := a.importer.Run(ctx, parsed)
				if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", string(history.TargetStaging), "table to write to (staging, canonical)")
	return cmd
}

func newImportTitlesCommand(root *rootOptions) *cobra.Command {
	var req history.TitleImportRequest

	cmd := &cobra.Command{
		Use:   "titles",
		Short: "Stage the Wikidata items behind Wikipedia titles",
		Long: `Resolve Wikipedia titles to Wikidata items and stage the ones that
pass normalization. Titles come either from repeated --title flags or from
the article links of one section of a page.

Examples:
  historia import titles --title "Battle of Hastings" --title "Siege of Orleans"
  historia import titles --page "List of battles 1301-1600" --section "15th century"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(req.Titles) == 0 && (req.Page == "" || req.Section == "") {
				return fmt.Errorf("either --title or both --page and --section are required")
			}
			if len(req.Titles) > 0 && req.Page != "" {
				return fmt.Errorf("--title cannot be combined with --page")
			}
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				result, err := a.titles.Import(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&req.Page, "page", "", "Wikipedia page holding the section")
	cmd.Flags().StringVar(&req.Section, "section", "", "section heading whose links are imported")
	cmd.Flags().StringArrayVar(&req.Titles, "title", nil, "explicit title to import (repeatable)")
	return cmd
}

// withApp loads config, wires the pipeline and runs fn until it returns or
// the process is interrupted. An interrupted run still prints its summary.
func withApp(cmd *cobra.Command, root *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := config.NewLogger(cfg.Logging)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
