package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/quiver/pkg/history"
)

var (
	historyLimit int
	historyRun   string
	historyTool  string
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the tool call history",
	Long: `Query recorded tool call outcomes. Without filters the most recent
entries are shown; --run and --tool narrow the query.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show entries for one run ID")
	historyCmd.Flags().StringVar(&historyTool, "tool", "", "show entries for one tool")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print entries as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history store is disabled in the configuration")
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	store, err := history.NewStore(history.Config{Path: cfg.History.Path}, log.Component("history"))
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	var entries []history.Entry
	switch {
	case historyRun != "":
		entries, err = store.ByRun(ctx, historyRun)
	case historyTool != "":
		entries, err = store.ByTool(ctx, historyTool, historyLimit)
	default:
		entries, err = store.Recent(ctx, historyLimit)
	}
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRUN\tTOOL\tOUTCOME\tERROR")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.CreatedAt.Format(time.RFC3339),
			entry.RunID,
			entry.Tool,
			entry.Outcome,
			entry.ErrorMessage,
		)
	}
	return w.Flush()
}
