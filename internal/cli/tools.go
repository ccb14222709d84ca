package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/quiver/pkg/toolmanager"
)

var (
	toolsDisable []string
	toolsChoose  []string
	toolsJSON    bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the resolved active tool set",
	Long: `Resolve the active tool set for the current configuration, applying
any disables and choices the same way a dispatch would. Exclusive tools
appear only when chosen explicitly.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().StringSliceVar(&toolsDisable, "disable-tool", nil, "tool to exclude from the active set (repeatable)")
	toolsCmd.Flags().StringSliceVar(&toolsChoose, "choose-tool", nil, "restrict the active set to these tools (repeatable)")
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print tool definitions as JSON")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	rt, err := buildRuntime(cmd.Context(), cfg, log, toolmanager.Overrides{
		DisabledTools: toolsDisable,
		ToolChoices:   toolsChoose,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	defs := rt.manager.ToolDefinitions()
	if toolsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\n", def.Name, def.Description)
	}
	return w.Flush()
}
