package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/quiver/internal/observability"
	"github.com/harun/quiver/pkg/agent"
	"github.com/harun/quiver/pkg/toolmanager"
)

var (
	runForce   []string
	runDisable []string
	runChoose  []string
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Execute one agent run and print the result",
	Long: `Execute a single agent run against the configured provider. The prompt
comes from the arguments, or from stdin when no arguments are given.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runForce, "force-tool", nil, "tool the model must call on the first turn (repeatable)")
	runCmd.Flags().StringSliceVar(&runDisable, "disable-tool", nil, "tool to exclude from the active set (repeatable)")
	runCmd.Flags().StringSliceVar(&runChoose, "choose-tool", nil, "restrict the active set to these tools (repeatable)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return fmt.Errorf("no prompt given")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Console logging stays off so stdout carries only the answer.
	log, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	if err := observability.InitAuditLogger(cfg.Audit.Path); err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer observability.GetAuditLogger().Close()

	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, cfg, log, toolmanager.Overrides{
		DisabledTools: runDisable,
		ToolChoices:   runChoose,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, name := range runForce {
		if err := rt.manager.AddForcedTool(name); err != nil {
			return err
		}
	}

	result, err := rt.runner.RunWithContext(ctx, agent.RunParams{
		Prompt: prompt,
		Config: runConfigFrom(cfg),
	})
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Response)
	return nil
}
