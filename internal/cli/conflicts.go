package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dl-alexandre/mirrorsync/internal/engine/conflict"
)

var resolveStrategy string

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve sync conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := buildEngine()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		ctx := cmd.Context()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

		status, err := eng.GetStatus(ctx)
		if err != nil {
			return err
		}
		conflicts := status.UnresolvedConflicts

		if globalFlags.OutputFormat == "json" {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(conflicts)
		}

		if len(conflicts) == 0 {
			if !globalFlags.Quiet {
				fmt.Println("No open conflicts.")
			}
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Path", "Local Modified", "Remote Modified", "Detected"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, c := range conflicts {
			table.Append([]string{
				c.ID,
				c.RelativePath,
				c.LocalModified.Local().Format("2006-01-02 15:04:05"),
				c.RemoteModified.Local().Format("2006-01-02 15:04:05"),
				c.Detected.Local().Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a conflict with a strategy",
	Long: `Resolve an open conflict. Strategies:

  keep-local   keep the local copy and upload it
  keep-remote  back the local copy up beside itself and download the remote
  newer-wins   pick whichever side was modified last

Without --strategy, the configured conflict policy applies; if that policy is
prompt, you are asked interactively.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := buildEngine()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		ctx := cmd.Context()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

		name := resolveStrategy
		if name == "" {
			name = cfg.ConflictPolicy
		}
		if name == string(conflict.StrategyPrompt) {
			name, err = promptStrategy(args[0])
			if err != nil {
				return err
			}
		}
		strategy, err := conflict.ParseStrategy(name)
		if err != nil {
			return err
		}

		resolution, err := eng.ResolveConflict(ctx, args[0], strategy)
		if err != nil {
			return err
		}

		if globalFlags.OutputFormat == "json" {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(resolution)
		}
		if resolution.AlreadyResolved {
			fmt.Printf("Conflict %s was already resolved with %s\n", args[0], resolution.Applied)
			return nil
		}
		fmt.Printf("Resolved %s with %s\n", resolution.Conflict.RelativePath, resolution.Applied)
		if resolution.BackupPath != "" {
			fmt.Printf("Local copy preserved as %s\n", resolution.BackupPath)
		}
		return nil
	},
}

func promptStrategy(conflictID string) (string, error) {
	fmt.Printf("Resolve conflict %s [keep-local/keep-remote/newer-wins]: ", conflictID)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read choice: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	conflictsResolveCmd.Flags().StringVar(&resolveStrategy, "strategy", "", "Resolution strategy (keep-local, keep-remote, newer-wins)")

	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}
