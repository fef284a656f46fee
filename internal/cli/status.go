package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state for an account",
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

		if globalFlags.OutputFormat == "json" {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(status)
		}

		lastSynced := "never"
		if status.HasCursor {
			lastSynced = status.LastSynced.Local().Format("2006-01-02 15:04:05")
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Account", "Last Synced", "Pending Downloads", "Pending Uploads", "Open Conflicts"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.Append([]string{
			status.AccountID,
			lastSynced,
			fmt.Sprintf("%d", status.PendingDownloads),
			fmt.Sprintf("%d", status.PendingUploads),
			fmt.Sprintf("%d", len(status.UnresolvedConflicts)),
		})
		table.Render()
		return nil
	},
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
