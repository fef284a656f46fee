package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var transfersLimit int

var transfersCmd = &cobra.Command{
	Use:   "transfers",
	Short: "Show recent transfer history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		ctx := cmd.Context()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

		entries, err := db.ListTransferLog(ctx, globalFlags.Account, transfersLimit)
		if err != nil {
			return err
		}

		if globalFlags.OutputFormat == "json" {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(entries)
		}

		if len(entries) == 0 {
			if !globalFlags.Quiet {
				fmt.Println("No transfers recorded.")
			}
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Type", "Item", "Status", "Bytes", "Started", "Error"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, e := range entries {
			errText := e.ErrorText
			if len(errText) > 40 {
				errText = errText[:37] + "..."
			}
			table.Append([]string{
				string(e.Type),
				e.ItemID,
				string(e.Status),
				formatSize(e.BytesTransferred),
				e.Started.Local().Format("2006-01-02 15:04:05"),
				errText,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	transfersCmd.Flags().IntVar(&transfersLimit, "limit", 50, "Maximum entries to show")

	rootCmd.AddCommand(transfersCmd)
}
