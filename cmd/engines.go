package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var clearBlockEngineID string

// enginesCmd represents the engines command
var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "Inspect engine health and rate counters",
	Run: func(cmd *cobra.Command, args []string) {
		registry := buildRegistry()
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Engine", "Status", "Req/Hour", "Req/Day", "Error Streak", "CAPTCHA 24h", "Blocked Until"})
		for _, report := range registry.Reports() {
			blocked := "-"
			if report.BlockedUntil != nil {
				blocked = report.BlockedUntil.Format("2006-01-02 15:04:05")
			}
			table.Append([]string{
				report.EngineID,
				string(report.Status),
				fmt.Sprintf("%d", report.RequestsHour),
				fmt.Sprintf("%d", report.RequestsToday),
				fmt.Sprintf("%d", report.ErrorStreak),
				fmt.Sprintf("%d", report.CaptchaCount),
				blocked,
			})
		}
		table.SetBorder(true)
		table.Render()
	},
}

var enginesClearBlockCmd = &cobra.Command{
	Use:   "clear-block",
	Short: "Manually clear an engine's block state",
	Run: func(cmd *cobra.Command, args []string) {
		registry := buildRegistry()
		engine, err := registry.Get(clearBlockEngineID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		engine.ClearBlock()
		fmt.Printf("Cleared block state for %s\n", clearBlockEngineID)
	},
}

func init() {
	enginesClearBlockCmd.Flags().StringVarP(&clearBlockEngineID, "engine", "e", "", "Engine ID")
	enginesClearBlockCmd.MarkFlagRequired("engine")

	enginesCmd.AddCommand(enginesClearBlockCmd)
	rootCmd.AddCommand(enginesCmd)
}
