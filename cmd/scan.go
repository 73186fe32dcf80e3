package cmd

import (
	"os"
	"time"

	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/pkg/scan/orchestrator"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	scanAreaID     uint
	scanCategoryID uint
	scanKeyword    string
	scanEngineID   string
	scanGridSize   int
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan and wait for it to finish",
	Long: `Runs one keyword against one engine over the service area's grid and
blocks until the scan reaches a terminal state.`,
	Run: func(cmd *cobra.Command, args []string) {
		registry := buildRegistry()
		orch := buildOrchestrator(registry)
		defer orch.Stop()

		scan, err := orch.CreateScan(orchestrator.ScanRequest{
			ServiceAreaID: scanAreaID,
			CategoryID:    scanCategoryID,
			Keyword:       scanKeyword,
			EngineID:      scanEngineID,
			GridSize:      scanGridSize,
			Priority:      1,
		})
		if err != nil {
			log.Error().Err(err).Msg("Unable to create scan")
			os.Exit(1)
		}

		final := waitForScan(scan.ID)
		printTable([]db.Scan{*final})
		if final.Status != db.ScanStatusCompleted {
			os.Exit(1)
		}
	},
}

// waitForScan polls until the scan is terminal.
func waitForScan(scanID uint) *db.Scan {
	conn := db.Connection()
	interval := viper.GetDuration("scan.monitor.poll_interval")
	if interval == 0 {
		interval = 5 * time.Second
	}
	for {
		scan, err := conn.GetScanByID(scanID)
		if err != nil {
			log.Error().Err(err).Uint("scan_id", scanID).Msg("Scan poll failed")
			time.Sleep(interval)
			continue
		}
		if scan.Status.IsTerminal() {
			return scan
		}
		log.Info().
			Uint("scan_id", scanID).
			Int("completed", scan.PointsCompleted).
			Int("total", scan.PointsTotal).
			Msg("Scan in progress")
		time.Sleep(interval)
	}
}

func init() {
	scanCmd.Flags().UintVarP(&scanAreaID, "area", "a", 0, "Service area ID")
	scanCmd.Flags().UintVarP(&scanCategoryID, "category", "c", 0, "Category ID")
	scanCmd.Flags().StringVarP(&scanKeyword, "keyword", "k", "", "Keyword to scan")
	scanCmd.Flags().StringVarP(&scanEngineID, "engine", "e", "google_search", "Engine ID")
	scanCmd.Flags().IntVarP(&scanGridSize, "grid", "g", 0, "Grid size (3, 5, 7 or 9; default from config)")
	scanCmd.MarkFlagRequired("area")
	scanCmd.MarkFlagRequired("category")
	scanCmd.MarkFlagRequired("keyword")
	rootCmd.AddCommand(scanCmd)
}
