package cmd

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/pkg/scan/orchestrator"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	fullScanAreaIDs     []uint
	fullScanCategoryIDs []uint
	fullScanEngineIDs   []string
	fullScanGridSize    int
)

// fullScanCmd represents the fullscan command
var fullScanCmd = &cobra.Command{
	Use:   "fullscan",
	Short: "Run scans across areas, categories and engines",
	Long: `Expands to the cross product of the selected service areas, the active
keywords of the selected categories and the selected engines, then runs
every resulting scan as one batch. Empty selections mean "all active".`,
	Run: func(cmd *cobra.Command, args []string) {
		registry := buildRegistry()
		orch := buildOrchestrator(registry)
		defer orch.Stop()

		scans, err := orch.CreateFullScan(orchestrator.FullScanRequest{
			ServiceAreaIDs: fullScanAreaIDs,
			CategoryIDs:    fullScanCategoryIDs,
			EngineIDs:      fullScanEngineIDs,
			GridSize:       fullScanGridSize,
		})
		if err != nil {
			log.Error().Err(err).Msg("Unable to create full scan")
			os.Exit(1)
		}
		log.Info().Int("scans", len(scans)).Msg("Full scan batch running")

		waitForBatch(*scans[0].BatchID)
	},
}

func waitForBatch(batchID uuid.UUID) {
	conn := db.Connection()
	interval := viper.GetDuration("scan.monitor.batch_poll_interval")
	if interval == 0 {
		interval = 15 * time.Second
	}
	for {
		remaining, err := conn.GetNonTerminalScansByBatch(batchID)
		if err != nil {
			log.Error().Err(err).Msg("Batch poll failed")
			time.Sleep(interval)
			continue
		}
		if len(remaining) == 0 {
			log.Info().Msg("Full scan batch finished")
			return
		}
		log.Info().Int("remaining", len(remaining)).Msg("Batch in progress")
		time.Sleep(interval)
	}
}

func init() {
	fullScanCmd.Flags().UintSliceVarP(&fullScanAreaIDs, "area", "a", nil, "Service area IDs (repeatable; default all active)")
	fullScanCmd.Flags().UintSliceVarP(&fullScanCategoryIDs, "category", "c", nil, "Category IDs (repeatable; default all active)")
	fullScanCmd.Flags().StringSliceVarP(&fullScanEngineIDs, "engine", "e", nil, "Engine IDs (repeatable; default all)")
	fullScanCmd.Flags().IntVarP(&fullScanGridSize, "grid", "g", 0, "Grid size (3, 5, 7 or 9; default from config)")
	rootCmd.AddCommand(fullScanCmd)
}
