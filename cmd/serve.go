package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/pkg/scan/scheduler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveDisableScheduler bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan worker and scheduler",
	Long: `Starts the long-running scan process: recovers scans interrupted by a
previous shutdown, registers cron schedules and processes queued grid
points until stopped.`,
	Run: func(cmd *cobra.Command, args []string) {
		registry := buildRegistry()
		orch := buildOrchestrator(registry)

		if err := orch.RecoverOrphanedScans(); err != nil {
			log.Error().Err(err).Msg("Orphaned scan recovery failed")
		}

		sched := scheduler.NewScheduler(db.Connection(), orch)
		if serveDisableScheduler {
			log.Info().Msg("Scheduler disabled")
		} else if err := sched.Start(); err != nil {
			log.Error().Err(err).Msg("Scheduler failed to start")
			os.Exit(1)
		}

		log.Info().Strs("engines", registry.IDs()).Msg("gridrank worker running")

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info().Msg("Shutting down")
		sched.Stop()
		orch.Stop()
		if err := db.Connection().Close(); err != nil {
			log.Error().Err(err).Msg("Database close failed")
		}
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDisableScheduler, "no-scheduler", false, "Do not run cron schedules")
	rootCmd.AddCommand(serveCmd)
}
