package cmd

import (
	"os"

	"github.com/gridrank/gridrank/db"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	scheduleName        string
	scheduleCron        string
	scheduleAreaIDs     []uint
	scheduleCategoryIDs []uint
	scheduleEngineIDs   []string
	scheduleGridSize    int
	scheduleID          uint
)

// schedulesCmd represents the schedules command
var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Manage recurring scan schedules",
}

var schedulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	Run: func(cmd *cobra.Command, args []string) {
		schedules, err := db.Connection().ListScanSchedules()
		if err != nil {
			log.Error().Err(err).Msg("Unable to list schedules")
			os.Exit(1)
		}
		printTable(schedules)
	},
}

var schedulesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a schedule",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := cron.ParseStandard(scheduleCron); err != nil {
			log.Error().Err(err).Str("cron", scheduleCron).Msg("Invalid cron expression")
			os.Exit(1)
		}
		schedule, err := db.Connection().CreateScanSchedule(&db.ScanSchedule{
			Name:           scheduleName,
			CronExpression: scheduleCron,
			ServiceAreaIDs: scheduleAreaIDs,
			CategoryIDs:    scheduleCategoryIDs,
			EngineIDs:      scheduleEngineIDs,
			GridSize:       scheduleGridSize,
			IsActive:       true,
		})
		if err != nil {
			log.Error().Err(err).Msg("Unable to create schedule")
			os.Exit(1)
		}
		printTable([]*db.ScanSchedule{schedule})
	},
}

var schedulesToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Enable or disable a schedule",
	Run: func(cmd *cobra.Command, args []string) {
		conn := db.Connection()
		schedule, err := conn.GetScanScheduleByID(scheduleID)
		if err != nil {
			log.Error().Err(err).Uint("id", scheduleID).Msg("Schedule not found")
			os.Exit(1)
		}
		schedule.IsActive = !schedule.IsActive
		if _, err := conn.UpdateScanSchedule(schedule); err != nil {
			log.Error().Err(err).Uint("id", scheduleID).Msg("Unable to update schedule")
			os.Exit(1)
		}
		printTable([]*db.ScanSchedule{schedule})
	},
}

func init() {
	schedulesCreateCmd.Flags().StringVarP(&scheduleName, "name", "n", "", "Schedule name")
	schedulesCreateCmd.Flags().StringVar(&scheduleCron, "cron", "", "Standard cron expression, e.g. \"0 6 * * *\"")
	schedulesCreateCmd.Flags().UintSliceVarP(&scheduleAreaIDs, "area", "a", nil, "Service area IDs (default all active)")
	schedulesCreateCmd.Flags().UintSliceVarP(&scheduleCategoryIDs, "category", "c", nil, "Category IDs (default all active)")
	schedulesCreateCmd.Flags().StringSliceVarP(&scheduleEngineIDs, "engine", "e", nil, "Engine IDs (default all)")
	schedulesCreateCmd.Flags().IntVarP(&scheduleGridSize, "grid", "g", 7, "Grid size")
	schedulesCreateCmd.MarkFlagRequired("name")
	schedulesCreateCmd.MarkFlagRequired("cron")

	schedulesToggleCmd.Flags().UintVar(&scheduleID, "id", 0, "Schedule ID")
	schedulesToggleCmd.MarkFlagRequired("id")

	schedulesCmd.AddCommand(schedulesListCmd)
	schedulesCmd.AddCommand(schedulesCreateCmd)
	schedulesCmd.AddCommand(schedulesToggleCmd)
	rootCmd.AddCommand(schedulesCmd)
}
