package cmd

import (
	"os"

	"github.com/gridrank/gridrank/db"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	areaName        string
	areaState       string
	areaCenterLat   float64
	areaCenterLng   float64
	areaRadiusMiles float64
)

// areasCmd represents the areas command
var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "Manage service areas",
}

var areasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List service areas",
	Run: func(cmd *cobra.Command, args []string) {
		areas, err := db.Connection().ListServiceAreas()
		if err != nil {
			log.Error().Err(err).Msg("Unable to list service areas")
			os.Exit(1)
		}
		printTable(areas)
	},
}

var areasCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a service area",
	Run: func(cmd *cobra.Command, args []string) {
		area, err := db.Connection().CreateServiceArea(&db.ServiceArea{
			Name:        areaName,
			State:       areaState,
			CenterLat:   areaCenterLat,
			CenterLng:   areaCenterLng,
			RadiusMiles: areaRadiusMiles,
			IsActive:    true,
		})
		if err != nil {
			log.Error().Err(err).Msg("Unable to create service area")
			os.Exit(1)
		}
		printTable([]*db.ServiceArea{area})
	},
}

func init() {
	areasCreateCmd.Flags().StringVarP(&areaName, "name", "n", "", "City or area name")
	areasCreateCmd.Flags().StringVarP(&areaState, "state", "s", "", "State abbreviation")
	areasCreateCmd.Flags().Float64Var(&areaCenterLat, "lat", 0, "Center latitude")
	areasCreateCmd.Flags().Float64Var(&areaCenterLng, "lng", 0, "Center longitude")
	areasCreateCmd.Flags().Float64VarP(&areaRadiusMiles, "radius", "r", 5, "Radius in miles")
	areasCreateCmd.MarkFlagRequired("name")
	areasCreateCmd.MarkFlagRequired("lat")
	areasCreateCmd.MarkFlagRequired("lng")

	areasCmd.AddCommand(areasListCmd)
	areasCmd.AddCommand(areasCreateCmd)
	rootCmd.AddCommand(areasCmd)
}
