package cmd

import (
	"os"

	"github.com/gridrank/gridrank/db"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	categoryName     string
	categoryKeywords []string
	keywordPriority  int
)

// categoriesCmd represents the categories command
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Manage business categories and their keywords",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Run: func(cmd *cobra.Command, args []string) {
		categories, err := db.Connection().ListCategories()
		if err != nil {
			log.Error().Err(err).Msg("Unable to list categories")
			os.Exit(1)
		}
		printTable(categories)
	},
}

var categoriesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a category with optional keywords",
	Run: func(cmd *cobra.Command, args []string) {
		conn := db.Connection()
		category, err := conn.CreateCategory(&db.Category{
			Name:     categoryName,
			IsActive: true,
		})
		if err != nil {
			log.Error().Err(err).Msg("Unable to create category")
			os.Exit(1)
		}
		for _, text := range categoryKeywords {
			if _, err := conn.CreateKeyword(&db.Keyword{
				CategoryID: category.ID,
				Text:       text,
				Priority:   keywordPriority,
				IsActive:   true,
			}); err != nil {
				log.Error().Err(err).Str("keyword", text).Msg("Unable to create keyword")
			}
		}
		printTable([]*db.Category{category})
	},
}

func init() {
	categoriesCreateCmd.Flags().StringVarP(&categoryName, "name", "n", "", "Category name")
	categoriesCreateCmd.Flags().StringSliceVarP(&categoryKeywords, "keyword", "k", nil, "Keyword (repeatable)")
	categoriesCreateCmd.Flags().IntVar(&keywordPriority, "priority", 0, "Priority for the created keywords")
	categoriesCreateCmd.MarkFlagRequired("name")

	categoriesCmd.AddCommand(categoriesListCmd)
	categoriesCmd.AddCommand(categoriesCreateCmd)
	rootCmd.AddCommand(categoriesCmd)
}
