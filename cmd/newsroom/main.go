// Package main provides the entry point for the newsroom authoring API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "newsroom",
	Short: "Newsroom article authoring API",
	Long: "Newsroom drives article authoring sessions through upload, title selection, editing, " +
		"image selection and finalization, gates publishing behind authentication and imports news " +
		"from external sources through an ingestion webhook.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
