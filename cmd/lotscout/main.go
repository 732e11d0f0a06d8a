// Package main provides the entry point for the lotscout server and worker
// processes.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lotscout",
	Short: "Auction listing scout for dealer buy criteria",
	Long: "lotscout ingests vehicle auction listings from external sources, " +
		"matches them against dealer buy fingerprints, and surfaces ranked " +
		"buy and watch recommendations.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to JSON config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
