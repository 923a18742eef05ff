package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openebs/moac/internal/log"
)

// Version information, set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "moac",
	Short:   "MOAC - distributed block storage control plane",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("moac version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(managerCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(volumeCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}
