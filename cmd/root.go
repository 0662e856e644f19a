// Package cmd implements the symfind command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/binref/symfind/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "symfind",
	Short:        "Symbol and source file resolver",
	Long:         `Locate debug symbol files, executables and sources via local directories and symbol servers, caching results locally.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().StringP("sympath", "y", "", "Symbol search path (dir;srv*cache*root;...)")
	rootCmd.PersistentFlags().String("cache", "", "Default symbol cache directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("cache-unsafe", false, "Cache files matched without identity verification")
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(exeCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(cacheCmd())
}

// newLogger creates the command logger, debug-level when verbose.
func newLogger(verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}

	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}
