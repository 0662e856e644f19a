package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binref/symfind/internal/config"
	"github.com/binref/symfind/internal/provider"
	"github.com/binref/symfind/internal/source"
)

var sourceCmd = &cobra.Command{
	Use:          "source <build-time-path>",
	Short:        "Locate a source file from its build-time path",
	Long:         `Resolve a source file's on-disk location from its build-time path using the configured source path list, with optional MD5 verification.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runSource,
	SilenceUsage: true,
}

func init() {
	sourceCmd.Flags().String("md5", "", "Expected MD5 checksum (hex) recorded in the symbol file")
	sourceCmd.Flags().String("exe", "", "Build-time path of the executable (adds its ancestors to the probe list)")
	sourceCmd.Flags().Bool("best-guess", false, "Return an existing but checksum-mismatched candidate when nothing better exists")
}

func runSource(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().Load(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)

	md5Spec, _ := cmd.Flags().GetString("md5")
	buildExe, _ := cmd.Flags().GetString("exe")
	bestGuess, _ := cmd.Flags().GetBool("best-guess")

	rec := provider.SourceFileRecord{BuildTimePath: args[0]}
	if md5Spec != "" {
		sum, err := hex.DecodeString(md5Spec)
		if err != nil {
			return fmt.Errorf("invalid md5 %q: %w", md5Spec, err)
		}

		rec.ChecksumKind = provider.ChecksumMD5
		rec.Checksum = sum
	}

	locator := source.NewLocator(cfg.SourcePath, logger)
	locator.RequireChecksumMatch = cfg.RequireChecksumMatch && !bestGuess

	res, err := locator.Locate(cmd.Context(), rec, buildExe)
	if err != nil {
		return err
	}

	if !res.ChecksumMatches {
		logger.Warn("checksum does not match; best-guess result", "path", res.Path)
	}

	fmt.Println(res.Path)

	return nil
}
