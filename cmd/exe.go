package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binref/symfind/internal/config"
	"github.com/binref/symfind/internal/ident"
)

var exeCmd = &cobra.Command{
	Use:          "exe <name.exe>",
	Short:        "Locate an executable image by identity",
	Long:         `Locate an executable image by name, link timestamp and image size across the configured search path.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runExe,
	SilenceUsage: true,
}

func init() {
	exeCmd.Flags().Uint32P("timestamp", "t", 0, "Image link timestamp")
	exeCmd.Flags().Uint32P("size", "s", 0, "Image size")
	exeCmd.Flags().Bool("cache-only", false, "Consult only local directories and caches, no remote fetches")
	exeCmd.Flags().Bool("strict", false, "Verify timestamp/size of locally probed candidates")
}

func runExe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().Load(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)

	timestamp, _ := cmd.Flags().GetUint32("timestamp")
	size, _ := cmd.Flags().GetUint32("size")
	cacheOnly, _ := cmd.Flags().GetBool("cache-only")
	strict, _ := cmd.Flags().GetBool("strict")

	id := ident.ExecutableIdentity{
		FileName:  args[0],
		Timestamp: timestamp,
		ImageSize: size,
	}

	r, closeJournal, err := newResolver(cfg, logger, false)
	if err != nil {
		return err
	}
	defer closeJournal()

	if strict {
		r.WeakExecutableMatch = false
	}

	path, err := r.FindExecutableFile(cmd.Context(), id, !cacheOnly)
	if err != nil {
		return err
	}

	fmt.Println(path)

	return nil
}
