package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/binref/symfind/internal/config"
	"github.com/binref/symfind/internal/ident"
	"github.com/binref/symfind/internal/notify"
	"github.com/binref/symfind/internal/resolver"
	"github.com/binref/symfind/internal/server"
	"github.com/binref/symfind/internal/store"
)

var findCmd = &cobra.Command{
	Use:          "find <name.pdb>",
	Short:        "Locate a symbol file by identity",
	Long:         `Locate a symbol file by name, GUID and age across the configured search path, caching the result locally.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runFind,
	SilenceUsage: true,
}

func init() {
	findCmd.Flags().StringP("guid", "g", "", "Symbol GUID (empty matches any file with the name; unsafe)")
	findCmd.Flags().Uint32P("age", "a", 0, "Symbol age")
	findCmd.Flags().String("dll", "", "Path of the binary the symbols belong to (enables sibling probes)")
	findCmd.Flags().Bool("cache-only", false, "Consult only local directories and caches, no remote fetches")
	findCmd.Flags().Bool("trust-all", false, "Accept matches from untrusted locations")
}

func runFind(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().Load(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)

	guidSpec, _ := cmd.Flags().GetString("guid")
	age, _ := cmd.Flags().GetUint32("age")
	dllPath, _ := cmd.Flags().GetString("dll")
	cacheOnly, _ := cmd.Flags().GetBool("cache-only")
	trustAll, _ := cmd.Flags().GetBool("trust-all")

	id := ident.SymbolIdentity{SimpleName: args[0], Age: age}
	if guidSpec != "" {
		guid, err := uuid.Parse(guidSpec)
		if err != nil {
			return fmt.Errorf("invalid GUID %q: %w", guidSpec, err)
		}

		id.GUID = guid
	}

	r, closeJournal, err := newResolver(cfg, logger, trustAll)
	if err != nil {
		return err
	}
	defer closeJournal()

	path, err := r.FindSymbolFile(cmd.Context(), id, dllPath, !cacheOnly)
	if err != nil {
		return err
	}

	fmt.Println(path)

	return nil
}

// newResolver wires a resolver from the loaded configuration. The returned
// cleanup closes the cache journal.
func newResolver(cfg *config.Config, logger *log.Logger, trustAll bool) (*resolver.Resolver, func(), error) {
	notifier := notify.NewLogNotifier(logger)

	normalizer := store.NewNormalizer(cfg.SymbolCache, logger)
	normalizer.CacheUnsafe = cfg.CacheUnsafe

	closeJournal := func() {}
	if journal, err := store.OpenJournal(cfg.SymbolCache); err == nil {
		normalizer.Journal = journal
		closeJournal = func() { journal.Close() }
	} else {
		logger.Debug("cache journal unavailable", "err", err)
	}

	r := resolver.New(cfg.SearchPath, cfg.SymbolCache)
	r.Client = server.NewClient(notifier, logger)
	r.Store = normalizer
	r.Notifier = notifier
	r.Logger = logger
	r.WeakExecutableMatch = cfg.WeakExecutableMatch

	if trustAll {
		r.Trusted = func(string) bool { return true }
	}

	return r, closeJournal, nil
}
