package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brandon/storemerge/internal/config"
	"github.com/brandon/storemerge/internal/engine"
	"github.com/brandon/storemerge/internal/logging"
	"github.com/brandon/storemerge/internal/provider"
	"github.com/brandon/storemerge/internal/provider/imapstore"
	"github.com/brandon/storemerge/internal/provider/localstore"
	"github.com/brandon/storemerge/pkg/types"
)

var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "storemerge",
		Short:   "Consolidate items from multiple message stores into one",
		Version: version,
	}
	root.AddCommand(newMergeCmd())
	root.AddCommand(newTreeCmd())
	return root
}

func newMergeCmd() *cobra.Command {
	opts := config.Defaults()
	var (
		configFile string
		scope      string
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge source stores into a destination store",
		Long: `Merge walks each source store's folder tree, routes every item to the
type-appropriate default container of the destination store, and moves it
there. With --skip-duplicates, items whose content signature already exists
in the destination container are left in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv()

			// The scope flag lands in opts before the overlay so a config
			// file can still supply it when the flag was not passed.
			opts.Scope = config.Scope(scope)
			if configFile != "" {
				fileOpts := config.Defaults()
				if err := fileOpts.LoadFile(configFile); err != nil {
					return err
				}
				overlayUnchanged(cmd, &opts, fileOpts)
			}
			opts.Normalize()
			if err := opts.Validate(); err != nil {
				return err
			}

			logger, closeLog, err := logging.New(logging.Options{
				Verbose:  opts.Verbose,
				FilePath: opts.LogFile,
				Append:   opts.LogAppend,
			})
			if err != nil {
				return err
			}
			defer closeLog() //nolint:errcheck

			session, err := newSession(opts, logger)
			if err != nil {
				return err
			}
			defer session.Close() //nolint:errcheck

			merger := engine.NewMerger(session, opts, logger, cmd.OutOrStdout())
			summary, err := merger.Run()
			if err != nil {
				logger.WithError(err).Error("Merge aborted")
				return err
			}

			printSummary(cmd, summary)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sources, "source", nil, "Source store (repeatable, or comma-separated)")
	cmd.Flags().StringVar(&opts.DestPath, "dest", "", "Destination store path (created if missing)")
	cmd.Flags().BoolVar(&opts.UseDefaultDest, "default-dest", false, "Merge into the session's default store")
	cmd.Flags().StringVar(&scope, "scope", string(opts.Scope), "Traversal scope: inbox or all")
	cmd.Flags().StringVar(&opts.Provider, "provider", opts.Provider, "Store backend: local or imap")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report intended moves without mutating anything")
	cmd.Flags().BoolVar(&opts.DetachSources, "detach-sources", false, "Detach each source store after it completes")
	cmd.Flags().BoolVar(&opts.SkipDuplicates, "skip-duplicates", false, "Skip items already present in the destination container")
	cmd.Flags().BoolVar(&opts.Verbose, "verbose", false, "Enable debug logging")
	cmd.Flags().IntVar(&opts.ReclaimEvery, "reclaim-every", opts.ReclaimEvery, "Force handle reclamation every N moved items (0 disables)")
	cmd.Flags().BoolVar(&opts.Monitor, "monitor", false, "Sample and log process memory during the run")
	cmd.Flags().IntVar(&opts.MonitorEvery, "monitor-every", opts.MonitorEvery, "Memory sample cadence in moved items")
	cmd.Flags().IntVar(&opts.ProgressEvery, "progress-every", opts.ProgressEvery, "Progress line cadence in moved items (0 disables)")
	cmd.Flags().StringVar(&opts.LogFile, "log-file", "", "Mirror the log to this file")
	cmd.Flags().BoolVar(&opts.LogAppend, "log-append", false, "Append to the log file instead of truncating")
	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file supplying defaults")

	return cmd
}

// overlayUnchanged replaces every option the user did not set on the
// command line with the value from the config file.
func overlayUnchanged(cmd *cobra.Command, opts *config.Options, fileOpts config.Options) {
	if !cmd.Flags().Changed("source") && len(fileOpts.Sources) > 0 {
		opts.Sources = fileOpts.Sources
	}
	if !cmd.Flags().Changed("dest") {
		opts.DestPath = fileOpts.DestPath
	}
	if !cmd.Flags().Changed("default-dest") {
		opts.UseDefaultDest = fileOpts.UseDefaultDest
	}
	if !cmd.Flags().Changed("provider") && fileOpts.Provider != "" {
		opts.Provider = fileOpts.Provider
	}
	if !cmd.Flags().Changed("dry-run") {
		opts.DryRun = fileOpts.DryRun
	}
	if !cmd.Flags().Changed("detach-sources") {
		opts.DetachSources = fileOpts.DetachSources
	}
	if !cmd.Flags().Changed("skip-duplicates") {
		opts.SkipDuplicates = fileOpts.SkipDuplicates
	}
	if !cmd.Flags().Changed("verbose") {
		opts.Verbose = fileOpts.Verbose
	}
	if !cmd.Flags().Changed("reclaim-every") {
		opts.ReclaimEvery = fileOpts.ReclaimEvery
	}
	if !cmd.Flags().Changed("monitor") {
		opts.Monitor = fileOpts.Monitor
	}
	if !cmd.Flags().Changed("monitor-every") {
		opts.MonitorEvery = fileOpts.MonitorEvery
	}
	if !cmd.Flags().Changed("progress-every") {
		opts.ProgressEvery = fileOpts.ProgressEvery
	}
	if !cmd.Flags().Changed("log-file") {
		opts.LogFile = fileOpts.LogFile
	}
	if !cmd.Flags().Changed("log-append") {
		opts.LogAppend = fileOpts.LogAppend
	}
	if !cmd.Flags().Changed("scope") && fileOpts.Scope != "" {
		opts.Scope = fileOpts.Scope
	}
}

// newSession builds the store backend selected by the options.
func newSession(opts config.Options, logger *logrus.Logger) (provider.Session, error) {
	switch opts.Provider {
	case config.ProviderIMAP:
		accounts, err := imapstore.LoadAccounts()
		if err != nil {
			return nil, err
		}
		return imapstore.NewSession(logger, accounts), nil
	default:
		return localstore.NewSession(logger, os.Getenv("STOREMERGE_DEFAULT_STORE")), nil
	}
}

func printSummary(cmd *cobra.Command, summary *engine.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "moved: %d\n", summary.Moved)
	fmt.Fprintf(out, "skipped duplicates: %d\n", summary.SkippedDuplicates)
	fmt.Fprintf(out, "failed: %d\n", summary.Failed)
	for cat := types.Category(0); cat < types.NumCategories; cat++ {
		if summary.PerCategoryMoved[cat] > 0 {
			fmt.Fprintf(out, "moved %s: %d\n", cat, summary.PerCategoryMoved[cat])
		}
	}
}

func newTreeCmd() *cobra.Command {
	var (
		storePath    string
		providerName string
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print a store's container tree with item counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv()
			logger, _, err := logging.New(logging.Options{Verbose: verbose})
			if err != nil {
				return err
			}

			opts := config.Defaults()
			opts.Provider = providerName
			session, err := newSession(opts, logger)
			if err != nil {
				return err
			}
			defer session.Close() //nolint:errcheck

			store, err := session.OpenStore(storePath, false)
			if err != nil {
				return fmt.Errorf("failed to open store %q: %w", storePath, err)
			}
			root, err := store.Root()
			if err != nil {
				return fmt.Errorf("failed to resolve store root: %w", err)
			}
			return printTree(cmd, root, 0)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "Store path or account name")
	cmd.Flags().StringVar(&providerName, "provider", config.ProviderLocal, "Store backend: local or imap")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func printTree(cmd *cobra.Command, c provider.Container, depth int) error {
	count, err := c.ItemCount()
	if err != nil {
		return err
	}
	for i := 0; i < depth; i++ {
		fmt.Fprint(cmd.OutOrStdout(), "  ")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d items)\n", c.Name(), count)

	childCount, err := c.ChildCount()
	if err != nil {
		return err
	}
	for pos := 1; pos <= childCount; pos++ {
		key, err := c.ChildKeyAt(pos)
		if err != nil {
			return err
		}
		child, err := c.Resolve(key)
		if err != nil {
			return err
		}
		if err := printTree(cmd, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
