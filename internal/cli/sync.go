package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/fetch"
	"github.com/matzehuels/nixmirror/pkg/metrics"
	"github.com/matzehuels/nixmirror/pkg/mirror"
	"github.com/matzehuels/nixmirror/pkg/observability"
	"github.com/matzehuels/nixmirror/pkg/roots"
)

// syncOptions holds flags for the sync command.
type syncOptions struct {
	configFlags
	roots      []string
	noProgress bool
}

// syncCommand creates the sync command.
func (c *CLI) syncCommand() *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync [STORE_PATHS_FILE] [MIRROR_DIR]",
		Short: "Mirror the closure of a set of store paths",
		Long: `Mirror the closure of a set of store paths from a binary cache.

Roots come from STORE_PATHS_FILE (one store path per line, plain or
compressed with xz, zstd or gzip, such as a channel's store-paths.xz) and
from --root. With a single argument it is taken as MIRROR_DIR. Without
arguments the mirror_dir config key is used.

Files already in the mirror are not downloaded again, so an interrupted
sync can be rerun.`,
		Example: `  # Mirror a channel
  nixmirror sync store-paths.xz /srv/nix-mirror

  # Mirror a single closure with more parallelism
  nixmirror sync -p 32 -r /nix/store/0d71ygfwbmy1xjlbj1v027dfmy9cqavy-hello-2.12 /srv/nix-mirror`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSync(cmd, args, opts)
		},
	}

	opts.configFlags.register(cmd)
	cmd.Flags().StringArrayVarP(&opts.roots, "root", "r", nil, "store path or identifier to mirror (repeatable)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "disable the live progress view")

	return cmd
}

func (c *CLI) runSync(cmd *cobra.Command, args []string, opts *syncOptions) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}

	var rootsFile string
	switch len(args) {
	case 2:
		rootsFile, cfg.MirrorDir = args[0], args[1]
	case 1:
		cfg.MirrorDir = args[0]
	}
	if cfg.MirrorDir == "" {
		return errors.New(errors.ErrCodeInvalidInput, "no mirror directory: pass MIRROR_DIR or set mirror_dir in the config file")
	}

	ids, err := readRoots(logger, rootsFile, opts.roots)
	if err != nil {
		return err
	}

	layout := mirror.NewLayout(cfg.MirrorDir)
	if err := os.MkdirAll(filepath.Join(layout.Root(), mirror.NarDir), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeFilesystem, err, "create mirror directory")
	}

	collector := metrics.New()
	fetcher := fetch.New(nil, map[string]string{"User-Agent": cfg.UserAgent})
	resolver := mirror.NewResolver(layout, mirror.NewRemote(cfg.CacheURL), fetcher)
	scheduler := mirror.NewScheduler(resolver, mirror.Options{
		Parallelism: cfg.Parallelism,
		Logger:      logger,
	})

	logger.Info("starting sync", "cache", cfg.CacheURL, "mirror", layout.Root(),
		"roots", len(ids), "parallelism", cfg.Parallelism)

	defer observability.Reset()
	run := func(ctx context.Context) (*mirror.Report, error) {
		return scheduler.Run(ctx, ids)
	}

	var report *mirror.Report
	if !opts.noProgress && isTerminal(c.Err) {
		report, err = runWithProgress(ctx, c.Err,
			[]observability.FetchHooks{collector},
			[]observability.SchedulerHooks{collector},
			run)
	} else {
		observability.SetFetchHooks(collector)
		observability.SetSchedulerHooks(collector)
		report, err = run(ctx)
	}

	if err == nil {
		collector.MarkSuccess()
	}
	if cfg.MetricsFile != "" {
		if werr := collector.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Warn("could not write metrics", "file", cfg.MetricsFile, "err", werr)
		}
	}
	if err != nil {
		logger.Error("sync failed", "kind", errors.Kind(err), "err", err)
		return err
	}

	printSyncSummary(c.Out, layout, report, collector)
	return nil
}

// readRoots merges the identifiers of the roots file, if any, with those
// given by --root.
func readRoots(logger *log.Logger, file string, args []string) ([]string, error) {
	var fromFile []string
	if file != "" {
		prog := newProgress(logger)
		ids, err := roots.ReadFile(file)
		if err != nil {
			return nil, err
		}
		prog.done(fmt.Sprintf("Read %d roots from %s", len(ids), file))
		fromFile = ids
	}

	fromArgs, err := roots.FromArgs(args)
	if err != nil {
		return nil, err
	}

	ids := roots.Merge(fromFile, fromArgs)
	if len(ids) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no roots: pass STORE_PATHS_FILE or --root")
	}
	return ids, nil
}

// printSyncSummary prints the outcome of a completed sync.
func printSyncSummary(w io.Writer, layout mirror.Layout, report *mirror.Report, collector *metrics.Collector) {
	snap := collector.Snapshot()
	printSuccess(w, "Mirrored %s packages in %s",
		StyleNumber.Render(strconv.Itoa(len(report.Seen))), formatDuration(report.Duration))
	printKeyValue(w, "Mirror", layout.Root())
	printKeyValue(w, "Waves", strconv.Itoa(report.Waves))
	printKeyValue(w, "Downloaded", fmt.Sprintf("%d files (%s)", snap.Fetched, formatBytes(snap.Bytes)))
	printKeyValue(w, "Present", fmt.Sprintf("%d files", snap.Skipped))
	printDetail(w, "run %s", report.RunID)
}
