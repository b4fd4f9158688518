package mirror

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/nixmirror/pkg/observability"
)

// DefaultParallelism is the number of concurrent resolutions used when
// Options.Parallelism is unset.
const DefaultParallelism = 8

// MetadataResolver resolves one package identifier to the identifiers it
// references. [Resolver] is the standard implementation.
//
// Resolve must be safe for concurrent use by multiple goroutines.
type MetadataResolver interface {
	Resolve(ctx context.Context, id string) ([]string, error)
}

// Options configures a Scheduler.
type Options struct {
	Parallelism int         // Maximum resolutions in flight (default: 8)
	Logger      *log.Logger // Wave progress at debug level (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}

// Report summarizes a completed run.
type Report struct {
	RunID    string        // Random identifier attached to the run's log lines
	Waves    int           // Number of waves executed
	Resolved int           // Number of identifiers resolved
	Seen     []string      // Every identifier reached, sorted
	Duration time.Duration // Wall time of the run
}

// Scheduler walks the reference graph in waves.
//
// The goroutine calling Run is the only one that touches the seen set and
// the frontier. Resolutions run on worker goroutines and hand their results
// back over a channel, so no locking is involved.
type Scheduler struct {
	resolver MetadataResolver
	opts     Options
}

// NewScheduler creates a Scheduler that resolves identifiers with resolver.
func NewScheduler(resolver MetadataResolver, opts Options) *Scheduler {
	return &Scheduler{resolver: resolver, opts: opts.WithDefaults()}
}

// Run resolves roots and everything they transitively reference.
//
// Each identifier is resolved at most once. Duplicate roots are ignored.
// The first resolution error cancels the remaining resolutions of its wave
// and is returned once they have stopped; files already written stay in the
// mirror.
func (s *Scheduler) Run(ctx context.Context, roots []string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	logger := s.opts.Logger.With("run", report.RunID)
	hooks := observability.Scheduler()

	seen := make(map[string]struct{}, len(roots))
	frontier := make([]string, 0, len(roots))
	for _, id := range roots {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		frontier = append(frontier, id)
	}

	for len(frontier) > 0 {
		report.Waves++
		waveStart := time.Now()
		hooks.OnWaveStart(ctx, report.Waves, len(frontier))
		logger.Debug("wave started", "wave", report.Waves, "size", len(frontier))

		next, err := s.drain(ctx, frontier, seen)
		if err != nil {
			logger.Debug("wave failed", "wave", report.Waves, "err", err)
			return nil, err
		}

		report.Resolved += len(frontier)
		hooks.OnWaveComplete(ctx, report.Waves, len(next), time.Since(waveStart))
		logger.Debug("wave complete", "wave", report.Waves, "discovered", len(next),
			"elapsed", time.Since(waveStart).Round(time.Millisecond))
		frontier = next
	}

	report.Seen = slices.Sorted(maps.Keys(seen))
	report.Duration = time.Since(start)
	return report, nil
}

// outcome is the result of resolving one identifier.
type outcome struct {
	id   string
	refs []string
	err  error
}

// drain resolves every identifier of frontier with bounded concurrency and
// returns the references not yet in seen, adding them to seen as it goes.
func (s *Scheduler) drain(ctx context.Context, frontier []string, seen map[string]struct{}) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	// Buffered for the whole wave so workers never block on send.
	results := make(chan outcome, len(frontier))
	go func() {
		for _, id := range frontier {
			g.Go(func() error {
				refs, err := s.resolve(gctx, id)
				results <- outcome{id: id, refs: refs, err: err}
				return err
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var (
		next     []string
		firstErr error
	)
	for r := range results {
		if firstErr != nil {
			continue
		}
		if r.err != nil {
			firstErr = fmt.Errorf("resolve %s: %w", r.id, r.err)
			continue
		}
		for _, ref := range r.refs {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			next = append(next, ref)
		}
	}
	return next, firstErr
}

// resolve runs one resolution unless the wave has already failed.
func (s *Scheduler) resolve(ctx context.Context, id string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs, err := s.resolver.Resolve(ctx, id)
	observability.Scheduler().OnResolve(ctx, id, len(refs), err)
	return refs, err
}
