package mirror

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/nixmirror/pkg/observability"
)

// graphResolver resolves identifiers from an in-memory reference graph and
// records how it was called.
type graphResolver struct {
	graph map[string][]string
	fail  map[string]error
	delay time.Duration

	mu          sync.Mutex
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

func newGraphResolver(graph map[string][]string) *graphResolver {
	return &graphResolver{graph: graph, fail: map[string]error{}, calls: map[string]int{}}
}

func (g *graphResolver) Resolve(ctx context.Context, id string) ([]string, error) {
	g.mu.Lock()
	g.calls[id]++
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if err := g.fail[id]; err != nil {
		return nil, err
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	refs, ok := g.graph[id]
	if !ok {
		return nil, fmt.Errorf("unknown id %s", id)
	}
	return refs, nil
}

func runScheduler(t *testing.T, r MetadataResolver, p int, roots ...string) (*Report, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return NewScheduler(r, Options{Parallelism: p}).Run(ctx, roots)
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	if opts.Parallelism != DefaultParallelism {
		t.Errorf("Parallelism = %d, want %d", opts.Parallelism, DefaultParallelism)
	}
	if opts.Logger == nil {
		t.Error("Logger should default to a discarding logger")
	}

	opts = Options{Parallelism: 3}.WithDefaults()
	if opts.Parallelism != 3 {
		t.Errorf("Parallelism = %d, want 3", opts.Parallelism)
	}
}

func TestSchedulerTwoWaves(t *testing.T) {
	r := newGraphResolver(map[string][]string{
		"A": {"B"},
		"B": {},
	})

	report, err := runScheduler(t, r, 4, "A")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Waves != 2 {
		t.Errorf("Waves = %d, want 2", report.Waves)
	}
	if report.Resolved != 2 {
		t.Errorf("Resolved = %d, want 2", report.Resolved)
	}
	if want := []string{"A", "B"}; !reflect.DeepEqual(report.Seen, want) {
		t.Errorf("Seen = %v, want %v", report.Seen, want)
	}
	if report.RunID == "" {
		t.Error("RunID should be set")
	}
}

func TestSchedulerNoRoots(t *testing.T) {
	r := newGraphResolver(nil)

	report, err := runScheduler(t, r, 4)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Waves != 0 || report.Resolved != 0 || len(report.Seen) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestSchedulerResolvesEachIDOnce(t *testing.T) {
	// Self references, cycles and a diamond.
	r := newGraphResolver(map[string][]string{
		"A": {"A", "B", "C"},
		"B": {"D", "A"},
		"C": {"D", "B"},
		"D": {"B", "D"},
	})

	report, err := runScheduler(t, r, 3, "A", "A", "C")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	for id, n := range r.calls {
		if n != 1 {
			t.Errorf("Resolve(%s) called %d times, want 1", id, n)
		}
	}
	if len(r.calls) != 4 {
		t.Errorf("resolved %d ids, want 4", len(r.calls))
	}
	if want := []string{"A", "B", "C", "D"}; !reflect.DeepEqual(report.Seen, want) {
		t.Errorf("Seen = %v, want %v", report.Seen, want)
	}
	if report.Resolved != 4 {
		t.Errorf("Resolved = %d, want 4", report.Resolved)
	}
}

func TestSchedulerWaveCount(t *testing.T) {
	tests := []struct {
		name  string
		graph map[string][]string
		roots []string
		waves int
	}{
		{
			name:  "chain",
			graph: map[string][]string{"r": {"a"}, "a": {"b"}, "b": {"c"}, "c": nil},
			roots: []string{"r"},
			waves: 4,
		},
		{
			name:  "shortcut is taken first",
			graph: map[string][]string{"r": {"a", "c"}, "a": {"b"}, "b": {"c"}, "c": nil},
			roots: []string{"r"},
			waves: 3,
		},
		{
			name:  "independent roots",
			graph: map[string][]string{"x": nil, "y": nil, "z": nil},
			roots: []string{"x", "y", "z"},
			waves: 1,
		},
		{
			name:  "cycle",
			graph: map[string][]string{"a": {"b"}, "b": {"a"}},
			roots: []string{"a"},
			waves: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := runScheduler(t, newGraphResolver(tt.graph), 2, tt.roots...)
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if report.Waves != tt.waves {
				t.Errorf("Waves = %d, want %d", report.Waves, tt.waves)
			}
		})
	}
}

func TestSchedulerParallelismLimit(t *testing.T) {
	for _, p := range []int{1, 4} {
		t.Run(fmt.Sprintf("p=%d", p), func(t *testing.T) {
			graph := make(map[string][]string)
			roots := make([]string, 0, 24)
			for i := range 24 {
				id := fmt.Sprintf("id%02d", i)
				graph[id] = nil
				roots = append(roots, id)
			}
			r := newGraphResolver(graph)
			r.delay = 5 * time.Millisecond

			if _, err := runScheduler(t, r, p, roots...); err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if r.maxInFlight > p {
				t.Errorf("max in flight = %d, want <= %d", r.maxInFlight, p)
			}
			if len(r.calls) != 24 {
				t.Errorf("resolved %d ids, want 24", len(r.calls))
			}
		})
	}
}

func TestSchedulerFailFast(t *testing.T) {
	errBoom := errors.New("boom")
	r := newGraphResolver(map[string][]string{
		"A": nil,
		"B": {"C"},
		"C": nil,
	})
	r.fail["A"] = errBoom

	report, err := runScheduler(t, r, 2, "A", "B")
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if report != nil {
		t.Errorf("report = %+v, want nil on failure", report)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("error = %v, want wrapping %v", err, errBoom)
	}
	if !strings.Contains(err.Error(), "resolve A") {
		t.Errorf("error = %v, want naming the failing id", err)
	}
	if r.calls["C"] != 0 {
		t.Error("no wave should start after a failure")
	}
}

func TestSchedulerFailureCancelsSiblings(t *testing.T) {
	errBoom := errors.New("boom")
	graph := map[string][]string{"bad": nil}
	roots := []string{"bad"}
	for i := range 6 {
		id := fmt.Sprintf("slow%d", i)
		graph[id] = nil
		roots = append(roots, id)
	}
	r := newGraphResolver(graph)
	r.fail["bad"] = errBoom
	r.delay = time.Minute

	start := time.Now()
	_, err := runScheduler(t, r, 8, roots...)
	if !errors.Is(err, errBoom) {
		t.Fatalf("Run() error = %v, want %v", err, errBoom)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run() took %v, siblings were not cancelled", elapsed)
	}
}

func TestSchedulerCanceledContext(t *testing.T) {
	r := newGraphResolver(map[string][]string{"A": nil})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScheduler(r, Options{}).Run(ctx, []string{"A"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

type waveRecorder struct {
	observability.NoopSchedulerHooks
	mu       sync.Mutex
	sizes    []int
	resolved []string
}

func (w *waveRecorder) OnWaveStart(_ context.Context, _ int, size int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sizes = append(w.sizes, size)
}

func (w *waveRecorder) OnResolve(_ context.Context, id string, _ int, _ error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resolved = append(w.resolved, id)
}

func TestSchedulerReportsToHooks(t *testing.T) {
	rec := &waveRecorder{}
	observability.SetSchedulerHooks(rec)
	defer observability.Reset()

	r := newGraphResolver(map[string][]string{
		"A": {"B", "C"},
		"B": nil,
		"C": nil,
	})
	if _, err := runScheduler(t, r, 2, "A"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if want := []int{1, 2}; !reflect.DeepEqual(rec.sizes, want) {
		t.Errorf("wave sizes = %v, want %v", rec.sizes, want)
	}
	if len(rec.resolved) != 3 {
		t.Errorf("resolved = %v, want 3 entries", rec.resolved)
	}
}
