// Package observability provides hooks for metrics, progress display and
// logging of mirror runs.
//
// The core packages (fetch, mirror) call hooks without depending on any
// particular backend. The CLI registers the Prometheus collector from
// pkg/metrics and the progress view at startup.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetFetchHooks(observability.FetchHooksList{collector, progress})
//	    observability.SetSchedulerHooks(collector)
//	    // ... run the mirror
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Fetch().OnFetchStart(ctx, url)
//	// ... download ...
//	observability.Fetch().OnFetchComplete(ctx, url, n, time.Since(start), err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Fetch Hooks
// =============================================================================

// FetchHooks receives events from the atomic fetcher and from the resolver's
// existence checks.
type FetchHooks interface {
	// OnFetchStart records an outgoing download.
	OnFetchStart(ctx context.Context, url string)

	// OnFetchComplete records the end of a download. bytes is the number of
	// body bytes received, even when err is set.
	OnFetchComplete(ctx context.Context, url string, bytes int64, duration time.Duration, err error)

	// OnFetchSkip records a file that was already present in the mirror.
	OnFetchSkip(ctx context.Context, path string)
}

// =============================================================================
// Scheduler Hooks
// =============================================================================

// SchedulerHooks receives events from the frontier scheduler.
type SchedulerHooks interface {
	// OnWaveStart records the start of a wave over size identifiers.
	OnWaveStart(ctx context.Context, wave, size int)

	// OnWaveComplete records the end of a wave and how many previously
	// unseen identifiers it discovered.
	OnWaveComplete(ctx context.Context, wave, discovered int, duration time.Duration)

	// OnResolve records the outcome of resolving one identifier.
	OnResolve(ctx context.Context, id string, references int, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopFetchHooks is a no-op implementation of FetchHooks.
type NoopFetchHooks struct{}

func (NoopFetchHooks) OnFetchStart(context.Context, string)                                 {}
func (NoopFetchHooks) OnFetchComplete(context.Context, string, int64, time.Duration, error) {}
func (NoopFetchHooks) OnFetchSkip(context.Context, string)                                  {}

// NoopSchedulerHooks is a no-op implementation of SchedulerHooks.
type NoopSchedulerHooks struct{}

func (NoopSchedulerHooks) OnWaveStart(context.Context, int, int)                   {}
func (NoopSchedulerHooks) OnWaveComplete(context.Context, int, int, time.Duration) {}
func (NoopSchedulerHooks) OnResolve(context.Context, string, int, error)           {}

// =============================================================================
// Fan-out
// =============================================================================

// FetchHooksList forwards every event to each of its members in order.
type FetchHooksList []FetchHooks

func (l FetchHooksList) OnFetchStart(ctx context.Context, url string) {
	for _, h := range l {
		h.OnFetchStart(ctx, url)
	}
}

func (l FetchHooksList) OnFetchComplete(ctx context.Context, url string, bytes int64, d time.Duration, err error) {
	for _, h := range l {
		h.OnFetchComplete(ctx, url, bytes, d, err)
	}
}

func (l FetchHooksList) OnFetchSkip(ctx context.Context, path string) {
	for _, h := range l {
		h.OnFetchSkip(ctx, path)
	}
}

// SchedulerHooksList forwards every event to each of its members in order.
type SchedulerHooksList []SchedulerHooks

func (l SchedulerHooksList) OnWaveStart(ctx context.Context, wave, size int) {
	for _, h := range l {
		h.OnWaveStart(ctx, wave, size)
	}
}

func (l SchedulerHooksList) OnWaveComplete(ctx context.Context, wave, discovered int, d time.Duration) {
	for _, h := range l {
		h.OnWaveComplete(ctx, wave, discovered, d)
	}
}

func (l SchedulerHooksList) OnResolve(ctx context.Context, id string, references int, err error) {
	for _, h := range l {
		h.OnResolve(ctx, id, references, err)
	}
}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	fetchHooks     FetchHooks     = NoopFetchHooks{}
	schedulerHooks SchedulerHooks = NoopSchedulerHooks{}
	hooksMu        sync.RWMutex
)

// SetFetchHooks registers custom fetch hooks.
// This should be called once at application startup before any mirror run.
// Hooks are called concurrently from resolution goroutines and must be
// safe for concurrent use.
func SetFetchHooks(h FetchHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		fetchHooks = h
	}
}

// SetSchedulerHooks registers custom scheduler hooks.
// This should be called once at application startup before any mirror run.
func SetSchedulerHooks(h SchedulerHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		schedulerHooks = h
	}
}

// Fetch returns the registered fetch hooks.
func Fetch() FetchHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return fetchHooks
}

// Scheduler returns the registered scheduler hooks.
func Scheduler() SchedulerHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return schedulerHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	fetchHooks = NoopFetchHooks{}
	schedulerHooks = NoopSchedulerHooks{}
}
