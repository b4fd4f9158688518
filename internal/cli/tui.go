package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/matzehuels/nixmirror/pkg/mirror"
	"github.com/matzehuels/nixmirror/pkg/observability"
)

// =============================================================================
// Messages
// =============================================================================

type (
	waveStartMsg struct{ wave, size int }
	resolveMsg   struct{ err error }
	fetchMsg     struct {
		bytes int64
		err   error
	}
	skipMsg  struct{}
	tickMsg  time.Time
	syncDone struct{}
)

// =============================================================================
// progressHooks - observability events as bubbletea messages
// =============================================================================

// progressHooks forwards fetch and scheduler events to a running program.
type progressHooks struct {
	send func(tea.Msg)
}

func (h progressHooks) OnFetchStart(context.Context, string) {}

func (h progressHooks) OnFetchComplete(_ context.Context, _ string, bytes int64, _ time.Duration, err error) {
	h.send(fetchMsg{bytes: bytes, err: err})
}

func (h progressHooks) OnFetchSkip(context.Context, string) {
	h.send(skipMsg{})
}

func (h progressHooks) OnWaveStart(_ context.Context, wave, size int) {
	h.send(waveStartMsg{wave: wave, size: size})
}

func (h progressHooks) OnWaveComplete(context.Context, int, int, time.Duration) {}

func (h progressHooks) OnResolve(_ context.Context, _ string, _ int, err error) {
	h.send(resolveMsg{err: err})
}

// =============================================================================
// SyncModel - live progress of a mirror run
// =============================================================================

// SyncModel is the bubbletea model for the sync progress line.
type SyncModel struct {
	Wave     int
	WaveSize int
	WaveDone int
	Resolved int
	Fetched  int
	Skipped  int
	Failed   int
	Bytes    int64
	Start    time.Time
	Now      time.Time
	Width    int
	Done     bool
}

// NewSyncModel creates a model whose clock starts at start.
func NewSyncModel(start time.Time) SyncModel {
	return SyncModel{Start: start, Now: start, Width: 80}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m SyncModel) Init() tea.Cmd {
	return tick()
}

func (m SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case waveStartMsg:
		m.Wave, m.WaveSize, m.WaveDone = msg.wave, msg.size, 0
	case resolveMsg:
		m.WaveDone++
		if msg.err == nil {
			m.Resolved++
		}
	case fetchMsg:
		m.Bytes += msg.bytes
		if msg.err != nil {
			m.Failed++
		} else {
			m.Fetched++
		}
	case skipMsg:
		m.Skipped++
	case tickMsg:
		m.Now = time.Time(msg)
		return m, tick()
	case tea.WindowSizeMsg:
		m.Width = msg.Width
	case syncDone:
		m.Done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m SyncModel) View() string {
	if m.Done {
		return ""
	}

	frame := spinnerFrames[int(m.Now.Sub(m.Start)/(80*time.Millisecond))%len(spinnerFrames)]
	counts := fmt.Sprintf("%d/%d", m.WaveDone, m.WaveSize)
	stats := fmt.Sprintf("resolved %d · fetched %d (%s) · skipped %d",
		m.Resolved, m.Fetched, formatBytes(m.Bytes), m.Skipped)
	if m.Failed > 0 {
		stats += " · " + StyleWarning.Render(fmt.Sprintf("failed %d", m.Failed))
	}
	elapsed := formatDuration(m.Now.Sub(m.Start))

	var b strings.Builder
	b.WriteString(styleIconSpinner.Render(frame))
	b.WriteString(" ")
	b.WriteString(StyleTitle.Render(fmt.Sprintf("wave %d", m.Wave)))
	b.WriteString(" ")
	b.WriteString(renderBar(m.WaveDone, m.WaveSize, min(30, max(0, m.Width-60))))
	b.WriteString(" ")
	b.WriteString(StyleNumber.Render(counts))
	b.WriteString("  ")
	b.WriteString(StyleDim.Render(stats + " · " + elapsed))
	return b.String()
}

// =============================================================================
// Running a sync under the progress view
// =============================================================================

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type syncResult struct {
	report *mirror.Report
	err    error
}

// runWithProgress runs fn while rendering a SyncModel on out. The hooks are
// registered for the duration of the run, in front of the extra hooks.
func runWithProgress(
	ctx context.Context,
	out io.Writer,
	fetchHooks []observability.FetchHooks,
	schedHooks []observability.SchedulerHooks,
	fn func(context.Context) (*mirror.Report, error),
) (*mirror.Report, error) {
	p := tea.NewProgram(NewSyncModel(time.Now()),
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	hooks := progressHooks{send: p.Send}
	observability.SetFetchHooks(append(observability.FetchHooksList{hooks}, fetchHooks...))
	observability.SetSchedulerHooks(append(observability.SchedulerHooksList{hooks}, schedHooks...))

	results := make(chan syncResult, 1)
	go func() {
		report, err := fn(ctx)
		results <- syncResult{report: report, err: err}
		p.Send(syncDone{})
	}()

	_, uiErr := p.Run()
	res := <-results
	if res.err != nil {
		return nil, res.err
	}
	if uiErr != nil && ctx.Err() == nil {
		return res.report, fmt.Errorf("progress view: %w", uiErr)
	}
	return res.report, nil
}
