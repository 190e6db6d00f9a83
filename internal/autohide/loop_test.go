package autohide

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/bar"
	"github.com/bryanchriswhite/navbar-watcher/internal/config"
	"github.com/bryanchriswhite/navbar-watcher/internal/overlay"
	"github.com/bryanchriswhite/navbar-watcher/internal/window"
	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanBackend applies snapshots sent on events, one batch per snapshot
type chanBackend struct {
	tracker    *workspace.Tracker
	initial    workspace.Snapshot
	barVisible bool
	events     chan workspace.Snapshot
	err        error
}

func newChanBackend(initial workspace.Snapshot) *chanBackend {
	return &chanBackend{
		tracker: workspace.New(),
		initial: initial,
		events:  make(chan workspace.Snapshot),
	}
}

func (b *chanBackend) Name() string { return "chan" }

func (b *chanBackend) Sync(ctx context.Context) { b.tracker.Reset(b.initial) }

func (b *chanBackend) IsOverlayActive(ctx context.Context, name string) bool {
	return name == "waybar" && b.barVisible
}

func (b *chanBackend) HasActiveWindows() bool { return b.tracker.HasActiveWindows() }

func (b *chanBackend) State() workspace.State { return b.tracker.State() }

func (b *chanBackend) Close() error { return nil }

func (b *chanBackend) Subscribe(ctx context.Context, onChange func()) error {
	for {
		select {
		case snap, ok := <-b.events:
			if !ok {
				return b.err
			}
			b.tracker.Reset(snap)
			onChange()
		case <-ctx.Done():
			return nil
		}
	}
}

type fakeSystem struct {
	mu      sync.Mutex
	running map[int]bool
	next    int
	spawns  int
	signals int
}

func newFakeSystem(running ...int) *fakeSystem {
	s := &fakeSystem{running: make(map[int]bool), next: 100}
	for _, pid := range running {
		s.running[pid] = true
	}
	return s
}

func (s *fakeSystem) Alive(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[pid]
}

func (s *fakeSystem) Find(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid := range s.running {
		return pid, true
	}
	return 0, false
}

func (s *fakeSystem) Spawn(name string, args []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.running[s.next] = true
	s.spawns++
	return s.next, nil
}

func (s *fakeSystem) Signal(pid int, sig syscall.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals++
	return nil
}

func (s *fakeSystem) counts() (spawns, signals int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns, s.signals
}

type recorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *recorder) Publish(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) last() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[len(r.statuses)-1]
}

func occupied(ws workspace.ID, windows ...workspace.WindowID) workspace.Snapshot {
	snap := workspace.Snapshot{Windows: make(map[workspace.WindowID]workspace.ID), Active: []workspace.ID{"1"}}
	for _, w := range windows {
		snap.Windows[w] = ws
	}
	return snap
}

func newTestLoop(t *testing.T, b window.Backend, sys bar.System, opts ...Option) *Loop {
	t.Helper()
	ctrl, err := bar.NewController(config.BarConfig{Name: "waybar", ToggleSignal: "SIGUSR1"}, sys)
	require.NoError(t, err)
	return New(window.NewManager(b), ctrl, "waybar", opts...)
}

func runLoop(l *Loop) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return cancel, done
}

func waitCounts(t *testing.T, sys *fakeSystem, spawns, signals int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, g := sys.counts()
		return s == spawns && g == signals
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDesired(t *testing.T) {
	assert.True(t, Desired(true, false))
	assert.False(t, Desired(true, true))
	assert.False(t, Desired(false, false))
	assert.False(t, Desired(false, true))
}

func TestInitialDecisionWithoutEvents(t *testing.T) {
	b := newChanBackend(occupied("1", "a"))
	sys := newFakeSystem()
	l := newTestLoop(t, b, sys)

	cancel, done := runLoop(l)
	defer cancel()

	waitCounts(t, sys, 1, 0)
	close(b.events)
	require.NoError(t, <-done)
}

func TestLoopFollowsWindowState(t *testing.T) {
	b := newChanBackend(occupied("1"))
	sys := newFakeSystem()
	rec := &recorder{}
	l := newTestLoop(t, b, sys, WithPublisher(rec))

	cancel, done := runLoop(l)
	defer cancel()

	// Scenario: a window opens on the focused workspace
	b.events <- occupied("1", "a")
	waitCounts(t, sys, 1, 0)

	// A second window changes nothing visible
	b.events <- occupied("1", "a", "b")

	// The last window moves to an unfocused workspace
	b.events <- occupied("2", "a")
	waitCounts(t, sys, 1, 1)

	close(b.events)
	require.NoError(t, <-done)

	last := rec.last()
	assert.Equal(t, "chan", last.Backend)
	assert.False(t, last.Desired)
	assert.False(t, last.Visible)
	assert.Equal(t, map[workspace.ID]int{"2": 1}, last.Workspace.Counts)
}

func TestLoopAppliesFinalBatch(t *testing.T) {
	b := newChanBackend(occupied("1"))
	sys := newFakeSystem()
	l := newTestLoop(t, b, sys)

	cancel, done := runLoop(l)
	defer cancel()

	b.events <- occupied("1", "a")
	close(b.events)
	require.NoError(t, <-done)

	spawns, _ := sys.counts()
	assert.Equal(t, 1, spawns)
}

func TestLoopReturnsSubscriptionError(t *testing.T) {
	b := newChanBackend(occupied("1"))
	b.err = errors.New("connection reset by peer")
	l := newTestLoop(t, b, newFakeSystem())

	cancel, done := runLoop(l)
	defer cancel()

	close(b.events)
	assert.ErrorIs(t, <-done, b.err)
}

func TestLoopCancel(t *testing.T) {
	b := newChanBackend(occupied("1"))
	l := newTestLoop(t, b, newFakeSystem())

	cancel, done := runLoop(l)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopSeedsVisibilityFromCompositor(t *testing.T) {
	b := newChanBackend(occupied("1"))
	b.barVisible = true
	sys := newFakeSystem(42)
	l := newTestLoop(t, b, sys)

	cancel, done := runLoop(l)
	defer cancel()

	// The running bar is shown with nothing open, so it is hidden once
	waitCounts(t, sys, 0, 1)
	close(b.events)
	require.NoError(t, <-done)
}

type toggle struct{ open atomic.Bool }

func (p *toggle) Name() string { return "swaync-control-center" }

func (p *toggle) Open(ctx context.Context) bool { return p.open.Load() }

func TestOverlaySuppressesBar(t *testing.T) {
	b := newChanBackend(occupied("1", "a"))
	sys := newFakeSystem()
	probe := &toggle{}
	w := overlay.NewWatcher(5*time.Millisecond, probe)
	l := newTestLoop(t, b, sys, WithOverlays(w))

	cancel, done := runLoop(l)
	defer cancel()
	waitCounts(t, sys, 1, 0)

	probe.open.Store(true)
	waitCounts(t, sys, 1, 1)

	probe.open.Store(false)
	waitCounts(t, sys, 1, 2)

	close(b.events)
	require.NoError(t, <-done)
}

// toplevelBackend cannot see layer surfaces, like sway's lswt listing
type toplevelBackend struct{ *chanBackend }

func (b toplevelBackend) ObservesLayers() bool { return false }

func TestSeedAssumesRunningBarVisibleWithoutLayerListing(t *testing.T) {
	b := newChanBackend(occupied("1", "a"))
	sys := newFakeSystem(42)
	l := newTestLoop(t, toplevelBackend{b}, sys)

	cancel, done := runLoop(l)
	defer cancel()

	// The bar is already shown and a window is open: nothing to do
	b.events <- occupied("1", "a", "b")

	// Leaving the workspace hides it with a single toggle
	b.events <- occupied("2", "a")
	waitCounts(t, sys, 0, 1)

	close(b.events)
	require.NoError(t, <-done)
	_, signals := sys.counts()
	assert.Equal(t, 1, signals)
}

func TestOverlayOpenAtStartupSuppressesFirstDecision(t *testing.T) {
	b := newChanBackend(occupied("1", "a"))
	sys := newFakeSystem()
	probe := &toggle{}
	probe.open.Store(true)
	w := overlay.NewWatcher(5*time.Millisecond, probe)
	rec := &recorder{}
	l := newTestLoop(t, b, sys, WithOverlays(w), WithPublisher(rec))

	cancel, done := runLoop(l)
	defer cancel()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.statuses) > 0
	}, 2*time.Second, time.Millisecond)
	rec.mu.Lock()
	first := rec.statuses[0]
	rec.mu.Unlock()
	assert.True(t, first.OverlayOpen)
	assert.False(t, first.Desired)
	spawns, _ := sys.counts()
	assert.Zero(t, spawns)

	probe.open.Store(false)
	waitCounts(t, sys, 1, 0)

	close(b.events)
	require.NoError(t, <-done)
}

// slowProbe blocks every check after the first until its context ends
type slowProbe struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	entered  chan struct{}
}

func (p *slowProbe) Name() string { return "slow" }

func (p *slowProbe) Open(ctx context.Context) bool {
	if p.calls.Add(1) == 1 {
		return false
	}
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return false
}

func TestRunWaitsForOverlayWatcher(t *testing.T) {
	b := newChanBackend(occupied("1"))
	probe := &slowProbe{entered: make(chan struct{}, 1)}
	w := overlay.NewWatcher(time.Millisecond, probe)
	l := newTestLoop(t, b, newFakeSystem(), WithOverlays(w))

	cancel, done := runLoop(l)
	defer cancel()

	select {
	case <-probe.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("overlay watcher never polled")
	}

	// The stream ends while a probe call is in flight
	close(b.events)
	require.NoError(t, <-done)
	assert.Zero(t, probe.inFlight.Load())
}
