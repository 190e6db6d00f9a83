// Package autohide joins compositor window state and overlay state into a
// single visibility decision for the bar.
package autohide

import (
	"context"
	"sync"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/bar"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/bryanchriswhite/navbar-watcher/internal/overlay"
	"github.com/bryanchriswhite/navbar-watcher/internal/window"
	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
	"github.com/rs/zerolog"
)

// Status is the outcome of the latest decision
type Status struct {
	Backend     string          `json:"backend"`
	Workspace   workspace.State `json:"workspace"`
	OverlayOpen bool            `json:"overlay_open"`
	Desired     bool            `json:"desired"`
	Visible     bool            `json:"visible"`
	PID         int             `json:"pid,omitempty"`
	LastAction  string          `json:"last_action"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Publisher receives each Status. It must not block.
type Publisher interface {
	Publish(Status)
}

// Desired is the visibility decision: windows on a focused workspace and no
// overlay open.
func Desired(hasWindows, overlayOpen bool) bool {
	return hasWindows && !overlayOpen
}

// Loop owns the bar controller. Window state arrives from the window
// manager's goroutine and overlay state from the overlay watcher's; the
// controller is only called from Run.
type Loop struct {
	windows  *window.Manager
	overlays *overlay.Watcher
	ctrl     *bar.Controller
	barName  string
	pub      Publisher
	log      *zerolog.Logger

	state       workspace.State
	overlayOpen bool
}

// Option configures a Loop
type Option func(*Loop)

// WithOverlays suppresses the bar while any of the watcher's overlays is open
func WithOverlays(w *overlay.Watcher) Option {
	return func(l *Loop) { l.overlays = w }
}

// WithPublisher sends every decision to p
func WithPublisher(p Publisher) Option {
	return func(l *Loop) { l.pub = p }
}

// New creates a loop. barName is the layer namespace used to seed the
// controller's initial visibility.
func New(windows *window.Manager, ctrl *bar.Controller, barName string, opts ...Option) *Loop {
	l := &Loop{
		windows: windows,
		ctrl:    ctrl,
		barName: barName,
		log:     logger.WithComponent("autohide"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run takes the initial snapshot, applies one decision, then reacts to
// updates until the compositor stream ends or ctx is cancelled. It returns
// the subscription's error, nil for a clean close.
func (l *Loop) Run(ctx context.Context) error {
	// Helper goroutines are stopped and waited for before Run returns
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	l.state = l.windows.Initial(ctx)
	l.ctrl.Seed(l.seedVisible(ctx))
	if l.overlays != nil {
		l.overlayOpen = l.overlays.Prime(ctx)
	}
	l.decide()

	subErr := make(chan error, 1)
	go func() { subErr <- l.windows.Run(ctx) }()

	var overlayUpdates <-chan bool
	if l.overlays != nil {
		overlayUpdates = l.overlays.Updates()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.overlays.Run(ctx); err != nil {
				l.log.Warn().Err(err).Msg("Overlay watcher stopped")
			}
		}()
	}

	for {
		select {
		case state := <-l.windows.Updates():
			l.state = state
			l.decide()

		case open := <-overlayUpdates:
			l.overlayOpen = open
			l.decide()

		case err := <-subErr:
			// Apply the batch that was in flight when the stream ended
			select {
			case state := <-l.windows.Updates():
				l.state = state
				l.decide()
			default:
			}
			if err != nil {
				l.log.Error().Err(err).Str("backend", l.windows.Backend().Name()).Msg("Event subscription failed")
				return err
			}
			l.log.Info().Msg("Event stream ended")
			return nil

		case <-ctx.Done():
			<-subErr
			return nil
		}
	}
}

// seedVisible reports whether a running bar is currently shown. Backends
// that cannot list layer surfaces cannot see the bar, so a running bar is
// assumed visible like one found by rediscovery.
func (l *Loop) seedVisible(ctx context.Context) bool {
	backend := l.windows.Backend()
	if !window.ObservesLayers(backend) {
		l.log.Debug().Str("backend", backend.Name()).Msg("Bar surface not observable, assuming visible")
		return true
	}
	return backend.IsOverlayActive(ctx, l.barName)
}

func (l *Loop) decide() {
	want := Desired(l.state.HasWindows, l.overlayOpen)
	action, err := l.ctrl.SetDesired(want)
	if err != nil {
		l.log.Error().Err(err).Bool("desired", want).Msg("Failed to apply bar visibility")
	}

	l.log.Debug().
		Bool("has_windows", l.state.HasWindows).
		Bool("overlay_open", l.overlayOpen).
		Bool("desired", want).
		Stringer("action", action).
		Msg("Decision")

	if l.pub != nil {
		l.pub.Publish(Status{
			Backend:     l.windows.Backend().Name(),
			Workspace:   l.state,
			OverlayOpen: l.overlayOpen,
			Desired:     want,
			Visible:     l.ctrl.Visible(),
			PID:         l.ctrl.PID(),
			LastAction:  action.String(),
			UpdatedAt:   time.Now(),
		})
	}
}
