package overlay

import (
	"context"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/rs/zerolog"
)

// Watcher polls probes and publishes whether any overlay is open. Only the
// latest unread value is kept; readers never see stale transitions.
type Watcher struct {
	probes   []Probe
	interval time.Duration
	updates  chan bool
	open     bool
	log      *zerolog.Logger
}

// NewWatcher creates a watcher polling every interval
func NewWatcher(interval time.Duration, probes ...Probe) *Watcher {
	return &Watcher{
		probes:   probes,
		interval: interval,
		updates:  make(chan bool, 1),
		log:      logger.WithComponent("overlay"),
	}
}

// Updates delivers the overlay state after each change. The initial state
// is closed, or whatever Prime found, and is not sent.
func (w *Watcher) Updates() <-chan bool {
	return w.updates
}

// Probes returns the configured probes
func (w *Watcher) Probes() []Probe {
	return w.probes
}

// Check queries probes in order and stops at the first open one
func (w *Watcher) Check(ctx context.Context) (bool, string) {
	for _, p := range w.probes {
		if p.Open(ctx) {
			return true, p.Name()
		}
	}
	return false, ""
}

// Prime checks the probes once and records the result as the current state
// without publishing it. It must be called before Run.
func (w *Watcher) Prime(ctx context.Context) bool {
	open, name := w.Check(ctx)
	w.open = open
	if open {
		w.log.Debug().Str("overlay", name).Msg("Overlay open at startup")
	}
	return open
}

// Run polls until ctx is cancelled. It returns at once when there is
// nothing to watch.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.probes) == 0 || w.interval <= 0 {
		w.log.Debug().Msg("No overlay probes configured")
		return nil
	}

	names := make([]string, len(w.probes))
	for i, p := range w.probes {
		names[i] = p.Name()
	}
	w.log.Info().Strs("probes", names).Dur("interval", w.interval).Msg("Watching overlays")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	open, name := w.Check(ctx)
	if ctx.Err() != nil || open == w.open {
		return
	}
	w.open = open
	if open {
		w.log.Debug().Str("overlay", name).Msg("Overlay opened")
	} else {
		w.log.Debug().Msg("Overlays closed")
	}
	w.publish(open)
}

// publish replaces any unread value. poll is the only sender.
func (w *Watcher) publish(open bool) {
	select {
	case <-w.updates:
	default:
	}
	w.updates <- open
}
