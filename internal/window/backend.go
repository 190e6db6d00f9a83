package window

import (
	"context"

	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
)

// Backend defines the interface for compositor backends (Hyprland, Sway, Niri, X11)
type Backend interface {
	// Name returns the backend name (e.g., "hyprland", "sway")
	Name() string

	// Sync discards tracked state and rebuilds it from a full snapshot.
	// Query failures leave the tracker empty rather than returning an error.
	Sync(ctx context.Context)

	// IsOverlayActive reports whether a layer surface or toplevel with the
	// given name is currently mapped. Any failure reads as false. It does
	// not touch tracked state and may run concurrently with Subscribe.
	IsOverlayActive(ctx context.Context, name string) bool

	// HasActiveWindows reports whether a focused workspace holds a window.
	// It reads tracked state only and never queries the compositor.
	HasActiveWindows() bool

	// State returns a copy of the tracked workspace state.
	State() workspace.State

	// Subscribe consumes the compositor's event stream until it ends,
	// calling onChange once per batch of state-changing events. It returns
	// nil when the stream is closed cleanly or ctx is cancelled.
	Subscribe(ctx context.Context, onChange func()) error

	// Close releases connections held for queries
	Close() error
}

// layerObserver is implemented by backends that declare whether
// IsOverlayActive covers layer-shell surfaces such as the bar.
type layerObserver interface {
	ObservesLayers() bool
}

// ObservesLayers reports whether b's IsOverlayActive can see layer-shell
// surfaces. Backends are assumed to unless they say otherwise.
func ObservesLayers(b Backend) bool {
	if o, ok := b.(layerObserver); ok {
		return o.ObservesLayers()
	}
	return true
}
