// Package overlay watches transient surfaces, such as a notification center,
// that should keep the bar hidden while they are open.
package overlay

import (
	"context"
)

// Probe reports whether one overlay is currently open
type Probe interface {
	// Name identifies the overlay in logs and status output
	Name() string

	// Open queries the overlay's current state. Failures report false.
	Open(ctx context.Context) bool
}

// LayerChecker is the part of a compositor backend that lists mapped
// layer surfaces. window.Backend satisfies it.
type LayerChecker interface {
	IsOverlayActive(ctx context.Context, name string) bool
}

// LayerProbe checks for a compositor layer surface by namespace
type LayerProbe struct {
	checker LayerChecker
	name    string
}

// NewLayerProbe creates a probe for the layer namespace name
func NewLayerProbe(checker LayerChecker, name string) *LayerProbe {
	return &LayerProbe{checker: checker, name: name}
}

// Name returns the layer namespace
func (p *LayerProbe) Name() string {
	return p.name
}

// Open reports whether the layer is mapped
func (p *LayerProbe) Open(ctx context.Context) bool {
	return p.checker.IsOverlayActive(ctx, p.name)
}
