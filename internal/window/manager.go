package window

import (
	"context"

	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
	"github.com/rs/zerolog"
)

// Manager runs a backend's event subscription and publishes state copies.
// The backend's tracker is touched only by Initial and by the goroutine
// running Run, never both at once.
type Manager struct {
	backend Backend
	updates chan workspace.State
	log     *zerolog.Logger
}

// NewManager creates a new window manager for backend
func NewManager(backend Backend) *Manager {
	return &Manager{
		backend: backend,
		updates: make(chan workspace.State, 1),
		log:     logger.WithComponent("window-manager"),
	}
}

// Backend returns the wrapped backend
func (m *Manager) Backend() Backend {
	return m.backend
}

// Initial takes the startup snapshot. Call it before Run.
func (m *Manager) Initial(ctx context.Context) workspace.State {
	m.backend.Sync(ctx)
	state := m.backend.State()
	m.log.Info().
		Str("backend", m.backend.Name()).
		Int("windows", state.Windows).
		Strs("active", activeNames(state)).
		Bool("has_windows", state.HasWindows).
		Msg("Initial workspace state")
	return state
}

// Updates delivers the latest state after each applied batch. Only the most
// recent unread state is kept.
func (m *Manager) Updates() <-chan workspace.State {
	return m.updates
}

// Run blocks in the backend subscription. A nil return means the
// compositor closed the stream or ctx was cancelled.
func (m *Manager) Run(ctx context.Context) error {
	return m.backend.Subscribe(ctx, func() {
		m.publish(m.backend.State())
	})
}

// publish replaces any unread state. Run is the only sender.
func (m *Manager) publish(state workspace.State) {
	select {
	case m.updates <- state:
		return
	default:
	}
	select {
	case <-m.updates:
	default:
	}
	select {
	case m.updates <- state:
	default:
	}
}

// Close releases the backend
func (m *Manager) Close() error {
	return m.backend.Close()
}

func activeNames(state workspace.State) []string {
	out := make([]string, len(state.Active))
	for i, id := range state.Active {
		out[i] = string(id)
	}
	return out
}
