package window

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/navbar-watcher/internal/ipc"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
	"github.com/rs/zerolog"
)

const hyprctl = "hyprctl"

// HyprlandBackend implements the Backend interface using hyprctl JSON queries
// for snapshots and the .socket2.sock text event stream for changes
type HyprlandBackend struct {
	runner     Runner
	socketPath string
	tracker    *workspace.Tracker
	log        *zerolog.Logger
}

// NewHyprlandBackend creates a new Hyprland backend
func NewHyprlandBackend(opts Options) (*HyprlandBackend, error) {
	opts = opts.withDefaults()
	path, err := hyprlandSocketPath(opts.Getenv, func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	})
	if err != nil {
		return nil, err
	}

	return &HyprlandBackend{
		runner:     opts.Runner,
		socketPath: path,
		tracker:    workspace.New(),
		log:        logger.WithComponent("hyprland-backend"),
	}, nil
}

// hyprlandSocketPath resolves the event socket. Hyprland moved its sockets
// from /tmp/hypr to $XDG_RUNTIME_DIR/hypr; both are tried in that order and
// the preferred path is returned when neither exists yet.
func hyprlandSocketPath(getenv Getenv, exists func(string) bool) (string, error) {
	sig := getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return "", fmt.Errorf("HYPRLAND_INSTANCE_SIGNATURE not set")
	}

	var candidates []string
	if runtime := getenv("XDG_RUNTIME_DIR"); runtime != "" {
		candidates = append(candidates, filepath.Join(runtime, "hypr", sig, ".socket2.sock"))
	}
	candidates = append(candidates, filepath.Join("/tmp", "hypr", sig, ".socket2.sock"))

	for _, c := range candidates {
		if exists(c) {
			return c, nil
		}
	}
	return candidates[0], nil
}

// Name returns the backend name
func (b *HyprlandBackend) Name() string {
	return string(FamilyHyprland)
}

// SocketPath returns the event socket path in use
func (b *HyprlandBackend) SocketPath() string {
	return b.socketPath
}

// Close is a no-op; queries use short-lived hyprctl processes
func (b *HyprlandBackend) Close() error {
	return nil
}

// Sync rebuilds the tracker from hyprctl monitors and clients
func (b *HyprlandBackend) Sync(ctx context.Context) {
	b.tracker.Reset(b.snapshot(ctx))
	b.log.Debug().
		Int("windows", b.tracker.Len()).
		Bool("has_active_windows", b.tracker.HasActiveWindows()).
		Msg("Resynchronized from snapshot")
}

func (b *HyprlandBackend) snapshot(ctx context.Context) workspace.Snapshot {
	snap := workspace.Snapshot{Windows: make(map[workspace.WindowID]workspace.ID)}

	monitors, _ := queryJSON(ctx, b.runner, b.log, ipc.DecodeHyprMonitors, hyprctl, "-j", "monitors")
	for _, m := range monitors {
		if m.Disabled {
			continue
		}
		snap.Active = append(snap.Active, workspace.ID(m.ActiveWorkspace.Name))
		// An open special workspace is drawn over the regular one
		if m.SpecialWorkspace.Name != "" {
			snap.Active = append(snap.Active, workspace.ID(m.SpecialWorkspace.Name))
		}
	}
	if len(snap.Active) == 0 {
		return snap
	}

	clients, _ := queryJSON(ctx, b.runner, b.log, ipc.DecodeHyprClients, hyprctl, "-j", "clients")
	for _, c := range clients {
		addr := ipc.NormalizeAddress(c.Address)
		if addr == "" || c.Workspace.Name == "" {
			continue
		}
		snap.Windows[workspace.WindowID(addr)] = workspace.ID(c.Workspace.Name)
	}
	return snap
}

// IsOverlayActive checks hyprctl layers for a matching namespace
func (b *HyprlandBackend) IsOverlayActive(ctx context.Context, name string) bool {
	layers, ok := queryJSON(ctx, b.runner, b.log, ipc.DecodeHyprLayers, hyprctl, "-j", "layers")
	if !ok {
		return false
	}
	for _, ns := range layers.Namespaces() {
		if ns == name {
			return true
		}
	}
	return false
}

// HasActiveWindows reports whether a focused workspace holds a window
func (b *HyprlandBackend) HasActiveWindows() bool {
	return b.tracker.HasActiveWindows()
}

// State returns a copy of the tracked workspace state
func (b *HyprlandBackend) State() workspace.State {
	return b.tracker.State()
}

// Subscribe reads the event socket until it closes
func (b *HyprlandBackend) Subscribe(ctx context.Context, onChange func()) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", b.socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", b.socketPath, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	b.log.Info().Str("socket", b.socketPath).Msg("Subscribed to Hyprland events")

	buf := make([]byte, 4096)
	var lines ipc.LineBuffer
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if b.apply(ctx, lines.Feed(buf[:n])) {
				onChange()
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				b.log.Info().Msg("Event socket closed by compositor")
				return nil
			}
			return fmt.Errorf("hyprland event socket: %w", err)
		}
	}
}

// apply updates the tracker from a batch of complete lines and reports
// whether anything tracked changed. A resync runs at most once per batch.
func (b *HyprlandBackend) apply(ctx context.Context, lines []string) bool {
	changed, resync := false, false

	for _, line := range lines {
		ev, ok := ipc.ParseHyprEvent(line)
		if !ok {
			continue
		}
		d := ipc.ClassifyHyprEvent(ev)
		switch d.Kind {
		case ipc.DeltaNone:
			continue
		case ipc.DeltaOpen:
			changed = b.tracker.Open(workspace.WindowID(d.Window), workspace.ID(d.Workspace)) || changed
		case ipc.DeltaClose:
			changed = b.tracker.Close(workspace.WindowID(d.Window)) || changed
		case ipc.DeltaMove:
			changed = b.tracker.Move(workspace.WindowID(d.Window), workspace.ID(d.Workspace)) || changed
		case ipc.DeltaResync:
			resync = true
		}
		b.log.Debug().
			Str("event", ev.Name).
			Stringer("delta", d.Kind).
			Str("window", d.Window).
			Str("workspace", d.Workspace).
			Msg("Event")
	}

	if resync {
		b.Sync(ctx)
		changed = true
	}
	return changed
}
