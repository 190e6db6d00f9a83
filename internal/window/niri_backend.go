package window

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/ipc"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
	"github.com/rs/zerolog"
)

const niriBin = "niri"

// NiriBackend implements the Backend interface with `niri msg --json`
// queries and the line-delimited event stream of `niri msg --json event-stream`
type NiriBackend struct {
	runner  Runner
	tracker *workspace.Tracker
	log     *zerolog.Logger
}

// NewNiriBackend creates a new niri backend
func NewNiriBackend(opts Options) (*NiriBackend, error) {
	opts = opts.withDefaults()
	log := logger.WithComponent("niri-backend")
	if opts.Getenv("NIRI_SOCKET") == "" {
		log.Warn().Msg("NIRI_SOCKET is not set, niri msg may fail to connect")
	}

	return &NiriBackend{
		runner:  opts.Runner,
		tracker: workspace.New(),
		log:     log,
	}, nil
}

// Name returns the backend name
func (b *NiriBackend) Name() string {
	return string(FamilyNiri)
}

// Close is a no-op; the event stream process ends with Subscribe
func (b *NiriBackend) Close() error {
	return nil
}

func niriWorkspaceID(id uint64) workspace.ID {
	return workspace.ID(strconv.FormatUint(id, 10))
}

func niriWindowID(id uint64) workspace.WindowID {
	return workspace.WindowID(strconv.FormatUint(id, 10))
}

func niriActive(workspaces []ipc.NiriWorkspace) []workspace.ID {
	var active []workspace.ID
	for _, ws := range workspaces {
		if ws.IsActive {
			active = append(active, niriWorkspaceID(ws.ID))
		}
	}
	return active
}

func niriWindows(windows []ipc.NiriWindow) map[workspace.WindowID]workspace.ID {
	out := make(map[workspace.WindowID]workspace.ID, len(windows))
	for _, w := range windows {
		if w.WorkspaceID == nil {
			continue
		}
		out[niriWindowID(w.ID)] = niriWorkspaceID(*w.WorkspaceID)
	}
	return out
}

// Sync rebuilds the tracker from niri msg workspaces and windows
func (b *NiriBackend) Sync(ctx context.Context) {
	snap := workspace.Snapshot{Windows: make(map[workspace.WindowID]workspace.ID)}

	workspaces, _ := queryJSON(ctx, b.runner, b.log, ipc.DecodeNiriWorkspaces, niriBin, "msg", "--json", "workspaces")
	snap.Active = niriActive(workspaces)
	if len(snap.Active) > 0 {
		windows, _ := queryJSON(ctx, b.runner, b.log, ipc.DecodeNiriWindows, niriBin, "msg", "--json", "windows")
		snap.Windows = niriWindows(windows)
	}

	b.tracker.Reset(snap)
	b.log.Debug().
		Int("windows", b.tracker.Len()).
		Bool("has_active_windows", b.tracker.HasActiveWindows()).
		Msg("Resynchronized from snapshot")
}

// IsOverlayActive checks niri's layer-shell surfaces for a matching namespace
func (b *NiriBackend) IsOverlayActive(ctx context.Context, name string) bool {
	layers, ok := queryJSON(ctx, b.runner, b.log, ipc.DecodeNiriLayers, niriBin, "msg", "--json", "layers")
	if !ok {
		return false
	}
	for _, l := range layers {
		if l.Namespace == name {
			return true
		}
	}
	return false
}

// HasActiveWindows reports whether an active workspace holds a window
func (b *NiriBackend) HasActiveWindows() bool {
	return b.tracker.HasActiveWindows()
}

// State returns a copy of the tracked workspace state
func (b *NiriBackend) State() workspace.State {
	return b.tracker.State()
}

// Subscribe runs the event stream child process until it exits
func (b *NiriBackend) Subscribe(ctx context.Context, onChange func()) error {
	cmd := exec.CommandContext(ctx, niriBin, "msg", "--json", "event-stream")
	cmd.WaitDelay = 500 * time.Millisecond
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("event stream pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start niri event stream: %w", err)
	}
	b.log.Info().Int("pid", cmd.Process.Pid).Msg("Subscribed to niri event stream")

	consumeErr := b.consume(ctx, stdout, onChange)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if consumeErr != nil {
		return consumeErr
	}
	if waitErr != nil {
		return fmt.Errorf("niri event stream exited: %w", waitErr)
	}
	return nil
}

// consume applies event lines from r. Lines already buffered are applied as
// one batch with at most one resync and one onChange.
func (b *NiriBackend) consume(ctx context.Context, r io.Reader, onChange func()) error {
	br := bufio.NewReader(r)
	changed, resync := false, false

	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			c, rs := b.handle(bytes.TrimSpace(line))
			changed = changed || c
			resync = resync || rs
		}

		if err != nil || !lineBuffered(br) {
			if resync {
				b.Sync(ctx)
				changed = true
			}
			if changed {
				onChange()
			}
			changed, resync = false, false
		}

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				b.log.Info().Msg("Event stream closed")
				return nil
			}
			return fmt.Errorf("niri event stream: %w", err)
		}
	}
}

func lineBuffered(br *bufio.Reader) bool {
	buf, _ := br.Peek(br.Buffered())
	return bytes.IndexByte(buf, '\n') >= 0
}

// handle applies one event and reports a tracker change and a required resync
func (b *NiriBackend) handle(line []byte) (changed, resync bool) {
	if len(line) == 0 {
		return false, false
	}
	ev, err := ipc.DecodeNiriEvent(line)
	if err != nil {
		b.log.Debug().Err(err).Msg("Dropping malformed event")
		return false, false
	}

	switch {
	case ev.WindowOpenedOrChanged != nil:
		w := ev.WindowOpenedOrChanged.Window
		b.log.Debug().Uint64("window", w.ID).Msg("Window opened or changed")
		if w.WorkspaceID == nil {
			return b.tracker.Close(niriWindowID(w.ID)), false
		}
		return b.tracker.Open(niriWindowID(w.ID), niriWorkspaceID(*w.WorkspaceID)), false

	case ev.WindowClosed != nil:
		b.log.Debug().Uint64("window", ev.WindowClosed.ID).Msg("Window closed")
		return b.tracker.Close(niriWindowID(ev.WindowClosed.ID)), false

	case ev.WindowsChanged != nil:
		b.tracker.Reset(workspace.Snapshot{
			Windows: niriWindows(ev.WindowsChanged.Windows),
			Active:  b.tracker.State().Active,
		})
		return true, false

	case ev.WorkspacesChanged != nil:
		return b.tracker.SetActive(niriActive(ev.WorkspacesChanged.Workspaces)...), false

	case ev.WorkspaceActivated != nil:
		b.log.Debug().Uint64("workspace", ev.WorkspaceActivated.ID).Msg("Workspace activated")
		return false, true
	}
	return false, false
}
