package window

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/ipc"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
	"github.com/rs/zerolog"
)

var swayEvents = []string{"window", "workspace", "output", "shutdown"}

// SwayBackend implements the Backend interface over the i3/sway binary IPC.
// Queries and the subscription use separate connections, so replies never
// interleave with pushed events.
type SwayBackend struct {
	socketPath string
	timeout    time.Duration
	runner     Runner
	tracker    *workspace.Tracker
	log        *zerolog.Logger
}

// NewSwayBackend creates a new sway backend from SWAYSOCK or I3SOCK
func NewSwayBackend(opts Options) (*SwayBackend, error) {
	opts = opts.withDefaults()
	path := opts.Getenv("SWAYSOCK")
	if path == "" {
		path = opts.Getenv("I3SOCK")
	}
	if path == "" {
		return nil, fmt.Errorf("neither SWAYSOCK nor I3SOCK is set")
	}

	return &SwayBackend{
		socketPath: path,
		timeout:    opts.QueryTimeout,
		runner:     opts.Runner,
		tracker:    workspace.New(),
		log:        logger.WithComponent("sway-backend"),
	}, nil
}

// Name returns the backend name
func (b *SwayBackend) Name() string {
	return string(FamilySway)
}

// Close is a no-op; each query dials its own connection
func (b *SwayBackend) Close() error {
	return nil
}

// query sends one request on a fresh connection and returns the reply payload
func (b *SwayBackend) query(ctx context.Context, typ ipc.MessageType, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", b.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", b.socketPath, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := ipc.WriteMessage(conn, typ, payload); err != nil {
		return nil, err
	}
	for {
		msg, err := ipc.ReadMessage(conn)
		if err != nil {
			return nil, fmt.Errorf("%s reply: %w", typ, err)
		}
		if msg.Type == typ {
			return msg.Payload, nil
		}
	}
}

// Sync rebuilds the tracker from GET_WORKSPACES and GET_TREE
func (b *SwayBackend) Sync(ctx context.Context) {
	b.tracker.Reset(b.snapshot(ctx))
	b.log.Debug().
		Int("windows", b.tracker.Len()).
		Bool("has_active_windows", b.tracker.HasActiveWindows()).
		Msg("Resynchronized from snapshot")
}

func (b *SwayBackend) snapshot(ctx context.Context) workspace.Snapshot {
	snap := workspace.Snapshot{Windows: make(map[workspace.WindowID]workspace.ID)}

	payload, err := b.query(ctx, ipc.GetWorkspaces, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("Workspace query failed, using empty result")
		return snap
	}
	workspaces, err := ipc.DecodeWorkspaces(payload)
	if err != nil {
		b.log.Warn().Err(err).Msg("Workspace reply malformed, using empty result")
		return snap
	}
	for _, ws := range workspaces {
		if ws.Visible {
			snap.Active = append(snap.Active, workspace.ID(ws.Name))
		}
	}

	payload, err = b.query(ctx, ipc.GetTree, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("Tree query failed, using empty result")
		return snap
	}
	root, err := ipc.DecodeTree(payload)
	if err != nil {
		b.log.Warn().Err(err).Msg("Tree reply malformed, using empty result")
		return snap
	}
	for id, ws := range root.Windows() {
		snap.Windows[swayWindowID(id)] = workspace.ID(ws)
	}
	return snap
}

func swayWindowID(id int64) workspace.WindowID {
	return workspace.WindowID(strconv.FormatInt(id, 10))
}

// IsOverlayActive searches `lswt -j` toplevels for a matching app id, layer
// namespace or title. sway exposes no layer-shell listing over its IPC.
func (b *SwayBackend) IsOverlayActive(ctx context.Context, name string) bool {
	doc, ok := queryJSON(ctx, b.runner, b.log, decodeAny, "lswt", "-j")
	if !ok {
		return false
	}
	return jsonHasIdentity(doc, name)
}

// ObservesLayers is false: lswt lists toplevels only, so the bar's layer
// surface is never seen.
func (b *SwayBackend) ObservesLayers() bool {
	return false
}

func decodeAny(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var identityKeys = []string{"app-id", "app_id", "namespace", "title"}

// jsonHasIdentity walks decoded JSON looking for an object whose identity
// field equals name.
func jsonHasIdentity(v any, name string) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range identityKeys {
			if s, ok := t[k].(string); ok && s == name {
				return true
			}
		}
		for _, child := range t {
			if jsonHasIdentity(child, name) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if jsonHasIdentity(child, name) {
				return true
			}
		}
	}
	return false
}

// HasActiveWindows reports whether a visible workspace holds a window
func (b *SwayBackend) HasActiveWindows() bool {
	return b.tracker.HasActiveWindows()
}

// State returns a copy of the tracked workspace state
func (b *SwayBackend) State() workspace.State {
	return b.tracker.State()
}

// Subscribe opens the event connection and applies events until the
// compositor shuts down or the connection closes.
func (b *SwayBackend) Subscribe(ctx context.Context, onChange func()) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", b.socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", b.socketPath, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := ipc.WriteMessage(conn, ipc.Subscribe, ipc.SubscribePayload(swayEvents...)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	b.log.Info().Str("socket", b.socketPath).Strs("events", swayEvents).Msg("Subscribing to sway events")
	return b.consume(ctx, bufio.NewReader(conn), onChange)
}

// consume reads frames from r. Frames already buffered are applied as one
// batch, so a burst triggers a single resync and a single onChange.
func (b *SwayBackend) consume(ctx context.Context, r *bufio.Reader, onChange func()) error {
	changed, resync := false, false
	for {
		msg, err := ipc.ReadMessage(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				b.log.Info().Msg("Event socket closed by compositor")
				return nil
			}
			return fmt.Errorf("sway event socket: %w", err)
		}

		c, rs, done, err := b.handle(msg)
		if err != nil {
			return err
		}
		changed = changed || c
		resync = resync || rs

		if done || !ipc.FrameBuffered(r) {
			if resync {
				b.Sync(ctx)
				changed = true
			}
			if changed {
				onChange()
			}
			changed, resync = false, false
		}
		if done {
			b.log.Info().Msg("Compositor is shutting down")
			return nil
		}
	}
}

// handle applies one frame. It reports a tracker change, a required resync,
// and whether the stream has ended.
func (b *SwayBackend) handle(msg ipc.Message) (changed, resync, done bool, err error) {
	switch msg.Type {
	case ipc.Subscribe:
		var reply ipc.SwayCommandReply
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return false, false, false, fmt.Errorf("subscribe reply: %w", err)
		}
		if !reply.Success {
			return false, false, false, fmt.Errorf("subscribe rejected: %s", reply.Error)
		}
		return false, false, false, nil

	case ipc.EventWindow:
		var ev ipc.SwayWindowEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			b.log.Debug().Err(err).Msg("Dropping malformed window event")
			return false, false, false, nil
		}
		b.log.Debug().Str("change", ev.Change).Int64("container", ev.Container.ID).Msg("Window event")
		switch ev.Change {
		case "close":
			return b.tracker.Close(swayWindowID(ev.Container.ID)), false, false, nil
		case "new", "move", "floating":
			// The container payload does not name its workspace
			return false, true, false, nil
		}
		return false, false, false, nil

	case ipc.EventWorkspace:
		var ev ipc.SwayWorkspaceEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			b.log.Debug().Err(err).Msg("Dropping malformed workspace event")
			return false, false, false, nil
		}
		b.log.Debug().Str("change", ev.Change).Msg("Workspace event")
		return false, ev.Change != "urgent", false, nil

	case ipc.EventOutput:
		return false, true, false, nil

	case ipc.EventShutdown:
		return false, false, true, nil
	}
	return false, false, false, nil
}
