package window

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
	"github.com/rs/zerolog"
)

// stickyDesktop is the _NET_WM_DESKTOP value of windows shown on every desktop
const stickyDesktop = 0xFFFFFFFF

type x11Atoms struct {
	clientList       xproto.Atom
	currentDesktop   xproto.Atom
	numberOfDesktops xproto.Atom
	wmDesktop        xproto.Atom
}

// X11Backend implements the Backend interface for EWMH window managers.
// Virtual desktops stand in for workspaces and the current desktop is the
// only active one.
type X11Backend struct {
	conn      *xgb.Conn
	xu        *xgbutil.XUtil
	root      xproto.Window
	atoms     x11Atoms
	tracker   *workspace.Tracker
	log       *zerolog.Logger
	closeOnce sync.Once
}

// NewX11Backend connects to the X server named by DISPLAY
func NewX11Backend(opts Options) (*X11Backend, error) {
	opts = opts.withDefaults()
	conn, err := xgb.NewConnDisplay(opts.Getenv("DISPLAY"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	xu, err := xgbutil.NewConnXgb(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set up EWMH helpers: %w", err)
	}

	atoms, err := internAtoms(xu)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &X11Backend{
		conn:    conn,
		xu:      xu,
		root:    xu.RootWin(),
		atoms:   atoms,
		tracker: workspace.New(),
		log:     logger.WithComponent("x11-backend"),
	}, nil
}

func internAtoms(xu *xgbutil.XUtil) (x11Atoms, error) {
	var atoms x11Atoms
	for name, dst := range map[string]*xproto.Atom{
		"_NET_CLIENT_LIST":        &atoms.clientList,
		"_NET_CURRENT_DESKTOP":    &atoms.currentDesktop,
		"_NET_NUMBER_OF_DESKTOPS": &atoms.numberOfDesktops,
		"_NET_WM_DESKTOP":         &atoms.wmDesktop,
	} {
		atom, err := xprop.Atm(xu, name)
		if err != nil {
			return x11Atoms{}, fmt.Errorf("failed to intern %s: %w", name, err)
		}
		*dst = atom
	}
	return atoms, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return string(FamilyX11)
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.closeOnce.Do(b.conn.Close)
	return nil
}

func x11WindowID(win xproto.Window) workspace.WindowID {
	return workspace.WindowID(fmt.Sprintf("0x%08x", uint32(win)))
}

func desktopID(d uint) workspace.ID {
	return workspace.ID(strconv.FormatUint(uint64(d), 10))
}

// classMatches reports whether WM_CLASS names the overlay by instance or class
func classMatches(wc *icccm.WmClass, name string) bool {
	return wc != nil && (wc.Instance == name || wc.Class == name)
}

// diffClients compares the tracked windows with the current client list
func diffClients(tracked []workspace.WindowID, current []xproto.Window) (added []xproto.Window, removed []workspace.WindowID) {
	seen := make(map[workspace.WindowID]struct{}, len(current))
	for _, win := range current {
		seen[x11WindowID(win)] = struct{}{}
	}
	known := make(map[workspace.WindowID]struct{}, len(tracked))
	for _, id := range tracked {
		known[id] = struct{}{}
		if _, ok := seen[id]; !ok {
			removed = append(removed, id)
		}
	}
	for _, win := range current {
		if _, ok := known[x11WindowID(win)]; !ok {
			added = append(added, win)
		}
	}
	return added, removed
}

// desktop returns a client's _NET_WM_DESKTOP, false for sticky or unset
func (b *X11Backend) desktop(win xproto.Window) (uint, bool) {
	d, err := ewmh.WmDesktopGet(b.xu, win)
	if err != nil || d == stickyDesktop {
		return 0, false
	}
	return d, true
}

// watchClient asks for PropertyNotify on a client so desktop moves arrive
func (b *X11Backend) watchClient(win xproto.Window) {
	xproto.ChangeWindowAttributes(b.conn, win, xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange})
}

// Sync rebuilds the tracker from _NET_CURRENT_DESKTOP and _NET_CLIENT_LIST
func (b *X11Backend) Sync(ctx context.Context) {
	b.tracker.Reset(b.snapshot())
	b.log.Debug().
		Int("windows", b.tracker.Len()).
		Bool("has_active_windows", b.tracker.HasActiveWindows()).
		Msg("Resynchronized from snapshot")
}

func (b *X11Backend) snapshot() workspace.Snapshot {
	snap := workspace.Snapshot{Windows: make(map[workspace.WindowID]workspace.ID)}

	current, err := ewmh.CurrentDesktopGet(b.xu)
	if err != nil {
		b.log.Warn().Err(err).Msg("_NET_CURRENT_DESKTOP unavailable, using empty result")
		return snap
	}
	snap.Active = []workspace.ID{desktopID(current)}

	clients, err := ewmh.ClientListGet(b.xu)
	if err != nil {
		b.log.Debug().Err(err).Msg("No client list")
		return snap
	}
	for _, win := range clients {
		b.watchClient(win)
		d, ok := b.desktop(win)
		if !ok {
			continue
		}
		snap.Windows[x11WindowID(win)] = desktopID(d)
	}
	return snap
}

// refreshClients applies the difference between the client list and the tracker
func (b *X11Backend) refreshClients() bool {
	clients, err := ewmh.ClientListGet(b.xu)
	if err != nil {
		clients = nil
	}

	changed := false
	added, removed := diffClients(b.tracker.Windows(), clients)
	for _, id := range removed {
		changed = b.tracker.Close(id) || changed
	}
	for _, win := range added {
		b.watchClient(win)
		d, ok := b.desktop(win)
		if !ok {
			continue
		}
		changed = b.tracker.Open(x11WindowID(win), desktopID(d)) || changed
	}
	return changed
}

// overlayCandidates merges managed clients with the override-redirect
// top-levels the window manager never reparents, dropping duplicates.
func overlayCandidates(clients, rootChildren []xproto.Window, overrideRedirect func(xproto.Window) bool) []xproto.Window {
	seen := make(map[xproto.Window]struct{}, len(clients))
	out := make([]xproto.Window, 0, len(clients))
	for _, win := range clients {
		if _, ok := seen[win]; ok {
			continue
		}
		seen[win] = struct{}{}
		out = append(out, win)
	}
	for _, win := range rootChildren {
		if _, ok := seen[win]; ok || !overrideRedirect(win) {
			continue
		}
		seen[win] = struct{}{}
		out = append(out, win)
	}
	return out
}

// IsOverlayActive looks for a viewable client or override-redirect window
// whose WM_CLASS instance or class equals name. Clients are read from
// _NET_CLIENT_LIST since reparenting window managers keep WM_CLASS on the
// client inside the frame.
func (b *X11Backend) IsOverlayActive(ctx context.Context, name string) bool {
	clients, err := ewmh.ClientListGet(b.xu)
	if err != nil {
		b.log.Debug().Err(err).Msg("No client list")
	}
	var children []xproto.Window
	if tree, err := xproto.QueryTree(b.conn, b.root).Reply(); err != nil {
		b.log.Warn().Err(err).Msg("QueryTree failed")
	} else {
		children = tree.Children
	}

	overrideRedirect := func(win xproto.Window) bool {
		a, err := xproto.GetWindowAttributes(b.conn, win).Reply()
		return err == nil && a.OverrideRedirect
	}

	for _, win := range overlayCandidates(clients, children, overrideRedirect) {
		wc, err := icccm.WmClassGet(b.xu, win)
		if err != nil || !classMatches(wc, name) {
			continue
		}
		a, err := xproto.GetWindowAttributes(b.conn, win).Reply()
		if err == nil && a.MapState == xproto.MapStateViewable {
			return true
		}
	}
	return false
}

// HasActiveWindows reports whether the current desktop holds a window
func (b *X11Backend) HasActiveWindows() bool {
	return b.tracker.HasActiveWindows()
}

// State returns a copy of the tracked workspace state
func (b *X11Backend) State() workspace.State {
	return b.tracker.State()
}

// Subscribe listens for root and client PropertyNotify events until the
// connection closes. Events already queued are applied as one batch.
func (b *X11Backend) Subscribe(ctx context.Context, onChange func()) error {
	if err := xproto.ChangeWindowAttributesChecked(
		b.conn,
		b.root,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange},
	).Check(); err != nil {
		return fmt.Errorf("failed to set event mask: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { b.Close() })
	defer stop()

	b.log.Info().Msg("Watching EWMH properties")

	for {
		ev, xerr := b.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			b.log.Info().Msg("X connection closed")
			return nil
		}

		changed, resync := false, false
		for ev != nil || xerr != nil {
			if xerr != nil {
				b.log.Debug().Str("error", xerr.Error()).Msg("X error")
			} else {
				c, rs := b.handle(ev)
				changed = changed || c
				resync = resync || rs
			}
			ev, xerr = b.conn.PollForEvent()
		}

		if resync {
			b.Sync(ctx)
			changed = true
		}
		if changed {
			onChange()
		}
	}
}

// handle applies one event and reports a tracker change and a required resync
func (b *X11Backend) handle(ev xgb.Event) (changed, resync bool) {
	e, ok := ev.(xproto.PropertyNotifyEvent)
	if !ok {
		return false, false
	}

	if e.Window == b.root {
		switch e.Atom {
		case b.atoms.clientList:
			return b.refreshClients(), false
		case b.atoms.currentDesktop, b.atoms.numberOfDesktops:
			return false, true
		}
		return false, false
	}

	if e.Atom != b.atoms.wmDesktop {
		return false, false
	}
	id := x11WindowID(e.Window)
	d, ok := b.desktop(e.Window)
	if !ok {
		return b.tracker.Close(id), false
	}
	b.log.Debug().Str("window", string(id)).Uint("desktop", d).Msg("Window moved")
	return b.tracker.Move(id, desktopID(d)), false
}
