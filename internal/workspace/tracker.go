// Package workspace maintains per-workspace window counts from incremental
// compositor events.
package workspace

import (
	"maps"
	"slices"
)

// WindowID is the compositor's identifier for a mapped window.
type WindowID string

// ID identifies a workspace.
type ID string

// Snapshot is a full census used to rebuild a Tracker.
type Snapshot struct {
	Windows map[WindowID]ID
	Active  []ID
}

// State is a read-only copy of a Tracker, safe to hand to other goroutines.
type State struct {
	Active     []ID       `json:"active"`
	Counts     map[ID]int `json:"counts"`
	Windows    int        `json:"windows"`
	HasWindows bool       `json:"has_windows"`
}

// Tracker maps windows to workspaces and keeps a count per workspace.
// It is not safe for concurrent use; a backend owns it from one goroutine.
type Tracker struct {
	windows map[WindowID]ID
	counts  map[ID]int
	active  map[ID]struct{}
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{
		windows: make(map[WindowID]ID),
		counts:  make(map[ID]int),
		active:  make(map[ID]struct{}),
	}
}

// Reset discards all state and rebuilds it from snap.
func (t *Tracker) Reset(snap Snapshot) {
	t.windows = make(map[WindowID]ID, len(snap.Windows))
	t.counts = make(map[ID]int)
	t.active = make(map[ID]struct{}, len(snap.Active))

	for w, ws := range snap.Windows {
		if w == "" || ws == "" {
			continue
		}
		t.windows[w] = ws
		t.counts[ws]++
	}
	for _, ws := range snap.Active {
		if ws != "" {
			t.active[ws] = struct{}{}
		}
	}
}

// Open records a new window. A window that is already tracked is moved.
func (t *Tracker) Open(w WindowID, ws ID) bool {
	if w == "" || ws == "" {
		return false
	}
	return t.place(w, ws)
}

// Close forgets a window. Unknown windows are ignored.
func (t *Tracker) Close(w WindowID) bool {
	old, ok := t.windows[w]
	if !ok {
		return false
	}
	t.decrement(old)
	delete(t.windows, w)
	return true
}

// Move reassigns a window. An untracked window is added.
func (t *Tracker) Move(w WindowID, ws ID) bool {
	if w == "" || ws == "" {
		return false
	}
	return t.place(w, ws)
}

func (t *Tracker) place(w WindowID, ws ID) bool {
	old, ok := t.windows[w]
	if ok && old == ws {
		return false
	}
	if ok {
		t.decrement(old)
	}
	t.windows[w] = ws
	t.counts[ws]++
	return true
}

// decrement drops the entry at zero so counts never hold removed workspaces.
func (t *Tracker) decrement(ws ID) {
	if t.counts[ws] <= 1 {
		delete(t.counts, ws)
		return
	}
	t.counts[ws]--
}

// SetActive replaces the set of focused workspaces.
func (t *Tracker) SetActive(ids ...ID) bool {
	next := make(map[ID]struct{}, len(ids))
	for _, ws := range ids {
		if ws != "" {
			next[ws] = struct{}{}
		}
	}
	if maps.Equal(next, t.active) {
		return false
	}
	t.active = next
	return true
}

// HasActiveWindows reports whether any focused workspace holds a window.
func (t *Tracker) HasActiveWindows() bool {
	for ws := range t.active {
		if t.counts[ws] > 0 {
			return true
		}
	}
	return false
}

// Count returns the number of windows on ws.
func (t *Tracker) Count(ws ID) int {
	return t.counts[ws]
}

// Workspace returns the workspace a window is on.
func (t *Tracker) Workspace(w WindowID) (ID, bool) {
	ws, ok := t.windows[w]
	return ws, ok
}

// Windows returns the tracked window ids in no particular order.
func (t *Tracker) Windows() []WindowID {
	return slices.Collect(maps.Keys(t.windows))
}

// Len returns the number of tracked windows.
func (t *Tracker) Len() int {
	return len(t.windows)
}

// IsActive reports whether ws is focused on some monitor.
func (t *Tracker) IsActive(ws ID) bool {
	_, ok := t.active[ws]
	return ok
}

// State copies the tracker for publication.
func (t *Tracker) State() State {
	active := slices.Sorted(maps.Keys(t.active))
	return State{
		Active:     active,
		Counts:     maps.Clone(t.counts),
		Windows:    len(t.windows),
		HasWindows: t.HasActiveWindows(),
	}
}
