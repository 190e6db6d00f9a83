package ipc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// HyprEvent is one `name>>data` record from Hyprland's event socket.
type HyprEvent struct {
	Name string
	Data string
}

// ParseHyprEvent splits a single line (without its newline).
func ParseHyprEvent(line string) (HyprEvent, bool) {
	line = strings.TrimRight(line, "\r")
	name, data, ok := strings.Cut(line, ">>")
	if !ok || name == "" {
		return HyprEvent{}, false
	}
	return HyprEvent{Name: name, Data: data}, true
}

// LineBuffer reassembles newline-terminated records from arbitrary chunks.
// Bytes after the last newline are kept for the next Feed.
type LineBuffer struct {
	pending []byte
}

// Feed appends p and returns every line completed by it.
func (b *LineBuffer) Feed(p []byte) []string {
	b.pending = append(b.pending, p...)

	var lines []string
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(b.pending[:i]))
		b.pending = b.pending[i+1:]
	}
	if len(b.pending) == 0 {
		b.pending = nil
	}
	return lines
}

// Pending returns the number of buffered bytes not yet terminated by a newline.
func (b *LineBuffer) Pending() int {
	return len(b.pending)
}

// DeltaKind classifies what an event does to tracked workspace state.
type DeltaKind int

const (
	DeltaNone DeltaKind = iota
	DeltaOpen
	DeltaClose
	DeltaMove
	DeltaResync
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaOpen:
		return "open"
	case DeltaClose:
		return "close"
	case DeltaMove:
		return "move"
	case DeltaResync:
		return "resync"
	}
	return "none"
}

// Delta is the tracker mutation implied by one event.
type Delta struct {
	Kind      DeltaKind
	Window    string
	Workspace string
}

// NormalizeAddress strips the 0x prefix hyprctl puts on window addresses so
// snapshot and event ids compare equal.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	return strings.TrimPrefix(addr, "0x")
}

// ClassifyHyprEvent maps an event to a Delta. Unknown events and events with
// short or malformed payloads yield DeltaNone.
func ClassifyHyprEvent(ev HyprEvent) Delta {
	switch ev.Name {
	case "openwindow":
		// ADDRESS,WORKSPACENAME,CLASS,TITLE
		parts := strings.SplitN(ev.Data, ",", 4)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return Delta{}
		}
		return Delta{Kind: DeltaOpen, Window: NormalizeAddress(parts[0]), Workspace: parts[1]}

	case "closewindow":
		addr := NormalizeAddress(ev.Data)
		if addr == "" {
			return Delta{}
		}
		return Delta{Kind: DeltaClose, Window: addr}

	case "movewindow":
		// ADDRESS,WORKSPACENAME
		addr, ws, ok := strings.Cut(ev.Data, ",")
		if !ok || addr == "" || ws == "" {
			return Delta{}
		}
		return Delta{Kind: DeltaMove, Window: NormalizeAddress(addr), Workspace: ws}

	case "movewindowv2":
		// ADDRESS,WORKSPACEID,WORKSPACENAME
		parts := strings.SplitN(ev.Data, ",", 3)
		if len(parts) < 3 || parts[0] == "" || parts[2] == "" {
			return Delta{}
		}
		return Delta{Kind: DeltaMove, Window: NormalizeAddress(parts[0]), Workspace: parts[2]}

	case "workspace", "workspacev2",
		"focusedmon", "focusedmonv2",
		"moveworkspace", "moveworkspacev2",
		"destroyworkspace", "destroyworkspacev2",
		"activespecial", "activespecialv2",
		"renameworkspace",
		"monitorremoved", "monitoradded", "monitoraddedv2":
		return Delta{Kind: DeltaResync}
	}
	return Delta{}
}

// HyprWorkspaceRef is the {id,name} pair embedded in monitor and client objects.
type HyprWorkspaceRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// HyprMonitor is one element of `hyprctl -j monitors`.
type HyprMonitor struct {
	ID               int              `json:"id"`
	Name             string           `json:"name"`
	Focused          bool             `json:"focused"`
	ActiveWorkspace  HyprWorkspaceRef `json:"activeWorkspace"`
	SpecialWorkspace HyprWorkspaceRef `json:"specialWorkspace"`
	Disabled         bool             `json:"disabled"`
}

// HyprClient is one element of `hyprctl -j clients`.
type HyprClient struct {
	Address   string           `json:"address"`
	Mapped    bool             `json:"mapped"`
	Hidden    bool             `json:"hidden"`
	Workspace HyprWorkspaceRef `json:"workspace"`
	Class     string           `json:"class"`
	Title     string           `json:"title"`
	PID       int              `json:"pid"`
}

// HyprLayer is one layer surface of `hyprctl -j layers`.
type HyprLayer struct {
	Address   string `json:"address"`
	Namespace string `json:"namespace"`
	PID       int    `json:"pid"`
}

// HyprLayers maps monitor name to its layer surfaces grouped by level.
type HyprLayers map[string]struct {
	Levels map[string][]HyprLayer `json:"levels"`
}

// Namespaces returns every layer namespace on every monitor.
func (l HyprLayers) Namespaces() []string {
	var out []string
	for _, mon := range l {
		for _, level := range mon.Levels {
			for _, layer := range level {
				out = append(out, layer.Namespace)
			}
		}
	}
	return out
}

// DecodeHyprMonitors parses `hyprctl -j monitors`.
func DecodeHyprMonitors(data []byte) ([]HyprMonitor, error) {
	var mons []HyprMonitor
	if err := json.Unmarshal(data, &mons); err != nil {
		return nil, fmt.Errorf("ipc: decode monitors: %w", err)
	}
	return mons, nil
}

// DecodeHyprClients parses `hyprctl -j clients`.
func DecodeHyprClients(data []byte) ([]HyprClient, error) {
	var clients []HyprClient
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, fmt.Errorf("ipc: decode clients: %w", err)
	}
	return clients, nil
}

// DecodeHyprLayers parses `hyprctl -j layers`.
func DecodeHyprLayers(data []byte) (HyprLayers, error) {
	var layers HyprLayers
	if err := json.Unmarshal(data, &layers); err != nil {
		return nil, fmt.Errorf("ipc: decode layers: %w", err)
	}
	return layers, nil
}
