package ipc

import (
	"encoding/json"
	"fmt"
)

// NiriWindow is a toplevel as reported by `niri msg --json windows` and events.
type NiriWindow struct {
	ID          uint64  `json:"id"`
	Title       *string `json:"title"`
	AppID       *string `json:"app_id"`
	PID         *int    `json:"pid"`
	WorkspaceID *uint64 `json:"workspace_id"`
	IsFocused   bool    `json:"is_focused"`
	IsFloating  bool    `json:"is_floating"`
}

// NiriWorkspace is one element of `niri msg --json workspaces`.
type NiriWorkspace struct {
	ID             uint64  `json:"id"`
	Idx            uint8   `json:"idx"`
	Name           *string `json:"name"`
	Output         *string `json:"output"`
	IsUrgent       bool    `json:"is_urgent"`
	IsActive       bool    `json:"is_active"`
	IsFocused      bool    `json:"is_focused"`
	ActiveWindowID *uint64 `json:"active_window_id"`
}

// NiriLayer is one element of `niri msg --json layers`.
type NiriLayer struct {
	Namespace string `json:"namespace"`
	Output    string `json:"output"`
	Layer     string `json:"layer"`
}

// NiriEvent is one line of `niri msg --json event-stream`. Exactly one field is
// set for events this package understands; all others decode to an empty value.
type NiriEvent struct {
	WorkspacesChanged *struct {
		Workspaces []NiriWorkspace `json:"workspaces"`
	} `json:"WorkspacesChanged,omitempty"`
	WorkspaceActivated *struct {
		ID      uint64 `json:"id"`
		Focused bool   `json:"focused"`
	} `json:"WorkspaceActivated,omitempty"`
	WindowsChanged *struct {
		Windows []NiriWindow `json:"windows"`
	} `json:"WindowsChanged,omitempty"`
	WindowOpenedOrChanged *struct {
		Window NiriWindow `json:"window"`
	} `json:"WindowOpenedOrChanged,omitempty"`
	WindowClosed *struct {
		ID uint64 `json:"id"`
	} `json:"WindowClosed,omitempty"`
}

// DecodeNiriEvent parses one event line.
func DecodeNiriEvent(line []byte) (NiriEvent, error) {
	var ev NiriEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return NiriEvent{}, fmt.Errorf("ipc: decode niri event: %w", err)
	}
	return ev, nil
}

// DecodeNiriWorkspaces parses `niri msg --json workspaces`.
func DecodeNiriWorkspaces(data []byte) ([]NiriWorkspace, error) {
	var ws []NiriWorkspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("ipc: decode niri workspaces: %w", err)
	}
	return ws, nil
}

// DecodeNiriWindows parses `niri msg --json windows`.
func DecodeNiriWindows(data []byte) ([]NiriWindow, error) {
	var wins []NiriWindow
	if err := json.Unmarshal(data, &wins); err != nil {
		return nil, fmt.Errorf("ipc: decode niri windows: %w", err)
	}
	return wins, nil
}

// DecodeNiriLayers parses `niri msg --json layers`.
func DecodeNiriLayers(data []byte) ([]NiriLayer, error) {
	var layers []NiriLayer
	if err := json.Unmarshal(data, &layers); err != nil {
		return nil, fmt.Errorf("ipc: decode niri layers: %w", err)
	}
	return layers, nil
}
