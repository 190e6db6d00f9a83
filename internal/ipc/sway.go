package ipc

import (
	"encoding/json"
	"fmt"
)

// ScratchpadWorkspace is the hidden workspace holding scratchpad windows.
const ScratchpadWorkspace = "__i3_scratch"

// SwayWorkspace is one entry of a GET_WORKSPACES reply.
type SwayWorkspace struct {
	ID      int64  `json:"id"`
	Num     int    `json:"num"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
	Focused bool   `json:"focused"`
	Urgent  bool   `json:"urgent"`
	Output  string `json:"output"`
}

// SwayNode is a container in the GET_TREE reply.
type SwayNode struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	AppID         *string    `json:"app_id"`
	PID           int        `json:"pid"`
	Window        *int64     `json:"window"`
	Nodes         []SwayNode `json:"nodes"`
	FloatingNodes []SwayNode `json:"floating_nodes"`
}

// IsWindow reports whether the node is a leaf holding a client surface.
func (n *SwayNode) IsWindow() bool {
	if n.Type != "con" && n.Type != "floating_con" {
		return false
	}
	if len(n.Nodes) > 0 || len(n.FloatingNodes) > 0 {
		return false
	}
	return n.AppID != nil || n.Window != nil || n.PID > 0
}

// Windows walks the tree and maps every window container id to the name of
// the workspace containing it. Scratchpad windows are left out.
func (n *SwayNode) Windows() map[int64]string {
	out := make(map[int64]string)
	n.collect("", out)
	return out
}

func (n *SwayNode) collect(workspace string, out map[int64]string) {
	if n.Type == "workspace" {
		workspace = n.Name
	}
	if workspace == ScratchpadWorkspace {
		return
	}
	if workspace != "" && n.IsWindow() {
		out[n.ID] = workspace
	}
	for i := range n.Nodes {
		n.Nodes[i].collect(workspace, out)
	}
	for i := range n.FloatingNodes {
		n.FloatingNodes[i].collect(workspace, out)
	}
}

// SwayWindowEvent is the payload of a window event.
type SwayWindowEvent struct {
	Change    string   `json:"change"`
	Container SwayNode `json:"container"`
}

// SwayWorkspaceEvent is the payload of a workspace event.
type SwayWorkspaceEvent struct {
	Change  string         `json:"change"`
	Current *SwayWorkspace `json:"current"`
	Old     *SwayWorkspace `json:"old"`
}

// SwayCommandReply is the reply to SUBSCRIBE and one element of a RUN_COMMAND reply.
type SwayCommandReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DecodeWorkspaces parses a GET_WORKSPACES reply.
func DecodeWorkspaces(payload []byte) ([]SwayWorkspace, error) {
	var ws []SwayWorkspace
	if err := json.Unmarshal(payload, &ws); err != nil {
		return nil, fmt.Errorf("ipc: decode workspaces: %w", err)
	}
	return ws, nil
}

// DecodeTree parses a GET_TREE reply.
func DecodeTree(payload []byte) (*SwayNode, error) {
	var root SwayNode
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("ipc: decode tree: %w", err)
	}
	return &root, nil
}

// SubscribePayload encodes the event names for a SUBSCRIBE request.
func SubscribePayload(events ...string) []byte {
	if events == nil {
		events = []string{}
	}
	b, _ := json.Marshal(events)
	return b
}
