package ipc

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHyprEvent(t *testing.T) {
	ev, ok := ParseHyprEvent("openwindow>>55d1e2a0,1,foot,~ > htop")
	require.True(t, ok)
	assert.Equal(t, "openwindow", ev.Name)
	assert.Equal(t, "55d1e2a0,1,foot,~ > htop", ev.Data)

	ev, ok = ParseHyprEvent("workspace>>2\r")
	require.True(t, ok)
	assert.Equal(t, "2", ev.Data)

	_, ok = ParseHyprEvent("garbage without separator")
	assert.False(t, ok)

	_, ok = ParseHyprEvent(">>orphan")
	assert.False(t, ok)
}

func TestLineBufferRetainsPartialLines(t *testing.T) {
	var b LineBuffer

	assert.Empty(t, b.Feed([]byte("openwindow>>abc,1,foo")))
	assert.Equal(t, 21, b.Pending())

	lines := b.Feed([]byte(",bar\nclosewindow>>a"))
	assert.Equal(t, []string{"openwindow>>abc,1,foo,bar"}, lines)

	lines = b.Feed([]byte("bc\n\nworkspace>>2\n"))
	assert.Equal(t, []string{"closewindow>>abc", "", "workspace>>2"}, lines)
	assert.Zero(t, b.Pending())
}

func TestLineBufferSplitEquivalence(t *testing.T) {
	stream := "openwindow>>a1,1,foot,t\nmovewindow>>a1,2\nclosewindow>>a1\nfocusedmon>>DP-1,3\n"

	var whole LineBuffer
	want := whole.Feed([]byte(stream))

	for split := 0; split <= len(stream); split++ {
		var b LineBuffer
		got := append(b.Feed([]byte(stream[:split])), b.Feed([]byte(stream[split:]))...)
		assert.Equal(t, want, got, "split at %d", split)
	}
}

func TestClassifyHyprEvent(t *testing.T) {
	testCases := []struct {
		name string
		line string
		want Delta
	}{
		{"open", "openwindow>>55d1e2a0,1,foot,title, with commas", Delta{Kind: DeltaOpen, Window: "55d1e2a0", Workspace: "1"}},
		{"open short payload", "openwindow>>55d1e2a0", Delta{}},
		{"close", "closewindow>>55D1E2A0", Delta{Kind: DeltaClose, Window: "55d1e2a0"}},
		{"close empty", "closewindow>>", Delta{}},
		{"move", "movewindow>>55d1e2a0,special:scratch", Delta{Kind: DeltaMove, Window: "55d1e2a0", Workspace: "special:scratch"}},
		{"move v2", "movewindowv2>>55d1e2a0,4,web", Delta{Kind: DeltaMove, Window: "55d1e2a0", Workspace: "web"}},
		{"move v2 short", "movewindowv2>>55d1e2a0,4", Delta{}},
		{"workspace", "workspace>>3", Delta{Kind: DeltaResync}},
		{"focused monitor", "focusedmon>>HDMI-A-1,3", Delta{Kind: DeltaResync}},
		{"moved workspace", "moveworkspacev2>>3,3,DP-2", Delta{Kind: DeltaResync}},
		{"renamed workspace", "renameworkspace>>1,web", Delta{Kind: DeltaResync}},
		{"active window ignored", "activewindow>>foot,htop", Delta{}},
		{"layer ignored", "openlayer>>waybar", Delta{}},
		{"future event ignored", "somethingnew>>1,2,3", Delta{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := ParseHyprEvent(tc.line)
			require.True(t, ok)
			assert.Equal(t, tc.want, ClassifyHyprEvent(ev))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "55d1e2a0", NormalizeAddress("0x55d1e2a0"))
	assert.Equal(t, "55d1e2a0", NormalizeAddress(" 0X55D1E2A0 "))
	assert.Equal(t, "55d1e2a0", NormalizeAddress("55d1e2a0"))
}

func TestDecodeHyprSnapshot(t *testing.T) {
	mons, err := DecodeHyprMonitors([]byte(`[
	  {"id": 0, "name": "DP-1", "focused": true, "activeWorkspace": {"id": 1, "name": "1"}, "specialWorkspace": {"id": 0, "name": ""}},
	  {"id": 1, "name": "HDMI-A-1", "focused": false, "activeWorkspace": {"id": 5, "name": "5"}, "extra": [1, 2]}
	]`))
	require.NoError(t, err)
	require.Len(t, mons, 2)
	assert.Equal(t, "5", mons[1].ActiveWorkspace.Name)

	clients, err := DecodeHyprClients([]byte(`[
	  {"address": "0x55d1e2a0", "mapped": true, "workspace": {"id": 1, "name": "1"}, "class": "foot"}
	]`))
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "0x55d1e2a0", clients[0].Address)

	_, err = DecodeHyprClients([]byte(`ok`))
	assert.Error(t, err)
}

func TestHyprLayersNamespaces(t *testing.T) {
	layers, err := DecodeHyprLayers([]byte(`{
	  "DP-1": {"levels": {
	    "0": [{"address": "0x1", "namespace": "hyprpaper"}],
	    "2": [{"address": "0x2", "namespace": "waybar"}],
	    "3": []
	  }},
	  "HDMI-A-1": {"levels": {"3": [{"address": "0x3", "namespace": "swaync-control-center"}]}}
	}`))
	require.NoError(t, err)

	got := layers.Namespaces()
	sort.Strings(got)
	assert.Equal(t, "hyprpaper,swaync-control-center,waybar", strings.Join(got, ","))
}
