package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNiriEvent(t *testing.T) {
	ev, err := DecodeNiriEvent([]byte(`{"WindowOpenedOrChanged":{"window":{"id":12,"title":"htop","app_id":"foot","pid":400,"workspace_id":3,"is_focused":true,"is_floating":false}}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.WindowOpenedOrChanged)
	require.NotNil(t, ev.WindowOpenedOrChanged.Window.WorkspaceID)
	assert.Equal(t, uint64(12), ev.WindowOpenedOrChanged.Window.ID)
	assert.Equal(t, uint64(3), *ev.WindowOpenedOrChanged.Window.WorkspaceID)
	assert.Nil(t, ev.WindowClosed)

	ev, err = DecodeNiriEvent([]byte(`{"WindowClosed":{"id":12}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.WindowClosed)
	assert.Equal(t, uint64(12), ev.WindowClosed.ID)

	ev, err = DecodeNiriEvent([]byte(`{"KeyboardLayoutSwitched":{"idx":1}}`))
	require.NoError(t, err)
	assert.Equal(t, NiriEvent{}, ev)

	_, err = DecodeNiriEvent([]byte(`{"WindowClosed":`))
	assert.Error(t, err)
}

func TestDecodeNiriWorkspaces(t *testing.T) {
	ws, err := DecodeNiriWorkspaces([]byte(`[
	  {"id":1,"idx":1,"name":null,"output":"DP-1","is_active":true,"is_focused":true,"active_window_id":12},
	  {"id":2,"idx":2,"name":"chat","output":"DP-1","is_active":false,"is_focused":false,"active_window_id":null}
	]`))
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.True(t, ws[0].IsActive)
	assert.Nil(t, ws[0].Name)
	require.NotNil(t, ws[1].Name)
	assert.Equal(t, "chat", *ws[1].Name)
}
