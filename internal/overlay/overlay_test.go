package overlay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/config"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type switchProbe struct {
	name  string
	open  atomic.Bool
	calls atomic.Int32
}

func (p *switchProbe) Name() string { return p.name }

func (p *switchProbe) Open(ctx context.Context) bool {
	p.calls.Add(1)
	return p.open.Load()
}

type layerSet map[string]bool

func (l layerSet) IsOverlayActive(ctx context.Context, name string) bool {
	return l[name]
}

func TestLayerProbe(t *testing.T) {
	layers := layerSet{"swaync-control-center": true}
	ctx := context.Background()

	p := NewLayerProbe(layers, "swaync-control-center")
	assert.Equal(t, "swaync-control-center", p.Name())
	assert.True(t, p.Open(ctx))

	assert.False(t, NewLayerProbe(layers, "rofi").Open(ctx))
}

func TestCheckShortCircuits(t *testing.T) {
	a := &switchProbe{name: "a"}
	b := &switchProbe{name: "b"}
	c := &switchProbe{name: "c"}
	b.open.Store(true)
	w := NewWatcher(time.Second, a, b, c)

	open, name := w.Check(context.Background())
	assert.True(t, open)
	assert.Equal(t, "b", name)
	assert.Zero(t, c.calls.Load())
}

func TestWatcherPublishesTransitions(t *testing.T) {
	p := &switchProbe{name: "swaync"}
	w := NewWatcher(5*time.Millisecond, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	p.open.Store(true)
	select {
	case open := <-w.Updates():
		assert.True(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("no update after overlay opened")
	}

	p.open.Store(false)
	select {
	case open := <-w.Updates():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("no update after overlay closed")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherKeepsLatest(t *testing.T) {
	w := NewWatcher(time.Second)
	w.publish(true)
	w.publish(false)
	w.publish(true)

	assert.True(t, <-w.Updates())
	select {
	case v := <-w.Updates():
		t.Fatalf("stale value %t left in channel", v)
	default:
	}
}

func TestWatcherWithoutProbesReturns(t *testing.T) {
	w := NewWatcher(time.Millisecond)
	assert.NoError(t, w.Run(context.Background()))
}

func testDBusConfig() config.DBusProbeConfig {
	return config.DBusProbeConfig{
		Enabled:   true,
		Service:   "org.erikreider.swaync.cc",
		Path:      "/org/erikreider/swaync/cc",
		Interface: "org.erikreider.swaync.cc",
		Method:    "GetVisibility",
	}
}

func TestDBusProbeMethod(t *testing.T) {
	p := NewDBusProbe(testDBusConfig())
	assert.Equal(t, "org.erikreider.swaync.cc.GetVisibility", p.method())
	assert.Equal(t, "org.erikreider.swaync.cc", p.Name())

	cfg := testDBusConfig()
	cfg.Interface = ""
	cfg.Method = "org.example.Panel.Visible"
	assert.Equal(t, "org.example.Panel.Visible", NewDBusProbe(cfg).method())
}

func TestDBusProbeOpen(t *testing.T) {
	p := NewDBusProbe(testDBusConfig())
	visible, err := true, error(nil)
	p.call = func(ctx context.Context) (bool, error) { return visible, err }
	ctx := context.Background()

	assert.True(t, p.Open(ctx))

	err = errors.New("org.freedesktop.DBus.Error.ServiceUnknown")
	assert.False(t, p.Open(ctx))
	assert.True(t, p.failing)
	assert.False(t, p.Open(ctx))

	err = nil
	visible = false
	assert.False(t, p.Open(ctx))
	assert.False(t, p.failing)
}

func TestDBusProbeConnectFailure(t *testing.T) {
	p := NewDBusProbe(testDBusConfig())
	p.connect = func() (*dbus.Conn, error) { return nil, errors.New("no session bus") }

	assert.False(t, p.Open(context.Background()))
	assert.Nil(t, p.conn)
	assert.NoError(t, p.Close())
}

func TestDBusProbeDefaultConnectorUsesSessionBus(t *testing.T) {
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path="+t.TempDir()+"/bus")
	p := NewDBusProbe(testDBusConfig())

	conn, err := p.connect()
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.False(t, p.Open(context.Background()))
	assert.True(t, p.failing)
}

func TestWatcherPrime(t *testing.T) {
	p := &switchProbe{name: "swaync"}
	p.open.Store(true)
	w := NewWatcher(5*time.Millisecond, p)

	assert.True(t, w.Prime(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())

	// The primed state is not republished by the first poll
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	select {
	case open := <-w.Updates():
		t.Fatalf("unexpected update %v", open)
	default:
	}
}
