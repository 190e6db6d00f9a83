package overlay

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/navbar-watcher/internal/config"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// DBusProbe calls a session bus method returning the overlay's visibility,
// such as swaync's org.erikreider.swaync.cc.GetVisibility.
type DBusProbe struct {
	cfg     config.DBusProbeConfig
	connect func() (*dbus.Conn, error)
	conn    *dbus.Conn
	call    func(ctx context.Context) (bool, error)
	failing bool
	log     *zerolog.Logger
}

// NewDBusProbe creates a probe that connects to the session bus on first use
func NewDBusProbe(cfg config.DBusProbeConfig) *DBusProbe {
	p := &DBusProbe{
		cfg:     cfg,
		connect: func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() },
		log:     logger.WithComponent("overlay"),
	}
	p.call = p.callBus
	return p
}

// Name returns the bus name being queried
func (p *DBusProbe) Name() string {
	return p.cfg.Service
}

func (p *DBusProbe) method() string {
	if p.cfg.Interface == "" {
		return p.cfg.Method
	}
	return p.cfg.Interface + "." + p.cfg.Method
}

func (p *DBusProbe) callBus(ctx context.Context) (bool, error) {
	if p.conn == nil {
		conn, err := p.connect()
		if err != nil {
			return false, fmt.Errorf("failed to connect to session bus: %w", err)
		}
		p.conn = conn
	}

	var visible bool
	obj := p.conn.Object(p.cfg.Service, dbus.ObjectPath(p.cfg.Path))
	if err := obj.CallWithContext(ctx, p.method(), 0).Store(&visible); err != nil {
		return false, fmt.Errorf("%s: %w", p.method(), err)
	}
	return visible, nil
}

// Open reports the visibility returned by the bus method. A missing service
// counts as closed and is logged once until it answers again.
func (p *DBusProbe) Open(ctx context.Context) bool {
	visible, err := p.call(ctx)
	if err != nil {
		if !p.failing {
			p.log.Warn().Err(err).Str("service", p.cfg.Service).Msg("D-Bus overlay probe failed")
		}
		p.failing = true
		return false
	}
	if p.failing {
		p.log.Info().Str("service", p.cfg.Service).Msg("D-Bus overlay probe recovered")
	}
	p.failing = false
	return visible
}

// Close releases the bus connection
func (p *DBusProbe) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
