// Package bar supervises the status bar process and owns its visibility bit.
package bar

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/bryanchriswhite/navbar-watcher/internal/config"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// System is the set of OS effects the controller needs
type System interface {
	Alive(pid int) bool
	Find(name string) (int, bool)
	Spawn(name string, args []string) (int, error)
	Signal(pid int, sig syscall.Signal) error
}

// Action is the external effect of one SetDesired call
type Action int

const (
	ActionNone Action = iota
	ActionSpawned
	ActionShown
	ActionHidden
)

func (a Action) String() string {
	switch a {
	case ActionSpawned:
		return "spawned"
	case ActionShown:
		return "shown"
	case ActionHidden:
		return "hidden"
	}
	return "none"
}

// Controller decides whether to spawn, signal or leave the bar alone.
// It is not safe for concurrent use.
type Controller struct {
	name    string
	args    []string
	toggle  syscall.Signal
	sys     System
	visible bool
	pid     int
	log     *zerolog.Logger
}

// NewController creates a controller for the configured bar
func NewController(cfg config.BarConfig, sys System) (*Controller, error) {
	sig, err := config.ParseSignal(cfg.ToggleSignal)
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("bar name must not be empty")
	}
	return &Controller{
		name:   cfg.Name,
		args:   append([]string(nil), cfg.Args...),
		toggle: sig,
		sys:    sys,
		log:    logger.WithComponent("bar"),
	}, nil
}

// Seed adopts an already running bar at startup. visible is what the
// compositor reports for the bar's surface; it is ignored when no bar runs.
func (c *Controller) Seed(visible bool) {
	pid, ok := c.sys.Find(c.name)
	if !ok {
		c.pid, c.visible = 0, false
		c.log.Info().Str("bar", c.name).Msg("Bar not running")
		return
	}
	c.pid, c.visible = pid, visible
	c.log.Info().Str("bar", c.name).Int("pid", pid).Bool("visible", visible).Msg("Adopted running bar")
}

// Visible reports the controller's view of the bar's visibility
func (c *Controller) Visible() bool {
	return c.visible
}

// PID returns the tracked bar pid, 0 when none
func (c *Controller) PID() int {
	return c.pid
}

// revalidate drops a dead pid and rediscovers the bar by name. A bar found
// this way was started by someone else and starts out visible.
func (c *Controller) revalidate() {
	if c.pid != 0 && c.sys.Alive(c.pid) {
		return
	}
	if c.pid != 0 {
		c.log.Warn().Int("pid", c.pid).Msg("Bar process is gone")
		c.pid = 0
	}

	if pid, ok := c.sys.Find(c.name); ok {
		c.log.Info().Int("pid", pid).Msg("Rediscovered bar process")
		c.pid, c.visible = pid, true
		return
	}
	c.visible = false
}

// SetDesired drives the bar toward want with at most one spawn or signal.
// Repeating the same request is a no-op.
func (c *Controller) SetDesired(want bool) (Action, error) {
	c.revalidate()

	switch {
	case want && c.pid == 0:
		pid, err := c.sys.Spawn(c.name, c.args)
		if err != nil {
			c.visible = false
			return ActionNone, err
		}
		c.pid, c.visible = pid, true
		c.log.Info().Int("pid", pid).Strs("args", c.args).Msg("Spawned bar")
		return ActionSpawned, nil

	case c.pid != 0 && want != c.visible:
		if err := c.sys.Signal(c.pid, c.toggle); err != nil {
			if errors.Is(err, unix.ESRCH) {
				c.pid, c.visible = 0, false
			}
			return ActionNone, err
		}
		c.visible = want
		if want {
			c.log.Info().Int("pid", c.pid).Msg("Showing bar")
			return ActionShown, nil
		}
		c.log.Info().Int("pid", c.pid).Msg("Hiding bar")
		return ActionHidden, nil
	}
	return ActionNone, nil
}
