package window

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrUnsupportedCompositor is returned when no environment marker matches.
var ErrUnsupportedCompositor = errors.New("unsupported or undetectable compositor")

// Family names a compositor family with its own backend.
type Family string

const (
	FamilyHyprland Family = "hyprland"
	FamilySway     Family = "sway"
	FamilyNiri     Family = "niri"
	FamilyX11      Family = "x11"
)

// Getenv looks up an environment variable. os.Getenv satisfies it.
type Getenv func(string) string

type detectRule struct {
	family Family
	match  func(Getenv) bool
}

func hasVar(names ...string) func(Getenv) bool {
	return func(getenv Getenv) bool {
		for _, n := range names {
			if getenv(n) != "" {
				return true
			}
		}
		return false
	}
}

func desktopIs(name string) func(Getenv) bool {
	return func(getenv Getenv) bool {
		for _, v := range []string{getenv("XDG_CURRENT_DESKTOP"), getenv("XDG_SESSION_DESKTOP")} {
			for _, part := range strings.Split(v, ":") {
				if strings.EqualFold(strings.TrimSpace(part), name) {
					return true
				}
			}
		}
		return false
	}
}

// detectionOrder is checked top to bottom; the first match wins. Socket
// markers come before desktop names because they are what the backends need.
var detectionOrder = []detectRule{
	{FamilyHyprland, hasVar("HYPRLAND_INSTANCE_SIGNATURE")},
	{FamilySway, hasVar("SWAYSOCK", "I3SOCK")},
	{FamilyNiri, hasVar("NIRI_SOCKET")},
	{FamilyHyprland, desktopIs("Hyprland")},
	{FamilySway, desktopIs("sway")},
	{FamilyNiri, desktopIs("niri")},
	{FamilyX11, func(getenv Getenv) bool {
		return getenv("DISPLAY") != "" && getenv("WAYLAND_DISPLAY") == ""
	}},
}

// Detect picks the compositor family from environment markers.
func Detect(getenv Getenv) (Family, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, rule := range detectionOrder {
		if rule.match(getenv) {
			return rule.family, nil
		}
	}
	return "", ErrUnsupportedCompositor
}

// ParseFamily maps a configured compositor name to a family. "auto" and ""
// defer to Detect.
func ParseFamily(name string, getenv Getenv) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return Detect(getenv)
	case string(FamilyHyprland):
		return FamilyHyprland, nil
	case string(FamilySway), "i3":
		return FamilySway, nil
	case string(FamilyNiri):
		return FamilyNiri, nil
	case string(FamilyX11):
		return FamilyX11, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCompositor, name)
}

// Options configures backend construction.
type Options struct {
	Getenv       Getenv
	Runner       Runner
	QueryTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.Runner == nil {
		o.Runner = ExecRunner{Timeout: o.QueryTimeout}
	}
	return o
}

// New constructs the backend for a family. The backend starts with an empty
// tracker; call Sync before reading state.
func New(family Family, opts Options) (Backend, error) {
	opts = opts.withDefaults()

	var (
		b   Backend
		err error
	)
	switch family {
	case FamilyHyprland:
		b, err = asBackend(NewHyprlandBackend(opts))
	case FamilySway:
		b, err = asBackend(NewSwayBackend(opts))
	case FamilyNiri:
		b, err = asBackend(NewNiriBackend(opts))
	case FamilyX11:
		b, err = asBackend(NewX11Backend(opts))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCompositor, family)
	}
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", family, err)
	}
	return b, nil
}

// asBackend keeps a failed constructor's nil pointer out of the interface.
func asBackend[T Backend](b T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}
