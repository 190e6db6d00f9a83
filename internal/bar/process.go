package bar

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// commLen is the longest name the kernel keeps in /proc/<pid>/comm
const commLen = 15

// OS implements System against the running kernel
type OS struct {
	procPath string
	log      *zerolog.Logger
}

// NewOS returns a System that reads /proc
func NewOS() *OS {
	return &OS{
		procPath: "/proc",
		log:      logger.WithComponent("bar"),
	}
}

// Alive probes pid with signal 0. EPERM still means the process exists.
// Zombies count as dead.
func (o *OS) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	state, ok := o.procState(pid)
	return !ok || state != 'Z'
}

// procState returns the state letter from /proc/<pid>/stat
func (o *OS) procState(pid int) (byte, bool) {
	data, err := os.ReadFile(filepath.Join(o.procPath, strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, false
	}
	// The command name is parenthesised and may contain spaces
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return 0, false
	}
	return data[i+2], true
}

// Find scans the process table for a live process whose comm equals name.
// The lowest matching pid wins.
func (o *OS) Find(name string) (int, bool) {
	if len(name) > commLen {
		name = name[:commLen]
	}

	entries, err := os.ReadDir(o.procPath)
	if err != nil {
		o.log.Warn().Err(err).Str("path", o.procPath).Msg("Failed to scan process table")
		return 0, false
	}

	self := os.Getpid()
	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(o.procPath, e.Name(), "comm"))
		if err != nil {
			continue
		}
		if string(bytes.TrimSpace(comm)) != name {
			continue
		}
		if state, ok := o.procState(pid); ok && state == 'Z' {
			continue
		}
		pids = append(pids, pid)
	}
	if len(pids) == 0 {
		return 0, false
	}
	sort.Ints(pids)
	return pids[0], true
}

// Spawn starts name in its own process group and reaps it when it exits
func (o *OS) Spawn(name string, args []string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", name, err)
	}

	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		o.log.Debug().Int("pid", pid).Err(err).Msg("Bar process exited")
	}()
	return pid, nil
}

// Signal delivers sig to pid
func (o *OS) Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal %s to pid %d: %w", unix.SignalName(sig), pid, err)
	}
	return nil
}
