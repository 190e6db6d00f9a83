package window

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeRunner answers queries from a table keyed by the full command line
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: make(map[string]string)}
}

func (f *fakeRunner) set(cmdline, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[cmdline] = out
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	out, ok := f.outputs[key]
	if !ok {
		return nil, fmt.Errorf("%s: not found", name)
	}
	return []byte(out), nil
}

func (f *fakeRunner) count(cmdline string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == cmdline {
			n++
		}
	}
	return n
}

func envMap(m map[string]string) Getenv {
	return func(k string) string { return m[k] }
}
