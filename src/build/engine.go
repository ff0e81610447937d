package build

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sofmeright/webfreight/src/entry"
)

// Bundler combines a source file and its imports into one script plus a
// sourcemap. Implementations must be safe for concurrent use.
type Bundler interface {
	Name() string
	Bundle(ctx context.Context, req Request) (*Bundle, error)
}

// Request describes a single bundling job.
type Request struct {
	Entry   entry.Entry
	Outfile string // path the bundle will be written to; sourcemap is Outfile + ".map"
	Minify  bool
	Env     string
	// Namespace is the global the injected values are assigned to.
	Namespace string
	Inject    map[string]any
}

// Bundle is the in-memory output of a Bundler.
type Bundle struct {
	Code      []byte
	SourceMap []byte
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Bundler{}
)

// Register adds a bundler constructor to the global registry.
// Called from init() in each engine package.
func Register(name string, constructor func() Bundler) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("build: duplicate bundler registration: %s", name))
	}
	registry[name] = constructor
}

// Get returns a new instance of the named bundler.
func Get(name string) (Bundler, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("build: unknown bundler: %s", name)
	}
	return ctor(), nil
}

// All returns sorted names of all registered bundlers.
func All() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
