package counter

import (
	"fmt"
	"sort"
	"sync"

	"power-hmc-agent/internal/sample"
)

// DeriveFunc computes one counter from one raw sample. ok is false when the
// value is undefined for that sample.
type DeriveFunc func(s sample.Value) (value float64, ok bool)

// Registry maps counter names to derivation functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]DeriveFunc
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]DeriveFunc)}
}

// DefaultRegistry returns a registry holding the built-in host counters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(CPUUsageRateAverage, cpuUsageRateAverage)
	r.MustRegister(DiskUsageRateAverage, diskUsageRateAverage)
	r.MustRegister(MemUsageAbsoluteAverage, memUsageAbsoluteAverage)
	r.MustRegister(NetUsageRateAverage, netUsageRateAverage)
	return r
}

func (r *Registry) Register(name string, fn DeriveFunc) error {
	if name == "" {
		return fmt.Errorf("counter name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("counter %q: nil derive func", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("counter %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

func (r *Registry) MustRegister(name string, fn DeriveFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the derivation for name; ok is false on a dispatch miss.
func (r *Registry) Lookup(name string) (DeriveFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type boundCounter struct {
	name string
	fn   DeriveFunc
}

// resolve binds requested names to functions once per Process call. Unknown and
// duplicate names are dropped.
func (r *Registry) resolve(names []string) (bound []boundCounter, misses []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		fn, ok := r.funcs[name]
		if !ok {
			misses = append(misses, name)
			continue
		}
		bound = append(bound, boundCounter{name: name, fn: fn})
	}
	return bound, misses
}
