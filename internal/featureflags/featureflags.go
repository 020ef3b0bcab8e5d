// Package featureflags is a small in-process registry of named
// boolean toggles. It has no teacher analogue; it follows the pack's
// map-backed registry idiom (a mutex-guarded map keyed by name, as in
// query.Limiter's per-collection buckets) rather than anything
// config-file driven, since flags here are runtime-togglable state,
// not startup configuration.
package featureflags

import "sync"

// Flag describes one toggle: its name, current state, and a short
// human-readable description.
type Flag struct {
	Name        string
	Enabled     bool
	Description string
}

// Registry holds a set of named flags. The zero value is not usable;
// construct one with NewRegistry or use the package-level Default.
type Registry struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{flags: make(map[string]*Flag)}
}

// NewDefaultRegistry builds a registry seeded with nexuslite's default
// flags: "crypto" is enabled (it guards field hashing and file
// signing; Set can still turn it off, and the CLI then refuses the
// crypto subcommands), and "open-metrics" is disabled by
// default. "crypto-pqc" deliberately does not appear here: the
// post-quantum primitives are unconditional stubs, not something a
// flag can turn on.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("crypto", true, "Argon2id field hashing and ECDSA-P256 file signing")
	r.Register("open-metrics", false, "expose process counters via an open-metrics endpoint")
	return r
}

// Register adds or replaces a flag.
func (r *Registry) Register(name string, enabled bool, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[name] = &Flag{Name: name, Enabled: enabled, Description: description}
}

// Get returns the named flag and whether it exists.
func (r *Registry) Get(name string) (Flag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flags[name]
	if !ok {
		return Flag{}, false
	}
	return *f, true
}

// IsEnabled reports whether the named flag exists and is enabled.
// An unknown flag is treated as disabled.
func (r *Registry) IsEnabled(name string) bool {
	f, ok := r.Get(name)
	return ok && f.Enabled
}

// Set toggles an existing flag and reports whether it was found.
func (r *Registry) Set(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[name]
	if !ok {
		return false
	}
	f.Enabled = enabled
	return true
}

// List returns a snapshot of every registered flag, in no particular
// order.
func (r *Registry) List() []Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Flag, 0, len(r.flags))
	for _, f := range r.flags {
		out = append(out, *f)
	}
	return out
}

// Default is the process-wide flag set used by cmd/nexuslite.
var Default = NewDefaultRegistry()
