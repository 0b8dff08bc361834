package scanner

import (
	"errors"
	"fmt"
	"sync"

	"github.com/forgescan/api/pkg/domain/scan"
)

// ErrNoSuitableScanner is returned when no registered plugin accepts a
// scan type and target combination.
var ErrNoSuitableScanner = errors.New("no suitable scanner for target")

// Registry maps scan types to plugins. It is populated at startup and
// injected into the services that dispatch scans; nothing resolves plugins
// through globals.
type Registry struct {
	mu      sync.RWMutex
	plugins map[scan.Type]Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[scan.Type]Plugin)}
}

// Register binds a plugin to a scan type. Registering the same type twice
// is a wiring bug and fails loudly.
func (r *Registry) Register(scanType scan.Type, p Plugin) error {
	if !scanType.IsValid() {
		return fmt.Errorf("invalid scan type %q", scanType)
	}
	if p == nil {
		return fmt.Errorf("nil plugin for scan type %q", scanType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[scanType]; exists {
		return fmt.Errorf("scan type %q already registered", scanType)
	}
	r.plugins[scanType] = p
	return nil
}

// Resolve returns the plugin for a scan type after validating the target.
func (r *Registry) Resolve(scanType scan.Type, target string) (Plugin, error) {
	r.mu.RLock()
	p, ok := r.plugins[scanType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scan type %q", ErrNoSuitableScanner, scanType)
	}
	if !p.ValidateTarget(target) {
		return nil, fmt.Errorf("%w: %s rejects target %q", ErrNoSuitableScanner, p.Name(), target)
	}
	return p, nil
}

// Names returns the registered scanner names keyed by scan type.
func (r *Registry) Names() map[scan.Type]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[scan.Type]string, len(r.plugins))
	for t, p := range r.plugins {
		out[t] = p.Name()
	}
	return out
}
