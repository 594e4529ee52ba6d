// Package scanner implements the scanner registry (C3) and the built-in
// scanner plugins. The registry is a static, build-time map from scanner
// name to constructor: per the REDESIGN FLAG, names are registry keys
// verbatim with no camel-to-snake translation, and dynamic dispatch is
// replaced with explicit registration.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/pithecene-io/triage/cli/config"
	"github.com/pithecene-io/triage/coordinator"
	"github.com/pithecene-io/triage/types"
)

// Scanner is the plugin contract every scanner implements. ScanWrapper
// receives the file's bytes, its descriptor, its per-assignment options,
// and the request's absolute deadline; it returns any child files it
// extracted (already pushed to the coordinator) and a scanner-name-keyed
// summary to merge into the request's scan output.
type Scanner interface {
	ScanWrapper(ctx context.Context, data []byte, file *types.File, options map[string]any, expireAt time.Time) ([]*types.File, map[string]any, error)
}

// optionsValidator is implemented by scanners that can check their
// per-rule options ahead of time. Registry.ValidateConfigured uses it to
// catch a malformed option at bootstrap instead of on the first file
// that happens to trigger that rule.
type optionsValidator interface {
	ValidateOptions(options map[string]any) error
}

// Constructor builds a Scanner instance given the full backend config and
// a coordinator client to push extracted child bytes through.
type Constructor func(cfg *config.Config, coord *coordinator.Client) (Scanner, error)

// builtins is the static name-to-constructor table. Adding a scanner means
// adding an entry here; there is no runtime module lookup.
var builtins = map[string]Constructor{
	"ScanZip":    newScanZip,
	"ScanGzip":   newScanGzip,
	"ScanLz4":    newScanLz4,
	"ScanBrotli": newScanBrotli,
}

// Registry lazily instantiates and caches scanner plugins for the lifetime
// of one worker process.
type Registry struct {
	cfg   *config.Config
	coord *coordinator.Client
	ctors map[string]Constructor

	mu        sync.Mutex
	instances map[string]Scanner
}

// NewRegistry builds a registry over the built-in scanner table.
func NewRegistry(cfg *config.Config, coord *coordinator.Client) *Registry {
	return &Registry{
		cfg:       cfg,
		coord:     coord,
		ctors:     builtins,
		instances: make(map[string]Scanner),
	}
}

// Get resolves name to a live plugin instance, constructing and caching it
// on first use. Returns an error if name has no registered constructor;
// callers treat that as MissingScanner (§7): log, skip, continue.
func (r *Registry) Get(name string) (Scanner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.instances[name]; ok {
		return s, nil
	}

	ctor, ok := r.ctors[name]
	if !ok {
		return nil, fmt.Errorf("scanner %q not found in registry", name)
	}

	s, err := ctor(r.cfg, r.coord)
	if err != nil {
		return nil, fmt.Errorf("scanner %q: construct: %w", name, err)
	}

	r.instances[name] = s
	return s, nil
}

// ValidateConfigured eagerly constructs every scanner named in mappings
// and validates each of its configured rules' options, so malformed
// per-scanner options fail fast at bootstrap rather than per-file.
func (r *Registry) ValidateConfigured(mappings map[string]types.ScannerMapping) error {
	var faults error
	for name, mapping := range mappings {
		plugin, err := r.Get(name)
		if err != nil {
			faults = multierr.Append(faults, fmt.Errorf("scanner %q: %w", name, err))
			continue
		}

		validator, ok := plugin.(optionsValidator)
		if !ok {
			continue
		}
		for i, rule := range mapping.Rules {
			if err := validator.ValidateOptions(rule.Options); err != nil {
				faults = multierr.Append(faults, fmt.Errorf("scanner %q rule %d: %w", name, i, err))
			}
		}
	}
	return faults
}
