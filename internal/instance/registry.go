// ABOUTME: Registry owning exactly one Instance per identity
// ABOUTME: Instances open lazily on first Get and close only with the registry

package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2389/shopdb/internal/blockstore"
	"github.com/2389/shopdb/internal/notify"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("registry closed")

// Registry hands out the process-wide instances.
type Registry struct {
	blocks blockstore.BlockStore
	bus    *notify.Bus
	opts   Options

	mu        sync.Mutex
	profiles  map[Identity]Profile
	instances map[Identity]*Instance
	closed    bool
}

// NewRegistry validates profiles and returns a registry that opens them on
// demand. Identities and storage keys must be distinct.
func NewRegistry(blocks blockstore.BlockStore, bus *notify.Bus, opts Options, profiles ...Profile) (*Registry, error) {
	r := &Registry{
		blocks:    blocks,
		bus:       bus,
		opts:      opts,
		profiles:  make(map[Identity]Profile, len(profiles)),
		instances: make(map[Identity]*Instance, len(profiles)),
	}
	keys := make(map[string]Identity, len(profiles))
	for _, p := range profiles {
		if _, dup := r.profiles[p.Identity]; dup {
			return nil, fmt.Errorf("duplicate instance identity %q", p.Identity)
		}
		if p.StorageKey == "" {
			return nil, fmt.Errorf("instance %q has no storage key", p.Identity)
		}
		if other, dup := keys[p.StorageKey]; dup {
			return nil, fmt.Errorf("instances %q and %q share storage key %q", other, p.Identity, p.StorageKey)
		}
		keys[p.StorageKey] = p.Identity
		r.profiles[p.Identity] = p
	}
	return r, nil
}

// Get returns the instance for id, opening it on first use.
func (r *Registry) Get(ctx context.Context, id Identity) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if inst, ok := r.instances[id]; ok {
		return inst, nil
	}
	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("no profile for instance %q", id)
	}

	inst, err := Open(ctx, p, r.blocks, r.bus, r.opts)
	if err != nil {
		return nil, err
	}
	r.instances[id] = inst
	return inst, nil
}

// Close flushes and closes every opened instance.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for id, inst := range r.instances {
		if err := inst.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
