// Package locks holds the process-wide registry of named resource domains
// that actions declare reads and writes against.
package locks

import (
	"fmt"
	"sort"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Built-in resource domains.
const (
	JSDialog domain.Lock = "JS_DIALOG"
	JSPolicy domain.Lock = "JS_POLICY"
	JSApp    domain.Lock = "JS_APP"
	JSDoc    domain.Lock = "JS_DOC"
	JSUI     domain.Lock = "JS_UI"
	JSTool   domain.Lock = "JS_TOOL"
	JSPref   domain.Lock = "JS_PREF"
)

var builtin = []domain.Lock{JSDialog, JSPolicy, JSApp, JSDoc, JSUI, JSTool, JSPref}

// Registry is an immutable, enumerable set of locks.
// It is safe for concurrent use because nothing mutates it after NewRegistry returns.
type Registry struct {
	set    map[domain.Lock]struct{}
	sorted []domain.Lock
}

var defaultRegistry = NewRegistry()

// Default returns the registry holding only the built-in locks.
func Default() *Registry {
	return defaultRegistry
}

// NewRegistry builds a registry with the built-in locks plus any extras.
// Empty names are ignored.
func NewRegistry(extra ...domain.Lock) *Registry {
	r := &Registry{set: make(map[domain.Lock]struct{}, len(builtin)+len(extra))}
	for _, l := range append(append([]domain.Lock{}, builtin...), extra...) {
		if l == "" {
			continue
		}
		if _, dup := r.set[l]; dup {
			continue
		}
		r.set[l] = struct{}{}
		r.sorted = append(r.sorted, l)
	}
	sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i] < r.sorted[j] })
	return r
}

// All returns every registered lock in lexical order.
func (r *Registry) All() []domain.Lock {
	out := make([]domain.Lock, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Has reports whether l is registered.
func (r *Registry) Has(l domain.Lock) bool {
	_, ok := r.set[l]
	return ok
}

// Lookup resolves a lock by name.
func (r *Registry) Lookup(name string) (domain.Lock, error) {
	l := domain.Lock(name)
	if !r.Has(l) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownLock, name)
	}
	return l, nil
}

// Validate checks that every lock named by d is registered.
func (r *Registry) Validate(d domain.Descriptor) error {
	for _, l := range d.Locks() {
		if !r.Has(l) {
			return fmt.Errorf("action %q: %w: %s", d.Name, domain.ErrUnknownLock, l)
		}
	}
	return nil
}
