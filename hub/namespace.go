package hub

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// FuncHubDownload is the name [Hub.Register] binds the download primitive under.
const FuncHubDownload = "hf_hub_download"

// FetchFunc is the signature of the modern download primitive. It returns
// the local path of the cached file.
type FetchFunc func(ctx context.Context, p Params) (string, error)

// Namespace is a named table of exported functions, standing in for a
// library's public surface so adapters can look up what is available and
// add aliases at a composition root. Values keep their dynamic type, so
// bind named function types (such as FetchFunc) and look them up with the
// same type. A nil *Namespace behaves as an empty, read-only table.
type Namespace struct {
	mu    sync.RWMutex
	funcs map[string]any
}

// NewNamespace returns an empty Namespace ready for binding.
func NewNamespace() *Namespace {
	return &Namespace{funcs: make(map[string]any)}
}

// Bind sets name to fn, replacing any previous binding. Binding into a nil
// Namespace does nothing.
func (ns *Namespace) Bind(name string, fn any) {
	if ns == nil {
		return
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.funcs[name] = fn
}

// BindIfAbsent sets name to fn only if name is unbound, as one atomic step.
// It reports whether fn was bound.
func (ns *Namespace) BindIfAbsent(name string, fn any) bool {
	if ns == nil {
		return false
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, ok := ns.funcs[name]; ok {
		return false
	}
	ns.funcs[name] = fn
	return true
}

// Has reports whether name is bound.
func (ns *Namespace) Has(name string) bool {
	if ns == nil {
		return false
	}

	ns.mu.RLock()
	defer ns.mu.RUnlock()

	_, ok := ns.funcs[name]
	return ok
}

// Names returns the bound names in sorted order.
func (ns *Namespace) Names() []string {
	if ns == nil {
		return nil
	}

	ns.mu.RLock()
	defer ns.mu.RUnlock()

	return slices.Sorted(maps.Keys(ns.funcs))
}

// Lookup returns the value bound under name if it has type F.
func Lookup[F any](ns *Namespace, name string) (F, bool) {
	var zero F
	if ns == nil {
		return zero, false
	}

	ns.mu.RLock()
	v, ok := ns.funcs[name]
	ns.mu.RUnlock()

	if !ok {
		return zero, false
	}

	fn, ok := v.(F)
	return fn, ok
}
