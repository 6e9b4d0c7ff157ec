package historic

import (
	"fmt"
)

type entry struct {
	params []string
	shape  Shape
}

// Registry is a dictionary of legacy type definitions, optionally scoped to
// pallets. A Registry is not safe for concurrent mutation; once built it is
// read-only and may be shared.
type Registry struct {
	types   map[string]entry
	pallets map[string]map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:   make(map[string]entry),
		pallets: make(map[string]map[string]entry),
	}
}

// Insert defines a global type. The name may declare generic parameters,
// as in "Foo<T, U>", which are bound when the type is used.
func (r *Registry) Insert(name string, shape Shape) error {
	return r.InsertPallet("", name, shape)
}

// InsertPallet defines a type visible only to names scoped to pallet.
// An empty pallet defines a global type.
func (r *Registry) InsertPallet(pallet, name string, shape Shape) error {
	n, err := ParseLookupName(name)
	if err != nil {
		return err
	}
	if n.kind != kindNamed {
		return fmt.Errorf("historic: type name %q must be a path", name)
	}
	e := entry{shape: shape}
	for _, p := range n.params {
		if p.kind != kindNamed || len(p.path) != 1 || len(p.params) != 0 {
			return fmt.Errorf("historic: generic parameter %q of %q must be a bare identifier", p, name)
		}
		e.params = append(e.params, p.path[0])
	}
	if pallet == "" {
		r.types[n.Path()] = e
		return nil
	}
	m, ok := r.pallets[pallet]
	if !ok {
		m = make(map[string]entry)
		r.pallets[pallet] = m
	}
	m[n.Path()] = e
	return nil
}

// Len returns the number of definitions, global and pallet scoped.
func (r *Registry) Len() int {
	n := len(r.types)
	for _, m := range r.pallets {
		n += len(m)
	}
	return n
}

func (r *Registry) lookup(pallet, path string, arity int) (entry, bool) {
	if pallet != "" {
		if e, ok := r.pallets[pallet][path]; ok && e.accepts(arity) {
			return e, true
		}
	}
	e, ok := r.types[path]
	if ok && e.accepts(arity) {
		return e, true
	}
	return entry{}, false
}

// accepts reports whether a use with the given number of generic arguments
// can bind to this entry. Non-generic definitions accept any arguments,
// which are ignored.
func (e entry) accepts(arity int) bool {
	return len(e.params) == 0 || len(e.params) == arity
}

// RegistrySet is an ordered chain of registries searched first match wins.
// Index zero has the highest priority.
type RegistrySet struct {
	registries []*Registry
}

// NewRegistrySet returns a set searching registries in the given order.
func NewRegistrySet(registries ...*Registry) *RegistrySet {
	return &RegistrySet{registries: append([]*Registry(nil), registries...)}
}

// Prepend inserts r ahead of every registry already in the set.
func (s *RegistrySet) Prepend(r *Registry) {
	s.registries = append([]*Registry{r}, s.registries...)
}

// Len returns the number of registries in the set.
func (s *RegistrySet) Len() int { return len(s.registries) }

// Lookup finds the definition of a named type, returning its shape and the
// bindings for its generic parameters.
func (s *RegistrySet) Lookup(n LookupName) (Shape, map[string]LookupName, bool) {
	if n.kind != kindNamed {
		return nil, nil, false
	}
	candidates := n.candidates()
	for _, r := range s.registries {
		for _, path := range candidates {
			e, ok := r.lookup(n.pallet, path, len(n.params))
			if !ok {
				continue
			}
			var bindings map[string]LookupName
			if len(e.params) > 0 {
				bindings = make(map[string]LookupName, len(e.params))
				for i, p := range e.params {
					bindings[p] = n.params[i].scoped(n.pallet)
				}
			}
			return e.shape, bindings, true
		}
	}
	return nil, nil, false
}
