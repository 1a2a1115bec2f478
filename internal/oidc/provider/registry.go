package provider

import "fmt"

// Registry mapea provider → adapter. Lookup puro, sin I/O.
type Registry struct {
	adapters map[Type]Adapter
}

// NewRegistry crea un Registry con los adapters dados.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[Type]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Type()] = a
	}
	return &Registry{adapters: m}
}

// Get devuelve el adapter del provider.
// Retorna ErrUnsupported si no hay adapter registrado.
func (r *Registry) Get(t Type) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, t)
	}
	return a, nil
}

// Types devuelve los providers registrados.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	return out
}
