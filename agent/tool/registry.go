package tool

import (
	"errors"
	"strings"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
)

var ErrNilCapability = errors.New("capability is nil")

// Registry catalogs capability instances. Default execution order is
// registration order; OrderFor puts explicitly requested actions first.
type Registry struct {
	order  []contractx.Capability
	byName map[string]contractx.Capability
}

func NewRegistry(caps ...contractx.Capability) (*Registry, error) {
	r := &Registry{byName: make(map[string]contractx.Capability, len(caps))}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(c contractx.Capability) error {
	if c == nil {
		return ErrNilCapability
	}
	name := strings.TrimSpace(c.Name())
	if name == "" {
		return errors.New("capability name is empty")
	}
	if _, exists := r.byName[name]; exists {
		for i := range r.order {
			if r.order[i].Name() == name {
				r.order[i] = c
				break
			}
		}
	} else {
		r.order = append(r.order, c)
	}
	r.byName[name] = c
	return nil
}

func (r *Registry) Get(name string) (contractx.Capability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, c := range r.order {
		names = append(names, c.Name())
	}
	return names
}

// PriorityOf returns the priority hint for a registered capability. Lower
// values rank higher; unknown names rank last.
func (r *Registry) PriorityOf(name string) int {
	if c, ok := r.byName[name]; ok {
		return c.Priority()
	}
	return 1 << 30
}

// OrderFor resolves the execution order for a pass: requested actions
// first, in the order given, then every other registered capability in
// registration order. Each capability appears once.
func (r *Registry) OrderFor(requested []string) []contractx.Capability {
	seen := make(map[string]struct{}, len(r.order))
	ordered := make([]contractx.Capability, 0, len(r.order))

	for _, action := range requested {
		if c, ok := r.byName[action]; ok {
			if _, dup := seen[c.Name()]; !dup {
				ordered = append(ordered, c)
				seen[c.Name()] = struct{}{}
			}
		}
	}
	for _, c := range r.order {
		if _, dup := seen[c.Name()]; !dup {
			ordered = append(ordered, c)
			seen[c.Name()] = struct{}{}
		}
	}
	return ordered
}
