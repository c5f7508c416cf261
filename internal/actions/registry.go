package actions

import (
	"sort"
	"sync"

	"github.com/rendis/conduit/pkg/schema"
)

// SchemaRegistry is the immutable table of action definitions.
// It is built once and never mutated, so reads need no locking.
type SchemaRegistry struct {
	schemas map[string]*ActionSchema
	names   []string
}

// NewSchemaRegistry indexes schemas by name. Duplicate or empty names are rejected.
func NewSchemaRegistry(schemas []ActionSchema) (*SchemaRegistry, error) {
	r := &SchemaRegistry{schemas: make(map[string]*ActionSchema, len(schemas))}
	for i := range schemas {
		s := schemas[i]
		if s.Name == "" {
			return nil, schema.NewError(schema.ErrCodeConflict, "action schema has an empty name")
		}
		if _, exists := r.schemas[s.Name]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "action schema %q defined twice", s.Name)
		}
		seen := make(map[string]bool, len(s.Parameters))
		for _, p := range s.Parameters {
			if seen[p.Name] {
				return nil, schema.NewErrorf(schema.ErrCodeConflict, "action %q declares parameter %q twice", s.Name, p.Name)
			}
			seen[p.Name] = true
		}
		r.schemas[s.Name] = &s
		r.names = append(r.names, s.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// DefaultSchemaRegistry builds the registry for the built-in catalog.
func DefaultSchemaRegistry() *SchemaRegistry {
	r, err := NewSchemaRegistry(Catalog())
	if err != nil {
		panic("actions: invalid built-in catalog: " + err.Error())
	}
	return r
}

// Lookup returns the schema for name. A miss is reported by ok == false.
func (r *SchemaRegistry) Lookup(name string) (*ActionSchema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// List returns every schema sorted by name.
func (r *SchemaRegistry) List() []*ActionSchema {
	out := make([]*ActionSchema, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.schemas[n])
	}
	return out
}

// Names returns the action names in sorted order.
func (r *SchemaRegistry) Names() []string {
	return append([]string(nil), r.names...)
}

// Infos summarizes every action with its generated input schema.
func (r *SchemaRegistry) Infos() []ActionInfo {
	infos := make([]ActionInfo, 0, len(r.names))
	for _, s := range r.List() {
		infos = append(infos, ActionInfo{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema(),
			Result:      s.Result,
		})
	}
	return infos
}

// Resolver hands out the handler for an action name.
type Resolver interface {
	Resolve(name string) (Handler, error)
}

// Registry maps action names to handlers. It is populated at startup and
// read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds handler to name. Returns error on duplicate name.
func (r *Registry) Register(name string, handler Handler) error {
	if handler == nil {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for %q is nil", name)
	}
	if name == "" {
		return schema.NewError(schema.ErrCodeConflict, "handler name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler %q already registered", name)
	}

	r.handlers[name] = handler
	return nil
}

// Resolve retrieves the handler registered under name.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no handler registered for %q", name)
	}
	return h, nil
}

// Has checks if a handler is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Missing returns the catalog actions that have no handler, sorted.
func (r *Registry) Missing(schemas *SchemaRegistry) []string {
	var missing []string
	for _, name := range schemas.Names() {
		if !r.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

var _ Resolver = (*Registry)(nil)
