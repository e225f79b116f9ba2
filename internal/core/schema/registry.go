package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry stores entity metadata for the translator, renderer and executor.
// Writers are serialized; readers load an immutable snapshot without locking.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	snap   atomic.Pointer[snapshot]
}

type snapshot struct {
	entities map[string]*Entity
	byType   map[reflect.Type]*Entity
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{
		entities: make(map[string]*Entity),
		byType:   make(map[reflect.Type]*Entity),
	})
	return r
}

// Register reflects the given struct values (or pointers to them) into entities.
func (r *Registry) Register(models ...any) error {
	return r.update(func(s *snapshot) error {
		for _, m := range models {
			e, err := reflectEntity(m)
			if err != nil {
				return err
			}
			if _, exists := s.entities[e.Name]; exists {
				return fmt.Errorf("entity %s already registered", e.Name)
			}
			s.put(e)
		}
		return nil
	})
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(models ...any) *Registry {
	if err := r.Register(models...); err != nil {
		panic(err)
	}
	return r
}

// Define adds an entity built by hand. Used by the YAML loader and tests.
func (r *Registry) Define(e *Entity) error {
	return r.update(func(s *snapshot) error {
		if _, exists := s.entities[e.Name]; exists {
			return fmt.Errorf("entity %s already registered", e.Name)
		}
		s.put(e.clone())
		return nil
	})
}

// Freeze validates navigations and rejects further modification.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil
	}
	next := r.snap.Load().deepCopy()
	if err := next.validate(); err != nil {
		return err
	}
	r.snap.Store(next)
	r.frozen = true
	return nil
}

// Frozen reports whether Freeze has succeeded.
func (r *Registry) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// Entity returns the entity with the given name.
func (r *Registry) Entity(name string) (*Entity, error) {
	e, ok := r.snap.Load().entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return e, nil
}

// EntityOf returns the entity registered for the Go type of v. v may be a
// value, a pointer, a slice or a reflect.Type.
func (r *Registry) EntityOf(v any) (*Entity, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: <nil>", ErrUnknownEntity)
	}
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	e, ok := r.snap.Load().byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, t)
	}
	return e, nil
}

// Entities returns all entities in registration order.
func (r *Registry) Entities() []*Entity {
	s := r.snap.Load()
	out := make([]*Entity, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entities[name])
	}
	return out
}

// Relation returns the navigation member of entity and its target entity.
func (r *Registry) Relation(entity, member string) (*Navigation, *Entity, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return nil, nil, err
	}
	nav, ok := e.Navigation(member)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s.%s is not a navigation", ErrUnknownMember, entity, member)
	}
	target, err := r.Entity(nav.Target)
	if err != nil {
		return nil, nil, err
	}
	return nav, target, nil
}

func (r *Registry) update(fn func(*snapshot) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	next := r.snap.Load().copy()
	if err := fn(next); err != nil {
		return err
	}
	r.snap.Store(next)
	return nil
}

func (s *snapshot) copy() *snapshot {
	c := &snapshot{
		entities: make(map[string]*Entity, len(s.entities)),
		byType:   make(map[reflect.Type]*Entity, len(s.byType)),
		order:    append([]string(nil), s.order...),
	}
	for k, v := range s.entities {
		c.entities[k] = v
	}
	for k, v := range s.byType {
		c.byType[k] = v
	}
	return c
}

func (s *snapshot) deepCopy() *snapshot {
	c := &snapshot{
		entities: make(map[string]*Entity, len(s.entities)),
		byType:   make(map[reflect.Type]*Entity, len(s.byType)),
	}
	for _, name := range s.order {
		c.put(s.entities[name].clone())
	}
	return c
}

func (s *snapshot) put(e *Entity) {
	if _, exists := s.entities[e.Name]; !exists {
		s.order = append(s.order, e.Name)
	}
	s.entities[e.Name] = e
	if e.GoType != nil {
		s.byType[e.GoType] = e
	}
}

func (s *snapshot) validate() error {
	names := make([]string, 0, len(s.entities))
	for name := range s.entities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e := s.entities[name]
		for _, nav := range e.Navigations {
			target, ok := s.entities[nav.Target]
			if !ok {
				return fmt.Errorf("%s.%s: %w: %s", e.Name, nav.Member, ErrUnknownEntity, nav.Target)
			}
			fkSide, refSide := e, target
			if nav.Kind == OneToMany {
				fkSide, refSide = target, e
			}
			if _, err := fkSide.Column(nav.ForeignKey); err != nil {
				return fmt.Errorf("%s.%s: foreign key: %w", e.Name, nav.Member, err)
			}
			if nav.References == "" {
				pk := refSide.PrimaryKey()
				if pk == nil {
					return fmt.Errorf("%s.%s: %s has no primary key", e.Name, nav.Member, refSide.Name)
				}
				nav.References = pk.Member
			}
			if _, err := refSide.Column(nav.References); err != nil {
				return fmt.Errorf("%s.%s: references: %w", e.Name, nav.Member, err)
			}
		}
	}
	return nil
}
