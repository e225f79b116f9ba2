// Package schema provides the entity metadata registry used to resolve members to tables and columns.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrUnknownEntity is returned when an entity is not registered.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownMember is returned when a member is not mapped on an entity.
	ErrUnknownMember = errors.New("unknown member")

	// ErrFrozen is returned when the registry is modified after Freeze.
	ErrFrozen = errors.New("registry is frozen")
)

// NavigationKind describes the cardinality of a navigation member.
type NavigationKind int

const (
	// OneToOne navigations hold the foreign key on the owning entity.
	OneToOne NavigationKind = iota
	// OneToMany navigations hold the foreign key on the child entity.
	OneToMany
)

// String returns the YAML spelling of the kind.
func (k NavigationKind) String() string {
	if k == OneToMany {
		return "one-to-many"
	}
	return "one-to-one"
}

// Entity is the mapping of one entity type to a table.
type Entity struct {
	Name        string
	Table       string
	Columns     []*Column
	Navigations []*Navigation

	// GoType is nil for entities declared only in YAML.
	GoType reflect.Type

	byMember map[string]*Column
	navs     map[string]*Navigation
}

// Column maps one entity member to a table column.
type Column struct {
	Member     string
	Name       string
	PrimaryKey bool
	FieldIndex []int
	GoType     reflect.Type
}

// Navigation is a relationship member of an entity.
type Navigation struct {
	Member string
	Target string
	Kind   NavigationKind
	// ForeignKey is the member holding the key: on the owner for OneToOne,
	// on the target for OneToMany.
	ForeignKey string
	// References is the member the foreign key points to. Defaults to the
	// primary key of the referenced side.
	References string
	FieldIndex []int
	GoType     reflect.Type
}

func newEntity(name, table string) *Entity {
	return &Entity{
		Name:     name,
		Table:    table,
		byMember: make(map[string]*Column),
		navs:     make(map[string]*Navigation),
	}
}

// Dynamic reports whether the entity has no Go type behind it.
func (e *Entity) Dynamic() bool {
	return e.GoType == nil
}

// Column returns the column mapped to member. Lookup falls back to a
// case-insensitive match so dynamic entities accept either spelling.
func (e *Entity) Column(member string) (*Column, error) {
	if c, ok := e.byMember[member]; ok {
		return c, nil
	}
	for _, c := range e.Columns {
		if strings.EqualFold(c.Member, member) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMember, e.Name, member)
}

// Navigation returns the navigation named member.
func (e *Entity) Navigation(member string) (*Navigation, bool) {
	n, ok := e.navs[member]
	return n, ok
}

// PrimaryKey returns the primary key column, or nil if none is mapped.
func (e *Entity) PrimaryKey() *Column {
	for _, c := range e.Columns {
		if c.PrimaryKey {
			return c
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

func (e *Entity) addColumn(c *Column) error {
	if _, exists := e.byMember[c.Member]; exists {
		return fmt.Errorf("entity %s: duplicate member %s", e.Name, c.Member)
	}
	e.Columns = append(e.Columns, c)
	e.byMember[c.Member] = c
	return nil
}

func (e *Entity) addNavigation(n *Navigation) error {
	if _, exists := e.navs[n.Member]; exists {
		return fmt.Errorf("entity %s: duplicate navigation %s", e.Name, n.Member)
	}
	e.Navigations = append(e.Navigations, n)
	e.navs[n.Member] = n
	return nil
}

func (e *Entity) clone() *Entity {
	c := newEntity(e.Name, e.Table)
	c.GoType = e.GoType
	for _, col := range e.Columns {
		cp := *col
		c.Columns = append(c.Columns, &cp)
		c.byMember[cp.Member] = &cp
	}
	for _, nav := range e.Navigations {
		np := *nav
		c.Navigations = append(c.Navigations, &np)
		c.navs[np.Member] = &np
	}
	return c
}
