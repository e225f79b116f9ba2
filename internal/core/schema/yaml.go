package schema

import (
	"fmt"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// File is the YAML layout of a metadata file.
//
//	entities:
//	  - name: Order
//	    table: orders
//	    columns:
//	      - member: Id
//	        column: id
//	        primaryKey: true
//	    navigations:
//	      - member: Customer
//	        target: Customer
//	        kind: one-to-one
//	        foreignKey: CustomerId
type File struct {
	Entities []EntityDef `json:"entities"`
}

// EntityDef declares or overrides one entity.
type EntityDef struct {
	Name        string          `json:"name"`
	Table       string          `json:"table,omitempty"`
	Columns     []ColumnDef     `json:"columns,omitempty"`
	Navigations []NavigationDef `json:"navigations,omitempty"`
}

// ColumnDef declares or overrides one column.
type ColumnDef struct {
	Member     string `json:"member"`
	Column     string `json:"column,omitempty"`
	PrimaryKey bool   `json:"primaryKey,omitempty"`
}

// NavigationDef declares a navigation on a dynamic entity.
type NavigationDef struct {
	Member     string `json:"member"`
	Target     string `json:"target"`
	Kind       string `json:"kind,omitempty"`
	ForeignKey string `json:"foreignKey"`
	References string `json:"references,omitempty"`
}

// ParseFile decodes YAML metadata.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	for i, def := range f.Entities {
		if def.Name == "" {
			return nil, fmt.Errorf("entities[%d]: name is required", i)
		}
	}
	return &f, nil
}

// LoadFile reads YAML metadata from fs and applies it.
func (r *Registry) LoadFile(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	return r.LoadYAML(data)
}

// LoadYAML applies YAML metadata. Entities that already exist have their
// table and column names overridden; unknown entities are added as dynamic
// entities materialized into maps.
func (r *Registry) LoadYAML(data []byte) error {
	f, err := ParseFile(data)
	if err != nil {
		return err
	}
	return r.update(func(s *snapshot) error {
		for _, def := range f.Entities {
			if existing, ok := s.entities[def.Name]; ok {
				e, err := overrideEntity(existing, def)
				if err != nil {
					return err
				}
				s.put(e)
				continue
			}
			e, err := dynamicEntity(def)
			if err != nil {
				return err
			}
			s.put(e)
		}
		return nil
	})
}

func overrideEntity(existing *Entity, def EntityDef) (*Entity, error) {
	e := existing.clone()
	if def.Table != "" {
		e.Table = def.Table
	}
	for _, cd := range def.Columns {
		col, err := e.Column(cd.Member)
		if err != nil {
			return nil, err
		}
		if cd.Column != "" {
			col.Name = cd.Column
		}
		if cd.PrimaryKey {
			for _, c := range e.Columns {
				c.PrimaryKey = c == col
			}
		}
	}
	if len(def.Navigations) > 0 {
		return nil, fmt.Errorf("entity %s: navigations of registered types are declared with orm tags", e.Name)
	}
	return e, nil
}

func dynamicEntity(def EntityDef) (*Entity, error) {
	table := def.Table
	if table == "" {
		table = TableName(def.Name)
	}
	e := newEntity(def.Name, table)
	for _, cd := range def.Columns {
		name := cd.Column
		if name == "" {
			name = ToSnakeCase(cd.Member)
		}
		if err := e.addColumn(&Column{Member: cd.Member, Name: name, PrimaryKey: cd.PrimaryKey}); err != nil {
			return nil, err
		}
	}
	if len(e.Columns) == 0 {
		return nil, fmt.Errorf("entity %s: at least one column is required", def.Name)
	}
	if e.PrimaryKey() == nil {
		if col, err := e.Column("Id"); err == nil {
			col.PrimaryKey = true
		}
	}
	for _, nd := range def.Navigations {
		kind := OneToOne
		switch nd.Kind {
		case "", "one-to-one":
		case "one-to-many":
			kind = OneToMany
		default:
			return nil, fmt.Errorf("entity %s: unknown navigation kind %q", def.Name, nd.Kind)
		}
		nav := &Navigation{
			Member:     nd.Member,
			Target:     nd.Target,
			Kind:       kind,
			ForeignKey: nd.ForeignKey,
			References: nd.References,
		}
		if err := e.addNavigation(nav); err != nil {
			return nil, err
		}
	}
	return e, nil
}
