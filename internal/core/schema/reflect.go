package schema

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// tableNamer lets a model choose its table name.
type tableNamer interface {
	TableName() string
}

// ormTag is the parsed form of `orm:"pk"` / `orm:"fk:CustomerId,ref:Id"`.
type ormTag struct {
	pk  bool
	fk  string
	ref string
}

func parseOrmTag(tag string) ormTag {
	var t ormTag
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		key, value, _ := strings.Cut(part, ":")
		switch key {
		case "pk":
			t.pk = true
		case "fk":
			t.fk = value
		case "ref":
			t.ref = value
		}
	}
	return t
}

func reflectEntity(model any) (*Entity, error) {
	t := reflect.TypeOf(model)
	if t == nil {
		return nil, fmt.Errorf("cannot register nil model")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model %s must be a struct", t)
	}

	table := TableName(t.Name())
	if n, ok := reflect.New(t).Interface().(tableNamer); ok {
		table = n.TableName()
	}

	e := newEntity(t.Name(), table)
	e.GoType = t
	if err := collectFields(e, t, nil); err != nil {
		return nil, err
	}

	if e.PrimaryKey() == nil {
		for _, c := range e.Columns {
			if c.Member == "Id" || c.Member == "ID" {
				c.PrimaryKey = true
				break
			}
		}
	}
	return e, nil
}

func collectFields(e *Entity, t reflect.Type, index []int) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fieldIndex := append(append([]int(nil), index...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("db") == "" {
			if err := collectFields(e, f.Type, fieldIndex); err != nil {
				return err
			}
			continue
		}

		dbTag := f.Tag.Get("db")
		if dbTag == "-" {
			continue
		}
		tag := parseOrmTag(f.Tag.Get("orm"))

		if tag.fk != "" {
			nav, err := navigationOf(f, tag)
			if err != nil {
				return fmt.Errorf("entity %s: %w", e.Name, err)
			}
			nav.FieldIndex = fieldIndex
			if err := e.addNavigation(nav); err != nil {
				return err
			}
			continue
		}
		if !isColumnType(f.Type) {
			continue
		}

		name := dbTag
		if name == "" {
			name = ToSnakeCase(f.Name)
		}
		col := &Column{
			Member:     f.Name,
			Name:       name,
			PrimaryKey: tag.pk,
			FieldIndex: fieldIndex,
			GoType:     f.Type,
		}
		if err := e.addColumn(col); err != nil {
			return err
		}
	}
	return nil
}

func navigationOf(f reflect.StructField, tag ormTag) (*Navigation, error) {
	nav := &Navigation{
		Member:     f.Name,
		ForeignKey: tag.fk,
		References: tag.ref,
		GoType:     f.Type,
	}
	t := f.Type
	if t.Kind() == reflect.Slice {
		nav.Kind = OneToMany
		t = t.Elem()
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("navigation %s must point to a struct, got %s", f.Name, f.Type)
	}
	nav.Target = t.Name()
	return nav, nil
}

func isColumnType(t reflect.Type) bool {
	if t.Implements(scannerType) || reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return t == timeType
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	case reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Array:
		return false
	}
	return true
}
