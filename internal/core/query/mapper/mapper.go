// Package mapper materializes result rows into entities, projection values,
// maps and scalars.
package mapper

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
)

var mapType = reflect.TypeOf(map[string]any(nil))

// ResultMapper maps raw row values to Go values using a result plan.
type ResultMapper struct {
	registry *schema.Registry
	fields   sync.Map // reflect.Type -> map[string][]int
}

// NewResultMapper creates a result mapper.
func NewResultMapper(registry *schema.Registry) *ResultMapper {
	return &ResultMapper{registry: registry}
}

// ScanRow scans the current row into raw driver values.
func ScanRow(rows database.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	for i, v := range values {
		// Drivers may reuse the buffer behind []byte between rows.
		if b, ok := v.([]byte); ok {
			values[i] = append([]byte(nil), b...)
		}
	}
	return values, nil
}

// Materialize builds one value of type t from a row.
//
// Supported targets are structs (or pointers to them), map[string]any and
// scalars. Entity rows map by field index when t is the entity's Go type and
// by column name otherwise.
func (m *ResultMapper) Materialize(plan *domain.ResultPlan, values []any, t reflect.Type) (reflect.Value, error) {
	ptr := t.Kind() == reflect.Ptr
	base := t
	if ptr {
		base = t.Elem()
	}

	var out reflect.Value
	var err error
	switch {
	case base == mapType:
		out, err = m.toMap(plan, values)
	case base.Kind() == reflect.Struct && !isScalarStruct(base):
		out = reflect.New(base).Elem()
		err = m.toStruct(plan, values, out)
	default:
		if len(values) != 1 {
			return reflect.Value{}, fmt.Errorf("cannot map %d columns to scalar %s", len(values), base)
		}
		out = reflect.New(base).Elem()
		err = SetValue(out, values[0])
	}
	if err != nil {
		return reflect.Value{}, err
	}
	if ptr {
		p := reflect.New(base)
		p.Elem().Set(out)
		return p, nil
	}
	return out, nil
}

func (m *ResultMapper) toStruct(plan *domain.ResultPlan, values []any, out reflect.Value) error {
	if plan.Kind == domain.ResultEntity {
		entity, err := m.registry.Entity(plan.Entity)
		if err != nil {
			return err
		}
		if entity.GoType == out.Type() {
			return m.assignEntity(plan, entity, values, out)
		}
	}
	return m.assignByName(plan.Columns, values, out)
}

// assignEntity fills the primary entity and every one-to-one include
// segment. A segment whose values are all NULL leaves its navigation unset.
func (m *ResultMapper) assignEntity(plan *domain.ResultPlan, entity *schema.Entity, values []any, out reflect.Value) error {
	for _, seg := range plan.Segments {
		target := out
		segEntity := entity
		if len(seg.Path) > 0 {
			if allNull(values[seg.Start : seg.Start+seg.Count]) {
				continue
			}
			var ok bool
			var err error
			target, segEntity, ok, err = m.navigate(entity, out, seg.Path)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		for i, col := range segEntity.Columns {
			f := target.FieldByIndex(col.FieldIndex)
			if err := SetValue(f, values[seg.Start+i]); err != nil {
				return fmt.Errorf("failed to set field %s.%s: %w", segEntity.Name, col.Member, err)
			}
		}
	}
	return nil
}

// navigate walks path from root, allocating the final navigation. It reports
// false when an intermediate navigation was left unset.
func (m *ResultMapper) navigate(entity *schema.Entity, root reflect.Value, path []string) (reflect.Value, *schema.Entity, bool, error) {
	cur := root
	for i, member := range path {
		nav, target, err := m.registry.Relation(entity.Name, member)
		if err != nil {
			return reflect.Value{}, nil, false, err
		}
		f := cur.FieldByIndex(nav.FieldIndex)
		last := i == len(path)-1
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				if !last {
					return reflect.Value{}, nil, false, nil
				}
				f.Set(reflect.New(f.Type().Elem()))
			}
			f = f.Elem()
		}
		cur = f
		entity = target
	}
	return cur, entity, true, nil
}

func (m *ResultMapper) assignByName(columns []string, values []any, out reflect.Value) error {
	index := m.fieldIndex(out.Type())
	for i, name := range columns {
		fi, ok := index[strings.ToLower(name)]
		if !ok {
			continue
		}
		if err := SetValue(out.FieldByIndex(fi), values[i]); err != nil {
			return fmt.Errorf("failed to set field for column %s: %w", name, err)
		}
	}
	return nil
}

// fieldIndex maps lower-cased field names, db tags and snake_case names to
// field indexes.
func (m *ResultMapper) fieldIndex(t reflect.Type) map[string][]int {
	if cached, ok := m.fields.Load(t); ok {
		return cached.(map[string][]int)
	}
	index := make(map[string][]int)
	var walk func(t reflect.Type, prefix []int)
	walk = func(t reflect.Type, prefix []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			fi := append(append([]int(nil), prefix...), i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				walk(f.Type, fi)
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "-" {
				continue
			}
			for _, key := range []string{f.Name, tag, schema.ToSnakeCase(f.Name)} {
				if key == "" {
					continue
				}
				key = strings.ToLower(key)
				if _, exists := index[key]; !exists {
					index[key] = fi
				}
			}
		}
	}
	walk(t, nil)
	m.fields.Store(t, index)
	return index
}

// toMap maps entity rows by member name, nesting include segments under
// their navigation member. Projection rows map by column label.
func (m *ResultMapper) toMap(plan *domain.ResultPlan, values []any) (reflect.Value, error) {
	row := make(map[string]any, len(values))
	if plan.Kind != domain.ResultEntity {
		for i, name := range plan.Columns {
			row[name] = plainValue(values[i])
		}
		return reflect.ValueOf(row), nil
	}

	for _, seg := range plan.Segments {
		entity, err := m.registry.Entity(seg.Entity)
		if err != nil {
			return reflect.Value{}, err
		}
		target := row
		if len(seg.Path) > 0 {
			if allNull(values[seg.Start : seg.Start+seg.Count]) {
				continue
			}
			target = nestedMap(row, seg.Path)
			if target == nil {
				continue
			}
		}
		for i, col := range entity.Columns {
			target[col.Member] = plainValue(values[seg.Start+i])
		}
	}
	return reflect.ValueOf(row), nil
}

func nestedMap(row map[string]any, path []string) map[string]any {
	cur := row
	for i, member := range path {
		next, ok := cur[member].(map[string]any)
		if !ok {
			if i < len(path)-1 {
				return nil
			}
			next = make(map[string]any)
			cur[member] = next
		}
		cur = next
	}
	return cur
}

func allNull(values []any) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}

func plainValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
