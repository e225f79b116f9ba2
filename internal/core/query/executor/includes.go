package executor

import (
	"context"
	"fmt"
	"reflect"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/internal/core/query/mapper"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
)

var rowMapType = reflect.TypeOf(map[string]any(nil))

// resolveIncludes loads every one-to-many navigation of plan for parents
// with one follow-up query per navigation.
func (e *Executor) resolveIncludes(ctx context.Context, plan *domain.ResultPlan, parents reflect.Value) error {
	registry := e.compiler.Registry()
	for _, spec := range plan.Many {
		if err := domain.CheckContext(ctx); err != nil {
			return err
		}
		if len(spec.Path) != 1 {
			return fmt.Errorf("include %v: nested one-to-many paths are not supported", spec.Path)
		}
		nav, target, err := registry.Relation(plan.Entity, spec.Path[0])
		if err != nil {
			return err
		}
		owner, err := registry.Entity(plan.Entity)
		if err != nil {
			return err
		}
		if err := e.resolveMany(ctx, owner, nav, target, spec.Child, parents); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) resolveMany(ctx context.Context, owner *schema.Entity, nav *schema.Navigation, target *schema.Entity, child *domain.Query, parents reflect.Value) error {
	refCol, err := owner.Column(nav.References)
	if err != nil {
		return err
	}
	fkCol, err := target.Column(nav.ForeignKey)
	if err != nil {
		return err
	}

	holders := make([]reflect.Value, 0, parents.Len())
	seen := make(map[any]bool)
	var keys []any
	for i := 0; i < parents.Len(); i++ {
		p := indirect(parents.Index(i))
		if !p.IsValid() {
			holders = append(holders, p)
			continue
		}
		if p.Type() != rowMapType && p.Type() != owner.GoType {
			return fmt.Errorf("include %s: cannot assign to %s, expected %s", nav.Member, p.Type(), owner.Name)
		}
		holders = append(holders, p)
		raw := memberValue(p, refCol.Member, refCol.FieldIndex)
		k := mapper.KeyOf(raw)
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		if rv := reflect.ValueOf(raw); rv.Kind() == reflect.Ptr {
			raw = rv.Elem().Interface()
		}
		keys = append(keys, raw)
	}

	sliceType := navigationSliceType(holders, nav)
	groups := make(map[any]reflect.Value)
	if len(keys) > 0 {
		q := child.Clone()
		in := make([]domain.Node, 0, len(keys)+1)
		in = append(in, domain.Column{Table: q.Primary().Alias, Name: fkCol.Name, Member: fkCol.Member})
		for _, k := range keys {
			in = append(in, domain.Param{Value: k})
		}
		if err := q.AppendWhere(domain.Func{Name: domain.FnIn, Args: in}); err != nil {
			return err
		}
		cq, err := e.compiler.Compile(q)
		if err != nil {
			return err
		}

		e.logger.Debug("include", "stage", domain.StageIncludeResolved, "member", nav.Member, "keys", len(keys))
		children, err := e.list(ctx, cq, sliceType)
		if err != nil {
			return err
		}
		for i := 0; i < children.Len(); i++ {
			c := children.Index(i)
			k := mapper.KeyOf(memberValue(indirect(c), fkCol.Member, fkCol.FieldIndex))
			g, ok := groups[k]
			if !ok {
				g = reflect.MakeSlice(sliceType, 0, 1)
			}
			groups[k] = reflect.Append(g, c)
		}
	}

	for _, p := range holders {
		if !p.IsValid() {
			continue
		}
		k := mapper.KeyOf(memberValue(p, refCol.Member, refCol.FieldIndex))
		g, ok := groups[k]
		if !ok {
			g = reflect.MakeSlice(sliceType, 0, 0)
		}
		if p.Type() == rowMapType {
			p.SetMapIndex(reflect.ValueOf(nav.Member), g)
			continue
		}
		p.FieldByIndex(nav.FieldIndex).Set(g)
	}
	return nil
}

// navigationSliceType is the navigation field type for struct parents and
// []map[string]any for map parents.
func navigationSliceType(holders []reflect.Value, nav *schema.Navigation) reflect.Type {
	for _, p := range holders {
		if p.IsValid() && p.Type() == rowMapType {
			return reflect.SliceOf(rowMapType)
		}
	}
	if nav.GoType != nil && nav.GoType.Kind() == reflect.Slice {
		return nav.GoType
	}
	return reflect.SliceOf(rowMapType)
}

func memberValue(v reflect.Value, member string, index []int) any {
	if v.Type() == rowMapType {
		x := v.MapIndex(reflect.ValueOf(member))
		if !x.IsValid() {
			return nil
		}
		return x.Interface()
	}
	return v.FieldByIndex(index).Interface()
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
