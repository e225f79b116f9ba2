// Package compiler renders query models into parameterized SQL and caches the
// rendered text by query shape.
package compiler

import (
	"fmt"
	"time"

	"github.com/satishbabariya/fluentsql/internal/core/query/cache"
	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
)

// plan is the cacheable part of a compiled query.
type plan struct {
	sql    string
	result *domain.ResultPlan
}

// Compiler compiles query models for one dialect.
type Compiler struct {
	dialect  dialect.Dialect
	registry *schema.Registry
	plans    *cache.LRUCache[*plan]
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithPlanCache caches up to size compiled plans. A zero size disables the cache.
func WithPlanCache(size int, ttl time.Duration) Option {
	return func(c *Compiler) {
		if size <= 0 {
			c.plans = nil
			return
		}
		c.plans = cache.NewLRUCache[*plan](size, ttl)
	}
}

// New creates a compiler with a 256-entry plan cache.
func New(d dialect.Dialect, registry *schema.Registry, opts ...Option) *Compiler {
	c := &Compiler{
		dialect:  d,
		registry: registry,
		plans:    cache.NewLRUCache[*plan](256, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() dialect.Dialect {
	return c.dialect
}

// Registry returns the metadata registry.
func (c *Compiler) Registry() *schema.Registry {
	return c.registry
}

// CacheStats returns plan cache statistics.
func (c *Compiler) CacheStats() cache.Stats {
	if c.plans == nil {
		return cache.Stats{}
	}
	return c.plans.Stats()
}

// ResetPlans drops every cached plan and its statistics.
func (c *Compiler) ResetPlans() {
	if c.plans != nil {
		c.plans.Clear()
	}
}

// Compile freezes q and renders it. Rendering the same frozen model twice
// yields identical SQL and parameters.
func (c *Compiler) Compile(q *domain.Query) (*domain.CompiledQuery, error) {
	if q == nil {
		return nil, &domain.RenderError{Dialect: c.dialect.Name(), Construct: "query", Reason: "nil query"}
	}
	q.Freeze()

	shape := Shape(q, c.dialect.Name())
	if c.plans != nil {
		if p, ok := c.plans.Get(shape); ok {
			r := newRenderer(c.dialect, c.registry)
			r.discard = true
			if err := r.statement(q); err != nil {
				return nil, err
			}
			return &domain.CompiledQuery{SQL: p.sql, Args: r.args, Plan: withMany(p.result, q), Shape: shape, Dialect: c.dialect.Name()}, nil
		}
	}

	r := newRenderer(c.dialect, c.registry)
	if err := r.statement(q); err != nil {
		return nil, err
	}
	result, err := resultPlan(c.registry, q)
	if err != nil {
		return nil, &domain.RenderError{Dialect: c.dialect.Name(), Construct: "result plan", Reason: err.Error()}
	}

	p := &plan{sql: r.out.String(), result: result}
	if c.plans != nil {
		c.plans.Set(shape, p, 0)
	}
	return &domain.CompiledQuery{SQL: p.sql, Args: r.args, Plan: result, Shape: shape, Dialect: c.dialect.Name()}, nil
}

// withMany returns result with the one-to-many navigations of q. Child
// queries are not part of the shape, so a cached plan may hold another
// query's children.
func withMany(result *domain.ResultPlan, q *domain.Query) *domain.ResultPlan {
	if len(result.Many) == 0 {
		return result
	}
	out := *result
	out.Many = nil
	for _, nav := range q.Navigations {
		if nav.Many {
			out.Many = append(out.Many, nav)
		}
	}
	return &out
}

// OutputNames returns the output column labels of q in select-list order.
func OutputNames(registry *schema.Registry, q *domain.Query) ([]string, error) {
	if len(q.Tables) == 0 {
		return nil, domain.NewModelBuildError("Select", "query has no FROM table")
	}
	items, err := outputItems(registry, q)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return names, nil
}

// outputItems returns the select list of q: the explicit projection, the
// grouping keys of a grouped query, or the primary table columns followed by
// the columns of each one-to-one include.
func outputItems(registry *schema.Registry, q *domain.Query) ([]domain.ProjectionItem, error) {
	if q.Projection != nil {
		return q.Projection.Items, nil
	}
	if q.Grouped() {
		items := make([]domain.ProjectionItem, len(q.GroupBy))
		for i, k := range q.GroupBy {
			name := "Key"
			if i > 0 {
				name = fmt.Sprintf("Key%d", i)
			}
			items[i] = domain.ProjectionItem{Name: name, Node: k}
		}
		return items, nil
	}

	items, err := tableItems(registry, q.Tables[0])
	if err != nil {
		return nil, err
	}
	for _, nav := range q.Navigations {
		if nav.Many {
			continue
		}
		more, err := tableItems(registry, q.Tables[nav.Table])
		if err != nil {
			return nil, err
		}
		items = append(items, more...)
	}
	return items, nil
}

func tableItems(registry *schema.Registry, t domain.TableRef) ([]domain.ProjectionItem, error) {
	quoted := t.Source == domain.SourceCte
	if t.Entity == "" || (t.Source != domain.SourceTable && len(t.Columns) > 0) {
		items := make([]domain.ProjectionItem, len(t.Columns))
		for i, c := range t.Columns {
			items[i] = domain.ProjectionItem{Name: c, Node: domain.Column{Table: t.Alias, Name: c, Member: c, Quoted: quoted}}
		}
		return items, nil
	}
	entity, err := registry.Entity(t.Entity)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ProjectionItem, len(entity.Columns))
	for i, c := range entity.Columns {
		items[i] = domain.ProjectionItem{Name: c.Name, Node: domain.Column{Table: t.Alias, Name: c.Name, Member: c.Member, Quoted: quoted}}
	}
	return items, nil
}

func resultPlan(registry *schema.Registry, q *domain.Query) (*domain.ResultPlan, error) {
	items, err := outputItems(registry, q)
	if err != nil {
		return nil, err
	}
	plan := &domain.ResultPlan{Entity: q.Tables[0].Entity}
	for _, item := range items {
		plan.Columns = append(plan.Columns, item.Name)
	}
	if q.Projection != nil || q.Grouped() || q.Tables[0].Entity == "" || q.Tables[0].Source != domain.SourceTable {
		plan.Kind = domain.ResultProjection
		return plan, nil
	}

	plan.Kind = domain.ResultEntity
	primary, err := registry.Entity(q.Tables[0].Entity)
	if err != nil {
		return nil, err
	}
	plan.Segments = append(plan.Segments, domain.Segment{Entity: primary.Name, Count: len(primary.Columns)})
	start := len(primary.Columns)
	for _, nav := range q.Navigations {
		if nav.Many {
			plan.Many = append(plan.Many, nav)
			continue
		}
		target, err := registry.Entity(q.Tables[nav.Table].Entity)
		if err != nil {
			return nil, err
		}
		plan.Segments = append(plan.Segments, domain.Segment{
			Entity: target.Name,
			Path:   nav.Path,
			Start:  start,
			Count:  len(target.Columns),
		})
		start += len(target.Columns)
	}
	return plan, nil
}
