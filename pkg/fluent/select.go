package fluent

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/fluentsql/internal/core/query/compiler"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/internal/core/query/translator"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
	"github.com/satishbabariya/fluentsql/pkg/expr"
)

// Fn builds an expression from the tables in scope. Index 0 is the FROM
// table; joined tables follow in join order.
type Fn func(t expr.Tables) expr.Expr

// Select builds one SELECT statement.
type Select struct {
	db *DB
	q  *domain.Query
	// scope maps callback table positions to query table indexes.
	// Navigation joins are not part of it.
	scope []int
	err   error
}

var _ translator.Scope = (*Select)(nil)

// From starts a query over the entity registered for T.
func From[T any](db *DB) *Select {
	s := newSelect(db)
	entity, err := db.registry.EntityOf(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return s.fail(err)
	}
	return s.from(domain.TableRef{Entity: entity.Name})
}

// FromEntity starts a query over an entity by name. Entities declared only
// in YAML are queried this way.
func FromEntity(db *DB, name string) *Select {
	s := newSelect(db)
	if _, err := db.registry.Entity(name); err != nil {
		return s.fail(err)
	}
	return s.from(domain.TableRef{Entity: name})
}

// FromQuery starts a query over sub as a derived table.
func FromQuery(db *DB, sub *Select) *Select {
	s := newSelect(db)
	ref, err := s.derived(sub)
	if err != nil {
		return s.fail(err)
	}
	return s.from(ref)
}

// FromCte starts a query over a common table expression, declaring it.
func FromCte(db *DB, c *Cte) *Select {
	s := newSelect(db)
	if c.err != nil {
		return s.fail(c.err)
	}
	if err := s.q.AddCte(c.def); err != nil {
		return s.fail(err)
	}
	return s.from(c.ref())
}

// CteRef starts a query over a CTE by name without declaring it. It is the
// self-reference of a recursive member. T names the row entity; cols default
// to its member names. Use map[string]any with explicit cols for untyped rows.
func CteRef[T any](db *DB, name string, cols ...string) *Select {
	s := newSelect(db)
	ref := domain.TableRef{Source: domain.SourceCte, CteName: name, Columns: cols}
	if t := reflect.TypeOf((*T)(nil)).Elem(); t != reflect.TypeOf(map[string]any(nil)) {
		entity, err := db.registry.EntityOf(t)
		if err != nil {
			return s.fail(err)
		}
		ref.Entity = entity.Name
		if len(cols) == 0 {
			for _, c := range entity.Columns {
				ref.Columns = append(ref.Columns, c.Member)
			}
		}
	}
	if len(ref.Columns) == 0 {
		return s.fail(domain.NewModelBuildError("CteRef", "CTE %s needs column names", name))
	}
	return s.from(ref)
}

func newSelect(db *DB) *Select {
	return &Select{db: db, q: domain.NewQuery(db.aliasStart)}
}

func (s *Select) from(ref domain.TableRef) *Select {
	idx, err := s.q.AddTable(ref)
	if err != nil {
		return s.fail(err)
	}
	s.scope = append(s.scope, idx)
	return s
}

func (s *Select) fail(err error) *Select {
	if s.err == nil {
		s.err = err
	}
	return s
}

func (s *Select) ok() bool {
	return s.err == nil
}

// missing reports a required callback that was passed as nil.
func missing(what string) error {
	return &domain.TranslationError{Fragment: "<nil>", Reason: what + " is required"}
}

// Err returns the first error raised while building.
func (s *Select) Err() error {
	return s.err
}

// Table implements translator.Scope.
func (s *Select) Table(index int) (domain.TableRef, error) {
	if index < 0 || index >= len(s.scope) {
		return domain.TableRef{}, fmt.Errorf("table %d is not in scope (%d tables)", index, len(s.scope))
	}
	return s.q.Tables[s.scope[index]], nil
}

// Navigation implements translator.Scope by joining the navigation target
// once per owner.
func (s *Select) Navigation(owner int, member string) (domain.TableRef, error) {
	idx, err := s.joinNavigation(domain.LeftJoin, owner, member)
	if err != nil {
		return domain.TableRef{}, err
	}
	return s.q.Tables[idx], nil
}

// GroupKey implements translator.Scope.
func (s *Select) GroupKey(index int) (domain.Node, error) {
	if index < 0 || index >= len(s.q.GroupBy) {
		return nil, fmt.Errorf("group key %d does not exist (%d keys)", index, len(s.q.GroupBy))
	}
	return s.q.GroupBy[index], nil
}

func (s *Select) tables() expr.Tables {
	t := make(expr.Tables, len(s.scope))
	for i, idx := range s.scope {
		t[i] = expr.Table{Index: i, Name: s.q.Tables[idx].Alias}
	}
	return t
}

func (s *Select) joinNavigation(kind domain.JoinKind, owner int, member string) (int, error) {
	if idx, ok := s.q.NavigationTable(owner, member); ok {
		if kind == domain.InnerJoin {
			if _, err := s.q.JoinNavigation(kind, owner, member, domain.TableRef{}, nil); err != nil {
				return 0, err
			}
		}
		return idx, nil
	}

	ownerRef := s.q.Tables[owner]
	nav, target, err := s.db.registry.Relation(ownerRef.Entity, member)
	if err != nil {
		return 0, err
	}
	if nav.Kind != schema.OneToOne {
		return 0, fmt.Errorf("%s.%s is a one-to-many navigation", ownerRef.Entity, member)
	}
	ownerEntity, err := s.db.registry.Entity(ownerRef.Entity)
	if err != nil {
		return 0, err
	}
	fk, err := ownerEntity.Column(nav.ForeignKey)
	if err != nil {
		return 0, err
	}
	ref, err := target.Column(nav.References)
	if err != nil {
		return 0, err
	}

	idx, err := s.q.JoinNavigation(kind, owner, member, domain.TableRef{Entity: target.Name}, nil)
	if err != nil {
		return 0, err
	}
	on := domain.Compare{
		Left:  domain.Column{Table: ownerRef.Alias, Name: fk.Name, Member: fk.Member},
		Op:    domain.OpEq,
		Right: domain.Column{Table: s.q.Tables[idx].Alias, Name: ref.Name, Member: ref.Member},
	}
	if err := s.q.AttachJoin(idx, on); err != nil {
		return 0, err
	}
	return idx, nil
}

// derived turns sub into a derived table reference.
func (s *Select) derived(sub *Select) (domain.TableRef, error) {
	if sub == nil {
		return domain.TableRef{}, domain.NewModelBuildError("FromQuery", "sub-query is nil")
	}
	if sub.err != nil {
		return domain.TableRef{}, sub.err
	}
	cols, err := compiler.OutputNames(s.db.registry, sub.q)
	if err != nil {
		return domain.TableRef{}, err
	}
	ref := domain.TableRef{Source: domain.SourceDerived, Derived: sub.q, Columns: cols}
	if sub.q.Projection == nil && !sub.q.Grouped() {
		ref.Entity = sub.q.Primary().Entity
	}
	return ref, nil
}

// resolveTarget maps a join target to a table reference: a Go value or type
// of a registered entity, an entity name, a *Select (derived table) or a
// *Cte (declared on first use).
func (s *Select) resolveTarget(target any) (domain.TableRef, error) {
	switch v := target.(type) {
	case nil:
		return domain.TableRef{}, domain.NewModelBuildError("Join", "join target is nil")
	case string:
		if _, err := s.db.registry.Entity(v); err != nil {
			return domain.TableRef{}, err
		}
		return domain.TableRef{Entity: v}, nil
	case *Select:
		return s.derived(v)
	case *Cte:
		if v.err != nil {
			return domain.TableRef{}, v.err
		}
		declared := false
		for _, c := range s.q.CTEs {
			declared = declared || c.Name == v.def.Name
		}
		if !declared {
			if err := s.q.AddCte(v.def); err != nil {
				return domain.TableRef{}, err
			}
		}
		return v.ref(), nil
	}
	entity, err := s.db.registry.EntityOf(target)
	if err != nil {
		return domain.TableRef{}, err
	}
	return domain.TableRef{Entity: entity.Name}, nil
}

func (s *Select) join(kind domain.JoinKind, target any, on Fn) *Select {
	if !s.ok() {
		return s
	}
	if on == nil {
		return s.fail(domain.NewModelBuildError("Join", "join needs an ON predicate"))
	}
	ref, err := s.resolveTarget(target)
	if err != nil {
		return s.fail(err)
	}
	idx, err := s.q.AddJoin(kind, 0, ref, nil)
	if err != nil {
		return s.fail(err)
	}
	s.scope = append(s.scope, idx)

	pred, err := s.db.translator.Predicate(on(s.tables()), s)
	if err != nil {
		return s.fail(err)
	}
	if err := s.q.AttachJoin(idx, pred); err != nil {
		return s.fail(err)
	}
	return s
}

// InnerJoin joins target on the predicate. The callback sees the new table
// as the last element of t.
func (s *Select) InnerJoin(target any, on Fn) *Select {
	return s.join(domain.InnerJoin, target, on)
}

// LeftJoin left-joins target on the predicate.
func (s *Select) LeftJoin(target any, on Fn) *Select {
	return s.join(domain.LeftJoin, target, on)
}

// RightJoin right-joins target on the predicate.
func (s *Select) RightJoin(target any, on Fn) *Select {
	return s.join(domain.RightJoin, target, on)
}

// Where sets the filter, replacing any earlier one.
func (s *Select) Where(fn Fn) *Select {
	if !s.ok() {
		return s
	}
	if fn == nil {
		return s.fail(missing("predicate"))
	}
	pred, err := s.db.translator.Predicate(fn(s.tables()), s)
	if err != nil {
		return s.fail(err)
	}
	if err := s.q.SetWhere(pred); err != nil {
		return s.fail(err)
	}
	return s
}

// And adds a predicate to the filter with AND.
func (s *Select) And(fn Fn) *Select {
	if !s.ok() {
		return s
	}
	if fn == nil {
		return s.fail(missing("predicate"))
	}
	pred, err := s.db.translator.Predicate(fn(s.tables()), s)
	if err != nil {
		return s.fail(err)
	}
	if err := s.q.AppendWhere(pred); err != nil {
		return s.fail(err)
	}
	return s
}

// WhereIf applies then when cond holds and otherwise when it does not. The
// branch is chosen while building; a nil otherwise leaves the filter as is.
func (s *Select) WhereIf(cond bool, then, otherwise Fn) *Select {
	if cond {
		return s.Where(then)
	}
	if otherwise == nil {
		return s
	}
	return s.Where(otherwise)
}

// GroupBy groups by the key expression. expr.New groups by several keys.
func (s *Select) GroupBy(fn Fn) *Grouped {
	g := &Grouped{s: s}
	if !s.ok() {
		return g
	}
	if fn == nil {
		s.fail(missing("grouping key"))
		return g
	}
	keys, err := s.db.translator.Keys(fn(s.tables()), s)
	if err != nil {
		s.fail(err)
		return g
	}
	if err := s.q.SetGroupBy(keys); err != nil {
		s.fail(err)
	}
	return g
}

func (s *Select) orderBy(keys []domain.Node, err error, desc bool) *Select {
	if err != nil {
		return s.fail(err)
	}
	for _, k := range keys {
		if err := s.q.AddOrderBy(domain.OrderKey{Node: k, Desc: desc}); err != nil {
			return s.fail(err)
		}
	}
	return s
}

// OrderBy adds ascending sort keys. Later calls add secondary keys.
func (s *Select) OrderBy(fn Fn) *Select {
	if !s.ok() {
		return s
	}
	if fn == nil {
		return s.fail(missing("sort key"))
	}
	keys, err := s.db.translator.Keys(fn(s.tables()), s)
	return s.orderBy(keys, err, false)
}

// OrderByDesc adds descending sort keys.
func (s *Select) OrderByDesc(fn Fn) *Select {
	if !s.ok() {
		return s
	}
	if fn == nil {
		return s.fail(missing("sort key"))
	}
	keys, err := s.db.translator.Keys(fn(s.tables()), s)
	return s.orderBy(keys, err, true)
}

// Select sets the projection. Fields are named after the member they read
// or with expr.Value.As.
func (s *Select) Select(fn Fn) *Select {
	if !s.ok() {
		return s
	}
	if fn == nil {
		return s.fail(missing("projection"))
	}
	p, err := s.db.translator.Projection(fn(s.tables()), s)
	if err != nil {
		return s.fail(err)
	}
	if err := s.q.SetProjection(p); err != nil {
		return s.fail(err)
	}
	return s
}

// Distinct removes duplicate rows.
func (s *Select) Distinct() *Select {
	if s.ok() {
		if err := s.q.SetDistinct(true); err != nil {
			s.fail(err)
		}
	}
	return s
}

// Skip skips n rows.
func (s *Select) Skip(n int) *Select {
	if s.ok() {
		if err := s.q.SetSkip(n); err != nil {
			s.fail(err)
		}
	}
	return s
}

// Take limits the result to n rows.
func (s *Select) Take(n int) *Select {
	if s.ok() {
		if err := s.q.SetTake(n); err != nil {
			s.fail(err)
		}
	}
	return s
}

// Page selects the 1-based page of the given size.
func (s *Select) Page(page, size int) *Select {
	if s.ok() {
		if err := s.q.SetPage(page, size); err != nil {
			s.fail(err)
		}
	}
	return s
}

func (s *Select) include(kind domain.JoinKind, path string) *Select {
	if !s.ok() {
		return s
	}
	primary := s.q.Primary()
	if primary.Source != domain.SourceTable {
		return s.fail(domain.NewModelBuildError("Include", "includes need an entity table, got %s", primary.Alias))
	}
	members := strings.Split(path, ".")
	owner := primary.Index
	for i, member := range members {
		idx, err := s.joinNavigation(kind, owner, member)
		if err != nil {
			return s.fail(domain.NewModelBuildError("Include", "%s: %v", path, err))
		}
		prefix := members[:i+1]
		if !s.included(prefix) {
			spec := domain.NavigationSpec{Owner: owner, Path: append([]string(nil), prefix...), Table: idx}
			if err := s.q.AddNavigation(spec); err != nil {
				return s.fail(err)
			}
		}
		owner = idx
	}
	return s
}

func (s *Select) included(path []string) bool {
	key := strings.Join(path, ".")
	for _, n := range s.q.Navigations {
		if strings.Join(n.Path, ".") == key {
			return true
		}
	}
	return false
}

// Include eager-loads a one-to-one navigation path such as "Customer" or
// "Customer.Region" with LEFT joins. Unmatched navigations stay nil.
func (s *Select) Include(path string) *Select {
	return s.include(domain.LeftJoin, path)
}

// IncludeInner eager-loads a one-to-one navigation path with INNER joins,
// dropping rows without a match.
func (s *Select) IncludeInner(path string) *Select {
	return s.include(domain.InnerJoin, path)
}

// IncludeMany eager-loads a one-to-many navigation with one follow-up query.
// configure may filter or order the child query.
func (s *Select) IncludeMany(member string, configure ...func(*Select) *Select) *Select {
	if !s.ok() {
		return s
	}
	primary := s.q.Primary()
	nav, target, err := s.db.registry.Relation(primary.Entity, member)
	if err != nil {
		return s.fail(domain.NewModelBuildError("IncludeMany", "%v", err))
	}
	if nav.Kind != schema.OneToMany {
		return s.fail(domain.NewModelBuildError("IncludeMany", "%s.%s is not a one-to-many navigation", primary.Entity, member))
	}
	if s.included([]string{member}) {
		return s
	}

	child := FromEntity(s.db, target.Name)
	for _, fn := range configure {
		child = fn(child)
	}
	if child.err != nil {
		return s.fail(child.err)
	}
	if child.q.Projection != nil || child.q.Grouped() {
		return s.fail(domain.NewModelBuildError("IncludeMany", "child query of %s cannot project or group", member))
	}
	spec := domain.NavigationSpec{Owner: primary.Index, Path: []string{member}, Many: true, Child: child.q}
	if err := s.q.AddNavigation(spec); err != nil {
		return s.fail(err)
	}
	return s
}

// WithCte declares a CTE for use inside joins or sub-queries.
func (s *Select) WithCte(c *Cte) *Select {
	if !s.ok() {
		return s
	}
	if c.err != nil {
		return s.fail(c.err)
	}
	if err := s.q.AddCte(c.def); err != nil {
		return s.fail(err)
	}
	return s
}

func (s *Select) union(mode domain.UnionMode, other *Select, recursive bool) *Select {
	if !s.ok() {
		return s
	}
	if other == nil {
		return s.fail(domain.NewModelBuildError("Union", "member query is nil"))
	}
	if other.err != nil {
		return s.fail(other.err)
	}
	cols, err := compiler.OutputNames(s.db.registry, other.q)
	if err != nil {
		return s.fail(err)
	}
	m := domain.UnionMember{Mode: mode, Body: other.q, Recursive: recursive, Arity: len(cols)}
	if err := s.q.AddUnionMember(m); err != nil {
		return s.fail(err)
	}
	return s
}

// Union combines other with this query, removing duplicates. Both sides need
// the same number of output columns.
func (s *Select) Union(other *Select) *Select {
	return s.union(domain.Union, other, false)
}

// UnionAll combines other with this query, keeping duplicates.
func (s *Select) UnionAll(other *Select) *Select {
	return s.union(domain.UnionAll, other, false)
}
