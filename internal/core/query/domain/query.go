// Package domain contains the query model, the intermediate node tree and the
// error taxonomy of the query engine.
package domain

import (
	"fmt"
	"strings"
)

// SourceKind is where a table reference reads from.
type SourceKind int

const (
	// SourceTable is a base table of a registered entity.
	SourceTable SourceKind = iota
	// SourceDerived is an inline sub-select.
	SourceDerived
	// SourceCte is a reference to a common table expression by name.
	SourceCte
)

// JoinKind is the SQL join type.
type JoinKind string

// Join kinds.
const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
	RightJoin JoinKind = "RIGHT JOIN"
)

// UnionMode is UNION or UNION ALL.
type UnionMode string

// Union modes.
const (
	Union    UnionMode = "UNION"
	UnionAll UnionMode = "UNION ALL"
)

// TableRef is one table in scope of a query.
type TableRef struct {
	Index  int
	Entity string
	Alias  string
	Source SourceKind
	// Derived is the sub-select for SourceDerived references.
	Derived *Query
	// CteName is the referenced CTE for SourceCte references.
	CteName string
	// Columns lists the output names of derived and CTE sources.
	Columns []string
}

// JoinClause joins the Right table to the tables before it.
type JoinClause struct {
	Kind  JoinKind
	Left  int
	Right int
	On    Node
}

// ProjectionItem is one named output column.
type ProjectionItem struct {
	Name string
	Node Node
}

// Projection is an explicit select list.
type Projection struct {
	Items []ProjectionItem
}

// OrderKey is one ORDER BY key.
type OrderKey struct {
	Node Node
	Desc bool
}

// Pagination holds Skip and Take. Nil means not set.
type Pagination struct {
	Skip *int
	Take *int
}

// IsSet reports whether any pagination is present.
func (p Pagination) IsSet() bool {
	return p.Skip != nil || p.Take != nil
}

// CteDefinition is a named common table expression.
type CteDefinition struct {
	Name      string
	Columns   []string
	Body      *Query
	Recursive bool
	// Arity is the output column count of Body.
	Arity int
}

// UnionMember is a query combined with the anchor.
type UnionMember struct {
	Mode      UnionMode
	Body      *Query
	Recursive bool
	// Arity is the output column count of Body.
	Arity int
}

// NavigationSpec is an eager-loaded navigation.
type NavigationSpec struct {
	// Owner is the table index holding the navigation member.
	Owner int
	// Path is the member path from the primary entity, e.g. Customer.Region.
	Path []string
	Many bool
	// Table is the joined table index of a one-to-one navigation.
	Table int
	// Child is the follow-up query of a one-to-many navigation.
	Child *Query
}

// Query is the mutable description of one SELECT statement. It is append-only
// until Freeze.
type Query struct {
	Tables      []TableRef
	Joins       []JoinClause
	Where       Node
	GroupBy     []Node
	Having      Node
	OrderBy     []OrderKey
	Projection  *Projection
	Distinct    bool
	Pagination  Pagination
	CTEs        []*CteDefinition
	Unions      []UnionMember
	Navigations []NavigationSpec

	aliasStart rune
	letters    int
	navTables  map[string]int
	frozen     bool
}

// NewQuery creates an empty query whose aliases start at aliasStart.
func NewQuery(aliasStart rune) *Query {
	if aliasStart == 0 {
		aliasStart = 'a'
	}
	return &Query{aliasStart: aliasStart, navTables: make(map[string]int)}
}

// AliasStart returns the first alias letter.
func (q *Query) AliasStart() rune {
	return q.aliasStart
}

// Frozen reports whether the query has been finalized.
func (q *Query) Frozen() bool {
	return q.frozen
}

// Freeze finalizes the query. It is idempotent.
func (q *Query) Freeze() {
	q.frozen = true
}

// Grouped reports whether GroupBy has been set.
func (q *Query) Grouped() bool {
	return len(q.GroupBy) > 0
}

// Primary returns the first table.
func (q *Query) Primary() TableRef {
	return q.Tables[0]
}

func (q *Query) check(op string) error {
	if q.frozen {
		return NewModelBuildError(op, "query is frozen")
	}
	return nil
}

// nextAlias returns the next letter alias not already taken by a table or a
// declared CTE.
func (q *Query) nextAlias() string {
	span := int('z'-q.aliasStart) + 1
	for {
		n := q.letters
		q.letters++
		alias := fmt.Sprintf("%c%d", q.aliasStart, n-span+1)
		if n < span {
			alias = string(q.aliasStart + rune(n))
		}
		if !q.aliasTaken(alias) {
			return alias
		}
	}
}

func (q *Query) aliasTaken(alias string) bool {
	for _, t := range q.Tables {
		if t.Alias == alias {
			return true
		}
	}
	for _, c := range q.CTEs {
		if c.Name == alias {
			return true
		}
	}
	return false
}

// AddTable brings a table into scope and assigns its alias. CTE references
// take the CTE name as alias and do not consume a letter.
func (q *Query) AddTable(ref TableRef) (int, error) {
	if err := q.check("AddTable"); err != nil {
		return 0, err
	}
	if ref.Source == SourceCte {
		if ref.CteName == "" {
			return 0, NewModelBuildError("AddTable", "CTE reference without a name")
		}
		for _, t := range q.Tables {
			if t.Alias == ref.CteName {
				return 0, NewModelBuildError("AddTable", "CTE %s is already in scope", ref.CteName)
			}
		}
		ref.Alias = ref.CteName
	} else {
		ref.Alias = q.nextAlias()
	}
	if ref.Source == SourceDerived && ref.Derived == nil {
		return 0, NewModelBuildError("AddTable", "derived table without a query")
	}
	if ref.Derived != nil {
		ref.Derived.Freeze()
	}
	ref.Index = len(q.Tables)
	q.Tables = append(q.Tables, ref)
	return ref.Index, nil
}

// AddJoin brings ref into scope and joins it on the given predicate.
func (q *Query) AddJoin(kind JoinKind, left int, ref TableRef, on Node) (int, error) {
	if len(q.Tables) == 0 {
		return 0, NewModelBuildError("AddJoin", "join before FROM")
	}
	if left < 0 || left >= len(q.Tables) {
		return 0, NewModelBuildError("AddJoin", "left table %d out of range", left)
	}
	idx, err := q.AddTable(ref)
	if err != nil {
		return 0, err
	}
	q.Joins = append(q.Joins, JoinClause{Kind: kind, Left: left, Right: idx, On: on})
	return idx, nil
}

// AttachJoin sets the ON predicate of the join that introduced table right.
// Used when the predicate can only be translated once the table has an alias.
func (q *Query) AttachJoin(right int, on Node) error {
	if err := q.check("AttachJoin"); err != nil {
		return err
	}
	for i := range q.Joins {
		if q.Joins[i].Right == right {
			q.Joins[i].On = on
			return nil
		}
	}
	return NewModelBuildError("AttachJoin", "table %d was not joined", right)
}

// NavigationTable returns the joined table index of a one-to-one navigation
// already folded into the query.
func (q *Query) NavigationTable(owner int, member string) (int, bool) {
	idx, ok := q.navTables[navKey(owner, member)]
	return idx, ok
}

// JoinNavigation folds a one-to-one navigation into the query as a join.
func (q *Query) JoinNavigation(kind JoinKind, owner int, member string, ref TableRef, on Node) (int, error) {
	if idx, ok := q.NavigationTable(owner, member); ok {
		if kind == InnerJoin {
			q.promoteJoin(idx)
		}
		return idx, nil
	}
	idx, err := q.AddJoin(kind, owner, ref, on)
	if err != nil {
		return 0, err
	}
	q.navTables[navKey(owner, member)] = idx
	return idx, nil
}

func (q *Query) promoteJoin(right int) {
	for i := range q.Joins {
		if q.Joins[i].Right == right {
			q.Joins[i].Kind = InnerJoin
		}
	}
}

func navKey(owner int, member string) string {
	return fmt.Sprintf("%d.%s", owner, member)
}

// SetWhere replaces the predicate.
func (q *Query) SetWhere(n Node) error {
	if err := q.check("Where"); err != nil {
		return err
	}
	q.Where = n
	return nil
}

// AppendWhere combines n with the current predicate using AND.
func (q *Query) AppendWhere(n Node) error {
	if err := q.check("And"); err != nil {
		return err
	}
	q.Where = Conjoin(q.Where, n)
	return nil
}

// SetGroupBy moves the query into grouped state.
func (q *Query) SetGroupBy(keys []Node) error {
	if err := q.check("GroupBy"); err != nil {
		return err
	}
	if len(keys) == 0 {
		return NewModelBuildError("GroupBy", "at least one key is required")
	}
	if path, ok := q.manyNavigation(); ok {
		return NewModelBuildError("GroupBy", "grouped rows cannot load the one-to-many navigation %s", path)
	}
	q.GroupBy = keys
	return nil
}

// SetHaving sets the HAVING predicate. The query must be grouped.
func (q *Query) SetHaving(n Node) error {
	if err := q.check("Having"); err != nil {
		return err
	}
	if !q.Grouped() {
		return NewModelBuildError("Having", "query is not grouped")
	}
	q.Having = Conjoin(q.Having, n)
	return nil
}

// AddOrderBy appends ordering keys.
func (q *Query) AddOrderBy(keys ...OrderKey) error {
	if err := q.check("OrderBy"); err != nil {
		return err
	}
	q.OrderBy = append(q.OrderBy, keys...)
	return nil
}

// SetProjection sets the explicit select list.
func (q *Query) SetProjection(p *Projection) error {
	if err := q.check("Select"); err != nil {
		return err
	}
	if p == nil || len(p.Items) == 0 {
		return NewModelBuildError("Select", "projection is empty")
	}
	seen := make(map[string]bool, len(p.Items))
	for _, item := range p.Items {
		if seen[item.Name] {
			return NewModelBuildError("Select", "duplicate output name %s", item.Name)
		}
		seen[item.Name] = true
	}
	if path, ok := q.manyNavigation(); ok {
		return NewModelBuildError("Select", "projected rows cannot load the one-to-many navigation %s", path)
	}
	q.Projection = p
	return nil
}

// SetDistinct sets DISTINCT. Last write wins.
func (q *Query) SetDistinct(distinct bool) error {
	if err := q.check("Distinct"); err != nil {
		return err
	}
	q.Distinct = distinct
	return nil
}

// SetSkip sets the number of rows to skip. Last write wins.
func (q *Query) SetSkip(n int) error {
	if err := q.check("Skip"); err != nil {
		return err
	}
	if n < 0 {
		return NewModelBuildError("Skip", "negative skip %d", n)
	}
	q.Pagination.Skip = &n
	return nil
}

// SetTake sets the maximum number of rows. Last write wins.
func (q *Query) SetTake(n int) error {
	if err := q.check("Take"); err != nil {
		return err
	}
	if n < 0 {
		return NewModelBuildError("Take", "negative take %d", n)
	}
	q.Pagination.Take = &n
	return nil
}

// SetPage is Skip((page-1)*size).Take(size).
func (q *Query) SetPage(page, size int) error {
	if page < 1 {
		return NewModelBuildError("Page", "page must be >= 1, got %d", page)
	}
	if size <= 0 {
		return NewModelBuildError("Page", "page size must be > 0, got %d", size)
	}
	if err := q.SetSkip((page - 1) * size); err != nil {
		return err
	}
	return q.SetTake(size)
}

// Arity returns the explicit projection width, or -1 when the projection is
// not set.
func (q *Query) Arity() int {
	if q.Projection == nil {
		return -1
	}
	return len(q.Projection.Items)
}

// AddUnionMember combines m with this query. The anchor projection must be
// set and the arities must match.
func (q *Query) AddUnionMember(m UnionMember) error {
	if err := q.check("Union"); err != nil {
		return err
	}
	if q.Projection == nil {
		return NewModelBuildError("Union", "the anchor query needs a projection before members are added")
	}
	if m.Body == nil {
		return NewModelBuildError("Union", "member query is nil")
	}
	if m.Arity != q.Arity() {
		return NewModelBuildError("Union", "member has %d columns, anchor has %d", m.Arity, q.Arity())
	}
	m.Body.Freeze()
	q.Unions = append(q.Unions, m)
	return nil
}

// AddCte declares a common table expression.
func (q *Query) AddCte(def *CteDefinition) error {
	if err := q.check("WithCte"); err != nil {
		return err
	}
	if def == nil || def.Name == "" {
		return NewModelBuildError("WithCte", "CTE needs a name")
	}
	for _, c := range q.CTEs {
		if c.Name == def.Name {
			return NewModelBuildError("WithCte", "CTE %s declared twice", def.Name)
		}
	}
	for _, t := range q.Tables {
		if t.Source != SourceCte && t.Alias == def.Name {
			return NewModelBuildError("WithCte", "CTE name %s is already a table alias", def.Name)
		}
	}
	if err := def.Validate(); err != nil {
		return err
	}
	declared := map[string]bool{def.Name: true}
	for _, c := range q.CTEs {
		declared[c.Name] = true
	}
	for _, name := range def.Body.CteReferences() {
		if !declared[name] {
			return NewModelBuildError("WithCte", "CTE %s references undeclared CTE %s", def.Name, name)
		}
	}
	def.Body.Freeze()
	q.CTEs = append(q.CTEs, def)
	return nil
}

// Validate checks the structure of a CTE definition.
func (def *CteDefinition) Validate() error {
	if def.Body == nil {
		return NewModelBuildError("WithCte", "CTE %s has no body", def.Name)
	}
	if len(def.Columns) > 0 && len(def.Columns) != def.Arity {
		return NewModelBuildError("WithCte", "CTE %s declares %d columns, body has %d", def.Name, len(def.Columns), def.Arity)
	}
	if !def.Recursive {
		if def.Body.references(def.Name) {
			return NewModelBuildError("WithCte", "CTE %s references itself but is not recursive", def.Name)
		}
		return nil
	}
	recursive := 0
	for _, m := range def.Body.Unions {
		if !m.Recursive {
			continue
		}
		recursive++
		if !m.Body.references(def.Name) {
			return NewModelBuildError("WithCte", "recursive member of %s does not reference %s", def.Name, def.Name)
		}
	}
	if recursive == 0 {
		return NewModelBuildError("WithCte", "recursive CTE %s has no recursive member", def.Name)
	}
	return nil
}

// CteReferences lists CTE names referenced by the query and its members.
func (q *Query) CteReferences() []string {
	var names []string
	seen := make(map[string]bool)
	var visit func(*Query)
	visit = func(x *Query) {
		for _, t := range x.Tables {
			switch t.Source {
			case SourceCte:
				if !seen[t.CteName] {
					seen[t.CteName] = true
					names = append(names, t.CteName)
				}
			case SourceDerived:
				visit(t.Derived)
			}
		}
		for _, m := range x.Unions {
			visit(m.Body)
		}
	}
	visit(q)
	return names
}

func (q *Query) references(cte string) bool {
	for _, name := range q.CteReferences() {
		if name == cte {
			return true
		}
	}
	return false
}

// AddNavigation records an eager-loaded navigation.
func (q *Query) AddNavigation(spec NavigationSpec) error {
	if err := q.check("Include"); err != nil {
		return err
	}
	if spec.Many && spec.Child == nil {
		return NewModelBuildError("Include", "one-to-many navigation %v has no child query", spec.Path)
	}
	if spec.Many && (q.Projection != nil || q.Grouped()) {
		return NewModelBuildError("Include", "one-to-many navigation %s needs entity rows, not a projection", strings.Join(spec.Path, "."))
	}
	if spec.Child != nil {
		spec.Child.Freeze()
	}
	q.Navigations = append(q.Navigations, spec)
	return nil
}

func (q *Query) manyNavigation() (string, bool) {
	for _, n := range q.Navigations {
		if n.Many {
			return strings.Join(n.Path, "."), true
		}
	}
	return "", false
}

// Clone returns an unfrozen copy. Nodes and embedded sub-queries are shared;
// they are immutable.
func (q *Query) Clone() *Query {
	c := *q
	c.Tables = append([]TableRef(nil), q.Tables...)
	c.Joins = append([]JoinClause(nil), q.Joins...)
	c.GroupBy = append([]Node(nil), q.GroupBy...)
	c.OrderBy = append([]OrderKey(nil), q.OrderBy...)
	c.CTEs = append([]*CteDefinition(nil), q.CTEs...)
	c.Unions = append([]UnionMember(nil), q.Unions...)
	c.Navigations = append([]NavigationSpec(nil), q.Navigations...)
	if q.Projection != nil {
		p := Projection{Items: append([]ProjectionItem(nil), q.Projection.Items...)}
		c.Projection = &p
	}
	c.navTables = make(map[string]int, len(q.navTables))
	for k, v := range q.navTables {
		c.navTables[k] = v
	}
	c.frozen = false
	return &c
}
