package fluent

import (
	"context"
	"fmt"
	"reflect"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// Compile freezes the query and renders it. Further builder calls fail.
func (s *Select) Compile() (*domain.CompiledQuery, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.db.compiler.Compile(s.q)
}

// ToSql renders the statement and its parameters. Rendering is repeatable:
// calling it again returns identical text and parameters.
func (s *Select) ToSql() (string, []any, error) {
	cq, err := s.Compile()
	if err != nil {
		return "", nil, err
	}
	return cq.SQL, cq.Args, nil
}

func (s *Select) run() (*domain.CompiledQuery, error) {
	cq, err := s.Compile()
	if err != nil {
		return nil, err
	}
	if s.db.executor == nil {
		return nil, ErrNoConnection
	}
	return cq, nil
}

// ToList runs the query and stores all rows in dest, a pointer to a slice of
// entities, projection structs, scalars or map[string]any.
func (s *Select) ToList(ctx context.Context, dest any) error {
	cq, err := s.run()
	if err != nil {
		return err
	}
	return s.db.executor.List(ctx, cq, dest)
}

// First runs the query limited to one row and stores it in dest, a pointer.
// It returns ErrNoRows when nothing matched. The receiver is left untouched.
func (s *Select) First(ctx context.Context, dest any) error {
	if s.err != nil {
		return s.err
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("dest must be a non-nil pointer, got %T", dest)
	}
	c := s.clone()
	if len(c.q.Unions) > 0 {
		// Limit the combined rows, not the anchor.
		w := newSelect(s.db)
		ref, err := w.derived(c)
		if err != nil {
			return err
		}
		c = w.from(ref)
	}
	c.Take(1)
	list := reflect.New(reflect.SliceOf(dv.Elem().Type()))
	if err := c.ToList(ctx, list.Interface()); err != nil {
		return err
	}
	if list.Elem().Len() == 0 {
		return ErrNoRows
	}
	dv.Elem().Set(list.Elem().Index(0))
	return nil
}

// Stream runs the query and, for each row, stores it in dest and calls fn.
// Returning an error from fn stops the iteration.
func (s *Select) Stream(ctx context.Context, dest any, fn func() error) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("dest must be a non-nil pointer, got %T", dest)
	}
	cq, err := s.run()
	if err != nil {
		return err
	}
	return s.db.executor.Stream(ctx, cq, dv.Elem().Type(), func(v reflect.Value) error {
		dv.Elem().Set(v)
		return fn()
	})
}

// Count returns the number of rows the query yields.
func (s *Select) Count(ctx context.Context) (int64, error) {
	c, err := s.reduce("Count")
	if err != nil {
		return 0, err
	}
	c.setValue(domain.Aggregate{Func: domain.AggCount})
	var n int64
	if err := c.scalar(ctx, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Any reports whether the query yields at least one row.
func (s *Select) Any(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

// Sum stores the sum of fn over the rows in dest.
func (s *Select) Sum(ctx context.Context, fn Fn, dest any) error {
	return s.aggregate(ctx, domain.AggSum, fn, dest)
}

// Avg stores the average of fn over the rows in dest.
func (s *Select) Avg(ctx context.Context, fn Fn, dest any) error {
	return s.aggregate(ctx, domain.AggAvg, fn, dest)
}

// Min stores the minimum of fn over the rows in dest.
func (s *Select) Min(ctx context.Context, fn Fn, dest any) error {
	return s.aggregate(ctx, domain.AggMin, fn, dest)
}

// Max stores the maximum of fn over the rows in dest.
func (s *Select) Max(ctx context.Context, fn Fn, dest any) error {
	return s.aggregate(ctx, domain.AggMax, fn, dest)
}

func (s *Select) aggregate(ctx context.Context, agg domain.AggFunc, fn Fn, dest any) error {
	if fn == nil && s.err == nil {
		return missing("aggregate value")
	}
	c, err := s.reduce(string(agg))
	if err != nil {
		return err
	}
	e := fn(c.tables())
	arg, err := c.db.translator.Scalar(e, c)
	if err != nil {
		return err
	}
	if domain.ContainsAggregate(arg) {
		return &domain.TranslationError{Fragment: e.String(), Reason: "aggregates cannot be nested"}
	}
	c.setValue(domain.Aggregate{Func: agg, Arg: arg})
	return c.scalar(ctx, dest)
}

// reduce returns a query whose rows can be aggregated directly: a copy of
// a plain query, or the query wrapped as a derived table when it groups,
// deduplicates, paginates or combines.
func (s *Select) reduce(op string) (*Select, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.db.executor == nil {
		return nil, ErrNoConnection
	}
	q := s.q
	plain := !q.Grouped() && !q.Distinct && !q.Pagination.IsSet() && len(q.Unions) == 0 && q.Projection == nil
	c := s.clone()
	c.q.OrderBy = nil
	c.q.Navigations = nil
	if plain {
		return c, nil
	}
	if c.q.Pagination.IsSet() {
		c.q.OrderBy = q.OrderBy
	}

	w := newSelect(s.db)
	ref, err := w.derived(c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	w.from(ref)
	return w, w.err
}

func (s *Select) setValue(n domain.Node) {
	s.q.Projection = &domain.Projection{Items: []domain.ProjectionItem{{Name: "Value", Node: n}}}
}

func (s *Select) scalar(ctx context.Context, dest any) error {
	cq, err := s.run()
	if err != nil {
		return err
	}
	_, err = s.db.executor.Scalar(ctx, cq, dest)
	return err
}

// clone copies the builder over an unfrozen copy of its query.
func (s *Select) clone() *Select {
	return &Select{db: s.db, q: s.q.Clone(), scope: append([]int(nil), s.scope...), err: s.err}
}

// List runs s and returns its rows as []T.
func List[T any](ctx context.Context, s *Select) ([]T, error) {
	var out []T
	if err := s.ToList(ctx, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// FirstOf runs s limited to one row and returns it.
func FirstOf[T any](ctx context.Context, s *Select) (T, error) {
	var out T
	err := s.First(ctx, &out)
	return out, err
}

// Each runs s and calls fn with every row as T.
func Each[T any](ctx context.Context, s *Select, fn func(T) error) error {
	var row T
	return s.Stream(ctx, &row, func() error { return fn(row) })
}

// Aggregate applies agg ("SUM", "AVG", "MIN", "MAX", "COUNT") to fn over the
// rows of s and returns the result as T.
func Aggregate[T any](ctx context.Context, s *Select, agg string, fn Fn) (T, error) {
	var out T
	switch domain.AggFunc(agg) {
	case domain.AggCount:
		n, err := s.Count(ctx)
		if err != nil {
			return out, err
		}
		v := reflect.ValueOf(&out).Elem()
		if !reflect.ValueOf(n).Type().ConvertibleTo(v.Type()) {
			return out, fmt.Errorf("cannot store count in %T", out)
		}
		v.Set(reflect.ValueOf(n).Convert(v.Type()))
		return out, nil
	case domain.AggSum, domain.AggAvg, domain.AggMin, domain.AggMax:
		err := s.aggregate(ctx, domain.AggFunc(agg), fn, &out)
		return out, err
	}
	return out, fmt.Errorf("unknown aggregate %q", agg)
}
