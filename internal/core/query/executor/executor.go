// Package executor sends compiled queries to a connection and materializes
// their rows, resolving eager-loaded navigations.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/core/query/compiler"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/internal/core/query/mapper"
	"github.com/satishbabariya/fluentsql/internal/debug"
	"github.com/satishbabariya/fluentsql/internal/telemetry"
)

// Executor executes compiled queries and maps results. It never opens or
// closes connections.
type Executor struct {
	conn     database.Querier
	compiler *compiler.Compiler
	mapper   *mapper.ResultMapper
	logger   *slog.Logger
	recorder telemetry.Recorder
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for pipeline stage logs.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r telemetry.Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewExecutor creates an executor. The compiler is used for follow-up
// include queries.
func NewExecutor(conn database.Querier, c *compiler.Compiler, opts ...Option) *Executor {
	e := &Executor{
		conn:     conn,
		compiler: c,
		mapper:   mapper.NewResultMapper(c.Registry()),
		logger:   debug.Logger(),
		recorder: telemetry.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compiler returns the compiler used for follow-up queries.
func (e *Executor) Compiler() *compiler.Compiler {
	return e.compiler
}

// List executes cq and stores the materialized rows in dest, which must be a
// pointer to a slice.
func (e *Executor) List(ctx context.Context, cq *domain.CompiledQuery, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("dest must be a pointer to slice, got %T", dest)
	}
	out, err := e.list(ctx, cq, dv.Elem().Type())
	if err != nil {
		return err
	}
	dv.Elem().Set(out)
	return nil
}

// Scalar reads the first row of cq into dest, which must be a pointer. It
// reports false when the query returned no rows.
func (e *Executor) Scalar(ctx context.Context, cq *domain.CompiledQuery, dest any) (bool, error) {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return false, fmt.Errorf("dest must be a non-nil pointer, got %T", dest)
	}
	found := false
	_, err := e.run(ctx, cq, dv.Elem().Type(), func(v reflect.Value) error {
		if !found {
			dv.Elem().Set(v)
			found = true
		}
		return nil
	})
	return found, err
}

// Stream calls fn with each materialized row of type t. Rows are handed over
// as they are read unless the query has one-to-many includes, which need the
// full parent set first.
func (e *Executor) Stream(ctx context.Context, cq *domain.CompiledQuery, t reflect.Type, fn func(reflect.Value) error) error {
	if len(cq.Plan.Many) == 0 {
		_, err := e.run(ctx, cq, t, fn)
		return err
	}
	all, err := e.list(ctx, cq, reflect.SliceOf(t))
	if err != nil {
		return err
	}
	for i := 0; i < all.Len(); i++ {
		if err := domain.CheckContext(ctx); err != nil {
			return err
		}
		if err := fn(all.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) list(ctx context.Context, cq *domain.CompiledQuery, sliceType reflect.Type) (reflect.Value, error) {
	out := reflect.MakeSlice(sliceType, 0, 0)
	_, err := e.run(ctx, cq, sliceType.Elem(), func(v reflect.Value) error {
		out = reflect.Append(out, v)
		return nil
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if len(cq.Plan.Many) > 0 && out.Len() > 0 {
		if err := e.resolveIncludes(ctx, cq.Plan, out); err != nil {
			return reflect.Value{}, err
		}
	}
	return out, nil
}

// run sends the statement and materializes each row into t.
func (e *Executor) run(ctx context.Context, cq *domain.CompiledQuery, t reflect.Type, each func(reflect.Value) error) (n int, err error) {
	log := e.logger.With("stmt", uuid.NewString())
	start := time.Now()
	defer func() {
		e.recorder.Record(telemetry.Event{
			Dialect:  cq.Dialect,
			Shape:    cq.Shape,
			Rows:     n,
			Duration: time.Since(start),
			Err:      err,
		})
		if err != nil {
			log.Debug("query failed", "error", err)
		}
	}()

	if err := domain.CheckContext(ctx); err != nil {
		return 0, err
	}
	log.Debug("query", "stage", domain.StageCompiled, "sql", cq.SQL, "args", cq.Args)

	rows, err := e.conn.Query(ctx, cq.SQL, cq.Args...)
	if err != nil {
		return 0, e.failure(ctx, cq, err)
	}
	defer rows.Close()
	log.Debug("query", "stage", domain.StageExecuted, "duration", time.Since(start))

	columns, err := rows.Columns()
	if err != nil {
		return 0, e.failure(ctx, cq, err)
	}
	if cq.Plan.Kind == domain.ResultEntity && len(columns) != len(cq.Plan.Columns) {
		return 0, &domain.ExecutionError{
			SQL:   cq.SQL,
			Args:  cq.Args,
			Cause: fmt.Errorf("expected %d columns, got %d", len(cq.Plan.Columns), len(columns)),
		}
	}
	plan := cq.Plan
	if plan.Kind == domain.ResultProjection && len(plan.Columns) != len(columns) {
		p := *plan
		p.Columns = columns
		plan = &p
	}

	for rows.Next() {
		if err := domain.CheckContext(ctx); err != nil {
			return n, err
		}
		values, err := mapper.ScanRow(rows, len(columns))
		if err != nil {
			return n, e.failure(ctx, cq, err)
		}
		v, err := e.mapper.Materialize(plan, values, t)
		if err != nil {
			return n, &domain.ExecutionError{SQL: cq.SQL, Args: cq.Args, Cause: err}
		}
		if err := each(v); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, e.failure(ctx, cq, err)
	}
	log.Debug("query", "stage", domain.StageMaterialized, "rows", n, "duration", time.Since(start))
	return n, nil
}

// failure classifies a driver error. Errors caused by a done context are
// reported as cancellation.
func (e *Executor) failure(ctx context.Context, cq *domain.CompiledQuery, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Canceled(ctxErr)
	}
	return &domain.ExecutionError{SQL: cq.SQL, Args: cq.Args, Cause: err}
}
