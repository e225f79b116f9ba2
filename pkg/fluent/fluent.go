// Package fluent is the typed query surface: build a query from entity
// types and expression callbacks, then render it or run it.
//
//	db, _ := fluent.Open(conn, dialect.Postgres{}, registry)
//	q := fluent.From[Order](db).
//		Where(func(t expr.Tables) expr.Expr { return t[0].F("Id").Gt(1) }).
//		Select(func(t expr.Tables) expr.Expr { return expr.New(t[0].F("Id"), t[0].F("OrderNo")) })
//	sql, args, err := q.ToSql()
//
// Builders are not safe for concurrent use. The first error raised while
// building is kept and returned by every terminal operation.
package fluent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/satishbabariya/fluentsql/internal/adapters"
	"github.com/satishbabariya/fluentsql/internal/adapters/database"
	"github.com/satishbabariya/fluentsql/internal/config"
	"github.com/satishbabariya/fluentsql/internal/core/query/cache"
	"github.com/satishbabariya/fluentsql/internal/core/query/compiler"
	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
	"github.com/satishbabariya/fluentsql/internal/core/query/executor"
	"github.com/satishbabariya/fluentsql/internal/core/query/translator"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
	"github.com/satishbabariya/fluentsql/internal/debug"
	"github.com/satishbabariya/fluentsql/internal/telemetry"
)

// Re-exported types.
type (
	Registry         = schema.Registry
	Entity           = schema.Entity
	Dialect          = dialect.Dialect
	Querier          = database.Querier
	CompiledQuery    = domain.CompiledQuery
	TranslationError = domain.TranslationError
	ModelBuildError  = domain.ModelBuildError
	RenderError      = domain.RenderError
	ExecutionError   = domain.ExecutionError
	Stats            = telemetry.Stats
)

var (
	// NewRegistry creates an empty metadata registry.
	NewRegistry = schema.NewRegistry
	// NewDialect returns the dialect for a provider name.
	NewDialect = dialect.New
	// Wrap adapts a caller-managed *sql.DB, *sql.Tx or *sql.Conn.
	Wrap = database.Wrap

	ErrCanceled        = domain.ErrCanceled
	ErrUnknownEntity   = schema.ErrUnknownEntity
	IsTranslationError = domain.IsTranslationError
	IsModelBuildError  = domain.IsModelBuildError
	IsRenderError      = domain.IsRenderError
	IsExecutionError   = domain.IsExecutionError
	IsCanceled         = domain.IsCanceled
)

var (
	// ErrNoRows is returned by First when the query matched nothing.
	ErrNoRows = errors.New("fluentsql: no rows in result set")
	// ErrNoConnection is returned by terminals of a DB opened without a connection.
	ErrNoConnection = errors.New("fluentsql: no connection")
)

// DB binds a dialect, a frozen registry and an optional connection.
type DB struct {
	registry   *schema.Registry
	dialect    dialect.Dialect
	compiler   *compiler.Compiler
	translator *translator.Translator
	executor   *executor.Executor
	stats      *telemetry.Collector
	aliasStart rune
	closer     database.Adapter
}

type options struct {
	aliasStart rune
	cacheSize  int
	cacheTTL   time.Duration
	logger     *slog.Logger
	sink       func([]telemetry.Event)
}

// Option configures a DB.
type Option func(*options)

// WithAliasStart sets the first table alias letter (default 'a').
func WithAliasStart(r rune) Option {
	return func(o *options) { o.aliasStart = r }
}

// WithPlanCache sets the compiled plan cache size and entry lifetime. A zero
// size disables caching.
func WithPlanCache(size int, ttl time.Duration) Option {
	return func(o *options) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithLogger sets the logger for pipeline stage logs.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTelemetrySink forwards execution events to sink in batches.
func WithTelemetrySink(sink func([]telemetry.Event)) Option {
	return func(o *options) { o.sink = sink }
}

// Open creates a DB. conn may be nil when only SQL rendering is needed. The
// registry is frozen.
func Open(conn database.Querier, d dialect.Dialect, registry *schema.Registry, opts ...Option) (*DB, error) {
	if d == nil {
		return nil, errors.New("fluentsql: dialect is required")
	}
	if registry == nil {
		return nil, errors.New("fluentsql: registry is required")
	}
	o := options{aliasStart: 'a', cacheSize: 256}
	for _, opt := range opts {
		opt(&o)
	}
	if o.aliasStart < 'a' || o.aliasStart > 'z' {
		return nil, errors.New("fluentsql: alias start must be a lowercase letter")
	}
	if !registry.Frozen() {
		if err := registry.Freeze(); err != nil {
			return nil, err
		}
	}

	db := &DB{
		registry:   registry,
		dialect:    d,
		compiler:   compiler.New(d, registry, compiler.WithPlanCache(o.cacheSize, o.cacheTTL)),
		translator: translator.New(registry),
		stats:      telemetry.NewCollector(0, o.sink),
		aliasStart: o.aliasStart,
	}
	if conn != nil {
		db.executor = executor.NewExecutor(conn, db.compiler,
			executor.WithLogger(o.logger),
			executor.WithRecorder(db.stats),
		)
	}
	return db, nil
}

// OpenConfig connects the adapter described by cfg and opens a DB on it.
func OpenConfig(ctx context.Context, cfg *config.Config, registry *schema.Registry, opts ...Option) (*DB, error) {
	if cfg.Debug {
		debug.Init(true)
	}
	adapter, err := adapters.NewAdapter(cfg.Database())
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, err
	}

	base := []Option{
		WithAliasStart(cfg.AliasRune()),
		WithPlanCache(cfg.PlanCacheSize, cfg.PlanCacheTTL),
	}
	db, err := Open(adapter, adapter.Dialect(), registry, append(base, opts...)...)
	if err != nil {
		adapter.Disconnect(ctx)
		return nil, err
	}
	db.closer = adapter
	return db, nil
}

// Close flushes telemetry, drops cached plans and disconnects an adapter
// opened by OpenConfig.
func (db *DB) Close(ctx context.Context) error {
	db.stats.Flush()
	db.compiler.ResetPlans()
	if db.closer == nil {
		return nil
	}
	return db.closer.Disconnect(ctx)
}

// Registry returns the frozen metadata registry.
func (db *DB) Registry() *schema.Registry { return db.registry }

// Dialect returns the SQL dialect.
func (db *DB) Dialect() dialect.Dialect { return db.dialect }

// Stats returns execution statistics.
func (db *DB) Stats() telemetry.Stats { return db.stats.Snapshot() }

// CacheStats returns plan cache statistics.
func (db *DB) CacheStats() cache.Stats { return db.compiler.CacheStats() }
