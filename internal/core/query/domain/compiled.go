package domain

// Stage is a step of the execution pipeline.
type Stage string

// Pipeline stages in order.
const (
	StageBuilt           Stage = "built"
	StageCompiled        Stage = "compiled"
	StageExecuted        Stage = "executed"
	StageMaterialized    Stage = "materialized"
	StageIncludeResolved Stage = "include_resolved"
)

// ResultKind says how rows map back to values.
type ResultKind int

const (
	// ResultEntity rows hold the primary entity columns followed by one
	// segment per one-to-one include.
	ResultEntity ResultKind = iota
	// ResultProjection rows hold explicitly projected, named columns.
	ResultProjection
)

// Segment is a run of row columns belonging to one entity.
type Segment struct {
	Entity string
	// Path is empty for the primary entity and the navigation path for includes.
	Path  []string
	Start int
	Count int
}

// ResultPlan describes the row layout of a compiled query.
type ResultPlan struct {
	Kind     ResultKind
	Entity   string
	Columns  []string
	Segments []Segment
	// Many lists the one-to-many navigations resolved after the primary query.
	Many []NavigationSpec
}

// CompiledQuery is the rendered SQL, its parameters and its result plan.
type CompiledQuery struct {
	SQL     string
	Args    []any
	Plan    *ResultPlan
	Shape   string
	Dialect string
}
