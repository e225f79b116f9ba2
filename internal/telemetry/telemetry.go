// Package telemetry collects in-process query execution statistics.
package telemetry

import (
	"errors"
	"sync"
	"time"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

// Event is one executed statement.
type Event struct {
	StatementID string
	Dialect     string
	Shape       string
	Rows        int
	Includes    int
	Duration    time.Duration
	Err         error
	Timestamp   time.Time
}

// Recorder receives execution events.
type Recorder interface {
	Record(Event)
}

// Stats is a point-in-time summary of recorded events.
type Stats struct {
	Queries       int64
	Rows          int64
	Errors        int64
	Cancellations int64
	TotalDuration time.Duration
	// Shapes counts executions per distinct query shape.
	Shapes map[string]int64
}

// Collector aggregates events and forwards them in batches to an optional sink.
type Collector struct {
	mu        sync.Mutex
	stats     Stats
	events    []Event
	batchSize int
	sink      func([]Event)
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a collector. Events are handed to sink every
// batchSize records; a nil sink only keeps counters.
func NewCollector(batchSize int, sink func([]Event)) *Collector {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Collector{
		stats:     Stats{Shapes: make(map[string]int64)},
		batchSize: batchSize,
		sink:      sink,
	}
}

// Record adds an event.
func (c *Collector) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.stats.Queries++
	c.stats.Rows += int64(e.Rows)
	c.stats.TotalDuration += e.Duration
	if e.Shape != "" {
		c.stats.Shapes[e.Shape]++
	}
	switch {
	case e.Err == nil:
	case errors.Is(e.Err, domain.ErrCanceled):
		c.stats.Cancellations++
	default:
		c.stats.Errors++
	}

	var batch []Event
	if c.sink != nil {
		c.events = append(c.events, e)
		if len(c.events) >= c.batchSize {
			batch = c.events
			c.events = nil
		}
	}
	c.mu.Unlock()

	if batch != nil {
		c.sink(batch)
	}
}

// Flush hands any buffered events to the sink.
func (c *Collector) Flush() {
	c.mu.Lock()
	batch := c.events
	c.events = nil
	c.mu.Unlock()

	if len(batch) > 0 && c.sink != nil {
		c.sink(batch)
	}
}

// Snapshot returns a copy of the current statistics.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Shapes = make(map[string]int64, len(c.stats.Shapes))
	for k, v := range c.stats.Shapes {
		s.Shapes[k] = v
	}
	return s
}

// Reset clears statistics and buffered events.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{Shapes: make(map[string]int64)}
	c.events = nil
}

// Nop discards events.
type Nop struct{}

// Record does nothing.
func (Nop) Record(Event) {}
