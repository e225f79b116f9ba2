package telemetry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/satishbabariya/fluentsql/internal/core/query/domain"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector(0, nil)
	c.Record(Event{Shape: "s1", Rows: 3, Duration: time.Millisecond})
	c.Record(Event{Shape: "s1", Rows: 1, Duration: time.Millisecond})
	c.Record(Event{Shape: "s2", Err: errors.New("boom")})
	c.Record(Event{Shape: "s2", Err: domain.Canceled(errors.New("context canceled"))})

	s := c.Snapshot()
	assert.Equal(t, int64(4), s.Queries)
	assert.Equal(t, int64(4), s.Rows)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.Cancellations)
	assert.Equal(t, 2*time.Millisecond, s.TotalDuration)
	assert.Equal(t, map[string]int64{"s1": 2, "s2": 2}, s.Shapes)

	s.Shapes["s1"] = 100
	assert.Equal(t, int64(2), c.Snapshot().Shapes["s1"])

	c.Reset()
	assert.Zero(t, c.Snapshot().Queries)
}

func TestCollector_Batches(t *testing.T) {
	var batches [][]Event
	c := NewCollector(2, func(events []Event) {
		batches = append(batches, events)
	})
	for i := 0; i < 5; i++ {
		c.Record(Event{StatementID: fmt.Sprint(i)})
	}
	assert.Len(t, batches, 2)

	c.Flush()
	assert.Len(t, batches, 3)
	assert.Equal(t, "4", batches[2][0].StatementID)
	assert.False(t, batches[0][0].Timestamp.IsZero())
}
