package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[string](2, 0)
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)

	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("c", "3", 0)

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Evictions)
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", 1, 0)
	c.Set("forever", 2, -1)

	now = now.Add(2 * time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)
}

func TestLRUCache_Clear(t *testing.T) {
	c := NewLRUCache[int](10, 0)
	c.Set(Key("plan", "postgres", "a"), 1, 0)
	c.Set(Key("plan", "mysql", "a"), 2, 0)
	_, _ = c.Get(Key("plan", "mysql", "a"))
	assert.Equal(t, 2, c.Stats().Size)

	c.Clear()
	assert.Equal(t, Stats{MaxSize: 10}, c.Stats())
	_, ok := c.Get(Key("plan", "postgres", "a"))
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("plan", "a", "bc"), Key("plan", "a", "bc"))
	assert.NotEqual(t, Key("plan", "ab", "c"), Key("plan", "a", "bc"))
	assert.Len(t, Key("plan", "x"), len("plan:")+32)
}
