package catalogue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookproxy/internal/types"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func TestCache(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCache(10 * time.Minute)
	c.now = clock.now

	_, ok := c.Get()
	assert.False(t, ok, "empty at start")

	c.Set([]types.CatalogueEntry{{Id: "1", Title: "A"}})
	assert.True(t, c.Fresh())

	clock.t = clock.t.Add(9*time.Minute + 59*time.Second)
	got, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, "A", got[0].Title)

	clock.t = clock.t.Add(time.Second)
	assert.False(t, c.Fresh(), "expires at exactly ttl")

	c.Set([]types.CatalogueEntry{{Id: "2", Title: "B"}})
	got, ok = c.Get()
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].Id, "writes replace wholesale")
}

func TestCacheEmptyIsNeverFresh(t *testing.T) {
	c := NewCache(time.Hour)
	c.Set(nil)

	assert.False(t, c.Fresh())
}

func TestCacheGetReturnsCopy(t *testing.T) {
	c := NewCache(time.Hour)
	c.Set([]types.CatalogueEntry{{Title: "A"}})

	got, _ := c.Get()
	got[0].Title = "changed"

	again, _ := c.Get()
	assert.Equal(t, "A", again[0].Title)
}

func TestNewCacheDefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, NewCache(0).ttl)
}
