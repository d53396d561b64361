package shader

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheHit(t *testing.T) {
	c := NewCache(4)
	a, err := c.Compile(Source())
	require.NoError(t, err)
	b, err := c.Compile(Source())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, CacheStats{Len: 1, Hits: 1, Misses: 1}, c.Stats())
}

func TestCacheErrorsNotCached(t *testing.T) {
	c := NewCache(4)
	_, err := c.Compile("fn broken( {")
	require.Error(t, err)
	_, err = c.Compile("fn broken( {")
	require.Error(t, err)
	assert.Equal(t, CacheStats{Misses: 2}, c.Stats())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	// Distinct sources that compile to the same program.
	src := func(i int) string { return Source() + strings.Repeat("\n", i) }

	c := NewCache(2)
	for i := 0; i < 2; i++ {
		_, err := c.Compile(src(i))
		require.NoError(t, err)
	}
	// Touch 0 so that 1 is the oldest.
	_, err := c.Compile(src(0))
	require.NoError(t, err)
	_, err = c.Compile(src(2))
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, 2, s.Len)
	assert.Equal(t, uint64(1), s.Evictions)

	_, err = c.Compile(src(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.Stats().Hits, "source 0 survived eviction")
}

func TestCacheConcurrent(t *testing.T) {
	c := NewCache(0)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Compile(Source())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	s := c.Stats()
	assert.Equal(t, 1, s.Len)
	assert.Equal(t, uint64(8), s.Hits+s.Misses)
}
