package reports

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pastRange ends well in the past, so cached entries never invalidate.
var pastRange = DateRange{
	Start: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2023, 6, 8, 0, 0, 0, 0, time.UTC),
}

// liveRange covers "now" with the given duration, ending an hour ahead.
func liveRange(d time.Duration) DateRange {
	end := time.Now().UTC().Add(time.Hour)
	return DateRange{Start: end.Add(-d), End: end}
}

func TestShouldInvalidate(t *testing.T) {
	now := time.Now().UTC()

	t.Run("past ranges never invalidate", func(t *testing.T) {
		assert.False(t, shouldInvalidate(pastRange, now.Add(-48*time.Hour)))
	})

	testCases := []struct {
		name  string
		rng   DateRange
		age   time.Duration
		stale bool
	}{
		{name: "day range, fresh", rng: liveRange(24 * time.Hour), age: 30 * time.Second, stale: false},
		{name: "day range, stale", rng: liveRange(24 * time.Hour), age: 61 * time.Second, stale: true},
		{name: "month range, fresh", rng: liveRange(20 * 24 * time.Hour), age: 4 * time.Minute, stale: false},
		{name: "month range, stale", rng: liveRange(20 * 24 * time.Hour), age: 6 * time.Minute, stale: true},
		{name: "year range, fresh", rng: liveRange(100 * 24 * time.Hour), age: 29 * time.Minute, stale: false},
		{name: "year range, stale", rng: liveRange(100 * 24 * time.Hour), age: 31 * time.Minute, stale: true},
		{name: "multi-year range, fresh", rng: liveRange(400 * 24 * time.Hour), age: 59 * time.Minute, stale: false},
		{name: "multi-year range, stale", rng: liveRange(400 * 24 * time.Hour), age: 61 * time.Minute, stale: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.stale, shouldInvalidate(tc.rng, now.Add(-tc.age)))
		})
	}
}

func TestFlightCacheMemoizes(t *testing.T) {
	c := newFlightCache[int](16)
	var computes atomic.Int64

	compute := func() (int, error) {
		computes.Add(1)
		return 42, nil
	}

	v, err := c.getOrCompute("k", pastRange, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.getOrCompute("k", pastRange, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int64(1), computes.Load())
}

func TestFlightCacheSingleFlight(t *testing.T) {
	c := newFlightCache[int](16)
	var computes atomic.Int64

	compute := func() (int, error) {
		computes.Add(1)
		time.Sleep(50 * time.Millisecond)
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.getOrCompute("hot-key", pastRange, compute)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), computes.Load())
}

func TestFlightCacheGuardTimeout(t *testing.T) {
	c := newFlightCache[int](16)
	c.guardTimeout = 10 * time.Millisecond

	slowStarted := make(chan struct{})
	go func() {
		_, _ = c.getOrCompute("slow-key", pastRange, func() (int, error) {
			close(slowStarted)
			time.Sleep(300 * time.Millisecond)
			return 1, nil
		})
	}()
	<-slowStarted

	// The second caller joins the in-flight computation, gives up after the
	// guard timeout, and computes on its own.
	start := time.Now()
	v, err := c.getOrCompute("slow-key", pastRange, func() (int, error) {
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestFlightCacheErrorsNotCached(t *testing.T) {
	c := newFlightCache[int](16)
	var computes atomic.Int64
	boom := errors.New("query failed")

	_, err := c.getOrCompute("k", pastRange, func() (int, error) {
		computes.Add(1)
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	// The failure was not memoized: the next call computes again.
	v, err := c.getOrCompute("k", pastRange, func() (int, error) {
		computes.Add(1)
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	v, err = c.getOrCompute("k", pastRange, func() (int, error) {
		computes.Add(1)
		return 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	assert.Equal(t, int64(2), computes.Load())
}

func TestFlightCacheStaleEntryRecomputed(t *testing.T) {
	c := newFlightCache[int](16)
	rng := liveRange(24 * time.Hour)

	c.entries.Add("k", cacheEntry[int]{
		computedAt: time.Now().UTC().Add(-2 * time.Minute),
		value:      1,
	})

	v, err := c.getOrCompute("k", rng, func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// Fresh again right after recompute.
	v, err = c.getOrCompute("k", rng, func() (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCacheKeyNormalization(t *testing.T) {
	t.Run("entities sorted without mutating input", func(t *testing.T) {
		in := []string{"b", "a", "c"}
		out := sortedEntities(in)
		assert.Equal(t, []string{"a", "b", "c"}, out)
		assert.Equal(t, []string{"b", "a", "c"}, in)
	})

	t.Run("filters ordered canonically", func(t *testing.T) {
		a := DimensionFilter{Dimension: DimensionPath, FilterType: FilterEqual, Value: "/x"}
		b := DimensionFilter{Dimension: DimensionBrowser, FilterType: FilterEqual, Value: "firefox"}

		assert.Equal(t, filtersKey(sortedFilters([]DimensionFilter{a, b})),
			filtersKey(sortedFilters([]DimensionFilter{b, a})))
	})

	t.Run("key distinguishes parts", func(t *testing.T) {
		assert.NotEqual(t, cacheKey("ab", "c"), cacheKey("a", "bc"))
		assert.NotEqual(t, rangeKey(pastRange), rangeKey(pastRange.Prev()))
	})
}
