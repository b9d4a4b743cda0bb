package market

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheServesFreshValueWithoutRefetch(t *testing.T) {
	c := newTTLCache(50*time.Millisecond, time.Second)
	var calls int32

	fetch := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	v1, err := c.GetOrFetch("k", fetch)
	assert.NoError(t, err)
	assert.Equal(t, "value", v1)

	v2, err := c.GetOrFetch("k", fetch)
	assert.NoError(t, err)
	assert.Equal(t, "value", v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTTLCacheCoalescesConcurrentFetches(t *testing.T) {
	c := newTTLCache(time.Millisecond, time.Second)
	var calls int32
	var wg sync.WaitGroup

	fetch := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrFetch("same-key", fetch)
			assert.NoError(t, err)
			assert.Equal(t, "value", v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTTLCacheServesStaleOnFetchError(t *testing.T) {
	c := newTTLCache(time.Millisecond, time.Minute)

	_, err := c.GetOrFetch("k", func() (interface{}, error) { return "first", nil })
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	v, err := c.GetOrFetch("k", func() (interface{}, error) {
		return nil, assertError{"boom"}
	})
	assert.NoError(t, err)
	assert.Equal(t, "first", v)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestComputeScheduleOpeningWindow(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	open := time.Date(2026, 7, 29, 9, 45, 0, 0, loc)
	s := computeSchedule(open)
	assert.Equal(t, SessionOpening, s.Session)
	assert.True(t, s.IsFirst30Min)
	assert.True(t, s.IsOpen)
}

func TestComputeScheduleWeekendClosed(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	sat := time.Date(2026, 8, 1, 12, 0, 0, 0, loc)
	s := computeSchedule(sat)
	assert.Equal(t, SessionClosed, s.Session)
	assert.False(t, s.IsOpen)
}
