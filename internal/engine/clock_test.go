package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Logical(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	at := NewClockAt(100)
	assert.Equal(t, int64(101), at.Next())
}

func TestClock_WallStrictlyIncreasing(t *testing.T) {
	c := &Clock{now: func() int64 { return 500 }}

	assert.Equal(t, int64(500), c.Next())
	assert.Equal(t, int64(501), c.Next(), "a stalled wall clock is bumped")
	assert.Equal(t, int64(502), c.Next())
}

func TestClock_WallFollowsTime(t *testing.T) {
	now := int64(10)
	c := &Clock{now: func() int64 { return now }}

	assert.Equal(t, int64(10), c.Next())
	now = 50
	assert.Equal(t, int64(50), c.Next())
	now = 20
	assert.Equal(t, int64(51), c.Next(), "never goes backwards")
}

func TestClock_ConcurrentUnique(t *testing.T) {
	clocks := map[string]*Clock{
		"logical": NewClock(),
		"wall":    NewWallClock(),
	}
	for name, c := range clocks {
		t.Run(name, func(t *testing.T) {
			const goroutines, calls = 50, 100
			var (
				mu   sync.Mutex
				seen = map[int64]bool{}
				wg   sync.WaitGroup
			)
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < calls; i++ {
						v := c.Next()
						mu.Lock()
						assert.False(t, seen[v], "stamp %d handed out twice", v)
						seen[v] = true
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Len(t, seen, goroutines*calls)
		})
	}
}
