package arbitrary

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInflightTryAcquireRelease(t *testing.T) {
	f := NewInflightFetches()

	assert.True(t, f.TryAcquire("h1", 100))
	assert.False(t, f.TryAcquire("h1", 200))
	assert.True(t, f.Contains("h1"))

	f.Release("h1")
	assert.False(t, f.Contains("h1"))
	assert.True(t, f.TryAcquire("h1", 300))
}

func TestInflightSingleFlightUnderContention(t *testing.T) {
	f := NewInflightFetches()

	const goroutines = 32
	wins := make(chan bool, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			wins <- f.TryAcquire("contested", int64(n))
		}(i)
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestInflightRemoveOlderThan(t *testing.T) {
	f := NewInflightFetches()
	f.TryAcquire("old", 10)
	f.TryAcquire("new", 200)

	f.RemoveOlderThan(100)

	assert.False(t, f.Contains("old"))
	assert.True(t, f.Contains("new"))
	assert.Equal(t, 1, f.Len())
}
