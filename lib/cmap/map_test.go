package cmap_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velum/chaind/lib/cmap"
)

func TestSetGetDelete(t *testing.T) {
	m := cmap.NewMap[string, int]()

	m.Set("a", 1)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, *v)

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestSetIfAbsent(t *testing.T) {
	m := cmap.NewMap[int, string]()

	assert.True(t, m.SetIfAbsent(1, "first"))
	assert.False(t, m.SetIfAbsent(1, "second"))

	v, _ := m.Get(1)
	assert.Equal(t, "first", *v)
}

func TestSetIfAbsentConcurrent(t *testing.T) {
	m := cmap.NewMap[string, int]()

	const goroutines = 64
	wins := make(chan bool, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			wins <- m.SetIfAbsent("key", n)
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
	assert.Equal(t, 1, m.Len())
}

func TestRangeAndLen(t *testing.T) {
	m := cmap.NewMap[int, int]()
	for i := 0; i < 5; i++ {
		m.Set(i, i*i)
	}

	assert.Equal(t, 5, m.Len())

	seen := map[int]int{}
	m.Range(func(k, v int) bool {
		seen[k] = v
		return true
	})
	assert.Len(t, seen, 5)
	assert.Equal(t, 16, seen[4])
}
