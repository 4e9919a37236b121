package csync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlice_Basics(t *testing.T) {
	s := NewSlice[string]()
	require.True(t, s.IsEmpty())

	s.Append("queued", "processing")
	require.Equal(t, 2, s.Len())

	v, ok := s.Get(1)
	require.True(t, ok)
	require.Equal(t, "processing", v)

	_, ok = s.Get(5)
	require.False(t, ok)

	first, ok := s.First()
	require.True(t, ok)
	require.Equal(t, "queued", first)

	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, "processing", last)
}

func TestSlice_CappedLogTrimming(t *testing.T) {
	// The dashboard caps its event log by dropping the oldest line.
	s := NewSliceFrom([]string{"a", "b", "c", "d"})

	keep := 2
	for s.Len() > keep {
		require.True(t, s.RemoveAt(0))
	}
	require.Equal(t, []string{"c", "d"}, s.ToSlice())

	require.False(t, s.RemoveAt(7))
}

func TestSlice_ToSliceIsACopy(t *testing.T) {
	s := NewSliceFrom([]string{"a", "b"})

	out := s.ToSlice()
	out[0] = "mutated"

	v, _ := s.Get(0)
	require.Equal(t, "a", v)
}

func TestSlice_ConcurrentAppends(t *testing.T) {
	s := NewSlice[int]()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Append(n)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 64, s.Len())
}
