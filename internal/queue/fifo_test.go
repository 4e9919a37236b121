package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruvelro/maca-engine/internal/media"
)

func testJob(id string) *Job {
	return newJob(media.Candidate{ID: id, ImageURL: "https://x/" + id}, nil)
}

func TestFIFO_Order(t *testing.T) {
	q := newFIFO()

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, q.Push(testJob(id)))
	}
	require.Equal(t, 3, q.Len())

	require.Equal(t, "a", q.Pop().Candidate.ID)
	require.Equal(t, "b", q.Pop().Candidate.ID)
	require.Equal(t, "c", q.Pop().Candidate.ID)
	require.Equal(t, 0, q.Len())
}

func TestFIFO_PopBlocksUntilPush(t *testing.T) {
	q := newFIFO()

	got := make(chan *Job, 1)
	go func() { got <- q.Pop() }()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(30 * time.Millisecond):
	}

	require.True(t, q.Push(testJob("a")))
	select {
	case j := <-got:
		require.Equal(t, "a", j.Candidate.ID)
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up")
	}
}

func TestFIFO_CloseWakesPopAndDiscards(t *testing.T) {
	q := newFIFO()
	require.True(t, q.Push(testJob("a")))

	got := make(chan *Job, 1)
	go func() {
		q.Pop() // drains "a"
		got <- q.Pop()
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case j := <-got:
		require.Nil(t, j)
	case <-time.After(time.Second):
		t.Fatal("Pop never returned after Close")
	}

	require.False(t, q.Push(testJob("b")))
	require.Nil(t, q.TryPop())
}

func TestFIFO_TryPop(t *testing.T) {
	q := newFIFO()
	require.Nil(t, q.TryPop())

	q.Push(testJob("a"))
	j := q.TryPop()
	require.NotNil(t, j)
	require.Equal(t, "a", j.Candidate.ID)
	require.Nil(t, q.TryPop())
}
