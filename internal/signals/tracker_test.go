package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock pins the tracker's clock so window math is deterministic.
func fakeClock(t *Tracker) *time.Time {
	now := time.Now()
	t.now = func() time.Time { return now }
	return &now
}

func TestTracker_NoSignalsNoGates(t *testing.T) {
	tr := NewTracker()

	require.False(t, tr.InUploadWindow())
	require.False(t, tr.BatchGate())
	require.False(t, tr.SelectedWithin("1"))
	require.True(t, tr.SessionStart().IsZero())
}

func TestTracker_BatchGateNeedsTwoUploading(t *testing.T) {
	tr := NewTracker()
	fakeClock(tr)

	tr.MarkUploadSignal()
	require.True(t, tr.InUploadWindow())
	require.False(t, tr.BatchGate(), "window alone must not open the gate")

	tr.MarkUploading("1")
	require.False(t, tr.BatchGate(), "one uploading item looks like a manual edit")

	tr.MarkUploading("2")
	require.True(t, tr.BatchGate())
	require.Equal(t, 2, tr.RecentUploadingCount())
}

func TestTracker_WindowExpiry(t *testing.T) {
	tr := NewTracker()
	now := fakeClock(tr)

	tr.MarkUploading("1")
	tr.MarkUploading("2")
	require.True(t, tr.BatchGate())

	*now = now.Add(DefaultUploadWindow + time.Second)
	require.False(t, tr.InUploadWindow())
	require.False(t, tr.BatchGate())
	require.Equal(t, 0, tr.RecentUploadingCount(), "stale uploading entries are pruned")
}

func TestTracker_NewSessionAfterExpiry(t *testing.T) {
	tr := NewTracker()
	now := fakeClock(tr)

	tr.MarkUploadSignal()
	first := tr.SessionStart()

	// A signal inside the window only refreshes it.
	*now = now.Add(10 * time.Second)
	tr.MarkUploadSignal()
	require.Equal(t, first, tr.SessionStart())

	// A signal after expiry starts a new session.
	*now = now.Add(DefaultUploadWindow + time.Second)
	tr.MarkUploadSignal()
	require.True(t, tr.SessionStart().After(first))
}

func TestTracker_SelectWindow(t *testing.T) {
	tr := NewTracker()
	now := fakeClock(tr)

	tr.MarkSelected("9")
	require.True(t, tr.SelectedWithin("9"))
	require.False(t, tr.SelectedWithin("other"))

	*now = now.Add(DefaultSelectWindow + time.Second)
	require.False(t, tr.SelectedWithin("9"))
}

func TestTracker_SetWindows(t *testing.T) {
	tr := NewTracker()
	now := fakeClock(tr)
	tr.SetWindows(time.Minute, time.Minute)

	tr.MarkSelected("1")
	*now = now.Add(30 * time.Second)
	require.True(t, tr.SelectedWithin("1"), "widened select window applies")

	tr.SetWindows(0, 0) // zero keeps current values
	require.True(t, tr.SelectedWithin("1"))
}
