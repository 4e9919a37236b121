// Package signals classifies whether the current moment is "inside an upload
// session" for one browser tab.
//
// # Overview
//
// The media grid looks the same whether an attachment appeared because the
// user just bulk-uploaded twenty files or because they clicked an old one.
// The tracker disambiguates the two using a sliding time window: file-input
// changes, drag-drops, pastes with files, and upload-progress classes all
// count as upload signals, and classification queries check recency against
// that window.
//
// Two gates come out of this:
//
//   - Batch gate: the upload window is active AND at least two attachments
//     were recently marked as uploading. Used for the bulk-upload flow.
//   - Select gate: the user selected this specific attachment within the last
//     few seconds. Used for the (optional) analyze-on-select flow.
//
// One Tracker per tab; the observer owns it.
package signals

import (
	"sync"
	"time"
)

const (
	// DefaultUploadWindow is how long an upload session stays "hot" after the
	// last signal.
	DefaultUploadWindow = 45 * time.Second

	// DefaultSelectWindow is how recent a selection must be for the select
	// gate to open.
	DefaultSelectWindow = 3 * time.Second

	// MinUploadingForBatch is the minimum count of recently-uploading
	// attachments before the batch gate opens. A single uploading item is
	// indistinguishable from a manual re-crop or edit.
	MinUploadingForBatch = 2
)

// Tracker records upload and selection signals for one tab and answers
// classification queries about them.
type Tracker struct {
	mu sync.Mutex

	uploadWindow time.Duration
	selectWindow time.Duration

	lastSignalAt   time.Time
	sessionStartAt time.Time

	// uploading maps attachment id to when its uploading marker was last seen
	uploading map[string]time.Time

	// selected maps attachment id to when the user last selected it
	selected map[string]time.Time

	now func() time.Time
}

// NewTracker creates a tracker with the default windows.
func NewTracker() *Tracker {
	return &Tracker{
		uploadWindow: DefaultUploadWindow,
		selectWindow: DefaultSelectWindow,
		uploading:    make(map[string]time.Time),
		selected:     make(map[string]time.Time),
		now:          time.Now,
	}
}

// SetWindows overrides the upload and select windows. Zero keeps the current
// value. Tests use this to avoid waiting out real time.
func (t *Tracker) SetWindows(upload, sel time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if upload > 0 {
		t.uploadWindow = upload
	}
	if sel > 0 {
		t.selectWindow = sel
	}
}

// MarkUploadSignal records a generic upload signal (file-input change,
// drag-drop, paste with file). A signal arriving after the window has expired
// starts a new session; a signal within the window only refreshes it.
func (t *Tracker) MarkUploadSignal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markSignalLocked(t.now())
}

// MarkUploading records that an attachment node carried an upload-progress
// marker. This both tags the attachment and counts as an upload signal.
func (t *Tracker) MarkUploading(attachmentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.uploading[attachmentID] = now
	t.markSignalLocked(now)
}

// MarkSelected records that the user selected an attachment.
func (t *Tracker) MarkSelected(attachmentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selected[attachmentID] = t.now()
}

// InUploadWindow reports whether the upload session window is currently
// active.
func (t *Tracker) InUploadWindow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastSignalAt.IsZero() {
		return false
	}
	return t.now().Sub(t.lastSignalAt) <= t.uploadWindow
}

// SessionStart returns when the current upload session began. Zero if no
// session was ever observed.
func (t *Tracker) SessionStart() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionStartAt
}

// RecentUploadingCount returns how many distinct attachments were marked as
// uploading within the window. Stale entries are pruned on the way.
func (t *Tracker) RecentUploadingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	count := 0
	for id, at := range t.uploading {
		if now.Sub(at) > t.uploadWindow {
			delete(t.uploading, id)
			continue
		}
		count++
	}
	return count
}

// BatchGate reports whether the bulk-upload flow should auto-trigger:
// upload window active and enough attachments recently uploading.
func (t *Tracker) BatchGate() bool {
	return t.InUploadWindow() && t.RecentUploadingCount() >= MinUploadingForBatch
}

// SelectedWithin reports whether the attachment was selected within the
// select window.
func (t *Tracker) SelectedWithin(attachmentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.selected[attachmentID]
	if !ok {
		return false
	}
	return t.now().Sub(at) <= t.selectWindow
}

// markSignalLocked updates the session bookkeeping. Callers hold t.mu.
func (t *Tracker) markSignalLocked(now time.Time) {
	if t.lastSignalAt.IsZero() || now.Sub(t.lastSignalAt) > t.uploadWindow {
		// Window expired: this signal starts a new session
		t.sessionStartAt = now
	}
	t.lastSignalAt = now
}
