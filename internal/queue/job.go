package queue

import (
	"context"
	"time"

	"github.com/ruvelro/maca-engine/internal/media"
)

// Job represents one admitted attachment waiting for processing.
//
// Jobs are created by Coordinator.Admit and carry the generation context of
// their tab's current queue cycle: cancelling the cycle cancels the context,
// which aborts in-flight analysis calls and pending applier waits.
type Job struct {
	// Candidate is the attachment sighting that was admitted.
	Candidate media.Candidate

	// EnqueuedAt is when the job was admitted. FIFO order follows admission
	// order, so this is informational (stats, debugging), not a sort key.
	EnqueuedAt time.Time

	// ctx is the tab's generation context at admission time.
	ctx context.Context
}

func newJob(c media.Candidate, ctx context.Context) *Job {
	return &Job{
		Candidate:  c,
		EnqueuedAt: time.Now(),
		ctx:        ctx,
	}
}
