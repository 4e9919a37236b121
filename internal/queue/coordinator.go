package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ruvelro/maca-engine/internal/csync"
	"github.com/ruvelro/maca-engine/internal/events"
	"github.com/ruvelro/maca-engine/internal/media"
)

// ErrCancelled is the sentinel a job observes when its queue cycle was
// cancelled. It is checked before generic error handling so cancelled items
// report cancelled_item instead of error_item.
var ErrCancelled = errors.New("queue: processing cancelled")

// Analyzer produces metadata for a candidate. Implemented by the analysis
// pipeline; rejections of any cause are treated uniformly as "item failed".
type Analyzer interface {
	Analyze(ctx context.Context, c media.Candidate) (media.Metadata, error)
}

// Applier populates the attachment's form fields with generated metadata.
// Implementations are expected to bring their own retry policy; the
// coordinator only distinguishes success, failure, and cancellation.
type Applier interface {
	Apply(ctx context.Context, tabID, attachmentID string, meta media.Metadata) (media.ApplyResult, error)
}

// AdmitResult says what happened to a candidate at the admission gate.
type AdmitResult int

const (
	// Accepted means a job was scheduled onto the tab's queue.
	Accepted AdmitResult = iota
	// RejectedDuplicate means the attachment was processed recently.
	// Not an error; the candidate is silently dropped.
	RejectedDuplicate
	// RejectedFuse means this admission tripped the safety fuse and the
	// tab's pending work is being cancelled.
	RejectedFuse
	// RejectedUnusable means the candidate has no id or image source.
	RejectedUnusable
)

// Options configures coordinator behaviour. The zero value gets defaults.
type Options struct {
	// FuseEnabled turns the runaway-batch fuse on. Default true.
	FuseEnabled *bool
	// FuseMax is the queued-jobs cap per tab cycle. Default 24, clamped to
	// a minimum of 5 so a misconfiguration can't make the fuse useless.
	FuseMax int
	// DedupTTL is how long an attachment id stays in the seen registry.
	// Default 5 minutes.
	DedupTTL time.Duration
	// PausePoll is how often a paused worker re-checks the flag. Default 150ms.
	PausePoll time.Duration
	// SettleGrace is how long settled stats stay visible before the tab
	// state is cleared. Default 14s: long enough for a final summary in the
	// UI, short enough to free memory promptly.
	SettleGrace time.Duration
}

func (o Options) withDefaults() Options {
	out := o
	if out.FuseEnabled == nil {
		enabled := true
		out.FuseEnabled = &enabled
	}
	if out.FuseMax == 0 {
		out.FuseMax = 24
	}
	if out.FuseMax < 5 {
		out.FuseMax = 5
	}
	if out.DedupTTL <= 0 {
		out.DedupTTL = 5 * time.Minute
	}
	if out.PausePoll <= 0 {
		out.PausePoll = 150 * time.Millisecond
	}
	if out.SettleGrace <= 0 {
		out.SettleGrace = 14 * time.Second
	}
	return out
}

// Coordinator owns all per-tab queue state and serializes job execution per
// tab. See the package documentation for the state machine.
type Coordinator struct {
	opts     Options
	broker   *events.Broker
	analyzer Analyzer
	applier  Applier

	tabs *csync.Map[string, *tabState]

	// pausedIntent remembers a pause issued for a tab that has no state yet,
	// so the first admitted job starts paused.
	pausedIntent *csync.Map[string, bool]
}

// tabState aggregates everything the coordinator tracks for one tab.
type tabState struct {
	mu sync.Mutex

	queued int
	done   int
	ok     int
	errs   int

	startedAt time.Time
	lastAt    time.Time

	cancelled bool
	paused    bool

	// pending holds admitted-but-unfinished attachment ids in FIFO order.
	pending []string

	jobs *fifo
	seen *seenRegistry

	// genCtx is cancelled when the current cycle is cancelled; jobs carry it
	// into analysis and applier calls.
	genCtx    context.Context
	genCancel context.CancelFunc

	// settleGen invalidates stale settle timers when new work arrives
	// during the grace period.
	settleGen int
}

// NewCoordinator creates a coordinator publishing progress through broker.
func NewCoordinator(broker *events.Broker, analyzer Analyzer, applier Applier, opts Options) *Coordinator {
	return &Coordinator{
		opts:         opts.withDefaults(),
		broker:       broker,
		analyzer:     analyzer,
		applier:      applier,
		tabs:         csync.NewMap[string, *tabState](),
		pausedIntent: csync.NewMap[string, bool](),
	}
}

// Admit runs a candidate through the admission gate: dedup, fuse, accept.
// Accepted candidates are scheduled onto the tab's serialized queue and will
// produce progress events as they move through it.
func (c *Coordinator) Admit(cand media.Candidate) AdmitResult {
	if !cand.Usable() {
		return RejectedUnusable
	}

	for {
		st := c.stateFor(cand.TabID)

		st.mu.Lock()
		if st.seen.Seen(cand.ID) {
			st.mu.Unlock()
			return RejectedDuplicate
		}

		if *c.opts.FuseEnabled && st.queued-st.done >= c.opts.FuseMax {
			// Protective abort: cancel everything pending for this tab.
			st.cancelled = true
			st.genCancel()
			snap := c.snapshotLocked(cand.TabID, st, events.PhaseSafetyStop, cand.ID)
			st.mu.Unlock()
			c.broker.PublishProgress(snap)
			return RejectedFuse
		}

		now := time.Now()
		if st.queued == 0 || st.startedAt.IsZero() {
			st.startedAt = now
		}
		// New activity invalidates any scheduled settle.
		st.settleGen++

		st.queued++
		st.lastAt = now
		st.pending = append(st.pending, cand.ID)
		st.seen.Mark(cand.ID)

		job := newJob(cand, st.genCtx)
		snap := c.snapshotLocked(cand.TabID, st, events.PhaseQueued, cand.ID)
		st.mu.Unlock()

		if !st.jobs.Push(job) {
			// The tab settled and tore down between lookup and push.
			// Retry against a fresh state.
			c.tabs.Delete(cand.TabID)
			continue
		}

		c.broker.PublishProgress(snap)
		return Accepted
	}
}

// Pause suspends dispatch for a tab. The in-flight job is not interrupted;
// it will block at its next pause checkpoint. The paused event is emitted
// immediately so the UI reflects intent even when nothing is running.
func (c *Coordinator) Pause(tabID string) {
	if st, ok := c.tabs.Get(tabID); ok {
		st.mu.Lock()
		st.paused = true
		snap := c.snapshotLocked(tabID, st, events.PhasePaused, "")
		st.mu.Unlock()
		c.broker.PublishProgress(snap)
		return
	}

	c.pausedIntent.Set(tabID, true)
	c.broker.PublishProgress(events.Progress{Phase: events.PhasePaused, TabID: tabID, Paused: true})
}

// Resume clears the paused flag. Emitted immediately, like Pause.
func (c *Coordinator) Resume(tabID string) {
	c.pausedIntent.Delete(tabID)

	if st, ok := c.tabs.Get(tabID); ok {
		st.mu.Lock()
		st.paused = false
		snap := c.snapshotLocked(tabID, st, events.PhaseResumed, "")
		st.mu.Unlock()
		c.broker.PublishProgress(snap)
		return
	}

	c.broker.PublishProgress(events.Progress{Phase: events.PhaseResumed, TabID: tabID})
}

// Cancel requests cancellation of all pending work for a tab. If the queue
// is already drained it settles immediately; otherwise in-flight and pending
// jobs observe the flag at their next checkpoint and drain as cancelled.
func (c *Coordinator) Cancel(tabID string) {
	st, ok := c.tabs.Get(tabID)
	if !ok {
		c.broker.PublishProgress(events.Progress{Phase: events.PhaseCancelled, TabID: tabID})
		return
	}

	st.mu.Lock()
	if st.done == st.queued {
		snap := c.snapshotLocked(tabID, st, events.PhaseCancelled, "")
		st.mu.Unlock()
		c.broker.PublishProgress(snap)
		return
	}

	st.cancelled = true
	st.genCancel()
	snap := c.snapshotLocked(tabID, st, events.PhaseCancelRequest, "")
	st.mu.Unlock()
	c.broker.PublishProgress(snap)
}

// RemoveTab purges every piece of per-tab state: queue, worker, seen
// registry, stats, pause intent. Called when the browser tab closes.
func (c *Coordinator) RemoveTab(tabID string) {
	c.pausedIntent.Delete(tabID)

	st, ok := c.tabs.Get(tabID)
	if !ok {
		return
	}
	c.tabs.Delete(tabID)

	st.mu.Lock()
	st.genCancel()
	st.mu.Unlock()
	st.jobs.Close()
}

// Snapshot returns the current progress view of a tab, if it has state.
func (c *Coordinator) Snapshot(tabID string) (events.Progress, bool) {
	st, ok := c.tabs.Get(tabID)
	if !ok {
		return events.Progress{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return c.snapshotLocked(tabID, st, "", ""), true
}

// Tabs returns the ids of all tabs that currently have queue state.
func (c *Coordinator) Tabs() []string {
	return c.tabs.Keys()
}

// stateFor returns the tab's state, creating it (and its worker) lazily.
func (c *Coordinator) stateFor(tabID string) *tabState {
	if st, ok := c.tabs.Get(tabID); ok {
		return st
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &tabState{
		jobs:      newFIFO(),
		seen:      newSeenRegistry(c.opts.DedupTTL),
		genCtx:    ctx,
		genCancel: cancel,
	}
	if intent, ok := c.pausedIntent.Get(tabID); ok && intent {
		st.paused = true
	}

	// Another goroutine may have raced us; first one in wins and only the
	// winner's worker runs.
	if existing, loaded := c.tabs.GetOrSet(tabID, st); loaded {
		cancel()
		return existing
	}

	go c.runWorker(tabID, st)
	return st
}

// runWorker drains one tab's queue. Exactly one job body runs at a time.
func (c *Coordinator) runWorker(tabID string, st *tabState) {
	for {
		job := st.jobs.Pop()
		if job == nil {
			return
		}
		c.process(tabID, st, job)
	}
}

// process executes a single job with cancellation and pause checkpoints.
func (c *Coordinator) process(tabID string, st *tabState, job *Job) {
	id := job.Candidate.ID

	// Checkpoint: cancelled before start.
	if c.isCancelled(st) {
		c.finishCancelled(tabID, st, id)
		return
	}

	// Checkpoint: wait out a pause, abort fast on cancel.
	if err := c.waitWhilePaused(st, job); err != nil {
		c.finishCancelled(tabID, st, id)
		return
	}

	st.mu.Lock()
	snap := c.snapshotLocked(tabID, st, events.PhaseProcessing, id)
	st.mu.Unlock()
	c.broker.PublishProgress(snap)

	started := time.Now()
	c.broker.Publish(events.Event{
		Type: events.AnalysisStartedEvent,
		Payload: events.AnalysisPayload{
			TabID:        tabID,
			AttachmentID: id,
			ImageURL:     job.Candidate.ImageURL,
		},
	})

	meta, err := c.analyzer.Analyze(job.ctx, job.Candidate)
	if err != nil {
		c.broker.Publish(events.Event{
			Type: events.AnalysisErrorEvent,
			Payload: events.AnalysisPayload{
				TabID:        tabID,
				AttachmentID: id,
				ImageURL:     job.Candidate.ImageURL,
				Duration:     time.Since(started),
				Err:          err.Error(),
			},
		})
		if c.cancellation(err, st) {
			c.finishCancelled(tabID, st, id)
		} else {
			c.finishError(tabID, st, id)
		}
		return
	}
	c.broker.Publish(events.Event{
		Type: events.AnalysisCompletedEvent,
		Payload: events.AnalysisPayload{
			TabID:        tabID,
			AttachmentID: id,
			ImageURL:     job.Candidate.ImageURL,
			Duration:     time.Since(started),
		},
	})

	// Checkpoint: a cancel that landed while the analysis call was in
	// flight lets that call finish but skips the remaining side effects.
	if c.isCancelled(st) {
		c.finishCancelled(tabID, st, id)
		return
	}

	res, err := c.applier.Apply(job.ctx, tabID, id, meta)
	if err != nil {
		if c.cancellation(err, st) {
			c.finishCancelled(tabID, st, id)
		} else {
			c.finishError(tabID, st, id)
		}
		return
	}
	if !res.AnySet() {
		c.finishError(tabID, st, id)
		return
	}

	c.finishOK(tabID, st, id)
}

// waitWhilePaused blocks while the tab is paused, polling the flag.
// The poll timer races the job context so a cancel during a wait resolves
// immediately instead of waiting out the interval.
func (c *Coordinator) waitWhilePaused(st *tabState, job *Job) error {
	for {
		st.mu.Lock()
		paused, cancelled := st.paused, st.cancelled
		st.mu.Unlock()

		if cancelled {
			return ErrCancelled
		}
		if !paused {
			return nil
		}

		timer := time.NewTimer(c.opts.PausePoll)
		select {
		case <-job.ctx.Done():
			timer.Stop()
			return ErrCancelled
		case <-timer.C:
		}
	}
}

func (c *Coordinator) isCancelled(st *tabState) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cancelled
}

// cancellation distinguishes the cancellation sentinel from genuine errors.
func (c *Coordinator) cancellation(err error, st *tabState) bool {
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return true
	}
	return c.isCancelled(st)
}

func (c *Coordinator) finishOK(tabID string, st *tabState, id string) {
	st.mu.Lock()
	st.done++
	st.ok++
	st.lastAt = time.Now()
	st.pending = removeID(st.pending, id)
	drained := st.done == st.queued
	snap := c.snapshotLocked(tabID, st, events.PhaseDoneItem, id)
	var final events.Progress
	if drained {
		final = c.snapshotLocked(tabID, st, events.PhaseDoneAll, "")
	}
	st.mu.Unlock()

	c.broker.PublishProgress(snap)
	if drained {
		c.broker.PublishProgress(final)
		c.scheduleSettle(tabID, st)
	}
}

func (c *Coordinator) finishError(tabID string, st *tabState, id string) {
	st.mu.Lock()
	st.done++
	st.errs++
	// A failed item may be offered again (rescan, user selection) before the
	// dedup TTL runs out; only successful runs stay suppressed.
	st.seen.Forget(id)
	st.lastAt = time.Now()
	st.pending = removeID(st.pending, id)
	drained := st.done == st.queued
	snap := c.snapshotLocked(tabID, st, events.PhaseErrorItem, id)
	var final events.Progress
	if drained {
		final = c.snapshotLocked(tabID, st, events.PhaseDoneAll, "")
	}
	st.mu.Unlock()

	c.broker.PublishProgress(snap)
	if drained {
		c.broker.PublishProgress(final)
		c.scheduleSettle(tabID, st)
	}
}

func (c *Coordinator) finishCancelled(tabID string, st *tabState, id string) {
	st.mu.Lock()
	st.done++
	st.lastAt = time.Now()
	st.pending = removeID(st.pending, id)
	drained := st.done == st.queued
	snap := c.snapshotLocked(tabID, st, events.PhaseCancelledItem, id)
	var final events.Progress
	if drained {
		final = c.snapshotLocked(tabID, st, events.PhaseCancelled, "")
		// Drain complete: clear the flag and start a fresh generation so
		// later admissions get a live context.
		st.cancelled = false
		st.genCancel()
		st.genCtx, st.genCancel = context.WithCancel(context.Background())
	}
	st.mu.Unlock()

	c.broker.PublishProgress(snap)
	if drained {
		c.broker.PublishProgress(final)
		c.scheduleSettle(tabID, st)
	}
}

// scheduleSettle clears the tab's stats after the grace period, unless new
// admissions arrive first.
func (c *Coordinator) scheduleSettle(tabID string, st *tabState) {
	st.mu.Lock()
	st.settleGen++
	gen := st.settleGen
	st.mu.Unlock()

	time.AfterFunc(c.opts.SettleGrace, func() {
		st.mu.Lock()
		stale := gen != st.settleGen || st.done != st.queued
		if !stale {
			st.genCancel()
		}
		st.mu.Unlock()

		if stale {
			return
		}
		c.tabs.Delete(tabID)
		st.jobs.Close()
	})
}

// snapshotLocked builds a progress message. Callers hold st.mu.
func (c *Coordinator) snapshotLocked(tabID string, st *tabState, phase, attachmentID string) events.Progress {
	const previewLen = 5
	preview := st.pending
	if len(preview) > previewLen {
		preview = preview[:previewLen]
	}
	queuePreview := make([]string, len(preview))
	copy(queuePreview, preview)

	return events.Progress{
		Phase:        phase,
		TabID:        tabID,
		AttachmentID: attachmentID,
		Queued:       st.queued,
		Done:         st.done,
		OK:           st.ok,
		Errors:       st.errs,
		Paused:       st.paused,
		Queue:        queuePreview,
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
