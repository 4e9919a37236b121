// Package queue implements the per-tab processing pipeline for auto-analyzed
// attachments.
//
// # Overview
//
// This package solves the problem of feeding freshly-uploaded media items
// through an AI analysis call and back into a live admin page without racing
// on shared UI state. It provides:
//   - Strict FIFO execution per browser tab (one job body at a time)
//   - Duplicate suppression (the same attachment admitted twice within the
//     dedup window becomes one job)
//   - A safety fuse against runaway batches
//   - Pause/resume and cooperative cancellation with live progress events
//
// # Architecture
//
// The queue system consists of composable parts:
//
//   - Job: one admitted attachment waiting for processing
//   - fifo: ordered job buffer with blocking pop, one per tab
//   - seenRegistry: TTL-based dedup of recently processed attachment ids
//   - Coordinator: owns all per-tab state and runs one worker per tab
//
// # Tab lifecycle
//
// Per-tab state is created lazily on the first admitted job and removed again
// once the queue settles (done == queued) and a short grace period passes with
// no new activity. Closing a tab purges everything immediately via RemoveTab.
//
// Tabs are fully independent: jobs for different tabs run concurrently, jobs
// within one tab never overlap. The serialization is the whole point: the
// field applier clicks and types into shared form controls, and two jobs
// doing that at once in the same tab would corrupt each other.
//
// # Example
//
//	coord := queue.NewCoordinator(broker, analyzer, applier, queue.Options{})
//
//	switch coord.Admit(candidate) {
//	case queue.Accepted:
//		// job scheduled; progress events will follow
//	case queue.RejectedDuplicate:
//		// seen recently, nothing to do
//	case queue.RejectedFuse:
//		// safety stop tripped for this tab
//	}
package queue
