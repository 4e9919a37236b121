// Package observe watches media-grid snapshots for attachment nodes that
// appeared, changed, or got selected, and hands usable candidates to the
// queue coordinator.
//
// # Overview
//
// The page script streams an HTML snapshot of the grid container whenever a
// mutation batch fires. The observer parses each snapshot, diffs every
// attachment node's signature (classes, selection, uploading marker, resolved
// image source) against the previous tick, and evaluates only the changed
// nodes. That keeps the contract from the admission side simple: at most one
// candidate emission per meaningfully-changed node per tick. Duplicate
// suppression for unchanged nodes is the observer's job, not the queue's.
//
// Not every state change produces a mutation the page script can see, so a
// periodic rescan backstops the diffing: it re-evaluates untriggered nodes
// of the last snapshot against the gates, which matters when the upload
// window opens after a node was first seen.
//
// Nodes with no usable image source are skipped silently; the thumbnail may
// simply not have rendered yet and the next tick will catch it.
package observe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ruvelro/maca-engine/internal/csync"
	"github.com/ruvelro/maca-engine/internal/media"
	"github.com/ruvelro/maca-engine/internal/queue"
	"github.com/ruvelro/maca-engine/internal/signals"
)

// DefaultPollInterval is how often the rescan backstop runs.
const DefaultPollInterval = 5 * time.Second

// Admitter is the queue coordinator's admission gate.
type Admitter interface {
	Admit(c media.Candidate) queue.AdmitResult
}

// Config carries the auto-processing gates the observer honours.
type Config struct {
	AutoOnUpload bool
	AutoOnSelect bool
	PollInterval time.Duration
}

// Observer tracks per-tab grid state and emits candidates.
type Observer struct {
	admit Admitter
	cfg   Config
	tabs  *csync.Map[string, *tabView]
}

// tabView is everything the observer remembers about one tab's grid.
type tabView struct {
	mu sync.Mutex

	tracker *signals.Tracker

	// sigs holds the last seen signature per attachment id.
	sigs map[string]nodeSig

	// meta holds per-attachment observation state. Entries are never
	// explicitly destroyed; staleness is handled downstream by the queue's
	// dedup TTL, and the whole view dies with the tab.
	meta map[string]*attachmentMeta

	lastHTML string
	pageURL  string
	scanned  bool
}

// nodeSig is the meaningful part of an attachment node for change detection.
type nodeSig struct {
	classes   string
	selected  bool
	uploading bool
	src       string
	context   string
}

// attachmentMeta mirrors the per-attachment bookkeeping: when we first saw
// the node, whether it ever carried the uploading marker, and whether it was
// handed off to the queue already.
type attachmentMeta struct {
	firstSeenAt  time.Time
	sawUploading bool
	triggered    bool
	retries      int
	initialScan  bool
}

// New creates an observer feeding candidates into admit.
func New(admit Admitter, cfg Config) *Observer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Observer{
		admit: admit,
		cfg:   cfg,
		tabs:  csync.NewMap[string, *tabView](),
	}
}

// Tracker returns the signal tracker for a tab, creating the view if needed.
// The bridge routes upload signals and selection events through this.
func (o *Observer) Tracker(tabID string) *signals.Tracker {
	return o.viewFor(tabID).tracker
}

// HandleSnapshot processes one grid snapshot for a tab.
func (o *Observer) HandleSnapshot(tabID, pageURL, html string) {
	v := o.viewFor(tabID)

	v.mu.Lock()
	defer v.mu.Unlock()

	initial := !v.scanned
	v.scanned = true
	v.lastHTML = html
	if pageURL != "" {
		v.pageURL = pageURL
	}

	o.scanLocked(tabID, v, html, initial, false)
}

// HandleUploadSignal records a file-input change, drag-drop, or paste with
// file for the tab.
func (o *Observer) HandleUploadSignal(tabID string) {
	o.viewFor(tabID).tracker.MarkUploadSignal()
}

// HandleSelection records a user selection and immediately re-evaluates the
// selected node, since the select gate is only open for a few seconds.
func (o *Observer) HandleSelection(tabID, attachmentID string) {
	v := o.viewFor(tabID)
	v.tracker.MarkSelected(attachmentID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastHTML == "" {
		return
	}
	o.scanLocked(tabID, v, v.lastHTML, false, true)
}

// Rescan re-evaluates the last snapshot of a tab against the gates. Used by
// the polling backstop.
func (o *Observer) Rescan(tabID string) {
	v, ok := o.tabs.Get(tabID)
	if !ok {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastHTML == "" {
		return
	}
	o.scanLocked(tabID, v, v.lastHTML, false, true)
}

// RemoveTab drops all observation state for a closed tab.
func (o *Observer) RemoveTab(tabID string) {
	o.tabs.Delete(tabID)
}

// Run drives the polling backstop until the context ends.
func (o *Observer) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tabID := range o.tabs.Keys() {
				o.Rescan(tabID)
			}
		}
	}
}

func (o *Observer) viewFor(tabID string) *tabView {
	if v, ok := o.tabs.Get(tabID); ok {
		return v
	}
	v := &tabView{
		tracker: signals.NewTracker(),
		sigs:    make(map[string]nodeSig),
		meta:    make(map[string]*attachmentMeta),
	}
	actual, _ := o.tabs.GetOrSet(tabID, v)
	return actual
}

// scanLocked walks the snapshot's attachment nodes. force re-evaluates nodes
// whose signature did not change (rescan and selection paths). Callers hold
// v.mu.
func (o *Observer) scanLocked(tabID string, v *tabView, html string, initial, force bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Malformed snapshot: degrade to a no-op, never propagate.
		return
	}

	now := time.Now()

	doc.Find("[data-id]").Each(func(_ int, sel *goquery.Selection) {
		if !sel.HasClass("attachment") {
			return
		}
		id, _ := sel.Attr("data-id")
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}

		sig := signatureOf(sel)
		prev, known := v.sigs[id]
		v.sigs[id] = sig

		m := v.meta[id]
		if m == nil {
			m = &attachmentMeta{firstSeenAt: now, initialScan: initial}
			v.meta[id] = m
		}

		if sig.uploading {
			m.sawUploading = true
			v.tracker.MarkUploading(id)
		}
		if sig.selected && (!known || !prev.selected) {
			// Newly selected via grid classes rather than an explicit
			// selection message.
			v.tracker.MarkSelected(id)
		}

		changed := !known || sig != prev
		if !changed && !force {
			return
		}

		o.evaluate(tabID, v, doc, sel, id, m, sig)
	})
}

// evaluate decides whether a node should be handed to the queue now.
func (o *Observer) evaluate(tabID string, v *tabView, doc *goquery.Document, sel *goquery.Selection, id string, m *attachmentMeta, sig nodeSig) {
	if m.triggered || sig.uploading {
		// Already handed off, or still mid-upload; the post-upload class
		// change will re-evaluate it.
		return
	}

	batchOK := o.cfg.AutoOnUpload && v.tracker.BatchGate() &&
		(m.sawUploading || m.firstSeenAt.After(v.tracker.SessionStart())) &&
		!m.initialScan
	selectOK := o.cfg.AutoOnSelect && v.tracker.SelectedWithin(id)
	if !batchOK && !selectOK {
		return
	}

	cand := o.deriveCandidate(tabID, v, doc, sel, id, sig)
	if cand.ImageURL == "" {
		// Grid hasn't rendered a usable source yet; the rescan backstop
		// will come back for it.
		m.retries++
		return
	}

	switch o.admit.Admit(cand) {
	case queue.Accepted, queue.RejectedDuplicate, queue.RejectedFuse:
		// Hand-off settled one way or the other. A duplicate means the
		// queue already owns this attachment; a fuse trip requires an
		// explicit user action before anything else should fire.
		m.triggered = true
	default:
		// Unusable hand-off; allow retry on a later tick.
		m.retries++
	}
}

// deriveCandidate builds the candidate, upgrading blob sources from the
// currently selected node when possible.
func (o *Observer) deriveCandidate(tabID string, v *tabView, doc *goquery.Document, sel *goquery.Selection, id string, sig nodeSig) media.Candidate {
	src := sig.src
	low := false

	if isBlobURL(src) {
		low = true
		if better := o.selectedSource(doc, id); better != "" {
			src = better
			low = false
		}
	}

	// Snapshot HTML carries the raw src attribute, which is often
	// page-relative. High-confidence candidates must resolve to a URL the
	// analysis endpoint can actually fetch.
	if src != "" && !low && !isAbsoluteURL(src) {
		if abs := resolveURL(v.pageURL, src); abs != "" {
			src = abs
		} else {
			low = true
		}
	}

	return media.Candidate{
		ID:              id,
		ImageURL:        src,
		FilenameContext: sig.context,
		TabID:           tabID,
		PageURL:         v.pageURL,
		LowConfidence:   low,
	}
}

// selectedSource re-derives a source from the selected node or the details
// pane, which render a real URL once the upload finishes.
func (o *Observer) selectedSource(doc *goquery.Document, id string) string {
	var found string
	doc.Find(".attachment.selected, .attachment[aria-checked='true'], .attachment-details").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if nodeID, ok := s.Attr("data-id"); ok && strings.TrimSpace(nodeID) != id {
			return true
		}
		if src := deriveSource(s); src != "" && !isBlobURL(src) && isAbsoluteURL(src) {
			found = src
			return false
		}
		return true
	})
	return found
}

func signatureOf(sel *goquery.Selection) nodeSig {
	classes, _ := sel.Attr("class")
	checked, _ := sel.Attr("aria-checked")
	return nodeSig{
		classes:   classes,
		selected:  sel.HasClass("selected") || checked == "true",
		uploading: sel.HasClass("uploading") || sel.HasClass("upload-in-progress"),
		src:       deriveSource(sel),
		context:   deriveContext(sel),
	}
}
