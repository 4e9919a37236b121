package events

import "time"

// EventType identifies the type of event
type EventType string

const (
	// Queue progress events
	ProgressEvent EventType = "queue.progress"

	// Tab lifecycle events
	TabConnectedEvent EventType = "tab.connected"
	TabClosedEvent    EventType = "tab.closed"

	// Analysis events
	AnalysisStartedEvent   EventType = "analysis.started"
	AnalysisCompletedEvent EventType = "analysis.completed"
	AnalysisErrorEvent     EventType = "analysis.error"

	// UI events
	StatusMessageEvent EventType = "ui.status"
)

// Phase names for queue progress events. These travel verbatim to the page
// overlay, which must tolerate phases it does not recognize.
const (
	PhaseQueued        = "queued"
	PhaseProcessing    = "processing"
	PhaseDoneItem      = "done_item"
	PhaseErrorItem     = "error_item"
	PhaseCancelledItem = "cancelled_item"
	PhasePaused        = "paused"
	PhaseResumed       = "resumed"
	PhaseCancelRequest = "cancel_request"
	PhaseCancelled     = "cancelled"
	PhaseDoneAll       = "done_all"
	PhaseSafetyStop    = "safety_stop"
)

// Event represents an event in the system
type Event struct {
	Type    EventType
	Payload interface{}
}

// Progress is the uniform progress message pushed to every listener
// (terminal dashboard, on-page indicator, floating overlay).
type Progress struct {
	Phase        string   `json:"phase"`
	TabID        string   `json:"tabId"`
	AttachmentID string   `json:"attachmentId,omitempty"`
	Queued       int      `json:"queued"`
	Done         int      `json:"done"`
	OK           int      `json:"ok"`
	Errors       int      `json:"error"`
	Paused       bool     `json:"paused"`
	Queue        []string `json:"queue,omitempty"`
}

// Terminal reports whether the phase ends a queue cycle.
func (p Progress) Terminal() bool {
	return p.Phase == PhaseDoneAll || p.Phase == PhaseCancelled
}

// TabPayload accompanies tab lifecycle events.
type TabPayload struct {
	TabID   string
	PageURL string
}

// AnalysisPayload accompanies analysis events.
type AnalysisPayload struct {
	TabID        string
	AttachmentID string
	ImageURL     string
	Duration     time.Duration
	Err          string
}

// StatusMessagePayload accompanies ui.status events.
type StatusMessagePayload struct {
	Message string
	Type    string // "info", "warning", "error", "success"
}
