package bridge

import "encoding/json"

const protocolVersion = 1

// Inbound message types from the page script.
const (
	typeHello        = "hello"
	typeGridSnapshot = "grid.snapshot"
	typeUploadSignal = "upload.signal"
	typeSelection    = "selection"

	cmdPause  = "MACA_PAUSE"
	cmdResume = "MACA_RESUME"
	cmdCancel = "MACA_CANCEL"
)

// inboundMessage is the envelope for everything the page script sends.
// Exactly one message kind is populated per frame; RPC responses reuse the
// same envelope with the jsonrpc fields set.
type inboundMessage struct {
	Type string `json:"type,omitempty"`

	// hello
	Token   string `json:"token,omitempty"`
	Client  string `json:"client,omitempty"`
	Version int    `json:"version,omitempty"`
	Tab     string `json:"tab,omitempty"`
	Page    string `json:"page,omitempty"`

	// grid.snapshot
	HTML string `json:"html,omitempty"`

	// selection
	AttachmentID string `json:"attachmentId,omitempty"`

	// rpc response
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type welcomeMessage struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

// progressMessage wraps a queue progress event for the overlay.
type progressMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type callResult struct {
	Result json.RawMessage
	Err    error
}
