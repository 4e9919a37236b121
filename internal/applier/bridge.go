package applier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ruvelro/maca-engine/internal/media"
)

// RPCCaller issues a request to the page script in a given tab and returns
// its raw result. Implemented by the extension bridge.
type RPCCaller interface {
	Call(ctx context.Context, tabID, method string, params interface{}) (json.RawMessage, error)
}

// BridgeApplier asks the page script to populate the on-screen attachment
// form. The script locates the fields with its own selector heuristics and
// reports back which ones it managed to set. A field that has not rendered
// yet simply comes back false, and the retry wrapper tries again.
type BridgeApplier struct {
	caller RPCCaller
}

// NewBridgeApplier creates an applier that routes through the bridge.
func NewBridgeApplier(caller RPCCaller) *BridgeApplier {
	return &BridgeApplier{caller: caller}
}

type applyFieldsParams struct {
	AttachmentID string         `json:"attachmentId"`
	Meta         media.Metadata `json:"meta"`
}

// Apply issues a dom.applyFields call into the tab.
func (a *BridgeApplier) Apply(ctx context.Context, tabID, attachmentID string, meta media.Metadata) (media.ApplyResult, error) {
	raw, err := a.caller.Call(ctx, tabID, "dom.applyFields", applyFieldsParams{
		AttachmentID: attachmentID,
		Meta:         meta,
	})
	if err != nil {
		return media.ApplyResult{}, fmt.Errorf("applyFields call failed: %w", err)
	}

	var res media.ApplyResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return media.ApplyResult{}, fmt.Errorf("invalid applyFields result: %w", err)
	}
	return res, nil
}
