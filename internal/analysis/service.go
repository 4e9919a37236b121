// Package analysis turns an image URL into generated metadata (alt text,
// title, caption) by calling an OpenAI-compatible vision endpoint.
//
// The queue coordinator treats this package as an opaque async function:
// every failure (missing credentials, network error, invalid provider
// response, validation failure) surfaces as a plain error with a
// human-readable message, and the item is recorded as failed regardless of
// cause. Calls honour context cancellation, so a cancelled queue cycle
// aborts an in-flight request.
package analysis

import (
	"context"

	"github.com/ruvelro/maca-engine/internal/media"
)

// Service generates metadata for a candidate image.
type Service interface {
	Analyze(ctx context.Context, c media.Candidate) (media.Metadata, error)
}
