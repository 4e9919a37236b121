// Package applier populates an attachment's form fields with generated
// metadata.
//
// Two implementations exist: a WordPress REST client that writes the fields
// server-side, and a bridge applier that asks the page script to fill the
// on-screen form through the extension bridge. Both sit behind the same
// interface and are normally wrapped in Retry, because the admin UI renders
// its fields asynchronously and the first attempts routinely find nothing to
// write into.
package applier

import (
	"context"

	"github.com/ruvelro/maca-engine/internal/media"
)

// Applier attempts to set the attachment's metadata fields once and reports
// which fields were actually set. Locating zero fields is not an error by
// itself; the retry wrapper decides when to give up.
type Applier interface {
	Apply(ctx context.Context, tabID, attachmentID string, meta media.Metadata) (media.ApplyResult, error)
}
