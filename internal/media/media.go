// Package media holds the domain types shared across the processing pipeline:
// candidates derived from the media grid, generated metadata, and field
// application results.
package media

import "strings"

// Candidate is a provisional attachment sighting derived from grid inspection.
// It has not been validated yet; the queue coordinator decides whether it
// becomes a job.
type Candidate struct {
	// ID is the stable attachment id from the media library.
	ID string

	// ImageURL is the best-guess source for the attachment's image.
	// High-confidence candidates carry an absolute URL.
	ImageURL string

	// FilenameContext is whatever filename-ish text the grid exposed for the
	// node (title attribute, figcaption, aria-label). Used as a hint for the
	// analysis prompt.
	FilenameContext string

	// TabID identifies the browser tab the candidate was observed in.
	TabID string

	// PageURL is the admin page the grid lives on.
	PageURL string

	// LowConfidence marks candidates whose image source is a blob: URL.
	// These should be replaced by a re-derived candidate from the currently
	// selected node when possible.
	LowConfidence bool
}

// Usable reports whether the candidate has enough to be processed.
func (c Candidate) Usable() bool {
	return c.ID != "" && c.ImageURL != ""
}

// Metadata is the AI-generated image metadata for one attachment.
// Field names follow the WordPress attachment form: Leyenda is the caption,
// Decorativa marks purely decorative images that get an empty alt by policy.
type Metadata struct {
	Alt        string `json:"alt"`
	Title      string `json:"title"`
	Leyenda    string `json:"leyenda"`
	Decorativa bool   `json:"decorativa"`
}

// Empty reports whether nothing useful was generated.
func (m Metadata) Empty() bool {
	return strings.TrimSpace(m.Alt) == "" &&
		strings.TrimSpace(m.Title) == "" &&
		strings.TrimSpace(m.Leyenda) == "" &&
		!m.Decorativa
}

// ApplyResult reports which form fields were actually populated for an
// attachment. The retry wrapper treats "at least one field set" as success.
type ApplyResult struct {
	Alt     bool `json:"alt"`
	Title   bool `json:"title"`
	Leyenda bool `json:"leyenda"`
}

// AnySet reports whether at least one field was populated.
func (r ApplyResult) AnySet() bool {
	return r.Alt || r.Title || r.Leyenda
}
