package tui

import (
	"strings"

	"github.com/charmbracelet/glamour/v2"
)

const helpMarkdown = `# MACA Engine

Live dashboard for the auto-upload processing queue.

## Keys

| Key | Action |
|-----|--------|
| up/down | select tab |
| p | pause selected tab's queue |
| r | resume selected tab's queue |
| c | cancel selected tab's queue |
| d | toggle debug log |
| ? | toggle this help |
| q | quit |

## Phases

- **queued** — attachment admitted, waiting its turn
- **processing** — analysis call in flight
- **done_item / error_item** — one attachment finished
- **safety_stop** — the fuse tripped; the batch was cancelled
- **done_all / cancelled** — the tab's queue settled
`

// renderHelp renders the help markdown for the current width.
func renderHelp(width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return helpMarkdown
	}
	rendered, err := r.Render(helpMarkdown)
	if err != nil {
		return helpMarkdown
	}
	return strings.TrimSuffix(rendered, "\n")
}
