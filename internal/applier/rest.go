package applier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ruvelro/maca-engine/internal/media"
)

// RESTApplier writes attachment metadata through the WordPress REST API.
// It ignores the tab id: the write is server-side and tab-independent.
type RESTApplier struct {
	client      *http.Client
	baseURL     string
	user        string
	appPassword string
}

// NewRESTApplier creates an applier for the given WordPress site.
// baseURL is the site root, e.g. "https://example.com".
func NewRESTApplier(baseURL, user, appPassword string) *RESTApplier {
	return &RESTApplier{
		client:      &http.Client{},
		baseURL:     strings.TrimRight(baseURL, "/"),
		user:        user,
		appPassword: appPassword,
	}
}

// Apply posts the fields to /wp-json/wp/v2/media/{id}. WordPress accepts
// partial updates, so a successful response means every sent field was set.
func (a *RESTApplier) Apply(ctx context.Context, _ string, attachmentID string, meta media.Metadata) (media.ApplyResult, error) {
	alt := meta.Alt
	if meta.Decorativa {
		alt = ""
	}

	payload := map[string]interface{}{
		"alt_text": alt,
	}
	if strings.TrimSpace(meta.Title) != "" {
		payload["title"] = meta.Title
	}
	if strings.TrimSpace(meta.Leyenda) != "" {
		payload["caption"] = meta.Leyenda
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return media.ApplyResult{}, err
	}

	url := fmt.Sprintf("%s/wp-json/wp/v2/media/%s", a.baseURL, attachmentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return media.ApplyResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.user, a.appPassword)

	resp, err := a.client.Do(req)
	if err != nil {
		return media.ApplyResult{}, fmt.Errorf("media update failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return media.ApplyResult{}, fmt.Errorf("media update returned status %d", resp.StatusCode)
	}

	return media.ApplyResult{
		Alt:     true,
		Title:   payload["title"] != nil,
		Leyenda: payload["caption"] != nil,
	}, nil
}
