package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ruvelro/maca-engine/internal/media"
)

// DefaultTimeout bounds one analysis call end to end.
const DefaultTimeout = 25 * time.Second

const systemPrompt = `You are an accessibility assistant for a WordPress media library.
Given an image, produce Spanish metadata for the attachment form.
Respond with a single JSON object and nothing else:
{"alt": "...", "title": "...", "leyenda": "...", "decorativa": false}
- "alt": concise alt text describing the image content (max 125 characters)
- "title": a short human-readable title
- "leyenda": an optional caption; empty string if none fits
- "decorativa": true only if the image is purely decorative, in which case "alt" must be ""`

// VisionClient implements Service against an OpenAI-compatible
// chat-completions endpoint with image input.
type VisionClient struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
}

// NewVisionClient creates a client for the given endpoint.
func NewVisionClient(baseURL, model, apiKey string) *VisionClient {
	return &VisionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// Analyze sends the candidate's image through the vision endpoint and
// validates the generated metadata.
func (c *VisionClient) Analyze(ctx context.Context, cand media.Candidate) (media.Metadata, error) {
	if cand.ImageURL == "" {
		return media.Metadata{}, errors.New("no image URL to analyze")
	}

	userText := "Generate the metadata JSON for this image."
	if cand.FilenameContext != "" {
		userText += " Filename hint: " + cand.FilenameContext
	}
	if cand.PageURL != "" {
		userText += " Page: " + cand.PageURL
	}

	payload := map[string]interface{}{
		"messages": []map[string]interface{}{
			{"role": "system", "content": systemPrompt},
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": userText},
					{"type": "image_url", "image_url": map[string]string{"url": cand.ImageURL}},
				},
			},
		},
		"temperature": 0.2,
		"max_tokens":  300,
		"stream":      false,
	}
	if c.model != "" && c.model != "auto" {
		payload["model"] = c.model
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return media.Metadata{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return media.Metadata{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return media.Metadata{}, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return media.Metadata{}, fmt.Errorf("analysis endpoint returned status %d", resp.StatusCode)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return media.Metadata{}, fmt.Errorf("invalid provider response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return media.Metadata{}, errors.New("provider response has no choices")
	}

	meta, err := parseMetadata(completion.Choices[0].Message.Content)
	if err != nil {
		return media.Metadata{}, err
	}
	if err := validate(meta); err != nil {
		return media.Metadata{}, err
	}
	return meta, nil
}

var reJSONBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseMetadata extracts the metadata JSON from a model reply, tolerating
// markdown fences and surrounding prose.
func parseMetadata(content string) (media.Metadata, error) {
	content = strings.TrimSpace(content)

	var meta media.Metadata
	if err := json.Unmarshal([]byte(content), &meta); err == nil {
		return meta, nil
	}

	if m := reJSONBlock.FindStringSubmatch(content); len(m) == 2 {
		if err := json.Unmarshal([]byte(m[1]), &meta); err == nil {
			return meta, nil
		}
	}

	// Last resort: first { to last }
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &meta); err == nil {
			return meta, nil
		}
	}

	return media.Metadata{}, errors.New("provider reply contains no metadata JSON")
}

func validate(meta media.Metadata) error {
	if meta.Empty() {
		return errors.New("generated metadata is empty")
	}
	if meta.Decorativa {
		// Decorative images get an empty alt by policy; anything else the
		// model produced still rides along.
		return nil
	}
	if strings.TrimSpace(meta.Alt) == "" {
		return errors.New("generated metadata has empty alt text")
	}
	return nil
}
