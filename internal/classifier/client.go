// Package classifier is the HTTP(S) client for the external classifier
// service described in spec §6. It is used by the uploader (POST), the
// control surface (GET poll), and the education fetcher (GET educate).
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/postlens/agent/internal/types"
)

// Client wraps the classifier's REST surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a classifier Client. timeout bounds every request.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Analyze POSTs a batch of JPEG frames to /analyze/<base-id> as
// multipart/form-data, field name "files" repeated, per spec §6. It is
// called at most once per base id by the uploader.
func (c *Client) Analyze(ctx context.Context, baseID string, frames [][]byte) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for i, frame := range frames {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("frame%d.jpg", i))
		if err != nil {
			return fmt.Errorf("classifier: failed to create form part: %w", err)
		}
		if _, err := part.Write(frame); err != nil {
			return fmt.Errorf("classifier: failed to write form part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("classifier: failed to close multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/analyze/%s", c.baseURL, baseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("classifier: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("classifier: analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("classifier: analyze returned status %d", resp.StatusCode)
	}
	return nil
}

// verdictPayload is the wire shape of both the GET /analyze/<id>
// response and the WS /ws/analysis/<id> push payload.
type verdictPayload struct {
	IsAI       bool     `json:"is_ai"`
	Confidence float64  `json:"confidence"`
	Severity   string   `json:"severity"`
	Reasons    []string `json:"reasons"`
}

func (p verdictPayload) toVerdict(postID string) types.DetectionVerdict {
	return types.NewVerdict(postID, p.IsAI, p.Confidence, types.Severity(p.Severity), p.Reasons)
}

// GetVerdict polls GET /analyze/<base-id>. ok is false on a 404 (not
// ready yet), which is not treated as an error.
func (c *Client) GetVerdict(ctx context.Context, baseID string) (verdict types.DetectionVerdict, ok bool, err error) {
	url := fmt.Sprintf("%s/analyze/%s", c.baseURL, baseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.DetectionVerdict{}, false, fmt.Errorf("classifier: failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return types.DetectionVerdict{}, false, fmt.Errorf("classifier: get verdict failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return types.DetectionVerdict{}, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.DetectionVerdict{}, false, fmt.Errorf("classifier: get verdict returned status %d", resp.StatusCode)
	}

	var payload verdictPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.DetectionVerdict{}, false, fmt.Errorf("classifier: malformed verdict payload: %w", err)
	}
	return payload.toVerdict(baseID), true, nil
}

// educatePayload is the wire shape of GET /educate/<base-id>.
type educatePayload struct {
	Frames      []string        `json:"frames"` // base64-encoded JPEGs
	Explanation string          `json:"explanation"`
	Indicators  []string        `json:"indicators"`
	Summary     verdictPayload  `json:"detection_summary"`
}

// Educate fetches the one-shot explanation payload for a base post id
// (spec §4.9, §6).
func (c *Client) Educate(ctx context.Context, baseID string) (types.Education, error) {
	url := fmt.Sprintf("%s/educate/%s", c.baseURL, baseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Education{}, fmt.Errorf("classifier: failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return types.Education{}, fmt.Errorf("classifier: educate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Education{}, fmt.Errorf("classifier: educate returned status %d", resp.StatusCode)
	}

	var payload educatePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.Education{}, fmt.Errorf("classifier: malformed educate payload: %w", err)
	}

	frames := make([][]byte, 0, len(payload.Frames))
	for _, encoded := range payload.Frames {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return types.Education{}, fmt.Errorf("classifier: malformed base64 frame: %w", err)
		}
		frames = append(frames, decoded)
	}

	return types.Education{
		Frames:      frames,
		Explanation: payload.Explanation,
		Indicators:  payload.Indicators,
		Summary:     payload.Summary.toVerdict(baseID),
	}, nil
}

// Health checks the classifier's own /health endpoint (SPEC_FULL §4).
func (c *Client) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("classifier: failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("classifier: health check failed: %w", err)
	}
	defer io.Copy(io.Discard, resp.Body)
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("classifier: health check returned status %d", resp.StatusCode)
	}
	return nil
}
