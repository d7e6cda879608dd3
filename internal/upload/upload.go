// Package upload defines the contract with the external capture
// collaborator: accept one still image plus a filename hint, return either
// structured extracted fields or a failure indication. Field extraction
// itself happens on the collaborator's side and is out of scope here.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Result is the collaborator's answer for one submitted still.
type Result struct {
	// Fields holds the structured data extracted from the card.
	Fields map[string]string `json:"fields,omitempty"`

	// Failure is a non-empty reason when extraction failed. A failed
	// result is a valid response, not a transport error.
	Failure string `json:"failure,omitempty"`
}

// Failed reports whether the collaborator signalled an extraction failure.
func (r *Result) Failed() bool { return r.Failure != "" }

// Submission is the payload handed to a collaborator: the encoded still
// and its filename hint.
type Submission struct {
	SessionID string
	Filename  string
	PNG       []byte
}

// Collaborator accepts one still image and returns extracted fields or a
// failure indication.
type Collaborator interface {
	Submit(ctx context.Context, sub Submission) (*Result, error)
}

// HTTPCollaborator submits stills to an HTTP endpoint as multipart form
// data (file field "image", text field "session_id") and expects a JSON
// Result body in response.
type HTTPCollaborator struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPCollaborator returns a collaborator posting to endpoint. A nil
// logger disables logging.
func NewHTTPCollaborator(endpoint string, logger *slog.Logger) *HTTPCollaborator {
	return &HTTPCollaborator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// Submit posts the still and decodes the collaborator's Result.
func (c *HTTPCollaborator) Submit(ctx context.Context, sub Submission) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", sub.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(sub.PNG); err != nil {
		return nil, fmt.Errorf("failed to write upload image: %w", err)
	}
	if err := writer.WriteField("session_id", sub.SessionID); err != nil {
		return nil, fmt.Errorf("failed to write session field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if c.logger != nil {
		c.logger.Info("submitting capture", "endpoint", c.endpoint,
			"filename", sub.Filename, "bytes", len(sub.PNG))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("collaborator returned %s: %s", resp.Status, msg)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode collaborator response: %w", err)
	}
	return &result, nil
}

var _ Collaborator = (*HTTPCollaborator)(nil)
