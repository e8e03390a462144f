// Package uploader pushes drafts to the remote translation backend.
//
// HTTPUploader is the production implementation of the sync coordinator's
// Uploader contract: it POSTs one draft per call to the upstream drafts
// endpoint and returns the identifier the server assigned. The library does
// no logging; the coordinator owns failure reporting.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/go-draftsync-backend/internal/domain"
)

// DefaultTimeout bounds a single upload attempt.
const DefaultTimeout = 15 * time.Second

// payload is the wire shape sent to the upstream backend.
type payload struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	SourceBody     string `json:"source_body"`
	TranslatedBody string `json:"translated_body"`
	TargetLang     string `json:"target_lang,omitempty"`
	UpdatedAt      string `json:"updated_at"`
}

// reply is the upstream response; only the assigned id matters.
type reply struct {
	ID string `json:"id"`
}

// HTTPUploader uploads drafts to {BaseURL}/drafts.
type HTTPUploader struct {
	// BaseURL is the upstream root, e.g. "https://api.example.com/v1".
	BaseURL string
	// Client is the HTTP client used for uploads; NewHTTP sets a timeout.
	Client *http.Client
}

// NewHTTP constructs an HTTPUploader. A non-positive timeout falls back to
// DefaultTimeout.
func NewHTTP(baseURL string, timeout time.Duration) *HTTPUploader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPUploader{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// Upload sends the draft and returns the server-assigned identifier. Any
// non-2xx status, transport failure, or response without an id is an error;
// the coordinator keeps the draft pending in all of those cases.
func (u *HTTPUploader) Upload(ctx context.Context, d *domain.Draft) (string, error) {
	body, err := json.Marshal(payload{
		To:             d.To,
		Subject:        d.Subject,
		SourceBody:     d.SourceBody,
		TranslatedBody: d.TranslatedBody,
		TargetLang:     d.TargetLang,
		UpdatedAt:      d.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("encode draft %d: %w", d.LocalID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/drafts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload draft %d: %w", d.LocalID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for the error message, then discard.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload draft %d: upstream status %d: %s",
			d.LocalID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var r reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decode upload response for draft %d: %w", d.LocalID, err)
	}
	if r.ID == "" {
		return "", fmt.Errorf("upstream returned no id for draft %d", d.LocalID)
	}
	return r.ID, nil
}
