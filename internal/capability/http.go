// ABOUTME: Generic JSON-over-HTTP capability for song and video providers
// ABOUTME: POSTs the prompt and parameters and expects {"urls": [...]} or {"error": "..."}

package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 1 << 20

// HTTPOptions configures an HTTP capability.
type HTTPOptions struct {
	Name     string // provider name used in errors and logs
	Endpoint string
	APIKey   string // sent as a bearer token when set
	Model    string
	Client   *http.Client
	Logger   *slog.Logger
}

// HTTP calls a JSON generation endpoint.
type HTTP struct {
	name     string
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

type httpRequest struct {
	Prompt  string `json:"prompt"`
	Model   string `json:"model,omitempty"`
	Size    string `json:"size,omitempty"`
	Style   string `json:"style,omitempty"`
	Variant int    `json:"variant"`
}

type httpResponse struct {
	URLs  []string `json:"urls"`
	URL   string   `json:"url"`
	Error string   `json:"error"`
}

// NewHTTP creates an HTTP capability. Endpoint is required.
func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("http capability: endpoint is required")
	}

	name := opts.Name
	if name == "" {
		name = "http"
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTP{
		name:     name,
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		model:    opts.Model,
		client:   client,
		logger:   logger.With("component", "http_capability", "provider", name),
	}, nil
}

// Generate posts one generation request.
func (h *HTTP) Generate(ctx context.Context, prompt string, p Params) ([]string, error) {
	model := p.Model
	if model == "" {
		model = h.model
	}

	body, err := json.Marshal(httpRequest{
		Prompt:  prompt,
		Model:   model,
		Size:    p.Size,
		Style:   p.Style,
		Variant: p.Variant,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("request failed", "variant", p.Variant, "error", err)
		return nil, fmt.Errorf("%s request: %w", h.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", h.name, err)
	}

	var out httpResponse
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode >= 400 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Provider: h.name, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &Error{Provider: h.name, Status: resp.StatusCode, Message: "malformed provider response"}
	}
	if out.Error != "" {
		return nil, &Error{Provider: h.name, Status: resp.StatusCode, Message: out.Error}
	}

	urls := out.URLs
	if len(urls) == 0 && out.URL != "" {
		urls = []string{out.URL}
	}
	if len(urls) == 0 {
		return nil, ErrNoResults
	}
	return urls, nil
}
