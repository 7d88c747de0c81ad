// ABOUTME: Image capability backed by the OpenAI images API
// ABOUTME: Requests URL-format results so artifacts store links, not image bytes

package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// DefaultImageModel is used when neither options nor params name a model.
const DefaultImageModel = openai.CreateImageModelDallE3

// OpenAIOptions configures OpenAIImages.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string // optional, for compatible gateways
	Model      string
	Size       string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAIImages generates images through go-openai.
type OpenAIImages struct {
	client *openai.Client
	model  string
	size   string
	logger *slog.Logger
}

// NewOpenAIImages creates an image capability. An API key is required.
func NewOpenAIImages(opts OpenAIOptions) (*OpenAIImages, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	model := opts.Model
	if model == "" {
		model = DefaultImageModel
	}
	size := opts.Size
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIImages{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		size:   size,
		logger: logger.With("component", "openai_images"),
	}, nil
}

// Generate requests one image for prompt.
func (o *OpenAIImages) Generate(ctx context.Context, prompt string, p Params) ([]string, error) {
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.model,
		Size:           o.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	}
	if p.Model != "" {
		req.Model = p.Model
	}
	if p.Size != "" {
		req.Size = p.Size
	}
	if p.Style == openai.CreateImageStyleVivid || p.Style == openai.CreateImageStyleNatural {
		req.Style = p.Style
	}

	o.logger.Debug("requesting image", "model", req.Model, "size", req.Size, "variant", p.Variant)

	resp, err := o.client.CreateImage(ctx, req)
	if err != nil {
		o.logger.Warn("image request failed", "variant", p.Variant, "error", err)
		return nil, fmt.Errorf("openai image generation: %w", err)
	}

	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	if len(urls) == 0 {
		return nil, ErrNoResults
	}
	return urls, nil
}
