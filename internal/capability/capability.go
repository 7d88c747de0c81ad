// ABOUTME: Generation capability contract consumed by the orchestrator
// ABOUTME: A capability turns a prompt and parameters into result URLs or a readable failure

package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ErrNoResults is returned when a provider answers without any URL.
var ErrNoResults = errors.New("provider returned no results")

// Params are optional generation parameters.
type Params struct {
	Model   string
	Size    string // image dimensions, e.g. "1024x1024"
	Style   string
	Variant int // slot index within a batch
}

// Capability generates one artifact for a prompt and returns its URL(s).
// Implementations are stateless with respect to the caller: one call, one result.
type Capability interface {
	Generate(ctx context.Context, prompt string, p Params) ([]string, error)
}

// Func adapts a function to Capability.
type Func func(ctx context.Context, prompt string, p Params) ([]string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string, p Params) ([]string, error) {
	return f(ctx, prompt, p)
}

// Error is a provider failure with a message suitable for showing to a user.
type Error struct {
	Provider string
	Status   int // HTTP status, 0 if not applicable
	Message  string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Message converts a capability error into the human-readable string stored
// on a failed slot.
func Message(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}

	var capErr *Error
	if errors.As(err, &capErr) {
		return capErr.Message
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("request failed with status %d", reqErr.HTTPStatusCode)
	}

	return err.Error()
}
