// ABOUTME: Generation service binding parents, settings and providers to batches
// ABOUTME: Reads the slot count from settings, builds the prompt and starts the batch

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/slotforge/internal/capability"
	"github.com/2389/slotforge/internal/store"
)

// ErrNoProvider is returned when no capability is configured for a kind.
var ErrNoProvider = errors.New("no provider configured for kind")

// Service starts batches for stored parents.
type Service struct {
	orch        *Orchestrator
	store       *store.Store
	providers   map[store.Kind]capability.Capability
	callTimeout time.Duration
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCallTimeout bounds each capability call. Zero means no timeout.
func WithCallTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.callTimeout = d }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a service using one capability per kind.
func NewService(orch *Orchestrator, st *store.Store, providers map[store.Kind]capability.Capability, opts ...ServiceOption) *Service {
	s := &Service{
		orch:      orch,
		store:     st,
		providers: providers,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "generation_service")
	return s
}

// Orchestrator returns the orchestrator batches run on.
func (s *Service) Orchestrator() *Orchestrator {
	return s.orch
}

// Generate starts a batch for the parent using the slot count from settings.
func (s *Service) Generate(ctx context.Context, kind store.Kind, parentID string) (*Batch, error) {
	return s.GenerateN(ctx, kind, parentID, 0)
}

// GenerateN starts a batch of count slots. A count of 0 uses the settings
// slot count.
func (s *Service) GenerateN(ctx context.Context, kind store.Kind, parentID string, count int) (*Batch, error) {
	provider, ok := s.providers[kind]
	if !ok || provider == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, kind)
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if count == 0 {
		count = settings.SlotCount
	}

	parent, ok, err := s.store.GetParent(ctx, kind, parentID)
	if err != nil {
		return nil, fmt.Errorf("reading parent: %w", err)
	}
	if !ok || parent.Deleted {
		return nil, fmt.Errorf("%w: %s %s", ErrParentUnavailable, kind, parentID)
	}

	params := capability.Params{
		Model: settings.Model,
		Style: parent.Style,
	}
	if kind == store.KindImage {
		params.Size = settings.ImageSize
	}

	prompt := BuildPrompt(parent, settings)
	s.logger.Debug("starting generation", "kind", kind, "parent_id", parentID, "count", count)

	return s.orch.StartBatch(ctx, kind, parentID, count, s.bind(provider, parent, prompt, params))
}

// Retry retries a failed slot with the call its batch was started with.
func (s *Service) Retry(ctx context.Context, slotID string) (<-chan Slot, error) {
	return s.orch.RetrySlot(ctx, slotID, nil)
}

// bind turns a provider into a Call for one parent.
func (s *Service) bind(provider capability.Capability, parent store.Parent, prompt string, params capability.Params) Call {
	timeout := s.callTimeout
	return func(ctx context.Context, index int) (Result, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		p := params
		p.Variant = index

		urls, err := provider.Generate(ctx, prompt, p)
		if err != nil {
			return Result{}, err
		}
		return Result{
			URLs:   urls,
			Title:  slotTitle(parent, index),
			Prompt: prompt,
		}, nil
	}
}
