// ABOUTME: Wires config, logging, storage medium, store, metrics and providers for a command
// ABOUTME: Every data command runs inside withApp so the store lock and metrics flush are handled once

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/slotforge/internal/capability"
	"github.com/2389/slotforge/internal/config"
	"github.com/2389/slotforge/internal/metrics"
	"github.com/2389/slotforge/internal/orchestrator"
	"github.com/2389/slotforge/internal/quota"
	"github.com/2389/slotforge/internal/store"
)

// app holds everything a command needs.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	store      *store.Store
	orch       *orchestrator.Orchestrator
	svc        *orchestrator.Service
	metrics    *metrics.Metrics
}

// withApp opens the app, runs fn and tears everything down.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), configPath, nil
	}
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.NewRegistry())
	}

	bus := quota.NewBus(logger)
	bus.Subscribe(func() {
		color.New(color.FgYellow).Fprintln(os.Stderr, "⚠ Storage quota exceeded: the last change was not saved. Free space by deleting artifacts or raising storage.quota_bytes.")
	})
	bus.Subscribe(m.QuotaRejected)

	medium, err := openMedium(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	st := store.New(medium, store.WithQuotaBus(bus), store.WithLogger(logger))

	settings, err := st.GetSettings(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	providers, err := buildProviders(cfg, settings.APIKey, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	orch := orchestrator.New(st, orchestrator.WithLogger(logger), orchestrator.WithMetrics(m))
	svc := orchestrator.NewService(orch, st, providers,
		orchestrator.WithCallTimeout(cfg.Generation.CallTimeout),
		orchestrator.WithServiceLogger(logger),
	)

	logger.Debug("slotforge ready", "config", configPath, "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)

	return &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		store:      st,
		orch:       orch,
		svc:        svc,
		metrics:    m,
	}, nil
}

func (a *app) close() error {
	a.orch.Close()
	err := a.store.Close()
	if a.cfg.Metrics.Enabled {
		if mErr := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); mErr != nil {
			a.logger.Warn("metrics not written", "error", mErr)
		}
	}
	return err
}

// openMedium opens the configured storage medium. An empty path puts the
// data under getDataPath().
func openMedium(cfg config.StorageConfig, logger *slog.Logger) (store.Medium, error) {
	path := cfg.Path
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryMedium(cfg.QuotaBytes), nil

	case config.DriverBadger:
		if path == "" {
			path = filepath.Join(getDataPath(), "badger")
		}
		m, err := store.OpenBadger(store.BadgerOptions{
			Path:       path,
			SyncWrites: true,
			QuotaBytes: cfg.QuotaBytes,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return m, nil

	default:
		if path == "" {
			path = filepath.Join(getDataPath(), "slotforge.db")
		}
		m, err := store.OpenSQLite(store.SQLiteOptions{
			Driver:     cfg.Driver,
			Path:       path,
			QuotaBytes: cfg.QuotaBytes,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return m, nil
	}
}

// buildProviders creates one capability per kind, rate limited when configured.
// A provider without its own api_key falls back to the key saved in settings.
func buildProviders(cfg *config.Config, settingsKey string, logger *slog.Logger) (map[store.Kind]capability.Capability, error) {
	kindProviders := map[store.Kind]config.ProviderConfig{
		store.KindSong:  cfg.Providers.Song,
		store.KindImage: cfg.Providers.Image,
		store.KindVideo: cfg.Providers.Video,
	}
	fakeExt := map[store.Kind]string{
		store.KindSong:  "mp3",
		store.KindImage: "png",
		store.KindVideo: "mp4",
	}

	out := make(map[store.Kind]capability.Capability, len(kindProviders))
	for kind, pc := range kindProviders {
		apiKey := pc.APIKey
		if apiKey == "" {
			apiKey = settingsKey
		}

		var c capability.Capability
		switch pc.Type {
		case config.ProviderOpenAI:
			if apiKey == "" {
				// Slots fail with a readable message until a key is saved.
				c = missingKey(kind)
				break
			}
			o, err := capability.NewOpenAIImages(capability.OpenAIOptions{
				APIKey:  apiKey,
				BaseURL: pc.BaseURL,
				Model:   pc.Model,
				Logger:  logger,
			})
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", kind, err)
			}
			c = o
		case config.ProviderHTTP:
			h, err := capability.NewHTTP(capability.HTTPOptions{
				Name:     string(kind),
				Endpoint: pc.BaseURL,
				APIKey:   apiKey,
				Model:    pc.Model,
				Logger:   logger,
			})
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", kind, err)
			}
			c = h
		default:
			c = capability.NewFake("https://fake.slotforge.local/"+string(kind), fakeExt[kind])
		}
		out[kind] = capability.NewLimited(c, cfg.Generation.RateLimit, cfg.Generation.RateBurst)
	}
	return out, nil
}

func missingKey(kind store.Kind) capability.Capability {
	return capability.Func(func(context.Context, string, capability.Params) ([]string, error) {
		return nil, &capability.Error{
			Provider: string(kind),
			Message:  "no API key configured; run: slotforge settings set -api-key <key>",
		}
	})
}
