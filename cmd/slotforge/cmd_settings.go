// ABOUTME: settings subcommands: show the saved settings and patch individual fields
// ABOUTME: The API key is always masked on output

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/slotforge/internal/store"
)

func cmdSettings(ctx context.Context, a *app, args []string) error {
	subcmd := "show"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "show", "get":
		settings, err := a.store.GetSettings(ctx)
		if err != nil {
			return err
		}
		printSettings(settings)
		return nil
	case "set":
		return cmdSettingsSet(ctx, a, args)
	default:
		return fmt.Errorf("unknown settings subcommand: %s (use show, set)", subcmd)
	}
}

func cmdSettingsSet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("settings set")
	apiKey := fs.String("api-key", "", "Provider API key")
	model := fs.String("model", "", "Model name")
	imageSize := fs.String("image-size", "", "Image size, e.g. 1024x1024")
	systemPrompt := fs.String("system-prompt", "", "Text prepended to every prompt")
	slotCount := fs.Int("slot-count", 0, "Slots per batch (1-10)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if len(set) == 0 {
		return fmt.Errorf("usage: settings set [-api-key K] [-model M] [-image-size S] [-system-prompt P] [-slot-count N]")
	}

	settings, err := a.store.UpdateSettings(ctx, func(s *store.Settings) {
		if set["api-key"] {
			s.APIKey = *apiKey
		}
		if set["model"] {
			s.Model = *model
		}
		if set["image-size"] {
			s.ImageSize = *imageSize
		}
		if set["system-prompt"] {
			s.SystemPrompt = *systemPrompt
		}
		if set["slot-count"] {
			s.SlotCount = *slotCount
		}
	})
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Println("✓ Settings saved")
	printSettings(settings)
	return nil
}

func printSettings(s store.Settings) {
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Settings")
	cyan.Println("  --------")
	fmt.Printf("  API key:        %s\n", maskKey(s.APIKey))
	fmt.Printf("  Model:          %s\n", orDefault(s.Model))
	fmt.Printf("  Image size:     %s\n", orDefault(s.ImageSize))
	fmt.Printf("  Slot count:     %d\n", s.SlotCount)
	fmt.Printf("  System prompt:  %s\n", orDefault(truncate(strings.ReplaceAll(s.SystemPrompt, "\n", " "), 60)))
	fmt.Println()
}

// maskKey keeps the last four characters of a key visible.
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
