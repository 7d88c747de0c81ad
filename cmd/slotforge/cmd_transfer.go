// ABOUTME: export, import and reset subcommands for moving the whole store between machines
// ABOUTME: Exports go to stdout unless -o is given, so logs and warnings stay on stderr

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/slotforge/internal/store"
)

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("export")
	out := fs.String("o", "", "Write to FILE instead of stdout")
	only := fs.String("only", "", "Comma-separated collections to include")
	stripSecrets := fs.Bool("strip-secrets", false, "Blank the API key in the exported settings")
	if err := fs.Parse(args); err != nil {
		return err
	}

	collections, err := parseCollections(*only)
	if err != nil {
		return err
	}

	snap, err := a.store.Export(ctx)
	if err != nil {
		return err
	}
	if *stripSecrets {
		snap.Settings.APIKey = ""
	}

	data, err := snap.Encode(collections...)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if *out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*out, data, 0600); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	color.New(color.FgGreen, color.Bold).Fprintf(os.Stderr, "✓ Exported to %s\n", *out)
	return nil
}

// parseCollections splits a comma-separated list. An empty list selects everything.
func parseCollections(list string) ([]store.Collection, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var out []store.Collection
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c, err := store.ParseCollection(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: import <file>")
	}

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading import: %w", err)
	}

	result, err := a.store.Import(ctx, payload)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Imported %s\n", args[0])
	for _, c := range result.Replaced {
		fmt.Printf("  replaced  %s\n", c)
	}
	if len(result.Ignored) > 0 {
		color.New(color.FgYellow).Printf("  ignored unknown keys: %s\n", strings.Join(result.Ignored, ", "))
	}
	return nil
}

func cmdReset(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("reset")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		fmt.Print("This removes every parent, artifact and setting. Continue? [y/N]: ")
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := a.store.Reset(ctx); err != nil {
		return err
	}
	color.New(color.FgGreen).Println("✓ Store reset")
	return nil
}
