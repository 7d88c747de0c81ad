// ABOUTME: Entry point for the slotforge CLI
// ABOUTME: Dispatches subcommands for parents, generation batches, artifacts, settings and transfer

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
     _       _    __
 ___| | ___ | |_ / _| ___  _ __ __ _  ___
/ __| |/ _ \| __| |_ / _ \| '__/ _' |/ _ \
\__ \ | (_) | |_|  _| (_) | | | (_| |  __/
|___/_|\___/ \__|_|  \___/|_|  \__, |\___|
                               |___/
`

// getConfigPath returns the path to the slotforge config file.
// Priority: SLOTFORGE_CONFIG env var > XDG_CONFIG_HOME/slotforge/config.yaml > ~/.config/slotforge/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SLOTFORGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "slotforge", "config.yaml")
}

// getDataPath returns the path to the slotforge data directory.
// Priority: XDG_DATA_HOME/slotforge > ~/.local/share/slotforge
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "slotforge")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "parents":
		err = withApp(ctx, func(a *app) error { return cmdParents(ctx, a, args) })
	case "generate", "gen":
		err = withApp(ctx, func(a *app) error { return cmdGenerate(ctx, a, args) })
	case "artifacts":
		err = withApp(ctx, func(a *app) error { return cmdArtifacts(ctx, a, args) })
	case "settings":
		err = withApp(ctx, func(a *app) error { return cmdSettings(ctx, a, args) })
	case "export":
		err = withApp(ctx, func(a *app) error { return cmdExport(ctx, a, args) })
	case "import":
		err = withApp(ctx, func(a *app) error { return cmdImport(ctx, a, args) })
	case "reset":
		err = withApp(ctx, func(a *app) error { return cmdReset(ctx, a, args) })
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: slotforge <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  init [-force]                              Write a starter config file")
	fmt.Println("  parents list <kind> [-all]                 List lyrics, image sessions or video scripts")
	fmt.Println("  parents create <kind> -title T [-prompt P] [-content C] [-style S]")
	fmt.Println("  parents update <kind> <id> [-title T] [-prompt P] [-content C] [-style S]")
	fmt.Println("  parents delete <kind> <id>                 Soft-delete a parent")
	fmt.Println("  generate <kind> <parent-id> [-count N] [-retry-failed]")
	fmt.Println("  artifacts list <kind> [-parent ID] [-pinned] [-all]")
	fmt.Println("  artifacts pin|unpin|delete <kind> <id>")
	fmt.Println("  settings show                              Show settings (api key masked)")
	fmt.Println("  settings set [-api-key K] [-model M] [-image-size S] [-system-prompt P] [-slot-count N]")
	fmt.Println("  export [-o FILE] [-only c1,c2] [-strip-secrets]")
	fmt.Println("  import <file>                              Replace the collections present in FILE")
	fmt.Println("  reset [-yes]                               Remove everything")
	fmt.Println()
	yellow.Println("Kinds:")
	fmt.Println("  song    lyrics -> songs")
	fmt.Println("  image   imageSessions -> images")
	fmt.Println("  video   videoScripts -> videoClips")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  SLOTFORGE_CONFIG         Config file (default: $XDG_CONFIG_HOME/slotforge/config.yaml)")
	fmt.Println("  XDG_DATA_HOME            Data directory root (default: ~/.local/share)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  slotforge parents create image -title Harbor -prompt 'a harbor at dusk' -style watercolor")
	fmt.Println("  slotforge generate image <session-id> -count 4")
	fmt.Println("  slotforge export -only images,imageSessions -strip-secrets -o images.json")
	fmt.Println()
}
