// ABOUTME: init subcommand: writes a starter config file with the fake providers enabled
// ABOUTME: Refuses to overwrite an existing file unless -force is given

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

const starterConfig = `# slotforge configuration
# Generated by slotforge init

storage:
  driver: "sqlite"           # sqlite, sqlite3, badger or memory
  path: "%s"
  quota_bytes: 0             # 0 = unlimited

generation:
  call_timeout: "2m"
  rate_limit: 0              # calls per second, 0 = unlimited
  rate_burst: 1

providers:
  # type: fake, http or openai (image only)
  song:
    type: "fake"
  image:
    type: "fake"
    # type: "openai"
    # api_key: "${OPENAI_API_KEY}"
  video:
    type: "fake"
    # type: "http"
    # base_url: "https://video.example.com/v1/generate"

logging:
  level: "info"              # debug, info, warn, error
  format: "text"             # text or json

metrics:
  enabled: false
  textfile: ""
`

func cmdInit(args []string) error {
	fs := newFlagSet("init")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	outputFile := getConfigPath()
	if _, err := os.Stat(outputFile); err == nil && !*force {
		return fmt.Errorf("config file %s already exists (use -force to overwrite)", outputFile)
	}

	dbPath := filepath.Join(getDataPath(), "slotforge.db")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(fmt.Sprintf(starterConfig, dbPath)), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Config written to %s\n", outputFile)
	fmt.Printf("  Data directory: %s\n", filepath.Dir(dbPath))
	fmt.Println()
	fmt.Println("Next:")
	fmt.Println("  slotforge parents create image -title Harbor -prompt 'a harbor at dusk'")
	return nil
}
