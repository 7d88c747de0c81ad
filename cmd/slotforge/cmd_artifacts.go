// ABOUTME: artifacts subcommands: list, pin, unpin and soft-delete generated results
// ABOUTME: Pinned artifacts are marked with a star in listings

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/slotforge/internal/store"
)

// cmdArtifacts handles artifacts subcommands
func cmdArtifacts(ctx context.Context, a *app, args []string) error {
	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdArtifactsList(ctx, a, args)
	case "pin":
		return cmdArtifactsPin(ctx, a, args, true)
	case "unpin":
		return cmdArtifactsPin(ctx, a, args, false)
	case "delete", "rm", "remove":
		return cmdArtifactsDelete(ctx, a, args)
	default:
		return fmt.Errorf("unknown artifacts subcommand: %s (use list, pin, unpin, delete)", subcmd)
	}
}

func cmdArtifactsList(ctx context.Context, a *app, args []string) error {
	kind, rest, err := kindArg(args, "artifacts list <kind> [-parent ID] [-pinned] [-all]")
	if err != nil {
		return err
	}
	fs := newFlagSet("artifacts list")
	parent := fs.String("parent", "", "Only artifacts of this parent")
	pinned := fs.Bool("pinned", false, "Only pinned artifacts")
	all := fs.Bool("all", false, "Include deleted artifacts")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	arts, err := a.store.ListArtifacts(ctx, kind, store.Filter{
		ParentID:       *parent,
		PinnedOnly:     *pinned,
		IncludeDeleted: *all,
	})
	if err != nil {
		return err
	}
	coll, _ := store.ArtifactCollection(kind)

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  %s\n", coll)

	if len(arts) == 0 {
		fmt.Println("  (none)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  \tID\tPARENT\tTITLE\tURLS\tCREATED")
	fmt.Fprintln(w, "  \t--\t------\t-----\t----\t-------")
	for _, art := range arts {
		mark := " "
		if art.Pinned {
			mark = "★"
		}
		title := truncate(art.Title, 24)
		if art.Deleted {
			title += " (deleted)"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			mark, art.ID, art.ParentID, title,
			truncate(strings.Join(art.URLs, " "), 48),
			art.CreatedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdArtifactsPin(ctx context.Context, a *app, args []string, pinned bool) error {
	verb := "unpin"
	if pinned {
		verb = "pin"
	}
	kind, rest, err := kindArg(args, fmt.Sprintf("artifacts %s <kind> <id>", verb))
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: artifacts %s <kind> <id>", verb)
	}

	art, err := a.store.SetPinned(ctx, kind, rest[0], pinned)
	if err != nil {
		return err
	}

	if art.Pinned {
		color.New(color.FgGreen).Printf("✓ Pinned %s: %s\n", kind, art.ID)
	} else {
		color.New(color.FgGreen).Printf("✓ Unpinned %s: %s\n", kind, art.ID)
	}
	return nil
}

func cmdArtifactsDelete(ctx context.Context, a *app, args []string) error {
	kind, rest, err := kindArg(args, "artifacts delete <kind> <id>")
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: artifacts delete <kind> <id>")
	}

	art, err := a.store.SoftDeleteArtifact(ctx, kind, rest[0])
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("✓ Deleted %s: %s\n", kind, art.ID)
	return nil
}
