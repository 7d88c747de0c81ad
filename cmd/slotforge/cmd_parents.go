// ABOUTME: parents subcommands: list, create, update and soft-delete lyrics, sessions and scripts
// ABOUTME: Output is a tabwriter table in the style of the other list commands

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/slotforge/internal/store"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// kindArg parses the leading <kind> argument.
func kindArg(args []string, usage string) (store.Kind, []string, error) {
	if len(args) < 1 {
		return "", nil, fmt.Errorf("usage: %s", usage)
	}
	kind, err := store.ParseKind(args[0])
	if err != nil {
		return "", nil, err
	}
	return kind, args[1:], nil
}

// cmdParents handles parents subcommands
func cmdParents(ctx context.Context, a *app, args []string) error {
	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdParentsList(ctx, a, args)
	case "create", "add":
		return cmdParentsCreate(ctx, a, args)
	case "update", "edit":
		return cmdParentsUpdate(ctx, a, args)
	case "delete", "rm", "remove":
		return cmdParentsDelete(ctx, a, args)
	default:
		return fmt.Errorf("unknown parents subcommand: %s (use list, create, update, delete)", subcmd)
	}
}

func cmdParentsList(ctx context.Context, a *app, args []string) error {
	kind, rest, err := kindArg(args, "parents list <kind> [-all]")
	if err != nil {
		return err
	}
	fs := newFlagSet("parents list")
	all := fs.Bool("all", false, "Include deleted parents")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	parents, err := a.store.ListParents(ctx, kind, store.Filter{IncludeDeleted: *all})
	if err != nil {
		return err
	}
	coll, _ := store.ParentCollection(kind)

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  %s\n", coll)

	if len(parents) == 0 {
		fmt.Println("  (none)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tSTYLE\tPROMPT\tUPDATED")
	fmt.Fprintln(w, "  --\t-----\t-----\t------\t-------")
	for _, p := range parents {
		title := truncate(p.Title, 24)
		if p.Deleted {
			title += " (deleted)"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			p.ID, title, truncate(p.Style, 16), truncate(p.Prompt, 32), p.UpdatedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdParentsCreate(ctx context.Context, a *app, args []string) error {
	kind, rest, err := kindArg(args, "parents create <kind> -title T [-prompt P] [-content C] [-style S]")
	if err != nil {
		return err
	}
	fs := newFlagSet("parents create")
	title := fs.String("title", "", "Title")
	prompt := fs.String("prompt", "", "Generation prompt")
	content := fs.String("content", "", "Lyrics text, session notes or script body")
	style := fs.String("style", "", "Genre, art style or shot style")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if *title == "" {
		return fmt.Errorf("usage: parents create <kind> -title T [-prompt P] [-content C] [-style S]")
	}

	p, err := a.store.CreateParent(ctx, &store.Parent{
		Kind:    kind,
		Title:   *title,
		Prompt:  *prompt,
		Content: *content,
		Style:   *style,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created %s parent: %s\n", kind, p.ID)
	fmt.Printf("  Title:  %s\n", p.Title)
	if p.Style != "" {
		fmt.Printf("  Style:  %s\n", p.Style)
	}
	return nil
}

func cmdParentsUpdate(ctx context.Context, a *app, args []string) error {
	const usage = "parents update <kind> <id> [-title T] [-prompt P] [-content C] [-style S]"
	kind, rest, err := kindArg(args, usage)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: %s", usage)
	}
	id := rest[0]

	fs := newFlagSet("parents update")
	title := fs.String("title", "", "Title")
	prompt := fs.String("prompt", "", "Generation prompt")
	content := fs.String("content", "", "Lyrics text, session notes or script body")
	style := fs.String("style", "", "Genre, art style or shot style")
	if err := fs.Parse(rest[1:]); err != nil {
		return err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if len(set) == 0 {
		return fmt.Errorf("nothing to update")
	}

	p, err := a.store.UpdateParent(ctx, kind, id, func(p *store.Parent) {
		if set["title"] {
			p.Title = *title
		}
		if set["prompt"] {
			p.Prompt = *prompt
		}
		if set["content"] {
			p.Content = *content
		}
		if set["style"] {
			p.Style = *style
		}
	})
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("✓ Updated %s parent: %s\n", kind, p.ID)
	return nil
}

func cmdParentsDelete(ctx context.Context, a *app, args []string) error {
	kind, rest, err := kindArg(args, "parents delete <kind> <id>")
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: parents delete <kind> <id>")
	}

	p, err := a.store.SoftDeleteParent(ctx, kind, rest[0])
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("✓ Deleted %s parent: %s\n", kind, p.ID)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
