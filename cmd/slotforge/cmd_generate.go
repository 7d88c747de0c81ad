// ABOUTME: generate subcommand: runs one batch of slots for a parent and reports each slot
// ABOUTME: Failed slots can be retried once in place with -retry-failed

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/slotforge/internal/orchestrator"
)

func cmdGenerate(ctx context.Context, a *app, args []string) error {
	const usage = "generate <kind> <parent-id> [-count N] [-retry-failed]"
	kind, rest, err := kindArg(args, usage)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: %s", usage)
	}
	parentID := rest[0]

	fs := newFlagSet("generate")
	count := fs.Int("count", 0, "Number of slots (default: settings slot count)")
	retryFailed := fs.Bool("retry-failed", false, "Retry each failed slot once")
	if err := fs.Parse(rest[1:]); err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := a.orch.Subscribe(subCtx, "")

	batch, err := a.svc.GenerateN(ctx, kind, parentID, *count)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("Generating %d %s slot(s) for %s (batch %s)\n", len(batch.SlotIDs), kind, parentID, batch.ID)

	waitBatch(ctx, batch, events)

	if *retryFailed {
		for _, slot := range a.orch.Slots(batch.ID) {
			if slot.Status != orchestrator.StatusError {
				continue
			}
			color.New(color.FgYellow).Printf("↻ retrying slot %d\n", slot.Index+1)
			result, err := a.svc.Retry(ctx, slot.ID)
			if err != nil {
				return err
			}
			select {
			case s := <-result:
				printSlot(s)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	slots := a.orch.Slots(batch.ID)
	printSlotTable(slots)

	failed := 0
	for _, s := range slots {
		if s.Status == orchestrator.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d slot(s) failed", failed, len(slots))
	}
	return nil
}

// waitBatch prints slot transitions for batch until every slot has settled.
func waitBatch(ctx context.Context, batch *orchestrator.Batch, events <-chan orchestrator.Slot) {
	for {
		select {
		case s, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.BatchID == batch.ID && s.Settled() {
				printSlot(s)
			}
		case <-batch.Done():
			drainSlots(batch.ID, events)
			return
		case <-ctx.Done():
			return
		}
	}
}

// drainSlots prints transitions that were buffered when the batch finished.
func drainSlots(batchID string, events <-chan orchestrator.Slot) {
	for {
		select {
		case s, ok := <-events:
			if !ok {
				return
			}
			if s.BatchID == batchID && s.Settled() {
				printSlot(s)
			}
		default:
			return
		}
	}
}

func printSlot(s orchestrator.Slot) {
	switch s.Status {
	case orchestrator.StatusSuccess:
		color.New(color.FgGreen).Printf("✓ slot %d: %s\n", s.Index+1, s.Artifact.ID)
	case orchestrator.StatusError:
		color.New(color.FgRed).Printf("✗ slot %d: %s\n", s.Index+1, s.Error)
	}
}

func printSlotTable(slots []orchestrator.Slot) {
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  SLOT\tSTATUS\tARTIFACT\tDETAIL")
	fmt.Fprintln(w, "  ----\t------\t--------\t------")
	for _, s := range slots {
		artifact, detail := "-", s.Error
		if s.Artifact != nil {
			artifact = s.Artifact.ID
			if len(s.Artifact.URLs) > 0 {
				detail = s.Artifact.URLs[0]
			}
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", s.Index+1, s.Status, artifact, truncate(detail, 60))
	}
	w.Flush()
	fmt.Println()
}
