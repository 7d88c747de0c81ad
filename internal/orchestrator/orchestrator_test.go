package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/slotforge/internal/metrics"
	"github.com/2389/slotforge/internal/store"
)

const waitTimeout = 2 * time.Second

func setupOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *store.Store, *store.MemoryMedium) {
	t.Helper()
	medium := store.NewMemoryMedium(0)
	st := store.New(medium)
	o := New(st, opts...)
	t.Cleanup(func() {
		o.Close()
		_ = st.Close()
	})
	return o, st, medium
}

func createParent(t *testing.T, st *store.Store, kind store.Kind, title string) store.Parent {
	t.Helper()
	p, err := st.CreateParent(context.Background(), &store.Parent{Kind: kind, Title: title, Prompt: "prompt for " + title})
	require.NoError(t, err)
	return p
}

type outcome struct {
	res Result
	err error
}

// gate is a Call whose invocations block until released per index.
type gate struct {
	release []chan outcome
	calls   atomic.Int32
}

func newGate(n int) *gate {
	g := &gate{release: make([]chan outcome, n)}
	for i := range g.release {
		g.release[i] = make(chan outcome, 1)
	}
	return g
}

func (g *gate) call(ctx context.Context, index int) (Result, error) {
	g.calls.Add(1)
	o := <-g.release[index]
	return o.res, o.err
}

func (g *gate) succeed(index int, url string) {
	g.release[index] <- outcome{res: Result{URLs: []string{url}}}
}

func (g *gate) fail(index int, msg string) {
	g.release[index] <- outcome{err: errors.New(msg)}
}

func immediate(ctx context.Context, index int) (Result, error) {
	return Result{URLs: []string{fmt.Sprintf("https://cdn.example/%d.png", index)}}, nil
}

func waitDone(t *testing.T, b *Batch) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("batch %s did not settle", b.ID)
	}
}

func waitStatus(t *testing.T, o *Orchestrator, slotID string, want Status) Slot {
	t.Helper()
	var got Slot
	require.Eventually(t, func() bool {
		s, ok := o.Slot(slotID)
		got = s
		return ok && s.Status == want
	}, waitTimeout, 5*time.Millisecond, "slot %s never reached %s", slotID, want)
	return got
}

func TestStartBatch_PartialFailure(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindSong, "Rain")

	settings, err := st.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, settings.SlotCount)

	g := newGate(settings.SlotCount)
	b, err := o.StartBatch(ctx, store.KindSong, parent.ID, settings.SlotCount, g.call)
	require.NoError(t, err)

	slots := o.Slots(b.ID)
	require.Len(t, slots, 3)
	for _, s := range slots {
		assert.Equal(t, StatusLoading, s.Status)
	}

	g.succeed(0, "https://cdn.example/one.mp3")
	g.fail(1, "network error")
	g.succeed(2, "https://cdn.example/three.mp3")
	waitDone(t, b)

	songs, err := st.ListArtifacts(ctx, store.KindSong, store.Filter{ParentID: parent.ID})
	require.NoError(t, err)
	assert.Len(t, songs, 2)

	slots = o.Slots(b.ID)
	assert.Equal(t, StatusSuccess, slots[0].Status)
	assert.Equal(t, StatusError, slots[1].Status)
	assert.Equal(t, "network error", slots[1].Error)
	assert.Nil(t, slots[1].Artifact)
	assert.Equal(t, StatusSuccess, slots[2].Status)

	_, busy := o.InFlight(store.KindSong, parent.ID)
	assert.False(t, busy)
}

func TestStartBatch_SuccessSlotHoldsPersistedArtifact(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindImage, "Harbor")

	call := func(ctx context.Context, index int) (Result, error) {
		return Result{URLs: []string{"https://img.example/a.png", "https://img.example/b.png"}, Title: "Harbor (take 1)", Prompt: "harbor at dusk"}, nil
	}
	b, err := o.StartBatch(ctx, store.KindImage, parent.ID, 1, call)
	require.NoError(t, err)
	waitDone(t, b)

	slot := o.Slots(b.ID)[0]
	require.NotNil(t, slot.Artifact)

	stored, ok, err := st.GetArtifact(ctx, store.KindImage, slot.Artifact.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.ID, slot.Artifact.ID)
	assert.Equal(t, stored.URLs, slot.Artifact.URLs)
	assert.True(t, stored.CreatedAt.Equal(slot.Artifact.CreatedAt))
	assert.Equal(t, parent.ID, stored.ParentID)
	assert.Equal(t, "harbor at dusk", stored.Prompt)
	assert.False(t, stored.Pinned)
}

func TestStartBatch_SlotIDsExistBeforeAnyCall(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	parent := createParent(t, st, store.KindVideo, "Trailer")

	g := newGate(4)
	b, err := o.StartBatch(context.Background(), store.KindVideo, parent.ID, 4, g.call)
	require.NoError(t, err)

	require.Len(t, b.SlotIDs, 4)
	seen := make(map[string]bool)
	for i, id := range b.SlotIDs {
		s, ok := o.Slot(id)
		require.True(t, ok)
		assert.Equal(t, i, s.Index)
		assert.Equal(t, b.ID, s.BatchID)
		assert.False(t, seen[id], "duplicate slot id")
		seen[id] = true
	}

	for i := range 4 {
		g.succeed(i, fmt.Sprintf("https://cdn.example/%d.mp4", i))
	}
	waitDone(t, b)

	// Identities are stable regardless of arrival order.
	for i, s := range o.Slots(b.ID) {
		assert.Equal(t, b.SlotIDs[i], s.ID)
	}
}

func TestStartBatch_InvalidCount(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	parent := createParent(t, st, store.KindSong, "x")

	for _, n := range []int{0, -2} {
		called := false
		_, err := o.StartBatch(context.Background(), store.KindSong, parent.ID, n, func(ctx context.Context, index int) (Result, error) {
			called = true
			return Result{}, nil
		})
		assert.ErrorIs(t, err, ErrInvalidCount)
		assert.False(t, called)
	}

	_, busy := o.InFlight(store.KindSong, parent.ID)
	assert.False(t, busy)
}

func TestStartBatch_NilCall(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	parent := createParent(t, st, store.KindSong, "x")

	_, err := o.StartBatch(context.Background(), store.KindSong, parent.ID, 1, nil)
	assert.ErrorIs(t, err, ErrNilCall)
}

func TestStartBatch_ParentUnavailable(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()

	_, err := o.StartBatch(ctx, store.KindSong, "missing", 3, immediate)
	assert.ErrorIs(t, err, ErrParentUnavailable)

	parent := createParent(t, st, store.KindSong, "gone")
	_, err = st.SoftDeleteParent(ctx, store.KindSong, parent.ID)
	require.NoError(t, err)

	_, err = o.StartBatch(ctx, store.KindSong, parent.ID, 3, immediate)
	assert.ErrorIs(t, err, ErrParentUnavailable)

	_, busy := o.InFlight(store.KindSong, parent.ID)
	assert.False(t, busy)
}

func TestStartBatch_GuardIsPerParent(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	p1 := createParent(t, st, store.KindImage, "one")
	p2 := createParent(t, st, store.KindImage, "two")

	g1 := newGate(2)
	b1, err := o.StartBatch(ctx, store.KindImage, p1.ID, 2, g1.call)
	require.NoError(t, err)

	_, err = o.StartBatch(ctx, store.KindImage, p1.ID, 2, immediate)
	assert.ErrorIs(t, err, ErrBatchInFlight)

	b2, err := o.StartBatch(ctx, store.KindImage, p2.ID, 2, immediate)
	require.NoError(t, err)
	waitDone(t, b2)

	running, busy := o.InFlight(store.KindImage, p1.ID)
	assert.True(t, busy)
	assert.Equal(t, b1.ID, running)

	g1.succeed(0, "https://img.example/0.png")
	g1.succeed(1, "https://img.example/1.png")
	waitDone(t, b1)

	b3, err := o.StartBatch(ctx, store.KindImage, p1.ID, 1, immediate)
	require.NoError(t, err)
	waitDone(t, b3)
}

func TestStartBatch_GuardClearsOnlyWhenAllSettled(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	parent := createParent(t, st, store.KindSong, "slow")

	g := newGate(3)
	b, err := o.StartBatch(context.Background(), store.KindSong, parent.ID, 3, g.call)
	require.NoError(t, err)

	g.succeed(0, "https://cdn.example/0.mp3")
	g.fail(1, "boom")
	waitStatus(t, o, b.SlotIDs[0], StatusSuccess)
	waitStatus(t, o, b.SlotIDs[1], StatusError)

	_, busy := o.InFlight(store.KindSong, parent.ID)
	assert.True(t, busy)
	select {
	case <-b.Done():
		t.Fatal("batch settled with a loading slot")
	default:
	}

	g.succeed(2, "https://cdn.example/2.mp3")
	waitDone(t, b)

	_, busy = o.InFlight(store.KindSong, parent.ID)
	assert.False(t, busy)
}

func TestStartBatch_NotCancelledWithContext(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	parent := createParent(t, st, store.KindSong, "x")

	ctx, cancel := context.WithCancel(context.Background())
	g := newGate(1)
	b, err := o.StartBatch(ctx, store.KindSong, parent.ID, 1, g.call)
	require.NoError(t, err)
	cancel()

	g.succeed(0, "https://cdn.example/late.mp3")
	waitDone(t, b)
	assert.Equal(t, StatusSuccess, o.Slots(b.ID)[0].Status)
}

func TestStartBatch_ConcurrentBatchesLoseNoArtifacts(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()

	const parents, perBatch = 6, 5
	var batches []*Batch
	var ids []string
	for i := range parents {
		p := createParent(t, st, store.KindImage, fmt.Sprintf("p%d", i))
		ids = append(ids, p.ID)
		b, err := o.StartBatch(ctx, store.KindImage, p.ID, perBatch, immediate)
		require.NoError(t, err)
		batches = append(batches, b)
	}
	for _, b := range batches {
		waitDone(t, b)
	}

	all, err := st.ListArtifacts(ctx, store.KindImage, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, parents*perBatch)

	for _, id := range ids {
		own, err := st.ListArtifacts(ctx, store.KindImage, store.Filter{ParentID: id})
		require.NoError(t, err)
		assert.Len(t, own, perBatch)
	}
}

func TestStartBatch_EmptyResultIsError(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindVideo, "x")

	b, err := o.StartBatch(ctx, store.KindVideo, parent.ID, 1, func(ctx context.Context, index int) (Result, error) {
		return Result{}, nil
	})
	require.NoError(t, err)
	waitDone(t, b)

	slot := o.Slots(b.ID)[0]
	assert.Equal(t, StatusError, slot.Status)
	assert.Equal(t, "provider returned no results", slot.Error)

	clips, err := st.ListArtifacts(ctx, store.KindVideo, store.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestStartBatch_PanicBecomesSlotError(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	parent := createParent(t, st, store.KindSong, "x")

	b, err := o.StartBatch(context.Background(), store.KindSong, parent.ID, 2, func(ctx context.Context, index int) (Result, error) {
		if index == 0 {
			panic("provider exploded")
		}
		return immediate(ctx, index)
	})
	require.NoError(t, err)
	waitDone(t, b)

	slots := o.Slots(b.ID)
	assert.Equal(t, StatusError, slots[0].Status)
	assert.Contains(t, slots[0].Error, "provider exploded")
	assert.Equal(t, StatusSuccess, slots[1].Status)
}

func TestStartBatch_QuotaExceededFailsSlot(t *testing.T) {
	o, st, medium := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindImage, "full")

	var notified atomic.Int32
	st.QuotaBus().Subscribe(func() { notified.Add(1) })
	medium.SetQuota(medium.Usage())

	b, err := o.StartBatch(ctx, store.KindImage, parent.ID, 2, immediate)
	require.NoError(t, err)
	waitDone(t, b)

	for _, s := range o.Slots(b.ID) {
		assert.Equal(t, StatusError, s.Status)
		assert.Equal(t, "storage quota exceeded", s.Error)
		assert.Nil(t, s.Artifact)
	}
	assert.Equal(t, int32(2), notified.Load())

	images, err := st.ListArtifacts(ctx, store.KindImage, store.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestRetrySlot_OnlyTouchesThatSlot(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindSong, "retry")

	g := newGate(3)
	b, err := o.StartBatch(ctx, store.KindSong, parent.ID, 3, g.call)
	require.NoError(t, err)

	g.succeed(0, "https://cdn.example/0.mp3")
	g.fail(1, "network error")
	before0 := waitStatus(t, o, b.SlotIDs[0], StatusSuccess)
	waitStatus(t, o, b.SlotIDs[1], StatusError)

	done, err := o.RetrySlot(ctx, b.SlotIDs[1], func(ctx context.Context, index int) (Result, error) {
		assert.Equal(t, 1, index)
		return Result{URLs: []string{"https://cdn.example/1-retry.mp3"}}, nil
	})
	require.NoError(t, err)

	var retried Slot
	select {
	case retried = <-done:
	case <-time.After(waitTimeout):
		t.Fatal("retry did not settle")
	}
	assert.Equal(t, StatusSuccess, retried.Status)
	assert.Equal(t, 2, retried.Attempts)
	assert.Equal(t, []string{"https://cdn.example/1-retry.mp3"}, retried.Artifact.URLs)

	after0, _ := o.Slot(b.SlotIDs[0])
	assert.Equal(t, before0, after0)
	still, _ := o.Slot(b.SlotIDs[2])
	assert.Equal(t, StatusLoading, still.Status)

	running, busy := o.InFlight(store.KindSong, parent.ID)
	assert.True(t, busy)
	assert.Equal(t, b.ID, running)
	assert.Len(t, o.Slots(b.ID), 3)

	g.succeed(2, "https://cdn.example/2.mp3")
	waitDone(t, b)

	songs, err := st.ListArtifacts(ctx, store.KindSong, store.Filter{ParentID: parent.ID})
	require.NoError(t, err)
	assert.Len(t, songs, 3)
}

func TestRetrySlot_NilCallReusesBatchCall(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindImage, "flaky")

	var attempts atomic.Int32
	call := func(ctx context.Context, index int) (Result, error) {
		if attempts.Add(1) == 1 {
			return Result{}, errors.New("rate limited")
		}
		return immediate(ctx, index)
	}

	b, err := o.StartBatch(ctx, store.KindImage, parent.ID, 1, call)
	require.NoError(t, err)
	waitDone(t, b)
	require.Equal(t, "rate limited", o.Slots(b.ID)[0].Error)

	done, err := o.RetrySlot(ctx, b.SlotIDs[0], nil)
	require.NoError(t, err)
	retried := <-done
	assert.Equal(t, StatusSuccess, retried.Status)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRetrySlot_FailureStaysError(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindVideo, "x")

	b, err := o.StartBatch(ctx, store.KindVideo, parent.ID, 1, func(ctx context.Context, index int) (Result, error) {
		return Result{}, errors.New("first")
	})
	require.NoError(t, err)
	waitDone(t, b)

	done, err := o.RetrySlot(ctx, b.SlotIDs[0], func(ctx context.Context, index int) (Result, error) {
		return Result{}, errors.New("second")
	})
	require.NoError(t, err)
	retried := <-done
	assert.Equal(t, StatusError, retried.Status)
	assert.Equal(t, "second", retried.Error)

	clips, err := st.ListArtifacts(ctx, store.KindVideo, store.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestRetrySlot_Rejections(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindSong, "x")

	g := newGate(2)
	b, err := o.StartBatch(ctx, store.KindSong, parent.ID, 2, g.call)
	require.NoError(t, err)

	_, err = o.RetrySlot(ctx, b.SlotIDs[0], nil)
	assert.ErrorIs(t, err, ErrSlotNotRetryable, "loading slot")

	g.succeed(0, "https://cdn.example/0.mp3")
	g.succeed(1, "https://cdn.example/1.mp3")
	waitDone(t, b)

	_, err = o.RetrySlot(ctx, b.SlotIDs[0], nil)
	assert.ErrorIs(t, err, ErrSlotNotRetryable, "successful slot")

	_, err = o.RetrySlot(ctx, "no-such-slot", nil)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestDismiss(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	ctx := context.Background()
	parent := createParent(t, st, store.KindImage, "x")

	g := newGate(2)
	b, err := o.StartBatch(ctx, store.KindImage, parent.ID, 2, g.call)
	require.NoError(t, err)

	assert.ErrorIs(t, o.Dismiss(b.SlotIDs[0]), ErrSlotBusy)

	g.fail(0, "nope")
	g.succeed(1, "https://img.example/1.png")
	waitDone(t, b)

	require.NoError(t, o.Dismiss(b.SlotIDs[0]))
	_, ok := o.Slot(b.SlotIDs[0])
	assert.False(t, ok)
	assert.Len(t, o.Slots(b.ID), 1)

	_, err = o.RetrySlot(ctx, b.SlotIDs[0], nil)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	require.NoError(t, o.Dismiss(b.SlotIDs[1]))
	_, ok = o.Batch(b.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, o.Dismiss(b.SlotIDs[1]), ErrSlotNotFound)

	// Dismissal never touches persisted artifacts.
	images, err := st.ListArtifacts(ctx, store.KindImage, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

func TestErrorSlotsAreKept(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	parent := createParent(t, st, store.KindSong, "x")

	b, err := o.StartBatch(context.Background(), store.KindSong, parent.ID, 2, func(ctx context.Context, index int) (Result, error) {
		return Result{}, errors.New("down")
	})
	require.NoError(t, err)
	waitDone(t, b)

	time.Sleep(20 * time.Millisecond)
	slots := o.Slots(b.ID)
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.Equal(t, StatusError, s.Status)
	}
}

func TestSubscribe_StreamsTransitions(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	parent := createParent(t, st, store.KindSong, "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := o.Subscribe(ctx, "")

	g := newGate(2)
	b, err := o.StartBatch(context.Background(), store.KindSong, parent.ID, 2, g.call)
	require.NoError(t, err)
	g.fail(0, "bad")
	g.succeed(1, "https://cdn.example/1.mp3")
	waitDone(t, b)

	var got []Slot
	timeout := time.After(waitTimeout)
	for len(got) < 4 {
		select {
		case s := <-events:
			got = append(got, s)
		case <-timeout:
			t.Fatalf("received %d of 4 events", len(got))
		}
	}

	assert.Equal(t, StatusLoading, got[0].Status)
	assert.Equal(t, StatusLoading, got[1].Status)
	terminal := map[string]Slot{got[2].ID: got[2], got[3].ID: got[3]}
	assert.Equal(t, StatusError, terminal[b.SlotIDs[0]].Status)
	assert.Equal(t, StatusSuccess, terminal[b.SlotIDs[1]].Status)
}

func TestSubscribe_FiltersByBatchAndClosesOnCancel(t *testing.T) {
	o, st, _ := setupOrchestrator(t)
	p1 := createParent(t, st, store.KindImage, "one")
	p2 := createParent(t, st, store.KindImage, "two")

	g := newGate(1)
	b1, err := o.StartBatch(context.Background(), store.KindImage, p1.ID, 1, g.call)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events := o.Subscribe(ctx, b1.ID)

	b2, err := o.StartBatch(context.Background(), store.KindImage, p2.ID, 1, immediate)
	require.NoError(t, err)
	waitDone(t, b2)

	g.succeed(0, "https://img.example/x.png")
	waitDone(t, b1)

	select {
	case s := <-events:
		assert.Equal(t, b1.ID, s.BatchID)
		assert.Equal(t, StatusSuccess, s.Status)
	case <-time.After(waitTimeout):
		t.Fatal("no event for subscribed batch")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, waitTimeout, 5*time.Millisecond)
}

func TestOrchestrator_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	o, st, _ := setupOrchestrator(t, WithMetrics(m))
	ctx := context.Background()
	parent := createParent(t, st, store.KindImage, "m")

	b, err := o.StartBatch(ctx, store.KindImage, parent.ID, 3, func(ctx context.Context, index int) (Result, error) {
		if index == 1 {
			return Result{}, errors.New("nope")
		}
		return immediate(ctx, index)
	})
	require.NoError(t, err)
	waitDone(t, b)

	done, err := o.RetrySlot(ctx, b.SlotIDs[1], immediate)
	require.NoError(t, err)
	<-done

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesStarted.WithLabelValues("image")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BatchesInFlight.WithLabelValues("image")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SlotsSettled.WithLabelValues("image", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlotsSettled.WithLabelValues("image", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlotRetries.WithLabelValues("image")))
}
