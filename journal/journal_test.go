package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/placebot/dbopen"
	"github.com/hazyhaar/placebot/selector"
	"github.com/hazyhaar/placebot/traversal"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return New(db)
}

func TestRecord_RoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	o := &traversal.Outcome{
		Kind:     traversal.Success,
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Ref:      "https://example.com/root.json",
		Stats:    selector.Stats{Solid: 10, Mismatch: 3},
		Diffed:   true,
		Pick:     selector.Pick{X: 4, Y: 9, Color: 13},
		Picked:   true,
		Wait:     5 * time.Minute,
	}
	id, err := j.Record(ctx, o)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !strings.HasPrefix(id, "cyc_") {
		t.Fatalf("id: got %q", id)
	}

	entries, err := j.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	e := entries[0]
	if e.CycleID != id || e.Outcome != "success" || e.TargetRef != o.Ref {
		t.Fatalf("entry: got %+v", e)
	}
	if e.X == nil || *e.X != 4 || *e.Y != 9 || *e.Color != 13 {
		t.Fatalf("pick: got %v %v %v", e.X, e.Y, e.Color)
	}
	if e.Percent == nil || *e.Percent != 70 {
		t.Fatalf("percent: got %v, want 70", e.Percent)
	}
	if e.WaitMs != 300_000 {
		t.Fatalf("wait_ms: got %d", e.WaitMs)
	}
	if !e.StartedAt.Equal(start) || e.FinishedAt.Sub(e.StartedAt) != 1500*time.Millisecond {
		t.Fatalf("times: got %v .. %v", e.StartedAt, e.FinishedAt)
	}
}

func TestRecord_NoPickStoresNull(t *testing.T) {
	// WHAT: A cycle that failed before any diff stores NULL coordinates and percent.
	// WHY: (0,0) with color 0 is a legitimate placement, and empty stats would read as 100%.
	j := newTestJournal(t)
	ctx := context.Background()
	o := &traversal.Outcome{
		Kind:    traversal.HardFailure,
		Started: time.Now(), Finished: time.Now(),
		Ref: "root",
		Err: errors.New("target: transport error: dial tcp"),
	}
	if err := j.RecordCycle(ctx, o); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	e := entries[0]
	if e.X != nil || e.Y != nil || e.Color != nil {
		t.Fatalf("pick should be nil: %+v", e)
	}
	if e.Outcome != "hard_failure" || !strings.Contains(e.Error, "dial tcp") {
		t.Fatalf("entry: got %+v", e)
	}
	if e.Percent != nil {
		t.Fatalf("percent of an undiffed cycle: got %v, want nil", *e.Percent)
	}
}

func TestRecent_NewestFirstAndLimit(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < 5; i++ {
		o := &traversal.Outcome{
			Kind:     traversal.Exhausted,
			Started:  base.Add(time.Duration(i) * time.Second),
			Finished: base.Add(time.Duration(i) * time.Second),
			Ref:      fmt.Sprintf("ref-%d", i),
		}
		if _, err := j.Record(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len: got %d, want 3", len(entries))
	}
	for i, want := range []string{"ref-4", "ref-3", "ref-2"} {
		if entries[i].TargetRef != want {
			t.Fatalf("entries[%d]: got %q, want %q", i, entries[i].TargetRef, want)
		}
	}
}

func TestCounts(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	for _, k := range []traversal.Kind{traversal.Success, traversal.Success, traversal.Exhausted, traversal.Fatal} {
		if _, err := j.Record(ctx, &traversal.Outcome{Kind: k, Started: time.Now(), Finished: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	counts, err := j.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["success"] != 2 || counts["exhausted"] != 1 || counts["fatal"] != 1 || counts["hard_failure"] != 0 {
		t.Fatalf("counts: got %v", counts)
	}
}

func TestOpen_InMemory(t *testing.T) {
	j, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()
	if _, err := j.Record(context.Background(), &traversal.Outcome{Started: time.Now(), Finished: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}
}
