package storage

import (
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T, s, d int) *Engine {
	t.Helper()
	e, err := New(t.TempDir(), s, d, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestSingleDayAggregation(t *testing.T) {
	e := newTestEngine(t, 10, 365)
	e.AddEvent("A", 10, 5.0)
	e.AddEvent("A", 5, 10.0)
	if err := e.PersistDay(); err != nil {
		t.Fatalf("PersistDay: %v", err)
	}

	qty, _ := e.Aggregate(AggQty, "A", 1)
	vol, _ := e.Aggregate(AggVol, "A", 1)
	max, _ := e.Aggregate(AggMax, "A", 1)
	avg, _ := e.Aggregate(AggAvg, "A", 1)

	if qty != 15 {
		t.Errorf("qty = %v, want 15", qty)
	}
	if vol != 100.0 {
		t.Errorf("vol = %v, want 100.0", vol)
	}
	if max != 10.0 {
		t.Errorf("max = %v, want 10.0", max)
	}
	if avg != 100.0/15 {
		t.Errorf("avg = %v, want %v", avg, 100.0/15)
	}
}

func TestTwoDayAggregation(t *testing.T) {
	e := newTestEngine(t, 10, 365)
	e.AddEvent("A", 10, 5.0)
	e.AddEvent("A", 5, 10.0)
	e.PersistDay()
	e.AddEvent("A", 20, 8.0)
	e.PersistDay()

	qty, _ := e.Aggregate(AggQty, "A", 2)
	vol, _ := e.Aggregate(AggVol, "A", 2)
	max, _ := e.Aggregate(AggMax, "A", 2)
	avg, _ := e.Aggregate(AggAvg, "A", 2)

	if qty != 35 {
		t.Errorf("qty = %v, want 35", qty)
	}
	if vol != 260.0 {
		t.Errorf("vol = %v, want 260.0", vol)
	}
	if max != 10.0 {
		t.Errorf("max = %v, want 10.0", max)
	}
	if avg != 260.0/35 {
		t.Errorf("avg = %v, want %v", avg, 260.0/35)
	}
}

func TestAggregateOnDayZeroIsZero(t *testing.T) {
	e := newTestEngine(t, 10, 365)
	for _, op := range []AggOp{AggQty, AggVol, AggAvg, AggMax} {
		v, err := e.Aggregate(op, "A", 1)
		if err != nil || v != 0 {
			t.Errorf("op %v on empty engine = %v, %v; want 0, nil", op, v, err)
		}
	}
}

func TestFilterRejectsOpenAndNegativeDays(t *testing.T) {
	e := newTestEngine(t, 10, 5)
	for i := 0; i < 3; i++ {
		e.AddEvent("A", 1, 1.0)
		e.PersistDay()
	}
	// currentDay == 3 now.
	if _, err := e.GetEventsForDay(3, map[string]struct{}{"A": {}}); err == nil {
		t.Error("expected error filtering the open day")
	}
	if _, err := e.GetEventsForDay(-1, map[string]struct{}{"A": {}}); err == nil {
		t.Error("expected error filtering a negative day")
	}
}

func TestFilterRoundTripsExactSequence(t *testing.T) {
	e := newTestEngine(t, 10, 365)
	e.AddEvent("A", 1, 1.5)
	e.AddEvent("B", 2, 2.5)
	e.AddEvent("A", 3, 3.5)
	e.PersistDay()

	got, err := e.GetEventsForDay(0, map[string]struct{}{"A": {}, "B": {}})
	if err != nil {
		t.Fatalf("GetEventsForDay: %v", err)
	}
	want := []Sale{{"A", 1, 1.5}, {"B", 2, 2.5}, {"A", 3, 3.5}}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRetentionCleanup(t *testing.T) {
	dataDir := t.TempDir()
	e, err := New(dataDir, 3, 10, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 12; i++ {
		e.AddEvent("P", 1, 1.0)
		if err := e.PersistDay(); err != nil {
			t.Fatalf("PersistDay #%d: %v", i, err)
		}
	}

	for day := 0; day <= 1; day++ {
		if dayFileExists(dataDir, day) {
			t.Errorf("day_%d.dat should have been retired", day)
		}
	}
	for day := 2; day <= 11; day++ {
		if !dayFileExists(dataDir, day) {
			t.Errorf("day_%d.dat should still exist", day)
		}
	}

	qty, _ := e.Aggregate(AggQty, "P", 10)
	if qty != 10 {
		t.Errorf("AGGR_QTY(P,10) = %v, want 10", qty)
	}

	if n := e.LoadedSeriesLen(); n > 3 {
		t.Errorf("loadedSeries has %d entries, want <= 3", n)
	}
}

func TestConcurrentAddEventNoLostWrites(t *testing.T) {
	e := newTestEngine(t, 10, 365)
	const k, m = 20, 50
	var wg sync.WaitGroup
	wg.Add(k)
	for i := 0; i < k; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < m; j++ {
				e.AddEvent("A", 1, 1.0)
			}
		}()
	}
	wg.Wait()
	if len(e.currentEvents) != k*m {
		t.Fatalf("got %d events, want %d", len(e.currentEvents), k*m)
	}
}

func TestPersistDayFailureLeavesStateUnchanged(t *testing.T) {
	dataDir := t.TempDir()
	e, err := New(dataDir, 10, 365, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.AddEvent("A", 1, 1.0)

	// Make the day file path unwritable by occupying it with a directory.
	if err := os.Mkdir(e.dayFilePath(0), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := e.PersistDay(); err == nil {
		t.Fatal("expected PersistDay to fail")
	}
	if e.GetCurrentDay() != 0 {
		t.Fatalf("currentDay advanced despite failed persist: %d", e.GetCurrentDay())
	}
	if len(e.currentEvents) != 1 {
		t.Fatalf("buffer was cleared despite failed persist")
	}
}
