// Package storage implements the hierarchical storage engine from §4.5: an
// in-memory buffer for the open day (Level 0), an LRU of closed-day series
// read back from disk (Level 1), one file per closed day (Level 2), a lazily
// populated per-(day, product) aggregation cache, and retention-window
// cleanup of both the cache and the files.
//
// One mutex guards all engine state and all engine-owned files; every public
// operation holds it for its full duration, including cold-path file I/O.
// Correctness over throughput — this workload is dominated by short
// in-memory operations with occasional bulk reads (§4.5 rationale).
//
// Grounded on gurre-prime-fix-md-go/fixclient's orderstore.go/tradestore.go
// (a single mutex guarding an in-memory store with lazily computed derived
// state) and storage.go (persistence failures are logged, not fatal to the
// process, except where the spec requires otherwise).
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/adred-codev/salesd/internal/apperr"
)

// Engine is the storage engine singleton shared by every connection handler.
type Engine struct {
	mu sync.Mutex

	dataDir string
	window  int // D: retention window in days
	logger  zerolog.Logger

	currentDay       int
	oldestCleanedDay int
	currentEvents    []Sale

	loadedSeries *lru.Cache[int, []Sale] // Level 1: bounded by S
	aggCache     map[int]map[string]*Stats
}

// New opens (or initializes) the storage engine rooted at dataDir, with a
// level-1 cache capacity of s closed days and a retention window of d days.
func New(dataDir string, s, d int, logger zerolog.Logger) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir %s: %w", dataDir, err)
	}

	cache, err := lru.New[int, []Sale](s)
	if err != nil {
		return nil, fmt.Errorf("storage: create loaded-series cache: %w", err)
	}

	currentDay, oldestCleanedDay, err := loadState(dataDir, d)
	if err != nil {
		logger.Warn().Err(err).Msg("storage: state file corrupt, continuing with default state")
		currentDay, oldestCleanedDay = 0, 0
	}

	e := &Engine{
		dataDir:          dataDir,
		window:           d,
		logger:           logger,
		currentDay:       currentDay,
		oldestCleanedDay: oldestCleanedDay,
		loadedSeries:     cache,
		aggCache:         make(map[int]map[string]*Stats),
	}
	logger.Info().
		Int("current_day", currentDay).
		Int("oldest_cleaned_day", oldestCleanedDay).
		Int("cache_size", s).
		Int("retention_window", d).
		Str("data_dir", dataDir).
		Msg("storage engine ready")
	return e, nil
}

// GetCurrentDay returns the open day's number.
func (e *Engine) GetCurrentDay() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentDay
}

// AddEvent appends one sale to the current day's in-memory buffer. Not
// durable until the day is closed by PersistDay (§9 "Durability gap").
func (e *Engine) AddEvent(product string, qty int32, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentEvents = append(e.currentEvents, Sale{Product: product, Qty: qty, Price: price})
}

// PersistDay closes the current day: writes its events to disk, advances
// currentDay, persists restart state, and runs retention cleanup.
//
// Failure semantics (§4.5): if the file write fails, the error propagates
// and none of the rest happens — the buffer is not cleared and currentDay is
// not incremented, preserving "data reported as persisted is on disk".
func (e *Engine) PersistDay() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writeDayFile(e.currentDay, e.currentEvents); err != nil {
		return err
	}

	closedDay := e.currentDay
	e.currentEvents = nil
	e.currentDay++

	if err := saveState(e.dataDir, e.currentDay, e.oldestCleanedDay); err != nil {
		// State-file write failures don't roll back the day close: the day
		// file is already durably on disk, and a stale state file is
		// tolerated by §4.7's reload rule (it just re-persists the same day
		// on the next NEW_DAY after a crash).
		e.logger.Warn().Err(err).Int("day", closedDay).Msg("storage: failed to persist restart state")
	}

	threshold := e.currentDay - e.window
	e.evictBelow(threshold)

	for day := e.oldestCleanedDay; day < threshold; day++ {
		if err := e.deleteDayFile(day); err != nil {
			e.logger.Warn().Err(err).Int("day", day).Msg("storage: failed to delete retired day file")
		}
	}
	e.oldestCleanedDay = threshold

	return nil
}

// evictBelow drops every aggCache/loadedSeries entry whose day key is below
// threshold (§4.5 step 5). Must be called with e.mu held.
func (e *Engine) evictBelow(threshold int) {
	for day := range e.aggCache {
		if day < threshold {
			delete(e.aggCache, day)
		}
	}
	for _, day := range e.loadedSeries.Keys() {
		if day < threshold {
			e.loadedSeries.Remove(day)
		}
	}
}

// Aggregate computes one of AGGR_QTY/VOL/AVG/MAX for product over the last d
// closed days (§4.5). The current (open) day is never included.
func (e *Engine) Aggregate(op AggOp, product string, d int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	daysToProcess := d
	if e.window < daysToProcess {
		daysToProcess = e.window
	}
	if e.currentDay < daysToProcess {
		daysToProcess = e.currentDay
	}

	var count int64
	var volume, max float64
	for i := 1; i <= daysToProcess; i++ {
		target := e.currentDay - i
		stats, err := e.statsLocked(target, product)
		if err != nil {
			return 0, err
		}
		count += stats.Count
		volume += stats.Volume
		if stats.Max > max {
			max = stats.Max
		}
	}

	switch op {
	case AggQty:
		return float64(count), nil
	case AggVol:
		return volume, nil
	case AggAvg:
		if count == 0 {
			return 0, nil
		}
		return volume / float64(count), nil
	case AggMax:
		return max, nil
	default:
		return 0, fmt.Errorf("storage: unknown aggregate op %d", op)
	}
}

// statsLocked returns the cached (or newly computed) Stats for (day,
// product). Must be called with e.mu held.
func (e *Engine) statsLocked(day int, product string) (Stats, error) {
	if byProduct, ok := e.aggCache[day]; ok {
		if s, ok := byProduct[product]; ok {
			return *s, nil
		}
	}

	sales, err := e.fetchDayEventsLocked(day)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	for _, sale := range sales {
		if sale.Product != product {
			continue
		}
		s.Count += int64(sale.Qty)
		s.Volume += float64(sale.Qty) * sale.Price
		if sale.Price > s.Max {
			s.Max = sale.Price
		}
	}

	if e.aggCache[day] == nil {
		e.aggCache[day] = make(map[string]*Stats)
	}
	e.aggCache[day][product] = &s
	return s, nil
}

// fetchDayEventsLocked returns the full Sale sequence for a closed day,
// consulting (and LRU-promoting into) loadedSeries before falling back to
// disk. A day with no file on disk returns an empty, uncached sequence
// (§4.5 fetchDayEvents) — that's "no sales that day", not an error.
// Must be called with e.mu held.
func (e *Engine) fetchDayEventsLocked(day int) ([]Sale, error) {
	if sales, ok := e.loadedSeries.Get(day); ok {
		return sales, nil
	}

	path := e.dayFilePath(day)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	sales, err := e.readDayFile(day)
	if err != nil {
		return nil, err
	}
	e.loadedSeries.Add(day, sales)
	return sales, nil
}

// GetEventsForDay returns the subsequence of day's sales whose product is in
// filter (§4.5 getEventsForDay). Validates 0 <= day < currentDay and, like
// the connection handler's FILTER validation (§4.4), rejects a day older
// than currentDay-window with ErrOutOfWindow.
func (e *Engine) GetEventsForDay(day int, filter map[string]struct{}) ([]Sale, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if day < 0 || day >= e.currentDay {
		return nil, fmt.Errorf("storage: day %d: %w (current day is %d)", day, apperr.ErrDayClosed, e.currentDay)
	}
	if day < e.currentDay-e.window {
		return nil, fmt.Errorf("storage: day %d: %w (retention window is %d days)", day, apperr.ErrOutOfWindow, e.window)
	}

	sales, err := e.fetchDayEventsLocked(day)
	if err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, nil
	}

	out := make([]Sale, 0, len(sales))
	for _, s := range sales {
		if _, ok := filter[s.Product]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// OldestCleanedDay reports the retention-state field of the same name
// (ambient/metrics use; also useful for tests asserting §8's retention
// invariant).
func (e *Engine) OldestCleanedDay() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oldestCleanedDay
}

// LoadedSeriesLen and AggCacheLen expose the two cache sizes for periodic
// sysmon/metrics sampling (internal/sysmon, internal/metrics) without
// leaking either cache's internals.
func (e *Engine) LoadedSeriesLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadedSeries.Len()
}

func (e *Engine) AggCacheLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.aggCache)
}

// DataDir returns the root directory this engine persists under.
func (e *Engine) DataDir() string { return e.dataDir }

// dayFileExists is a small test/ops helper that builds the same
// day_<N>.dat path as Engine.dayFilePath, without needing an Engine.
func dayFileExists(dataDir string, day int) bool {
	_, err := os.Stat(filepath.Join(dataDir, fmt.Sprintf("day_%d.dat", day)))
	return err == nil
}
