package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adred-codev/salesd/internal/wire"
)

// dayFilePath returns the path for a closed day's record file, §6:
// data/day_<N>.dat.
func (e *Engine) dayFilePath(day int) string {
	return filepath.Join(e.dataDir, fmt.Sprintf("day_%d.dat", day))
}

// writeDayFile writes the concatenation of (UTF product, int qty, double
// price) records for sales, with no framing or count header (§4.5 Level 2).
// Uses the same primitive UTF/int/double encoding as the wire protocol, since
// it's the same bespoke binary layout — just without the tag/type/length
// frame header that would make it a Frame.
func (e *Engine) writeDayFile(day int, sales []Sale) error {
	path := e.dayFilePath(day)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer f.Close()

	w := wire.NewPayloadWriter()
	for _, s := range sales {
		w.UTF(s.Product).Int(s.Qty).Double(s.Price)
	}
	if _, err := f.Write(w.Bytes()); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return f.Sync()
}

// readDayFile reads one closed day's file to EOF and reconstructs its Sale
// sequence. A missing file is returned as os.ReadFile's error; callers
// distinguish "absent" from "read failure" via os.IsNotExist on it.
func (e *Engine) readDayFile(day int) ([]Sale, error) {
	path := e.dayFilePath(day)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := wire.NewPayloadReader(data)
	var sales []Sale
	for !r.Done() {
		product, err := r.UTF()
		if err != nil {
			return nil, fmt.Errorf("storage: corrupt day file %s: %w", path, err)
		}
		qty, err := r.Int()
		if err != nil {
			return nil, fmt.Errorf("storage: corrupt day file %s: %w", path, err)
		}
		price, err := r.Double()
		if err != nil {
			return nil, fmt.Errorf("storage: corrupt day file %s: %w", path, err)
		}
		sales = append(sales, Sale{Product: product, Qty: qty, Price: price})
	}
	return sales, nil
}

// deleteDayFile removes a closed day's file. Failure is reported to the
// caller, which per §4.5 step 6 logs a warning and continues rather than
// raising.
func (e *Engine) deleteDayFile(day int) error {
	err := os.Remove(e.dayFilePath(day))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
