package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// statePath is data/state.bin (§6).
func statePath(dataDir string) string {
	return filepath.Join(dataDir, "state.bin")
}

// loadState reads the restart-state file. A missing file means a fresh
// install: (0, 0) is returned with no error. A file too short to contain
// even currentDay is corruption (§7 "State-file corruption on boot": caller
// logs and continues with default state, it does not fail startup).
//
// Older files wrote only currentDay; the trailing oldestCleanedDay is
// reconstructed as max(0, currentDay-window) when absent (§4.7).
func loadState(dataDir string, window int) (currentDay, oldestCleanedDay int, err error) {
	data, err := os.ReadFile(statePath(dataDir))
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("storage: state file too short (%d bytes)", len(data))
	}
	currentDay = int(int32(binary.BigEndian.Uint32(data[0:4])))
	if len(data) >= 8 {
		oldestCleanedDay = int(int32(binary.BigEndian.Uint32(data[4:8])))
	} else {
		oldestCleanedDay = maxInt(0, currentDay-window)
	}
	return currentDay, oldestCleanedDay, nil
}

// saveState writes both integers in order: currentDay, oldestCleanedDay.
// Not made atomic with the day-file write (§4.7): a crash between the two
// leaves at worst a state reading one day behind, which simply re-persists
// the same day file on the next NEW_DAY.
func saveState(dataDir string, currentDay, oldestCleanedDay int) error {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(int32(currentDay)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(oldestCleanedDay)))
	return os.WriteFile(statePath(dataDir), buf[:], 0o644)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
