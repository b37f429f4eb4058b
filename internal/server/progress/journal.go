package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/threadcraft/threadcraft/internal/filex"
)

// Journal is a best-effort local mirror of the day counter, one JSON file
// per identifier hash. It exists so progress can still be reported when the
// store is down; it never holds credentials or thread references, and it is
// never the write path of record.
type Journal struct {
	dir string
}

type journalEntry struct {
	Day       int64 `json:"day"`
	HasThread bool  `json:"has_thread"`
}

// NewJournal creates (if needed) the journal directory.
func NewJournal(dir string) (*Journal, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	return &Journal{dir: abs}, nil
}

func (j *Journal) path(hash string) string {
	return filepath.Join(j.dir, hash+".json")
}

// Record mirrors the latest known progress for the hash.
func (j *Journal) Record(hash string, day int64, hasThread bool) error {
	data, err := json.Marshal(journalEntry{Day: day, HasThread: hasThread})
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(j.path(hash), data, 0o600)
}

// Lookup returns the mirrored progress, or ok=false when none exists.
func (j *Journal) Lookup(hash string) (day int64, hasThread bool, ok bool) {
	data, err := os.ReadFile(j.path(hash))
	if err != nil {
		return 0, false, false
	}
	var e journalEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return 0, false, false
	}
	return e.Day, e.HasThread, true
}

// Forget removes the mirrored entry, if any.
func (j *Journal) Forget(hash string) {
	_ = os.Remove(j.path(hash))
}
