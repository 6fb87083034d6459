// Package store persists the three entity collections — users, tasks,
// wishes — as one JSON array file each under a data directory.
//
// The legacy app overwrote these files in place with no coordination.
// Here every save goes through stage-then-rename so a reader never sees
// a truncated collection, mutators serialize per collection through a
// lock held across their whole load-modify-save cycle, and updates that
// span two collections commit through a marker file that Open replays
// or rolls back after a crash.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukerupert/kidtask/internal/apperr"
	"github.com/dukerupert/kidtask/internal/model"
)

// Collection names a persisted entity set.
type Collection string

const (
	Users  Collection = "users"
	Tasks  Collection = "tasks"
	Wishes Collection = "wishes"
)

// lockRank is the fixed global lock order. Multi-collection operations
// always acquire in ascending rank, so two concurrent cross-collection
// commits cannot deadlock.
var lockRank = map[Collection]int{
	Users:  0,
	Tasks:  1,
	Wishes: 2,
}

const (
	stagedSuffix = ".staged"
	tmpSuffix    = ".tmp"
	markerName   = "pending-commit.json"
)

// Store is the collection-level persistence layer. All mutating callers
// must hold the relevant collection locks (see Lock) around their
// load-modify-save cycle.
type Store struct {
	dir    string
	logger *slog.Logger
	locks  map[Collection]*sync.Mutex
}

// Open prepares the data directory, finishes or rolls back any commit
// interrupted by a crash, and seeds missing collection files with empty
// arrays the way the legacy data manager did.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.IO("create data dir", err)
	}

	s := &Store{
		dir:    dir,
		logger: logger,
		locks: map[Collection]*sync.Mutex{
			Users:  {},
			Tasks:  {},
			Wishes: {},
		},
	}

	if err := s.recover(); err != nil {
		return nil, err
	}

	for _, c := range []Collection{Users, Tasks, Wishes} {
		if err := s.seedIfMissing(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) path(c Collection) string {
	return filepath.Join(s.dir, string(c)+".json")
}

func (s *Store) seedIfMissing(c Collection) error {
	if _, err := os.Stat(s.path(c)); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return apperr.IO("stat "+string(c), err)
	}
	return s.writeAtomic(c, []byte("[]\n"))
}

// Lock acquires the mutexes for the given collections in the fixed
// global order and returns the matching unlock. Callers defer the
// unlock around their whole read-modify-write cycle.
func (s *Store) Lock(cols ...Collection) (unlock func()) {
	sorted := append([]Collection(nil), cols...)
	sort.Slice(sorted, func(i, j int) bool { return lockRank[sorted[i]] < lockRank[sorted[j]] })

	for _, c := range sorted {
		s.locks[c].Lock()
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			s.locks[sorted[i]].Unlock()
		}
	}
}

// --- typed collection access ---

func (s *Store) LoadUsers() ([]model.User, error) {
	return loadCollection[model.User](s, Users)
}

func (s *Store) SaveUsers(users []model.User) error {
	return saveCollection(s, Users, users)
}

func (s *Store) LoadTasks() ([]model.Task, error) {
	return loadCollection[model.Task](s, Tasks)
}

func (s *Store) SaveTasks(tasks []model.Task) error {
	return saveCollection(s, Tasks, tasks)
}

func (s *Store) LoadWishes() ([]model.Wish, error) {
	return loadCollection[model.Wish](s, Wishes)
}

func (s *Store) SaveWishes(wishes []model.Wish) error {
	return saveCollection(s, Wishes, wishes)
}

// CommitTasksAndUsers persists both collections as one all-or-nothing
// update: both files are staged and fsynced first, then a commit marker
// makes the pair durable, then each staged file is swapped live in the
// fixed collection order. A crash at any point is repaired by Open.
func (s *Store) CommitTasksAndUsers(tasks []model.Task, users []model.User) error {
	taskData, err := marshalCollection(tasks)
	if err != nil {
		return apperr.IO("encode tasks", err)
	}
	userData, err := marshalCollection(users)
	if err != nil {
		return apperr.IO("encode users", err)
	}

	// Fixed order everywhere: users before tasks.
	pair := []struct {
		col  Collection
		data []byte
	}{
		{Users, userData},
		{Tasks, taskData},
	}

	for _, p := range pair {
		if err := writeFileSync(s.path(p.col)+stagedSuffix, p.data); err != nil {
			s.discardStaged()
			return apperr.IO("stage "+string(p.col), err)
		}
	}

	if err := s.writeMarker([]Collection{Users, Tasks}); err != nil {
		s.discardStaged()
		return err
	}

	// Marker is durable: from here the commit must complete. Rename
	// failures are repaired on next Open via roll-forward.
	for _, p := range pair {
		if err := os.Rename(s.path(p.col)+stagedSuffix, s.path(p.col)); err != nil {
			return apperr.IO("swap "+string(p.col), err)
		}
	}
	syncDir(s.dir)

	if err := os.Remove(filepath.Join(s.dir, markerName)); err != nil {
		s.logger.Warn("remove commit marker", "error", err)
	}
	return nil
}

// --- commit marker and crash recovery ---

type marker struct {
	Collections []Collection `json:"collections"`
}

func (s *Store) writeMarker(cols []Collection) error {
	data, err := json.Marshal(marker{Collections: cols})
	if err != nil {
		return apperr.IO("encode commit marker", err)
	}
	path := filepath.Join(s.dir, markerName)
	if err := writeFileSync(path+tmpSuffix, data); err != nil {
		return apperr.IO("stage commit marker", err)
	}
	if err := os.Rename(path+tmpSuffix, path); err != nil {
		return apperr.IO("publish commit marker", err)
	}
	syncDir(s.dir)
	return nil
}

// recover repairs an interrupted cross-collection commit. If the marker
// exists, every staged file named in it was already durable, so the
// commit rolls forward. Without a marker, leftover staged files belong
// to a commit that never became durable and are dropped.
func (s *Store) recover() error {
	path := filepath.Join(s.dir, markerName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.discardStaged()
		return nil
	}
	if err != nil {
		return apperr.IO("read commit marker", err)
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		// The marker is written atomically, so this indicates medium
		// corruption rather than a torn write.
		return apperr.IO("decode commit marker", err)
	}

	for _, c := range m.Collections {
		staged := s.path(c) + stagedSuffix
		if _, err := os.Stat(staged); errors.Is(err, fs.ErrNotExist) {
			continue // already swapped before the crash
		} else if err != nil {
			return apperr.IO("stat staged "+string(c), err)
		}
		if err := os.Rename(staged, s.path(c)); err != nil {
			return apperr.IO("roll forward "+string(c), err)
		}
		s.logger.Info("rolled forward interrupted commit", "collection", string(c))
	}
	syncDir(s.dir)

	if err := os.Remove(path); err != nil {
		return apperr.IO("remove commit marker", err)
	}
	return nil
}

func (s *Store) discardStaged() {
	for c := range lockRank {
		staged := s.path(c) + stagedSuffix
		if err := os.Remove(staged); err == nil {
			s.logger.Info("dropped stale staged file", "collection", string(c))
		}
	}
	os.Remove(filepath.Join(s.dir, markerName+tmpSuffix))
}

// --- file plumbing ---

func loadCollection[T any](s *Store, c Collection) ([]T, error) {
	data, err := os.ReadFile(s.path(c))
	if errors.Is(err, fs.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, apperr.IO("read "+string(c), err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, apperr.IO("decode "+string(c), err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func saveCollection[T any](s *Store, c Collection, items []T) error {
	data, err := marshalCollection(items)
	if err != nil {
		return apperr.IO("encode "+string(c), err)
	}
	return s.writeAtomic(c, data)
}

func marshalCollection[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeAtomic makes the new version durable in a fresh file, then swaps
// it over the live file so readers see either the old or the new
// collection, never a partial write.
func (s *Store) writeAtomic(c Collection, data []byte) error {
	tmp := s.path(c) + tmpSuffix
	if err := writeFileSync(tmp, data); err != nil {
		os.Remove(tmp)
		return apperr.IO("write "+string(c), err)
	}
	if err := os.Rename(tmp, s.path(c)); err != nil {
		os.Remove(tmp)
		return apperr.IO("swap "+string(c), err)
	}
	syncDir(s.dir)
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// syncDir flushes directory metadata after a rename. Failures are
// ignored: some filesystems do not support fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// Dir returns the data directory, for logging and diagnostics.
func (s *Store) Dir() string {
	return s.dir
}
