// Package store persists the single open-position slot and the archive of
// finalized positions as JSON files in one directory.
//
// Layout:
//
//	<dir>/position.json            open position slot
//	<dir>/archive/<closeTs>.json   one file per closed or liquidated position
//	<dir>/.lock                    exclusive lock held around read-modify-write cycles
//
// Every write goes to a temporary file that is fsynced and renamed over the
// target, so a crash never leaves a readable half-written record.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/rustyeddy/livermore/position"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	SchemaVersion = 1

	slotFile   = "position.json"
	archiveDir = "archive"
	lockFile   = ".lock"

	// basic ISO-8601, UTC, sortable and free of path-hostile colons
	archiveLayout = "20060102T150405.000000000Z"
)

// record is the on-disk envelope: the position fields plus a schema version.
type record struct {
	SchemaVersion int `json:"schemaVersion"`
	*position.Position
}

type Store struct {
	dir       string
	log       *zap.Logger
	lock      *flock.Flock
	lockRetry time.Duration
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string, log *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: directory is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(dir, archiveDir), 0755); err != nil {
		return nil, fmt.Errorf("store: create dirs: %w", err)
	}
	return &Store{
		dir:       dir,
		log:       log.Named("store"),
		lock:      flock.New(filepath.Join(dir, lockFile)),
		lockRetry: 50 * time.Millisecond,
	}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) slotPath() string { return filepath.Join(s.dir, slotFile) }

func (s *Store) archivePath(closed time.Time) string {
	return filepath.Join(s.dir, archiveDir, closed.UTC().Format(archiveLayout)+".json")
}

// WithLock runs fn while holding the store's exclusive file lock. Other
// processes sharing the directory block until fn returns or ctx is done.
func (s *Store) WithLock(ctx context.Context, fn func() error) error {
	ok, err := s.lock.TryLockContext(ctx, s.lockRetry)
	if err != nil {
		return fmt.Errorf("store: lock %s: %w", s.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("store: lock %s: not acquired", s.lock.Path())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Error("unlock failed", zap.String("path", s.lock.Path()), zap.Error(err))
		}
	}()
	return fn()
}

// Load returns the open position, or (nil, nil) when the slot is empty.
// A slot that exists but cannot be decoded or validated yields a
// *position.CorruptStateError.
func (s *Store) Load(ctx context.Context) (*position.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := readRecord(s.slotPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if p.Status.Final() {
		// A previous finalize was interrupted after writing the slot.
		s.log.Warn("completing interrupted archive",
			zap.String("id", p.ID), zap.String("status", string(p.Status)))
		if err := s.moveToArchive(p); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return p, nil
}

// Save atomically replaces the slot with an open position.
func (s *Store) Save(ctx context.Context, p *position.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("store: save nil position")
	}
	if p.Status != position.StatusOpen {
		return fmt.Errorf("store: slot only holds open positions, got %s", p.Status)
	}
	if err := writeRecord(s.slotPath(), p); err != nil {
		return err
	}
	s.log.Debug("slot saved", zap.String("id", p.ID), zap.Int("history", len(p.History)))
	return nil
}

// Finalize records a closed or liquidated position: the slot is rewritten with
// the final state, the archive copy is written once, then the slot is removed.
// If archiving fails the slot is put back the way it was.
func (s *Store) Finalize(ctx context.Context, p *position.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("store: finalize nil position")
	}
	if !p.Status.Final() || p.CloseRecord == nil {
		return fmt.Errorf("store: finalize requires a closed position, got %s", p.Status)
	}

	prev, err := os.ReadFile(s.slotPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: read slot: %w", err)
	}
	if err := writeRecord(s.slotPath(), p); err != nil {
		return err
	}
	if err := s.moveToArchive(p); err != nil {
		return multierr.Append(err, s.restoreSlot(prev))
	}
	return nil
}

// restoreSlot puts back the slot bytes read before a failed finalize. A nil
// prev means there was no slot.
func (s *Store) restoreSlot(prev []byte) error {
	if prev == nil {
		if err := os.Remove(s.slotPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("store: restore slot: %w", err)
		}
		return nil
	}
	if err := renameio.WriteFile(s.slotPath(), prev, 0644); err != nil {
		return fmt.Errorf("store: restore slot: %w", err)
	}
	s.log.Warn("finalize failed, slot restored", zap.String("path", s.slotPath()))
	return nil
}

func (s *Store) moveToArchive(p *position.Position) error {
	path := s.archivePath(p.CloseRecord.CloseTimestamp)

	existing, err := readRecord(path)
	switch {
	case err == nil:
		if existing.ID != p.ID {
			return fmt.Errorf("store: archive %s already holds position %s", path, existing.ID)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := writeRecord(path, p); err != nil {
			return err
		}
	default:
		return err
	}

	if err := os.Remove(s.slotPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: clear slot: %w", err)
	}
	s.log.Info("position archived",
		zap.String("id", p.ID),
		zap.String("status", string(p.Status)),
		zap.String("path", path))
	return nil
}

// Archive returns every finalized position, oldest close first.
func (s *Store) Archive(ctx context.Context) ([]*position.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.dir, archiveDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read archive: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*position.Position, 0, len(names))
	for _, name := range names {
		p, err := readRecord(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func writeRecord(path string, p *position.Position) error {
	data, err := json.MarshalIndent(record{SchemaVersion: SchemaVersion, Position: p}, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return nil
}

// readRecord returns an error wrapping fs.ErrNotExist for a missing file and a
// *position.CorruptStateError for anything present but unusable.
func readRecord(path string) (*position.Position, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, &position.CorruptStateError{Path: path, Reason: "unreadable", Err: err}
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &position.CorruptStateError{Path: path, Reason: "invalid JSON", Err: err}
	}
	switch {
	case rec.SchemaVersion == 0:
		return nil, &position.CorruptStateError{Path: path, Reason: "missing schemaVersion"}
	case rec.SchemaVersion > SchemaVersion:
		return nil, &position.CorruptStateError{
			Path:   path,
			Reason: fmt.Sprintf("unsupported schemaVersion %d", rec.SchemaVersion),
		}
	case rec.Position == nil:
		return nil, &position.CorruptStateError{Path: path, Reason: "empty record"}
	}
	if err := rec.Position.Validate(); err != nil {
		return nil, &position.CorruptStateError{Path: path, Reason: "validation failed", Err: err}
	}
	return rec.Position, nil
}
