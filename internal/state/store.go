package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/utils"
)

const backupSuffix = ".bak"

// Options tunes a FileStore.
type Options struct {
	// KeepBackups hard-links the previous snapshot to <file>.<unixnano>.bak
	// before each commit replaces it.
	KeepBackups bool
	Logger      logger.Logger
	Now         func() time.Time // for testing, defaults to time.Now
}

// FileStore persists snapshots as a single JSON file.
//
// Exactly one file is authoritative at any time. Commit never modifies it
// in place: the new snapshot is written beside it and renamed over it.
type FileStore struct {
	path        string
	keepBackups bool
	logger      logger.Logger
	now         func() time.Time
	schema      *jsonschema.Schema

	// beforeRename simulates a crash between the temp write and the rename.
	beforeRename func() error
}

// NewFileStore prepares a store for path. Nothing is read until Load.
func NewFileStore(path string, opts Options) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	sch, err := compileSchema()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &FileStore{
		path:        filepath.Clean(path),
		keepBackups: opts.KeepBackups,
		logger:      log,
		now:         now,
		schema:      sch,
	}, nil
}

// Path returns the authoritative state file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the last committed snapshot, or an empty one when no state
// file exists yet. Unreadable content yields *domain.CorruptStateError and
// the file is left exactly as found.
func (s *FileStore) Load() (*domain.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := validate(s.schema, data); err != nil {
		return nil, s.corrupt(err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, s.corrupt(fmt.Errorf("decode: %w", err))
	}
	if snap.SchemaVersion > domain.SchemaVersion {
		return nil, s.corrupt(fmt.Errorf("schema version %d is newer than supported version %d",
			snap.SchemaVersion, domain.SchemaVersion))
	}
	if snap.Records == nil {
		snap.Records = make(map[string]*domain.BookmarkRecord)
	}
	for id, rec := range snap.Records {
		if rec == nil || rec.ID != id {
			return nil, s.corrupt(fmt.Errorf("record key %q does not match its id", id))
		}
	}
	snap.SchemaVersion = domain.SchemaVersion

	return &snap, nil
}

// Commit durably replaces the prior snapshot. On failure the prior snapshot
// stays authoritative and a *domain.CommitError is returned.
func (s *FileStore) Commit(snap *domain.Snapshot) error {
	if snap == nil {
		return &domain.CommitError{Path: s.path, Err: errors.New("nil snapshot")}
	}

	out := domain.Snapshot{
		SchemaVersion: domain.SchemaVersion,
		Records:       snap.Records,
	}
	if out.Records == nil {
		out.Records = map[string]*domain.BookmarkRecord{}
	}

	// encoding/json sorts map keys, so identical snapshots encode identically.
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return &domain.CommitError{Path: s.path, Err: fmt.Errorf("encode: %w", err)}
	}
	data = append(data, '\n')

	w := utils.AtomicWriter{BeforeRename: func(string) error {
		if s.keepBackups {
			s.backupCurrent()
		}
		if s.beforeRename != nil {
			return s.beforeRename()
		}
		return nil
	}}
	if err := w.WriteFile(s.path, data, 0o600); err != nil {
		return &domain.CommitError{Path: s.path, Err: err}
	}
	return nil
}

// backupCurrent preserves the current file before it gets replaced.
// Failures only cost the rollback copy, never the commit.
func (s *FileStore) backupCurrent() {
	if _, err := os.Stat(s.path); err != nil {
		return
	}
	backup := s.path + "." + strconv.FormatInt(s.now().UnixNano(), 10) + backupSuffix
	if err := os.Link(s.path, backup); err == nil {
		return
	}
	data, err := os.ReadFile(s.path)
	if err == nil {
		err = utils.WriteFileAtomic(backup, data, 0o600)
	}
	if err != nil {
		s.logger.Warn("failed to back up state file",
			logger.String("backup", backup),
			logger.Error(err))
	}
}

// Backup is a retained copy of a previously committed snapshot.
type Backup struct {
	Path      string
	CreatedAt time.Time
}

// Backups lists retained backups, oldest first.
func (s *FileStore) Backups() ([]Backup, error) {
	dir := filepath.Dir(s.path)
	prefix := filepath.Base(s.path) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var backups []Backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), backupSuffix)
		nanos, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			continue
		}
		backups = append(backups, Backup{
			Path:      filepath.Join(dir, name),
			CreatedAt: time.Unix(0, nanos),
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})
	return backups, nil
}

// PruneBackups removes backups older than maxAge. The newest backup is
// always kept so a rollback target exists.
func (s *FileStore) PruneBackups(maxAge time.Duration) ([]string, error) {
	backups, err := s.Backups()
	if err != nil {
		return nil, err
	}
	if len(backups) <= 1 {
		return nil, nil
	}

	cutoff := s.now().Add(-maxAge)
	var removed []string
	for _, b := range backups[:len(backups)-1] {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(b.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove backup %s: %w", b.Path, err)
		}
		removed = append(removed, b.Path)
	}
	return removed, nil
}

func (s *FileStore) corrupt(err error) error {
	return &domain.CorruptStateError{Path: s.path, Err: err}
}
