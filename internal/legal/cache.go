package legal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

const (
	snapshotHTMLName = "source.html"
	snapshotTextName = "source.txt"
	snapshotMetaName = "meta.json"
	snapshotLockName = ".lock"
)

// Cache stores snapshots under {dir}/{domain}/{id}/ with the raw HTML, the
// extracted text, and a metadata file. Writes take a per-directory file lock
// so concurrent force refreshes of the same URL serialize; each file lands
// via temp + rename.
type Cache struct {
	dir    string
	logger *slog.Logger
}

// NewCache creates a snapshot cache rooted at dir.
func NewCache(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create legal cache dir: %w", err)
	}
	return &Cache{dir: dir, logger: logger}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns the cached snapshot for a URL under a domain, or ok=false on
// a miss. A directory with an unreadable meta.json or missing text file is
// reported as corrupt rather than a miss, so a damaged snapshot is never
// silently refetched and rewritten.
func (c *Cache) Get(domain, url string) (*Snapshot, bool, error) {
	id := SnapshotID(url)
	return c.loadDir(filepath.Join(c.dir, domain, id), id)
}

// FindByID locates a snapshot by id across all domains. Used by citation
// validation, where only the id is known.
func (c *Cache) FindByID(id string) (*Snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read legal cache: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.dir, e.Name(), id)
		if _, err := os.Stat(filepath.Join(dir, snapshotMetaName)); err != nil {
			continue
		}
		snap, ok, err := c.loadDir(dir, id)
		if err != nil {
			return nil, err
		}
		if ok {
			return snap, nil
		}
	}
	return nil, cgerrors.New(cgerrors.ErrCodeSnapshotCorrupt,
		fmt.Sprintf("no snapshot with id %s", id), nil)
}

// Put writes a snapshot's three files under its domain/id directory.
func (c *Cache) Put(snap *Snapshot, rawHTML []byte) error {
	dir := filepath.Join(c.dir, snap.Domain, snap.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, snapshotLockName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock snapshot dir: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("snapshot unlock failed",
				slog.String("id", snap.ID), slog.String("error", err.Error()))
		}
	}()

	if err := writeFileAtomic(filepath.Join(dir, snapshotHTMLName), rawHTML); err != nil {
		return fmt.Errorf("write snapshot html: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, snapshotTextName), []byte(snap.Text)); err != nil {
		return fmt.Errorf("write snapshot text: %w", err)
	}

	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeInternal, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, snapshotMetaName), meta); err != nil {
		return fmt.Errorf("write snapshot metadata: %w", err)
	}

	c.logger.Info("snapshot_cached",
		slog.String("id", snap.ID),
		slog.String("domain", snap.Domain),
		slog.String("url", snap.URL),
		slog.Int("text_bytes", len(snap.Text)))

	return nil
}

// writeFileAtomic writes data via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// loadDir reads a snapshot from a known directory.
func (c *Cache) loadDir(dir, id string) (*Snapshot, bool, error) {
	meta, err := os.ReadFile(filepath.Join(dir, snapshotMetaName))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cgerrors.Wrap(cgerrors.ErrCodeSnapshotCorrupt, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(meta, &snap); err != nil {
		return nil, false, cgerrors.New(cgerrors.ErrCodeSnapshotCorrupt,
			fmt.Sprintf("snapshot %s has unreadable metadata", id), err)
	}
	text, err := os.ReadFile(filepath.Join(dir, snapshotTextName))
	if err != nil {
		return nil, false, cgerrors.New(cgerrors.ErrCodeSnapshotCorrupt,
			fmt.Sprintf("snapshot %s is missing its text", id), err)
	}
	snap.Text = string(text)
	return &snap, true, nil
}
