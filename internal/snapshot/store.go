// Package snapshot archives captured preview frames on disk.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	ErrNotFound  = errors.New("frame not found")
	ErrInvalidID = errors.New("invalid frame id")
)

var formatRe = regexp.MustCompile(`^[a-z]{3,4}$`)

// FrameMeta describes one archived frame.
type FrameMeta struct {
	ID         string    `json:"id"`
	Tab        string    `json:"tab"`
	Origin     string    `json:"origin"`
	URL        string    `json:"url,omitempty"`
	Generation uint64    `json:"generation"`
	Index      int       `json:"index"`
	Format     string    `json:"format"`
	SizeBytes  int       `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages frame files on disk: the image plus a JSON sidecar.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Save writes both the image file and metadata sidecar.
func (s *Store) Save(meta FrameMeta, imageData []byte) error {
	if err := s.validateID(meta.ID); err != nil {
		return err
	}
	if !formatRe.MatchString(meta.Format) {
		return fmt.Errorf("snapshot store: invalid format %q", meta.Format)
	}
	meta.SizeBytes = len(imageData)

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath := filepath.Join(s.dir, meta.ID+"."+meta.Format)
	jsonPath := filepath.Join(s.dir, meta.ID+".json")

	if err := os.WriteFile(imgPath, imageData, 0o644); err != nil {
		return fmt.Errorf("snapshot store: write image: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("snapshot store: marshal meta: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("snapshot store: write meta: %w", err)
	}

	return nil
}

// Get reads frame metadata by ID.
func (s *Store) Get(id string) (FrameMeta, error) {
	if err := s.validateID(id); err != nil {
		return FrameMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id string) (FrameMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return FrameMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return FrameMeta{}, fmt.Errorf("snapshot store: read meta: %w", err)
	}

	var meta FrameMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return FrameMeta{}, fmt.Errorf("snapshot store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns frames newest first. A non-empty tab keeps only that tab's
// frames.
func (s *Store) List(tab string) ([]FrameMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(tab)
}

func (s *Store) listLocked(tab string) ([]FrameMeta, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: glob: %w", err)
	}

	metas := make([]FrameMeta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta FrameMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		if tab != "" && meta.Tab != tab {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		if metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].Index > metas[j].Index
		}
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	return metas, nil
}

// ReadImage reads the raw image bytes and returns the format.
func (s *Store) ReadImage(id string) ([]byte, string, error) {
	if err := s.validateID(id); err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.getLocked(id)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id+"."+meta.Format))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: image for %s", ErrNotFound, id)
		}
		return nil, "", fmt.Errorf("snapshot store: read image: %w", err)
	}
	return data, meta.Format, nil
}

// Delete removes both the image and metadata files.
func (s *Store) Delete(id string) error {
	if err := s.validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.getLocked(id)
	if err != nil {
		return err
	}
	s.removeLocked(meta)
	return nil
}

// Prune deletes the oldest frames so at most keep remain. It returns the
// number removed.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	metas, err := s.listLocked("")
	if err != nil {
		return 0, err
	}
	if len(metas) <= keep {
		return 0, nil
	}
	for _, meta := range metas[keep:] {
		s.removeLocked(meta)
	}
	return len(metas) - keep, nil
}

func (s *Store) removeLocked(meta FrameMeta) {
	if err := os.Remove(filepath.Join(s.dir, meta.ID+"."+meta.Format)); err != nil {
		slog.Debug("snapshot image cleanup failed", "id", meta.ID, "error", err)
	}
	if err := os.Remove(filepath.Join(s.dir, meta.ID+".json")); err != nil {
		slog.Debug("snapshot meta cleanup failed", "id", meta.ID, "error", err)
	}
}
