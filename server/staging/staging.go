// Package staging manages the per-request scratch areas that hold uploads and
// the artifacts that we produce from them.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/pkg/errs"
	"github.com/cyclopcam/visiondemo/pkg/iox"
	"github.com/google/uuid"
)

// Staging assigns scratch areas, and deletes areas that are older than maxAge.
// An area that is still being sent to a client can be deleted safely, because
// the OS only frees the file once the last handle is closed.
type Staging struct {
	Root string

	log             logs.Log
	lock            sync.Mutex // guards lastCleanup
	lastCleanup     time.Time
	cleanupInterval time.Duration
	maxAge          time.Duration
}

// Area is one request's private directory
type Area struct {
	ID  string
	Dir string
}

// NewStaging creates root if it doesn't exist already
func NewStaging(log logs.Log, root string, maxAge time.Duration) (*Staging, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create staging directory '%v': %v", errs.ErrStagingFailure, root, err)
	}
	cleanupInterval := maxAge / 4
	if cleanupInterval < time.Second {
		cleanupInterval = time.Second
	}
	return &Staging{
		Root:            root,
		log:             log,
		lastCleanup:     time.Now(),
		cleanupInterval: cleanupInterval,
		maxAge:          maxAge,
	}, nil
}

// NewArea creates a fresh, empty scratch area
func (s *Staging) NewArea() (*Area, error) {
	s.maybeSweep()

	id := uuid.NewString()
	dir := filepath.Join(s.Root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create area: %v", errs.ErrStagingFailure, err)
	}
	if err := Clear(dir); err != nil {
		return nil, err
	}
	return &Area{ID: id, Dir: dir}, nil
}

// OpenArea returns an existing area, or an error if the ID is invalid or the area no longer exists
func (s *Staging) OpenArea(id string) (*Area, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("Invalid area ID '%v'", id)
	}
	dir := filepath.Join(s.Root, id)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("Area %v does not exist", id)
	}
	return &Area{ID: id, Dir: dir}, nil
}

// Clear deletes every regular file in dir. Subdirectories are left alone.
// If any file cannot be deleted, the whole operation fails.
func Clear(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: failed to list '%v': %v", errs.ErrStagingFailure, dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		fn := filepath.Join(dir, e.Name())
		if err := os.Remove(fn); err != nil {
			return fmt.Errorf("%w: failed to delete '%v': %v", errs.ErrStagingFailure, fn, err)
		}
	}
	return nil
}

// Path returns the full path of a file inside the area.
// The name must already be sanitized.
func (a *Area) Path(name string) string {
	return filepath.Join(a.Dir, name)
}

// Save writes an uploaded file into the area, and returns its sanitized name
func (a *Area) Save(name string, src io.Reader) (string, error) {
	clean, err := SanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if _, err := iox.WriteStreamToFile(a.Path(clean), src); err != nil {
		return "", fmt.Errorf("%w: failed to save '%v': %v", errs.ErrStagingFailure, clean, err)
	}
	return clean, nil
}

// Files returns the names of the regular files in the area that have one of the given extensions.
// Files are ordered by extension (in the order given), and then by name.
// Extensions are given without the dot, and matched case-insensitively.
func (a *Area) Files(extensions ...string) ([]string, error) {
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list area: %v", errs.ErrStagingFailure, err)
	}
	// os.ReadDir returns entries sorted by name
	result := []string{}
	for _, ext := range extensions {
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			if strings.EqualFold(strings.TrimPrefix(filepath.Ext(e.Name()), "."), ext) {
				result = append(result, e.Name())
			}
		}
	}
	return result, nil
}

// SanitizeFilename reduces an uploaded file name to its base name.
// Names that end up empty, or refer to a directory, are rejected.
func SanitizeFilename(name string) (string, error) {
	// Browsers on Windows may send a full path with backslashes
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.Clean("/" + name))
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("%w: invalid file name '%v'", errs.ErrMissingUpload, name)
	}
	return base, nil
}

// SplitBasename splits "cars.mp4" into ("cars", ".mp4")
func SplitBasename(name string) (string, string) {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

func (s *Staging) maybeSweep() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if time.Since(s.lastCleanup) > s.cleanupInterval {
		s.lastCleanup = time.Now()
		go s.Sweep()
	}
}

// Sweep deletes areas that were last modified more than maxAge ago.
// This must not touch any shared mutable state, or take the lock.
func (s *Staging) Sweep() int {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		s.log.Warnf("Failed to list staging root: %v", err)
		return 0
	}
	n := 0
	threshold := time.Now().Add(-s.maxAge)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			s.log.Warnf("Failed to stat area %v: %v", e.Name(), err)
			continue
		}
		if info.ModTime().Before(threshold) {
			if err := os.RemoveAll(filepath.Join(s.Root, e.Name())); err != nil {
				s.log.Warnf("Failed to delete expired area %v: %v", e.Name(), err)
			} else {
				n++
			}
		}
	}
	if n != 0 {
		s.log.Infof("Deleted %v expired staging areas", n)
	}
	return n
}
