// Package snapshot persists original (non-overlaid) frames on request.
package snapshot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

const DefaultDir = "cv_saved_images"

type Store interface {
	// Save stores a JPEG under name and returns where it ended up.
	Save(ctx context.Context, name string, jpeg []byte) (string, error)
}

// Name returns the timestamped file name used for a snapshot taken at t.
func Name(t time.Time) string {
	return t.Format("20060102_150405") + ".jpg"
}

// DirStore writes snapshots into a local directory, creating it on demand.
type DirStore struct {
	Dir string
}

func NewDirStore(dir string) *DirStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &DirStore{Dir: dir}
}

func (s *DirStore) Save(_ context.Context, name string, jpeg []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("snapshot: create dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(path, jpeg, 0644); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	log.Printf("[snapshot] Saved image %s", path)
	return path, nil
}
