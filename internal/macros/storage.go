package macros

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Storage keeps uploaded exports and generated workbooks.
type Storage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// DirStorage writes blobs as files below a directory.
type DirStorage struct {
	dir string
}

// NewDirStorage constructs a DirStorage. An empty dir falls back to the system
// temp directory.
func NewDirStorage(dir string) *DirStorage {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "macros")
	}
	return &DirStorage{dir: dir}
}

func (s *DirStorage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("macros: invalid storage key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

// Put writes data under key, creating parent directories.
func (s *DirStorage) Put(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Get reads the blob stored under key.
func (s *DirStorage) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoArtifact
	}
	return data, err
}

// ContentHash fingerprints an uploaded export.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sourceKey(rec FileRecord) string {
	ext := strings.ToLower(filepath.Ext(rec.SourceName))
	switch ext {
	case ".xlsx", ".xlsm", ".xls", ".csv", ".tsv", ".txt":
	default:
		ext = ""
	}
	return "sources/" + rec.ID.String() + ext
}

func artifactKey(rec FileRecord) string {
	return "artifacts/" + rec.ID.String() + ".xlsx"
}
