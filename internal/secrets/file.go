package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the token in a local JSON file, for development.
type FileStore struct {
	Path string
}

// NewFileStore creates a file-backed token store.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load implements Store.
func (f *FileStore) Load(ctx context.Context) (*StoredToken, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w", err)
	}
	var tok StoredToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("FileStore.Load: parse %s: %w", f.Path, err)
	}
	return &tok, nil
}

// Save implements Store. The file is replaced atomically.
func (f *FileStore) Save(ctx context.Context, tok *StoredToken) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("FileStore.Save: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".token-*")
	if err != nil {
		return fmt.Errorf("FileStore.Save: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Save: write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Save: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("FileStore.Save: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("FileStore.Save: rename: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
