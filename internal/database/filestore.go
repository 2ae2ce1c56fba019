package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tchudometro/internal/models"
)

// FileStore keeps the dataset in a single JSON file
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the dataset. A missing file yields an empty dataset.
func (s *FileStore) Load(_ context.Context) (models.Guilds, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Guilds{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	guilds := models.Guilds{}
	if err := json.Unmarshal(data, &guilds); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	for _, g := range guilds {
		if g.Users == nil {
			g.Users = make(map[string]*models.UserRecord)
		}
	}
	return guilds, nil
}

// Save writes the dataset to a temporary file and renames it over the old one
func (s *FileStore) Save(_ context.Context, guilds models.Guilds) error {
	data, err := json.MarshalIndent(guilds, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode guilds: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
