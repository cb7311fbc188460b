package configstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/salini0110200/lockbot/internal/policy"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

// FileStore keeps the configuration as indented JSON. Writes go to a temp file
// in the same directory and are renamed over the target, so readers never see
// a partial document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (policy.Configuration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return policy.Configuration{}, false, nil
		}
		return policy.Configuration{}, false, fmt.Errorf("read config %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return policy.Configuration{}, false, nil
	}
	var cfg policy.Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return policy.Configuration{}, false, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, s.path, err)
	}
	return cfg, true, nil
}

func (s *FileStore) Save(_ context.Context, cfg policy.Configuration) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailed, s.path, err)
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.replace(data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAtomicWriteFailed, s.path, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// replace swaps the document in with one rename. The sibling <path>.tmp is
// reused on every save; s.mu keeps writers in this process apart.
func (s *FileStore) replace(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), defaultDirPerm); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}
