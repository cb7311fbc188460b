// Package configstore persists the bot configuration snapshot. Two backends
// exist: a JSON file replaced atomically on every write, and a Redis key.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/salini0110200/lockbot/internal/policy"
)

var (
	ErrInvalidPath       = errors.New("configstore: invalid path")
	ErrEncodeFailed      = errors.New("configstore: encode failed")
	ErrDecodeFailed      = errors.New("configstore: decode failed")
	ErrAtomicWriteFailed = errors.New("configstore: atomic write failed")
	ErrUnknownBackend    = errors.New("configstore: unknown backend")
)

// Store loads and saves the whole configuration; every Save overwrites the
// previous snapshot.
type Store interface {
	policy.Persister
	// Load returns ok=false when nothing has been saved yet.
	Load(ctx context.Context) (cfg policy.Configuration, ok bool, err error)
	Close() error
}

type Options struct {
	Backend  string
	FilePath string
	RedisURL string
	RedisKey string
}

func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "file":
		s, err := NewFileStore(opts.FilePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := NewRedisStore(ctx, opts.RedisURL, opts.RedisKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
	}
}
