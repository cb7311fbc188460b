// Package policy holds the lock configuration of every thread and writes it
// through to durable storage on each mutation.
package policy

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/salini0110200/lockbot/internal/metrics"
)

type LockKind int

const (
	LockGroupTitle LockKind = iota
	LockNickname
	LockTarget
)

func (k LockKind) String() string {
	switch k {
	case LockGroupTitle:
		return "group"
	case LockNickname:
		return "nickname"
	case LockTarget:
		return "target"
	default:
		return "unknown"
	}
}

// Persister writes a configuration snapshot somewhere durable.
type Persister interface {
	Save(ctx context.Context, cfg Configuration) error
}

type Options struct {
	Persister    Persister
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	WriteTimeout time.Duration
}

// Store is safe for concurrent use. Writes are last-writer-wins.
type Store struct {
	mu    sync.RWMutex
	cfg   Configuration
	locks map[LockKind]map[string]string

	persister    Persister
	logger       *slog.Logger
	metrics      *metrics.Metrics
	writeTimeout time.Duration
}

func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Store{
		persister:    opts.Persister,
		logger:       logger,
		metrics:      opts.Metrics,
		writeTimeout: timeout,
	}
	s.restoreLocked(Configuration{})
	return s
}

func (s *Store) SetLock(kind LockKind, threadID, value string) {
	s.mu.Lock()
	s.locks[kind][threadID] = value
	s.mu.Unlock()
	s.persist("set_lock")
}

func (s *Store) ClearLock(kind LockKind, threadID string) {
	s.mu.Lock()
	delete(s.locks[kind], threadID)
	s.mu.Unlock()
	s.persist("clear_lock")
}

func (s *Store) Lock(kind LockKind, threadID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.locks[kind][threadID]
	return v, ok
}

func (s *Store) Snapshot() Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Restore replaces the in-memory state with cfg without persisting; it seeds
// the store at startup.
func (s *Store) Restore(cfg Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreLocked(cfg)
}

// Configure applies a dashboard submission as one persisted mutation. Empty
// prefix or adminID keep the current value.
func (s *Store) Configure(cookies json.RawMessage, prefix, adminID string) {
	s.mu.Lock()
	s.cfg.Cookies = append(json.RawMessage(nil), cookies...)
	if p := strings.TrimSpace(prefix); p != "" {
		s.cfg.Prefix = p
	}
	if a := strings.TrimSpace(adminID); a != "" {
		s.cfg.AdminID = a
	}
	s.mu.Unlock()
	s.persist("configure")
}

func (s *Store) AdminID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.AdminID
}

func (s *Store) IsAdmin(userID string) bool {
	admin := s.AdminID()
	return admin != "" && userID == admin
}

func (s *Store) Prefix() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Prefix
}

func (s *Store) BotNickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.BotNickname
}

func (s *Store) Credentials() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(json.RawMessage(nil), s.cfg.Cookies...)
}

// LockCount returns the number of active locks per kind.
func (s *Store) LockCount() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.locks))
	for kind, m := range s.locks {
		out[kind.String()] = len(m)
	}
	return out
}

// Flush persists the current snapshot and returns the write error, if any.
func (s *Store) Flush(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, s.Snapshot()); err != nil {
		s.metrics.PersistError()
		return err
	}
	return nil
}

func (s *Store) persist(reason string) {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.logger.Error("policy_persist_error", "reason", reason, "error", err.Error())
		return
	}
	s.logger.Debug("policy_persisted", "reason", reason)
}

func (s *Store) snapshotLocked() Configuration {
	out := s.cfg.Clone()
	out.LockedGroups = cloneMap(s.locks[LockGroupTitle])
	out.LockedNicknames = cloneMap(s.locks[LockNickname])
	out.LockedTargets = cloneMap(s.locks[LockTarget])
	return out
}

func (s *Store) restoreLocked(cfg Configuration) {
	cfg = cfg.Clone()
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = DefaultPrefix
	}
	if strings.TrimSpace(cfg.BotNickname) == "" {
		cfg.BotNickname = DefaultBotNickname
	}
	s.locks = map[LockKind]map[string]string{
		LockGroupTitle: cfg.LockedGroups,
		LockNickname:   cfg.LockedNicknames,
		LockTarget:     cfg.LockedTargets,
	}
	cfg.LockedGroups, cfg.LockedNicknames, cfg.LockedTargets = nil, nil, nil
	s.cfg = cfg
}
