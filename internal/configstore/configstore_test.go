package configstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/salini0110200/lockbot/internal/policy"
)

func sampleConfig() policy.Configuration {
	return policy.Configuration{
		BotNickname:     "Warden",
		Cookies:         json.RawMessage(`[{"key":"c_user","value":"1"}]`),
		AdminID:         "100",
		Prefix:          "!",
		LockedGroups:    map[string]string{"t1": "Team"},
		LockedNicknames: map[string]string{"t2": "crew"},
		LockedTargets:   map[string]string{"t3": "1000123"},
	}
}

// compactCookies undoes the indentation MarshalIndent applies to the raw
// credential blob.
func compactCookies(t *testing.T, cfg policy.Configuration) policy.Configuration {
	t.Helper()
	var buf bytes.Buffer
	if err := json.Compact(&buf, cfg.Cookies); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	cfg.Cookies = json.RawMessage(buf.Bytes())
	return cfg
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "config.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("Load() on missing file = ok %v, err %v", ok, err)
	}
	in := sampleConfig()
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	out, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	if out = compactCookies(t, out); !reflect.DeepEqual(in, out) {
		t.Fatalf("Load() = %+v, want %+v", out, in)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, key := range []string{`"botNickname"`, `"cookies"`, `"adminID"`, `"prefix"`, `"lockedGroups"`, `"lockedNicknames"`, `"lockedTargets"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("config file missing %s:\n%s", key, raw)
		}
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileStoreOverwritesWholesale(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, sampleConfig()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	next := sampleConfig()
	next.LockedGroups = map[string]string{}
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	out, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(out.LockedGroups) != 0 {
		t.Fatalf("stale group locks survived: %v", out.LockedGroups)
	}
}

func TestFileStoreSaveLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(dir, "config.json")
	store, _ := NewFileStore(path)
	if err := store.Save(context.Background(), sampleConfig()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.json" {
		t.Fatalf("state dir entries = %v", entries)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config perm = %o, want 600", perm)
	}
}

func TestFileStoreSaveFailure(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store, _ := NewFileStore(filepath.Join(blocker, "config.json"))
	if err := store.Save(context.Background(), sampleConfig()); !errors.Is(err, ErrAtomicWriteFailed) {
		t.Fatalf("Save() error = %v, want ErrAtomicWriteFailed", err)
	}
}

func TestFileStoreDecodeError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store, _ := NewFileStore(path)
	_, _, err := store.Load(context.Background())
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("Load() error = %v, want ErrDecodeFailed", err)
	}
}

func TestNewFileStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewFileStore("  "); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("NewFileStore() error = %v, want ErrInvalidPath", err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewRedisStore(ctx, "redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("Load() on empty redis = ok %v, err %v", ok, err)
	}
	in := sampleConfig()
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !s.Exists(DefaultRedisKey) {
		t.Fatalf("key %s not written", DefaultRedisKey)
	}
	out, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("Load() = %+v, want %+v", out, in)
	}
}

func TestRedisStoreDecodeError(t *testing.T) {
	s := miniredis.RunT(t)
	if err := s.Set("custom:key", "garbage"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	store, err := Open(context.Background(), Options{Backend: "redis", RedisURL: "redis://" + s.Addr(), RedisKey: "custom:key"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()
	if _, _, err := store.Load(context.Background()); !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("Load() error = %v, want ErrDecodeFailed", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "etcd"}); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("Open() error = %v, want ErrUnknownBackend", err)
	}
}

func TestStoreWiresIntoPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	fs, _ := NewFileStore(path)
	ps := policy.NewStore(policy.Options{Persister: fs})
	ps.SetLock(policy.LockTarget, "t1", "1000123")

	out, ok, err := fs.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	if out.LockedTargets["t1"] != "1000123" {
		t.Fatalf("persisted targets = %v", out.LockedTargets)
	}
}
