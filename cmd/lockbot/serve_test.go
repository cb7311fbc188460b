package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/salini0110200/lockbot/internal/configstore"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/spf13/viper"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSeedPolicyRestoresSavedConfig(t *testing.T) {
	viper.Reset()
	initViperDefaults()
	t.Cleanup(viper.Reset)

	fs, err := configstore.NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	saved := policy.Configuration{
		Cookies:       json.RawMessage(`[{"key":"c_user","value":"900"}]`),
		AdminID:       "100",
		Prefix:        "!",
		LockedTargets: map[string]string{"t1": "1000123"},
	}
	if err := fs.Save(context.Background(), saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ps := policy.NewStore(policy.Options{})
	seedPolicy(context.Background(), discardLogger(), fs, ps)

	if ps.Prefix() != "!" || ps.AdminID() != "100" {
		t.Fatalf("prefix=%q admin=%q", ps.Prefix(), ps.AdminID())
	}
	if ps.BotNickname() != policy.DefaultBotNickname {
		t.Fatalf("bot nickname = %q", ps.BotNickname())
	}
	if v, ok := ps.Lock(policy.LockTarget, "t1"); !ok || v != "1000123" {
		t.Fatalf("target lock = %q, %v", v, ok)
	}
	if !ps.Snapshot().HasCredentials() {
		t.Fatalf("credentials not restored")
	}
}

func TestSeedPolicyUsesConfiguredDefaults(t *testing.T) {
	viper.Reset()
	initViperDefaults()
	t.Cleanup(viper.Reset)
	viper.Set("bot.nickname", "Warden")
	viper.Set("bot.prefix", "#")

	fs, _ := configstore.NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	ps := policy.NewStore(policy.Options{})
	seedPolicy(context.Background(), discardLogger(), fs, ps)

	if ps.BotNickname() != "Warden" || ps.Prefix() != "#" {
		t.Fatalf("nickname=%q prefix=%q", ps.BotNickname(), ps.Prefix())
	}
}

func TestSeedPolicyCorruptFileKeepsDefaults(t *testing.T) {
	viper.Reset()
	initViperDefaults()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	fs, _ := configstore.NewFileStore(path)
	ps := policy.NewStore(policy.Options{})
	seedPolicy(context.Background(), discardLogger(), fs, ps)

	if ps.Prefix() != policy.DefaultPrefix || ps.AdminID() != "" {
		t.Fatalf("prefix=%q admin=%q", ps.Prefix(), ps.AdminID())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "dev" {
		t.Fatalf("version --short = %q", got)
	}
	if got := versionString(); got != "lockbot dev" {
		t.Fatalf("versionString() = %q", got)
	}
}

type orderLog struct {
	mu     sync.Mutex
	events []string
}

func (l *orderLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

type stopRecorder struct{ log *orderLog }

func (s stopRecorder) Stop() { s.log.add("stop") }

type saveRecorder struct {
	log  *orderLog
	last policy.Configuration
}

func (p *saveRecorder) Save(_ context.Context, cfg policy.Configuration) error {
	p.log.add("save")
	p.last = cfg
	return nil
}

func TestShutdownStopsBotThenFlushes(t *testing.T) {
	log := &orderLog{}
	persister := &saveRecorder{log: log}
	ps := policy.NewStore(policy.Options{Persister: persister, Logger: discardLogger()})
	ps.Restore(policy.Configuration{
		AdminID:           "100",
		LockedGroups: map[string]string{"t1": "Team"},
	})

	shutdown(context.Background(), discardLogger(), nil, stopRecorder{log: log}, ps)

	if got := strings.Join(log.events, ","); got != "stop,save" {
		t.Fatalf("shutdown order = %q, want stop,save", got)
	}
	if persister.last.AdminID != "100" || persister.last.LockedGroups["t1"] != "Team" {
		t.Fatalf("flushed snapshot = %+v", persister.last)
	}
}

func TestConfigShowRedactsCookies(t *testing.T) {
	viper.Reset()
	initViperDefaults()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.json")
	viper.Set("storage.backend", "file")
	viper.Set("state.config_file", path)

	fs, err := configstore.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	saved := policy.Configuration{
		Cookies: json.RawMessage(`[{"key":"c_user","value":"900"},{"key":"xs","value":"s3cr3t-session"}]`),
		AdminID: "100",
		Prefix:  "!",
	}
	if err := fs.Save(context.Background(), saved); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cmd := newConfigCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	got := out.String()
	if strings.Contains(got, "s3cr3t-session") || strings.Contains(got, "c_user") {
		t.Fatalf("config show leaked cookies: %s", got)
	}
	if !strings.Contains(got, `"[redacted]"`) {
		t.Fatalf("config show = %s, want redacted cookies", got)
	}
	if !strings.Contains(got, `"adminID": "100"`) {
		t.Fatalf("config show = %s, want adminID", got)
	}
}
