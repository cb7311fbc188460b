package dashboard

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/salini0110200/lockbot/internal/loghub"
	"github.com/salini0110200/lockbot/internal/metrics"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/salini0110200/lockbot/internal/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBot struct {
	mu       sync.Mutex
	running  bool
	restarts int
}

func (b *fakeBot) Restart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restarts++
	b.running = true
}

func (b *fakeBot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *fakeBot) State() supervisor.State {
	if b.Running() {
		return supervisor.StateListening
	}
	return supervisor.StateDisconnected
}

func (b *fakeBot) Attempts() int { return 2 }

func (b *fakeBot) restartCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.restarts
}

func newTestServer(t *testing.T, token string) (*Server, *policy.Store, *fakeBot, *loghub.Hub) {
	t.Helper()
	store := policy.NewStore(policy.Options{})
	bot := &fakeBot{}
	hub := loghub.New(10)
	reg := prometheus.NewRegistry()
	metrics.New(reg).Reply("greeting")
	srv := New(Options{
		Store:     store,
		Bot:       bot,
		Hub:       hub,
		Gatherer:  reg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		AuthToken: token,
	})
	return srv, store, bot, hub
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func waitRestarts(t *testing.T, bot *fakeBot, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bot.restartCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("restarts = %d, want %d", bot.restartCount(), want)
}

func TestConfigureJSON(t *testing.T) {
	srv, store, bot, _ := newTestServer(t, "")
	body := `{"cookies":[{"key":"c_user","value":"900"}],"prefix":"!","adminID":"100"}`
	req := httptest.NewRequest(http.MethodPost, "/configure", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := do(t, srv.Handler(), req)
	if w.Code != http.StatusOK || w.Body.String() != "Configured. Starting bot..." {
		t.Fatalf("POST /configure = %d %q", w.Code, w.Body.String())
	}
	if store.Prefix() != "!" || store.AdminID() != "100" {
		t.Fatalf("store prefix=%q admin=%q", store.Prefix(), store.AdminID())
	}
	if got := string(store.Credentials()); got != `[{"key":"c_user","value":"900"}]` {
		t.Fatalf("credentials = %s", got)
	}
	waitRestarts(t, bot, 1)
}

func TestConfigureFormWithCookieString(t *testing.T) {
	srv, store, bot, _ := newTestServer(t, "")
	form := url.Values{
		"cookies": {`[{"key":"xs","value":"abc"}]`},
		"adminID": {"100"},
	}
	req := httptest.NewRequest(http.MethodPost, "/configure", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := do(t, srv.Handler(), req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /configure = %d %q", w.Code, w.Body.String())
	}
	if store.Prefix() != policy.DefaultPrefix {
		t.Fatalf("prefix = %q, want default kept", store.Prefix())
	}
	if !policy.ValidCredentials(store.Credentials()) {
		t.Fatalf("credentials not stored: %s", store.Credentials())
	}
	waitRestarts(t, bot, 1)
}

func TestConfigureUnwrapsJSONEncodedCookies(t *testing.T) {
	srv, store, _, _ := newTestServer(t, "")
	inner, _ := json.Marshal(`[{"key":"c_user","value":"900"}]`)
	body := `{"cookies":` + string(inner) + `,"adminID":"100"}`
	req := httptest.NewRequest(http.MethodPost, "/configure", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	if w := do(t, srv.Handler(), req); w.Code != http.StatusOK {
		t.Fatalf("POST /configure = %d %q", w.Code, w.Body.String())
	}
	if got := string(store.Credentials()); got != `[{"key":"c_user","value":"900"}]` {
		t.Fatalf("credentials = %s", got)
	}
}

func TestConfigureRejectsWithoutMutating(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty cookie array", `{"cookies":[],"adminID":"100","prefix":"!"}`, "Invalid cookies"},
		{"cookies not a list", `{"cookies":{"a":1},"adminID":"100","prefix":"!"}`, "Invalid cookies"},
		{"missing cookies", `{"adminID":"100","prefix":"!"}`, "Invalid cookies"},
		{"missing admin", `{"cookies":[{"k":"v"}],"prefix":"!"}`, "adminID required"},
		{"malformed body", `{"cookies":`, "Invalid data"},
		{"prefix too long", `{"cookies":[{"k":"v"}],"adminID":"100","prefix":"` + strings.Repeat("x", 17) + `"}`, "Invalid prefix"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, store, bot, _ := newTestServer(t, "")
			req := httptest.NewRequest(http.MethodPost, "/configure", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			w := do(t, srv.Handler(), req)
			if w.Code != http.StatusBadRequest || w.Body.String() != tc.want {
				t.Fatalf("POST /configure = %d %q, want 400 %q", w.Code, w.Body.String(), tc.want)
			}
			if store.Prefix() != policy.DefaultPrefix || store.AdminID() != "" || len(store.Credentials()) != 0 {
				t.Fatalf("store mutated: %+v", store.Snapshot())
			}
			if bot.restartCount() != 0 {
				t.Fatalf("bot restarted on invalid submission")
			}
		})
	}
}

func TestConfigureFallsBackToStoredAdmin(t *testing.T) {
	srv, store, bot, _ := newTestServer(t, "")
	store.Restore(policy.Configuration{AdminID: "100"})
	req := httptest.NewRequest(http.MethodPost, "/configure", strings.NewReader(`{"cookies":[{"k":"v"}]}`))
	req.Header.Set("Content-Type", "application/json")

	if w := do(t, srv.Handler(), req); w.Code != http.StatusOK {
		t.Fatalf("POST /configure = %d %q", w.Code, w.Body.String())
	}
	if store.AdminID() != "100" {
		t.Fatalf("admin = %q", store.AdminID())
	}
	waitRestarts(t, bot, 1)
}

func TestAuthToken(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	if w := do(t, srv.Handler(), req); w.Code != http.StatusUnauthorized {
		t.Fatalf("GET /status without token = %d", w.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if w := do(t, srv.Handler(), req); w.Code != http.StatusOK {
		t.Fatalf("GET /status with token = %d", w.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	if w := do(t, srv.Handler(), req); w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	srv, store, _, _ := newTestServer(t, "")
	store.SetLock(policy.LockGroupTitle, "t1", "Team")
	store.SetLock(policy.LockTarget, "t2", "1000123")

	w := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /status = %d", w.Code)
	}
	var resp struct {
		Running        bool           `json:"running"`
		State          string         `json:"state"`
		ReconnectCount int            `json:"reconnect_count"`
		Prefix         string         `json:"prefix"`
		Locks          map[string]int `json:"locks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if resp.Running || resp.State != "disconnected" || resp.ReconnectCount != 2 || resp.Prefix != "/" {
		t.Fatalf("status = %+v", resp)
	}
	if resp.Locks["group"] != 1 || resp.Locks["target"] != 1 || resp.Locks["nickname"] != 0 {
		t.Fatalf("locks = %v", resp.Locks)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")
	w := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `lockbot_replies_total{reason="greeting"} 1`) {
		t.Fatalf("GET /metrics = %d\n%s", w.Code, w.Body.String())
	}
}

func TestIndexPage(t *testing.T) {
	srv, _, _, _ := newTestServer(t, "")
	w := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/configure") {
		t.Fatalf("GET / = %d", w.Code)
	}
}

func TestLogsStream(t *testing.T) {
	srv, _, bot, hub := newTestServer(t, "")
	hub.Publish("[2026-01-01T00:00:00Z] INFO: earlier")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/logs", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	read := func() string {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		return string(data)
	}
	if got := read(); got != "Bot status: Not started" {
		t.Fatalf("first frame = %q", got)
	}
	if got := read(); got != "[2026-01-01T00:00:00Z] INFO: earlier" {
		t.Fatalf("backlog frame = %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Publish("[2026-01-01T00:00:01Z] ERROR: listen_failed")
	if got := read(); got != "[2026-01-01T00:00:01Z] ERROR: listen_failed" {
		t.Fatalf("live frame = %q", got)
	}

	bot.Restart()
	conn2, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/logs", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn2.Close()
	_ = conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := conn2.ReadMessage(); err != nil || string(data) != "Bot status: Started" {
		t.Fatalf("first frame after start = %q, %v", data, err)
	}
}
