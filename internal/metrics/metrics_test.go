package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Event("chat_message")
	m.Event("chat_message")
	m.Enforced("group")
	m.Login(false)
	m.Login(true)
	m.Reconnect()

	if got := testutil.ToFloat64(m.events.WithLabelValues("chat_message")); got != 2 {
		t.Fatalf("events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.enforcements.WithLabelValues("group")); got != 1 {
		t.Fatalf("enforcements = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("error")); got != 1 {
		t.Fatalf("failed logins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reconnects); got != 1 {
		t.Fatalf("reconnects = %v, want 1", got)
	}
}

func TestSetStateIsExclusive(t *testing.T) {
	m := New(prometheus.NewRegistry())
	all := []string{"disconnected", "connecting", "listening"}
	m.SetState("connecting", all)
	m.SetState("listening", all)

	if got := testutil.ToFloat64(m.state.WithLabelValues("connecting")); got != 0 {
		t.Fatalf("connecting = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.state.WithLabelValues("listening")); got != 1 {
		t.Fatalf("listening = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Event("x")
	m.Reply("x")
	m.Enforced("x")
	m.Login(true)
	m.Reconnect()
	m.PersistError()
	m.HandlerError()
	m.SetState("x", []string{"x"})
}
