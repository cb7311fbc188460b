package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op so tests and
// embedders can skip instrumentation.
type Metrics struct {
	events        *prometheus.CounterVec
	replies       *prometheus.CounterVec
	enforcements  *prometheus.CounterVec
	logins        *prometheus.CounterVec
	reconnects    prometheus.Counter
	persistErrors prometheus.Counter
	handlerErrors prometheus.Counter
	state         *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lockbot_events_total",
			Help: "Inbound platform events by classified kind.",
		}, []string{"kind"}),
		replies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lockbot_replies_total",
			Help: "Outbound replies by reason.",
		}, []string{"reason"}),
		enforcements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lockbot_lock_enforcements_total",
			Help: "Lock reverts issued by lock kind.",
		}, []string{"lock"}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lockbot_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "lockbot_reconnects_total",
			Help: "Listener failures that triggered a reconnect.",
		}),
		persistErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "lockbot_persist_errors_total",
			Help: "Failed configuration writes.",
		}),
		handlerErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "lockbot_handler_errors_total",
			Help: "Events dropped because the handler failed.",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lockbot_supervisor_state",
			Help: "1 for the current supervisor state, 0 otherwise.",
		}, []string{"state"}),
	}
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) Reply(reason string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(reason).Inc()
}

func (m *Metrics) Enforced(lock string) {
	if m == nil {
		return
	}
	m.enforcements.WithLabelValues(lock).Inc()
}

func (m *Metrics) Login(ok bool) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) PersistError() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

func (m *Metrics) HandlerError() {
	if m == nil {
		return
	}
	m.handlerErrors.Inc()
}

// SetState marks current as the active state among all.
func (m *Metrics) SetState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}
