// Package supervisor owns the platform session: it logs in with the stored
// credentials, restores the bot nickname, feeds events to a handler and
// reconnects when the listener drops.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/salini0110200/lockbot/internal/chat"
	"github.com/salini0110200/lockbot/internal/metrics"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/salini0110200/lockbot/internal/retryutil"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateListening    State = "listening"
	StateReconnecting State = "reconnecting"
)

var allStates = []string{
	string(StateDisconnected),
	string(StateConnecting),
	string(StateListening),
	string(StateReconnecting),
}

const (
	DefaultLoginRetryDelay = 10 * time.Second
	DefaultReconnectDelay  = 5 * time.Second
	DefaultSettleDelay     = 2 * time.Second
	DefaultRestorePace     = 200 * time.Millisecond
	DefaultFlushInterval   = 5 * time.Minute

	// MaxReconnectAttempts is how many listener failures are retried on the
	// same session before a full re-login.
	MaxReconnectAttempts = 5
	// RestoreThreadLimit bounds the startup nickname pass. Only the first
	// page of group threads is visited.
	RestoreThreadLimit = 100
)

var ErrNotRunning = errors.New("supervisor: not running")

// EventHandler processes one inbound event on the live session.
type EventHandler interface {
	Handle(ctx context.Context, sess chat.Session, ev chat.Event) error
}

type Options struct {
	Client  chat.Client
	Store   *policy.Store
	Handler EventHandler
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	LoginRetryDelay time.Duration
	ReconnectDelay  time.Duration
	SettleDelay     time.Duration
	RestorePace     time.Duration
	FlushInterval   time.Duration
	Sleep           retryutil.SleepFunc
	// BaseContext parents loops begun by Restart before Start was called.
	BaseContext context.Context
}

type Supervisor struct {
	client  chat.Client
	store   *policy.Store
	handler EventHandler
	logger  *slog.Logger
	metrics *metrics.Metrics

	loginRetryDelay time.Duration
	reconnectDelay  time.Duration
	settleDelay     time.Duration
	restorePace     time.Duration
	flushInterval   time.Duration
	sleep           retryutil.SleepFunc

	// lifecycle guards cancel and done across Start, Restart and Stop.
	lifecycle sync.Mutex
	base      context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	state    State
	attempts int
	session  chat.Session
}

func New(opts Options) (*Supervisor, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("supervisor: Client is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("supervisor: Store is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("supervisor: Handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = retryutil.Sleep
	}
	s := &Supervisor{
		client:          opts.Client,
		store:           opts.Store,
		handler:         opts.Handler,
		logger:          logger,
		metrics:         opts.Metrics,
		loginRetryDelay: orDefault(opts.LoginRetryDelay, DefaultLoginRetryDelay),
		reconnectDelay:  orDefault(opts.ReconnectDelay, DefaultReconnectDelay),
		settleDelay:     orDefault(opts.SettleDelay, DefaultSettleDelay),
		restorePace:     orDefault(opts.RestorePace, DefaultRestorePace),
		flushInterval:   orDefault(opts.FlushInterval, DefaultFlushInterval),
		sleep:           sleep,
		base:            opts.BaseContext,
		state:           StateDisconnected,
	}
	s.metrics.SetState(string(StateDisconnected), allStates)
	return s, nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Start launches the supervision loop under ctx. Later restarts run under
// the same ctx. Starting a running supervisor is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.base = ctx
	if s.aliveLocked() {
		return
	}
	s.stopLocked()
	s.startLocked()
}

// Restart tears down the current session, if any, and logs in again with
// whatever credentials the store now holds.
func (s *Supervisor) Restart() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
	s.startLocked()
}

// Stop cancels the loop and waits for it to release the session.
func (s *Supervisor) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
}

// Running reports whether the loop goroutine is alive. A loop that ended
// because its base context was cancelled counts as stopped.
func (s *Supervisor) Running() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.aliveLocked()
}

func (s *Supervisor) aliveLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the listener failures counted since the last login.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Session returns the live session handle or ErrNotRunning.
func (s *Supervisor) Session() (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNotRunning
	}
	return s.session, nil
}

func (s *Supervisor) startLocked() {
	parent := s.base
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go func() {
		defer close(done)
		s.run(ctx)
	}()
}

func (s *Supervisor) stopLocked() {
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Supervisor) run(ctx context.Context) {
	s.logger.Info("supervisor_start")
	defer func() {
		s.releaseSession()
		s.setState(StateDisconnected)
		s.logger.Info("supervisor_stop")
	}()

	for {
		sess, err := s.login(ctx)
		if err != nil {
			return
		}
		stopFlush := s.startFlush(ctx)
		s.prepare(ctx, sess)
		err = s.listen(ctx, sess)
		stopFlush()
		if err != nil {
			return
		}
		s.releaseSession()
	}
}

// login retries without bound until it gets a session or ctx is done.
func (s *Supervisor) login(ctx context.Context) (chat.Session, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.setState(StateConnecting)
		s.logger.Info("login_start")
		sess, err := s.client.Login(ctx, s.store.Credentials())
		if err == nil {
			s.metrics.Login(true)
			s.mu.Lock()
			s.session = sess
			s.attempts = 0
			s.mu.Unlock()
			s.logger.Info("login_ok", "user_id", sess.CurrentUserID())
			return sess, nil
		}
		s.metrics.Login(false)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("login_failed", "error", err.Error(), "retry_in", s.loginRetryDelay.String())
		if err := s.sleep(ctx, s.loginRetryDelay); err != nil {
			return nil, err
		}
	}
}

func (s *Supervisor) prepare(ctx context.Context, sess chat.Session) {
	retryutil.BestEffort(ctx, s.logger, "set_options", func(ctx context.Context) error {
		return sess.SetOptions(ctx, chat.Options{SelfListen: true, ListenEvents: true, UpdatePresence: false})
	})
	if err := s.sleep(ctx, s.settleDelay); err != nil {
		return
	}
	s.restoreNicknames(ctx, sess)
}

func (s *Supervisor) restoreNicknames(ctx context.Context, sess chat.Session) {
	threads, err := sess.ThreadList(ctx, RestoreThreadLimit, "", []string{chat.ThreadTagGroup})
	if err != nil {
		s.logger.Error("nickname_restore_failed", "error", err.Error())
		return
	}
	nickname := s.store.BotNickname()
	botID := sess.CurrentUserID()
	restored := 0
	for _, th := range threads {
		if ctx.Err() != nil {
			return
		}
		info, err := sess.ThreadInfo(ctx, th.ThreadID)
		if err != nil {
			s.logger.Warn("nickname_restore_thread_failed", "thread_id", th.ThreadID, "error", err.Error())
		} else if info.Nicknames[botID] != nickname {
			if err := sess.ChangeNickname(ctx, nickname, th.ThreadID, botID); err != nil {
				s.logger.Warn("nickname_restore_thread_failed", "thread_id", th.ThreadID, "error", err.Error())
			} else {
				restored++
				s.logger.Info("nickname_restored", "thread_id", th.ThreadID)
			}
		}
		if err := s.sleep(ctx, s.restorePace); err != nil {
			return
		}
	}
	s.logger.Info("nickname_restore_done", "threads", len(threads), "changed", restored)
}

// listen returns nil when the failure count calls for a full re-login and
// ctx.Err() when the supervisor is shutting down.
func (s *Supervisor) listen(ctx context.Context, sess chat.Session) error {
	handle := func(ctx context.Context, ev chat.Event) {
		if err := s.handler.Handle(ctx, sess, ev); err != nil {
			s.metrics.HandlerError()
			s.logger.Error("event_handler_error", "thread_id", ev.ThreadID, "type", ev.Type, "error", err.Error())
		}
	}
	for {
		s.setState(StateListening)
		s.logger.Info("listen_start")
		err := sess.Listen(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = chat.ErrSessionClosed
		}
		s.setState(StateReconnecting)
		s.metrics.Reconnect()
		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()
		s.logger.Error("listen_failed", "attempt", attempt, "error", err.Error())

		if attempt > MaxReconnectAttempts {
			s.logger.Error("reconnect_exhausted", "attempts", attempt)
			return nil
		}
		if err := s.sleep(ctx, s.reconnectDelay); err != nil {
			return err
		}
	}
}

// startFlush writes the policy snapshot on a fixed interval until the
// returned stop func is called.
func (s *Supervisor) startFlush(parent context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.store.Flush(ctx); err != nil {
					s.logger.Error("periodic_flush_failed", "error", err.Error())
					continue
				}
				s.logger.Debug("periodic_flush_ok")
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *Supervisor) releaseSession() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		s.logger.Warn("session_close_failed", "error", err.Error())
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Debug("supervisor_state", "from", string(prev), "to", string(st))
	}
	s.metrics.SetState(string(st), allStates)
}
