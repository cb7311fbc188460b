package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/salini0110200/lockbot/internal/chat"
)

const writeTimeout = 10 * time.Second

// item is either an event or a listener failure reported by the bridge.
type item struct {
	event chat.Event
	err   error
}

// Session multiplexes request/response calls and the event stream over one
// websocket. A single reader goroutine routes responses to waiting calls and
// queues events for Listen; the queue is unbounded so a handler that calls
// back into the session can never stall the reader.
type Session struct {
	conn         *websocket.Conn
	callTimeout  time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
	userID       string

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan frame
	queue   []item
	notify  chan struct{}
	readErr error
	closing bool

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, callTimeout, pingInterval time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		conn:         conn,
		callTimeout:  callTimeout,
		pingInterval: pingInterval,
		logger:       logger,
		pending:      map[string]chan frame{},
		notify:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	readTimeout := 3 * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go s.readLoop()
	go s.pingLoop()
	return s
}

func (s *Session) readLoop() {
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.fail(fmt.Errorf("bridge read: %w", err))
			return
		}
		// Any frame proves the peer is alive.
		_ = s.conn.SetReadDeadline(time.Now().Add(3 * s.pingInterval))
		switch {
		case f.Event != nil:
			s.enqueue(item{event: *f.Event})
		case f.ListenError != "":
			s.enqueue(item{err: errors.New(f.ListenError)})
		case f.ID != "":
			s.mu.Lock()
			ch, ok := s.pending[f.ID]
			delete(s.pending, f.ID)
			s.mu.Unlock()
			if ok {
				ch <- f
			} else {
				s.logger.Debug("bridge_orphan_response", "id", f.ID)
			}
		default:
			s.logger.Debug("bridge_unknown_frame")
		}
	}
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.fail(fmt.Errorf("bridge ping: %w", err))
				return
			}
		}
	}
}

func (s *Session) enqueue(it item) {
	s.mu.Lock()
	s.queue = append(s.queue, it)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) dequeue() (item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return item{}, false
	}
	it := s.queue[0]
	s.queue = s.queue[1:]
	return it, true
}

// fail records the first transport error and releases every waiting call.
func (s *Session) fail(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.closing {
			err = chat.ErrSessionClosed
		}
		s.readErr = err
		pending := s.pending
		s.pending = map[string]chan frame{}
		s.mu.Unlock()
		close(s.done)
		_ = s.conn.Close()
		for _, ch := range pending {
			close(ch)
		}
	})
}

func (s *Session) transportErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return s.readErr
	}
	return chat.ErrSessionClosed
}

func (s *Session) call(ctx context.Context, op string, args any, out any) error {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	id := uuid.NewString()
	ch := make(chan frame, 1)
	s.mu.Lock()
	if s.readErr != nil {
		err := s.readErr
		s.mu.Unlock()
		return err
	}
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.write(request{ID: id, Op: op, Args: args}); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}

	select {
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case f, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", op, s.transportErr())
		}
		if !f.OK {
			msg := f.Error
			if msg == "" {
				msg = "unknown_error"
			}
			if f.Code == codeNotFound {
				return fmt.Errorf("%s: %s: %w", op, msg, chat.ErrNotFound)
			}
			return fmt.Errorf("%s failed: %s", op, msg)
		}
		if out != nil && len(f.Result) > 0 {
			if err := json.Unmarshal(f.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", op, err)
			}
		}
		return nil
	}
}

func (s *Session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *Session) SetOptions(ctx context.Context, opts chat.Options) error {
	return s.call(ctx, opSetOptions, opts, nil)
}

// Listen asks the bridge to (re)start its listener and then delivers queued
// events to h one at a time. It returns when the bridge reports a listener
// failure, the socket drops or ctx is done.
func (s *Session) Listen(ctx context.Context, h chat.Handler) error {
	if err := s.call(ctx, opListen, nil, nil); err != nil {
		return err
	}
	for {
		if it, ok := s.dequeue(); ok {
			if it.err != nil {
				return it.err
			}
			h(ctx, it.event)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			// Drain what arrived before the drop.
			if it, ok := s.dequeue(); ok {
				if it.err != nil {
					return it.err
				}
				h(ctx, it.event)
				continue
			}
			return s.transportErr()
		case <-s.notify:
		}
	}
}

func (s *Session) SendMessage(ctx context.Context, msg chat.Message, threadID string) error {
	return s.call(ctx, opSendMessage, sendMessageArgs{Message: msg, ThreadID: threadID}, nil)
}

func (s *Session) SetTitle(ctx context.Context, title, threadID string) error {
	return s.call(ctx, opSetTitle, setTitleArgs{Title: title, ThreadID: threadID}, nil)
}

func (s *Session) ChangeNickname(ctx context.Context, nickname, threadID, userID string) error {
	return s.call(ctx, opChangeNickname, changeNicknameArgs{Nickname: nickname, ThreadID: threadID, UserID: userID}, nil)
}

func (s *Session) UserInfo(ctx context.Context, userID string) (string, bool, error) {
	var res userInfoResult
	if err := s.call(ctx, opGetUserInfo, userInfoArgs{UserID: userID}, &res); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return res.Name, res.Found && res.Name != "", nil
}

func (s *Session) ThreadInfo(ctx context.Context, threadID string) (chat.ThreadInfo, error) {
	var info chat.ThreadInfo
	if err := s.call(ctx, opGetThreadInfo, threadInfoArgs{ThreadID: threadID}, &info); err != nil {
		return chat.ThreadInfo{}, err
	}
	return info, nil
}

func (s *Session) ThreadList(ctx context.Context, limit int, cursor string, tags []string) ([]chat.ThreadSummary, error) {
	var out []chat.ThreadSummary
	if err := s.call(ctx, opGetThreadList, threadListArgs{Limit: limit, Cursor: cursor, Tags: tags}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) CurrentUserID() string { return s.userID }

// Close sends a best-effort logout and closes the socket.
func (s *Session) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.call(ctx, opLogout, nil, nil); err != nil {
		s.logger.Debug("bridge_logout_failed", "error", err.Error())
	}
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	s.fail(chat.ErrSessionClosed)
	return nil
}
