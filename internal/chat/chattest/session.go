// Package chattest provides an in-memory chat.Session and chat.Client for
// tests.
package chattest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/salini0110200/lockbot/internal/chat"
)

type SentMessage struct {
	ThreadID string
	Message  chat.Message
}

type TitleChange struct {
	ThreadID string
	Title    string
}

type NicknameChange struct {
	ThreadID string
	UserID   string
	Nickname string
}

// Session records every mutation and serves lookups from its fields. The
// Err* fields force the matching call to fail.
type Session struct {
	mu sync.Mutex

	SelfID  string
	Users   map[string]string
	Threads map[string]chat.ThreadInfo
	List    []chat.ThreadSummary

	ErrSend       error
	ErrSetTitle   error
	ErrNickname   error
	ErrUserInfo   error
	ErrThreadInfo error
	ErrThreadList error

	// ListenErrs is consumed one per Listen call; once empty Listen blocks
	// until ctx is done.
	ListenErrs []error
	Events     []chat.Event

	Sent        []SentMessage
	Titles      []TitleChange
	Nicknames   []NicknameChange
	Options     []chat.Options
	ListenCalls int
	Closed      bool
}

func NewSession(selfID string) *Session {
	return &Session{
		SelfID:  selfID,
		Users:   map[string]string{},
		Threads: map[string]chat.ThreadInfo{},
	}
}

func (s *Session) SetOptions(_ context.Context, opts chat.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Options = append(s.Options, opts)
	return nil
}

func (s *Session) Listen(ctx context.Context, h chat.Handler) error {
	s.mu.Lock()
	s.ListenCalls++
	events := s.Events
	s.Events = nil
	var err error
	if len(s.ListenErrs) > 0 {
		err = s.ListenErrs[0]
		s.ListenErrs = s.ListenErrs[1:]
	}
	s.mu.Unlock()

	for _, ev := range events {
		h(ctx, ev)
	}
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *Session) SendMessage(_ context.Context, msg chat.Message, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrSend != nil {
		return s.ErrSend
	}
	s.Sent = append(s.Sent, SentMessage{ThreadID: threadID, Message: msg})
	return nil
}

func (s *Session) SetTitle(_ context.Context, title, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrSetTitle != nil {
		return s.ErrSetTitle
	}
	s.Titles = append(s.Titles, TitleChange{ThreadID: threadID, Title: title})
	return nil
}

func (s *Session) ChangeNickname(_ context.Context, nickname, threadID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrNickname != nil {
		return s.ErrNickname
	}
	s.Nicknames = append(s.Nicknames, NicknameChange{ThreadID: threadID, UserID: userID, Nickname: nickname})
	return nil
}

func (s *Session) UserInfo(_ context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrUserInfo != nil {
		return "", false, s.ErrUserInfo
	}
	name, ok := s.Users[userID]
	return name, ok, nil
}

func (s *Session) ThreadInfo(_ context.Context, threadID string) (chat.ThreadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrThreadInfo != nil {
		return chat.ThreadInfo{}, s.ErrThreadInfo
	}
	info, ok := s.Threads[threadID]
	if !ok {
		return chat.ThreadInfo{}, fmt.Errorf("thread %s: %w", threadID, chat.ErrNotFound)
	}
	return info, nil
}

func (s *Session) ThreadList(_ context.Context, limit int, _ string, _ []string) ([]chat.ThreadSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrThreadList != nil {
		return nil, s.ErrThreadList
	}
	out := append([]chat.ThreadSummary(nil), s.List...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Session) CurrentUserID() string { return s.SelfID }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

func (s *Session) ListenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ListenCalls
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}

func (s *Session) OptionsSet() []chat.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Options(nil), s.Options...)
}

// SentBodies returns the bodies of all sent messages in order.
func (s *Session) SentBodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Sent))
	for _, m := range s.Sent {
		out = append(out, m.Message.Body)
	}
	return out
}

func (s *Session) Snapshot() (sent []SentMessage, titles []TitleChange, nicks []NicknameChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.Sent...),
		append([]TitleChange(nil), s.Titles...),
		append([]NicknameChange(nil), s.Nicknames...)
}

// Client hands out Sessions in order; LoginErrs are returned first, one per
// call.
type Client struct {
	mu        sync.Mutex
	LoginErrs []error
	Sessions  []*Session
	Logins    int
	LastCreds json.RawMessage
}

func (c *Client) Login(_ context.Context, credentials json.RawMessage) (chat.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logins++
	c.LastCreds = append(json.RawMessage(nil), credentials...)
	if len(c.LoginErrs) > 0 {
		err := c.LoginErrs[0]
		c.LoginErrs = c.LoginErrs[1:]
		return nil, err
	}
	if len(c.Sessions) == 0 {
		return nil, fmt.Errorf("chattest: no session queued")
	}
	s := c.Sessions[0]
	if len(c.Sessions) > 1 {
		c.Sessions = c.Sessions[1:]
	}
	return s, nil
}

func (c *Client) LoginCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Logins
}
