// Package chat defines the capabilities lockbot needs from a chat-platform
// session. The platform client itself lives outside this module; see
// internal/bridge for the websocket implementation.
package chat

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrSessionClosed = errors.New("chat: session closed")
	ErrNotFound      = errors.New("chat: not found")
)

const (
	EventTypeMessage      = "message"
	EventTypeMessageReply = "message_reply"

	LogThreadName   = "log:thread-name"
	LogUserNickname = "log:user-nickname"
	LogSubscribe    = "log:subscribe"

	ThreadTagGroup = "GROUP"
)

// Client establishes platform sessions from an opaque credential blob.
type Client interface {
	Login(ctx context.Context, credentials json.RawMessage) (Session, error)
}

// Handler receives one inbound event. Listen does not deliver the next event
// until the handler returns.
type Handler func(ctx context.Context, ev Event)

type Session interface {
	SetOptions(ctx context.Context, opts Options) error
	// Listen blocks delivering events to h until the stream fails or ctx is
	// done. It may be called again on the same session after a failure.
	Listen(ctx context.Context, h Handler) error
	SendMessage(ctx context.Context, msg Message, threadID string) error
	SetTitle(ctx context.Context, title, threadID string) error
	ChangeNickname(ctx context.Context, nickname, threadID, userID string) error
	// UserInfo returns the display name of userID; ok is false when the
	// platform does not know the user.
	UserInfo(ctx context.Context, userID string) (name string, ok bool, err error)
	ThreadInfo(ctx context.Context, threadID string) (ThreadInfo, error)
	ThreadList(ctx context.Context, limit int, cursor string, tags []string) ([]ThreadSummary, error)
	CurrentUserID() string
	Close() error
}

type Options struct {
	SelfListen     bool `json:"selfListen"`
	ListenEvents   bool `json:"listenEvents"`
	UpdatePresence bool `json:"updatePresence"`
}

type Mention struct {
	Tag string `json:"tag"`
	ID  string `json:"id"`
}

type Message struct {
	Body     string    `json:"body"`
	Mentions []Mention `json:"mentions,omitempty"`
}

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ThreadInfo struct {
	ParticipantIDs []string          `json:"participantIDs"`
	Nicknames      map[string]string `json:"nicknames"`
	UserInfo       []Participant     `json:"userInfo"`
}

// ParticipantName looks userID up in the thread's participant list.
func (ti ThreadInfo) ParticipantName(userID string) string {
	for _, p := range ti.UserInfo {
		if p.ID == userID {
			return p.Name
		}
	}
	return ""
}

type ThreadSummary struct {
	ThreadID string `json:"threadID"`
	Name     string `json:"name,omitempty"`
	IsGroup  bool   `json:"isGroup,omitempty"`
}

type AddedParticipant struct {
	UserFbID string `json:"userFbId"`
	FullName string `json:"fullName,omitempty"`
}

type LogMessageData struct {
	Name              string             `json:"name,omitempty"`
	AddedParticipants []AddedParticipant `json:"addedParticipants,omitempty"`
}

type Event struct {
	Type           string          `json:"type"`
	LogMessageType string          `json:"logMessageType,omitempty"`
	ThreadID       string          `json:"threadID"`
	MessageID      string          `json:"messageID,omitempty"`
	SenderID       string          `json:"senderID,omitempty"`
	AuthorID       string          `json:"author,omitempty"`
	Body           string          `json:"body,omitempty"`
	LogMessageData *LogMessageData `json:"logMessageData,omitempty"`
	ParticipantID  string          `json:"participantID,omitempty"`
	NewNickname    string          `json:"newNickname,omitempty"`
}

// Actor returns whoever caused the event: the author for log events, the
// sender for messages.
func (ev Event) Actor() string {
	if ev.AuthorID != "" {
		return ev.AuthorID
	}
	return ev.SenderID
}
