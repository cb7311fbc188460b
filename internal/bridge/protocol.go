// Package bridge implements chat.Client over a websocket to a session bridge
// process that holds the actual platform login.
//
// Requests are JSON frames {"id","op","args"}. The bridge answers each with
// {"id","ok","error","code","result"} and pushes inbound platform events as
// {"event":{...}}. A {"listenError":"..."} frame reports a dropped listener
// without closing the socket.
package bridge

import (
	"encoding/json"

	"github.com/salini0110200/lockbot/internal/chat"
)

const (
	opLogin          = "login"
	opLogout         = "logout"
	opSetOptions     = "setOptions"
	opListen         = "listen"
	opSendMessage    = "sendMessage"
	opSetTitle       = "setTitle"
	opChangeNickname = "changeNickname"
	opGetUserInfo    = "getUserInfo"
	opGetThreadInfo  = "getThreadInfo"
	opGetThreadList  = "getThreadList"

	codeNotFound = "not_found"
)

type request struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type frame struct {
	ID          string          `json:"id,omitempty"`
	OK          bool            `json:"ok"`
	Error       string          `json:"error,omitempty"`
	Code        string          `json:"code,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Event       *chat.Event     `json:"event,omitempty"`
	ListenError string          `json:"listenError,omitempty"`
}

type loginArgs struct {
	Credentials json.RawMessage `json:"credentials"`
}

type loginResult struct {
	UserID string `json:"userID"`
}

type sendMessageArgs struct {
	Message  chat.Message `json:"message"`
	ThreadID string       `json:"threadID"`
}

type setTitleArgs struct {
	Title    string `json:"title"`
	ThreadID string `json:"threadID"`
}

type changeNicknameArgs struct {
	Nickname string `json:"nickname"`
	ThreadID string `json:"threadID"`
	UserID   string `json:"userID"`
}

type userInfoArgs struct {
	UserID string `json:"userID"`
}

type userInfoResult struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
}

type threadInfoArgs struct {
	ThreadID string `json:"threadID"`
}

type threadListArgs struct {
	Limit  int      `json:"limit"`
	Cursor string   `json:"cursor,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}
