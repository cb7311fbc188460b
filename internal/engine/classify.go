package engine

import (
	"strings"

	"github.com/salini0110200/lockbot/internal/chat"
)

type Kind int

const (
	KindIgnored Kind = iota
	KindChatMessage
	KindThreadTitleChanged
	KindNicknameChanged
	KindBotAddedToGroup
)

func (k Kind) String() string {
	switch k {
	case KindChatMessage:
		return "chat_message"
	case KindThreadTitleChanged:
		return "thread_title_changed"
	case KindNicknameChanged:
		return "nickname_changed"
	case KindBotAddedToGroup:
		return "bot_added_to_group"
	default:
		return "ignored"
	}
}

// Classify looks only at the type fields of ev. Whether the bot is among the
// added participants is decided later by the enforcer.
func Classify(ev chat.Event) Kind {
	switch ev.Type {
	case chat.EventTypeMessage, chat.EventTypeMessageReply:
		if strings.TrimSpace(ev.Body) == "" || ev.ThreadID == "" {
			return KindIgnored
		}
		return KindChatMessage
	}
	if ev.ThreadID == "" {
		return KindIgnored
	}
	switch ev.LogMessageType {
	case chat.LogThreadName:
		return KindThreadTitleChanged
	case chat.LogUserNickname:
		return KindNicknameChanged
	case chat.LogSubscribe:
		return KindBotAddedToGroup
	default:
		return KindIgnored
	}
}
