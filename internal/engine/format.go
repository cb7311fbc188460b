package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/salini0110200/lockbot/internal/chat"
	"github.com/salini0110200/lockbot/internal/replies"
)

// Formatter decorates outbound text with a mention of the sender, the
// signature line and the separator line.
type Formatter struct {
	Replies replies.Set
	Logger  *slog.Logger
}

func (f Formatter) Format(ctx context.Context, sess chat.Session, senderID, threadID, text string) chat.Message {
	name := f.DisplayName(ctx, sess, senderID, threadID)
	tag := "@" + name
	return chat.Message{
		Body:     fmt.Sprintf("%s %s\n\n%s\n%s", tag, text, f.Replies.Signature, f.Replies.Separator),
		Mentions: []chat.Mention{{Tag: tag, ID: senderID}},
	}
}

// DisplayName resolves userID through the user lookup, then the thread's
// participant list, then a synthesized label.
func (f Formatter) DisplayName(ctx context.Context, sess chat.Session, userID, threadID string) string {
	fallback := "User-" + userID
	name, ok, err := sess.UserInfo(ctx, userID)
	if err != nil {
		f.debug("format_user_info_error", userID, err)
		return fallback
	}
	if ok && !f.Replies.IsGenericName(name) {
		return name
	}
	info, err := sess.ThreadInfo(ctx, threadID)
	if err != nil {
		f.debug("format_thread_info_error", userID, err)
		return fallback
	}
	if p := info.ParticipantName(userID); !f.Replies.IsGenericName(p) {
		return p
	}
	return fallback
}

func (f Formatter) debug(msg, userID string, err error) {
	if f.Logger != nil {
		f.Logger.Debug(msg, "user_id", userID, "error", err.Error())
	}
}
