package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/salini0110200/lockbot/internal/chat"
	"github.com/salini0110200/lockbot/internal/metrics"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/salini0110200/lockbot/internal/replies"
	"github.com/salini0110200/lockbot/internal/retryutil"
)

// Enforcer re-asserts locks after title, nickname and membership events.
type Enforcer struct {
	store   *policy.Store
	replies replies.Set
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (e *Enforcer) TitleChanged(ctx context.Context, sess chat.Session, ev chat.Event) error {
	locked, ok := e.store.Lock(policy.LockGroupTitle, ev.ThreadID)
	if !ok || e.store.IsAdmin(ev.AuthorID) {
		return nil
	}
	newTitle := ""
	if ev.LogMessageData != nil {
		newTitle = ev.LogMessageData.Name
	}
	if newTitle == locked {
		return nil
	}
	if err := sess.SetTitle(ctx, locked, ev.ThreadID); err != nil {
		return fmt.Errorf("revert title: %w", err)
	}
	e.metrics.Enforced(policy.LockGroupTitle.String())
	e.logger.Info("enforce_title_reverted", "thread_id", ev.ThreadID, "author_id", ev.AuthorID)

	name := "User"
	if n, ok, err := sess.UserInfo(ctx, ev.AuthorID); err == nil && ok && n != "" {
		name = n
	}
	tag := "@" + name
	return sess.SendMessage(ctx, chat.Message{
		Body:     tag + " " + e.replies.TitleLocked,
		Mentions: []chat.Mention{{Tag: tag, ID: ev.AuthorID}},
	}, ev.ThreadID)
}

func (e *Enforcer) NicknameChanged(ctx context.Context, sess chat.Session, ev chat.Event) error {
	if e.store.IsAdmin(ev.AuthorID) {
		return nil
	}
	selfID := sess.CurrentUserID()
	botNick := e.store.BotNickname()
	// The bot answers only to its display nickname and is exempt from the
	// nickname lock; otherwise its own reverts would trigger each other.
	if selfID != "" && ev.ParticipantID == selfID {
		if ev.NewNickname != botNick {
			if retryutil.BestEffort(ctx, e.logger, "enforce_bot_nickname", func(ctx context.Context) error {
				return sess.ChangeNickname(ctx, botNick, ev.ThreadID, selfID)
			}) {
				e.metrics.Enforced("bot_nickname")
			}
		}
		return nil
	}
	locked, ok := e.store.Lock(policy.LockNickname, ev.ThreadID)
	if !ok || ev.NewNickname == locked || e.store.IsAdmin(ev.ParticipantID) {
		return nil
	}
	if retryutil.BestEffort(ctx, e.logger, "enforce_nickname", func(ctx context.Context) error {
		return sess.ChangeNickname(ctx, locked, ev.ThreadID, ev.ParticipantID)
	}) {
		e.metrics.Enforced(policy.LockNickname.String())
	}
	return nil
}

func (e *Enforcer) BotAdded(ctx context.Context, sess chat.Session, ev chat.Event) error {
	if ev.LogMessageData == nil {
		return nil
	}
	selfID := sess.CurrentUserID()
	added := false
	for _, p := range ev.LogMessageData.AddedParticipants {
		if selfID != "" && p.UserFbID == selfID {
			added = true
			break
		}
	}
	if !added {
		return nil
	}
	botNick := e.store.BotNickname()
	retryutil.BestEffort(ctx, e.logger, "onboard_set_nickname", func(ctx context.Context) error {
		return sess.ChangeNickname(ctx, botNick, ev.ThreadID, selfID)
	})
	e.logger.Info("bot_added_to_group", "thread_id", ev.ThreadID)
	return sess.SendMessage(ctx, chat.Message{Body: e.replies.OnboardingText(e.store.Prefix())}, ev.ThreadID)
}
