// Package engine decides, for every inbound platform event, whether to
// enforce a lock, answer a command, advance the scripted dialogue or send a
// filler reply.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/salini0110200/lockbot/internal/chat"
	"github.com/salini0110200/lockbot/internal/conversation"
	"github.com/salini0110200/lockbot/internal/metrics"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/salini0110200/lockbot/internal/replies"
	"golang.org/x/time/rate"
)

const DefaultNicknamePace = 200 * time.Millisecond

type Options struct {
	Store        *policy.Store
	Conversation *conversation.State
	Replies      *replies.Set
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	// NicknamePace spaces consecutive nickname changes. Negative disables
	// pacing.
	NicknamePace time.Duration
	Now          func() time.Time
	// Pick returns an index in [0, n) for the filler pool.
	Pick func(n int) int
}

type Engine struct {
	store     *policy.Store
	conv      *conversation.State
	replies   replies.Set
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	pick      func(n int) int
	formatter Formatter
	router    *Router
	enforcer  *Enforcer
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: Store is required")
	}
	set := replies.Default()
	if opts.Replies != nil {
		set = *opts.Replies
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conv := opts.Conversation
	if conv == nil {
		conv = conversation.New(0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	pick := opts.Pick
	if pick == nil {
		pick = rand.Intn
	}
	pace := opts.NicknamePace
	if pace == 0 {
		pace = DefaultNicknamePace
	}
	var pacer *rate.Limiter
	if pace > 0 {
		pacer = rate.NewLimiter(rate.Every(pace), 1)
	}
	e := &Engine{
		store:     opts.Store,
		conv:      conv,
		replies:   set,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
		pick:      pick,
		formatter: Formatter{Replies: set, Logger: logger},
		router:    NewRouter(opts.Store, set, logger, pacer),
		enforcer:  &Enforcer{store: opts.Store, replies: set, logger: logger, metrics: opts.Metrics},
	}
	return e, nil
}

// Handle processes one event to completion. Panics are converted to errors so
// one bad event never stops the listener.
func (e *Engine) Handle(ctx context.Context, sess chat.Session, ev chat.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine: handler panic: %v", r)
		}
	}()
	kind := Classify(ev)
	e.metrics.Event(kind.String())
	switch kind {
	case KindChatMessage:
		return e.handleMessage(ctx, sess, ev)
	case KindThreadTitleChanged:
		return e.enforcer.TitleChanged(ctx, sess, ev)
	case KindNicknameChanged:
		return e.enforcer.NicknameChanged(ctx, sess, ev)
	case KindBotAddedToGroup:
		return e.enforcer.BotAdded(ctx, sess, ev)
	default:
		return nil
	}
}

func (e *Engine) handleMessage(ctx context.Context, sess chat.Session, ev chat.Event) error {
	if selfID := sess.CurrentUserID(); selfID != "" && ev.SenderID == selfID {
		return nil
	}
	threadID := ev.ThreadID
	prefix := e.store.Prefix()
	isAdmin := e.store.IsAdmin(ev.SenderID)
	isCommand := strings.HasPrefix(ev.Body, prefix)

	if target, ok := e.store.Lock(policy.LockTarget, threadID); ok && target != "" {
		switch {
		case ev.SenderID == target:
		case isAdmin && isCommand:
		case isCommand:
			return e.send(ctx, sess, ev, e.replies.TargetLockedDenied, "target_denied")
		default:
			e.logger.Debug("reply_dropped_target_lock", "thread_id", threadID, "sender_id", ev.SenderID)
			return nil
		}
	}

	if e.conv.ShouldDebounce(threadID, e.now()) {
		e.logger.Debug("reply_debounced", "thread_id", threadID)
		return nil
	}

	if isCommand {
		if !isAdmin {
			return e.send(ctx, sess, ev, e.replies.PermissionDenied, "permission_denied")
		}
		reply := e.router.Route(ctx, sess, Command{
			Text:     strings.TrimPrefix(ev.Body, prefix),
			ThreadID: threadID,
			IssuerID: ev.SenderID,
			IsAdmin:  true,
		})
		return e.send(ctx, sess, ev, reply, "command")
	}

	text := strings.ToLower(ev.Body)
	switch e.conv.Stage(threadID) {
	case conversation.StageInitial:
		if strings.Contains(text, strings.ToLower(e.replies.Greeting.Trigger)) {
			if err := e.send(ctx, sess, ev, e.replies.Greeting.Reply, "greeting"); err != nil {
				return err
			}
			e.conv.Advance(threadID, conversation.StageAwaitingFollowUp)
			return nil
		}
	case conversation.StageAwaitingFollowUp:
		if strings.Contains(text, strings.ToLower(e.replies.FollowUp.Trigger)) {
			if err := e.send(ctx, sess, ev, e.replies.FollowUp.Reply, "follow_up"); err != nil {
				return err
			}
			e.conv.Advance(threadID, conversation.StageInitial)
			return nil
		}
	}

	filler := e.replies.Filler[e.pick(len(e.replies.Filler))]
	return e.send(ctx, sess, ev, filler, "filler")
}

func (e *Engine) send(ctx context.Context, sess chat.Session, ev chat.Event, text, reason string) error {
	msg := e.formatter.Format(ctx, sess, ev.SenderID, ev.ThreadID, text)
	if err := sess.SendMessage(ctx, msg, ev.ThreadID); err != nil {
		return fmt.Errorf("send %s reply: %w", reason, err)
	}
	e.metrics.Reply(reason)
	return nil
}
