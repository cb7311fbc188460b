package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/salini0110200/lockbot/internal/chat"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/salini0110200/lockbot/internal/replies"
	"github.com/salini0110200/lockbot/internal/retryutil"
	"golang.org/x/time/rate"
)

const helpText = "═══════════════════\n" +
	"group on/off → LOCK GROUP NAME\n" +
	"nickname on/off → LOCK NICKNAME\n" +
	"target on/off/info <userID> → TARGET LOCK\n" +
	"═══════════════════"

// Command is an admin command with the prefix already stripped.
type Command struct {
	Text     string
	ThreadID string
	IssuerID string
	IsAdmin  bool
}

// Router turns command text into lock mutations and a reply text. The caller
// formats and sends the reply.
type Router struct {
	store   *policy.Store
	replies replies.Set
	logger  *slog.Logger
	pacer   *rate.Limiter
}

func NewRouter(store *policy.Store, set replies.Set, logger *slog.Logger, pacer *rate.Limiter) *Router {
	if pacer == nil {
		pacer = rate.NewLimiter(rate.Inf, 1)
	}
	return &Router{store: store, replies: set, logger: logger, pacer: pacer}
}

func (r *Router) Route(ctx context.Context, sess chat.Session, cmd Command) string {
	if !cmd.IsAdmin {
		return r.replies.PermissionDenied
	}
	fields := strings.Fields(cmd.Text)
	if len(fields) == 0 {
		return helpText
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]
	r.logger.Info("command_received", "command", name, "thread_id", cmd.ThreadID, "issuer_id", cmd.IssuerID)
	switch name {
	case "group":
		return r.group(ctx, sess, cmd.ThreadID, args)
	case "nickname":
		return r.nickname(ctx, sess, cmd.ThreadID, args)
	case "target":
		return r.target(cmd.ThreadID, args)
	default:
		return helpText
	}
}

func splitSub(args []string) (string, string) {
	if len(args) == 0 {
		return "", ""
	}
	return strings.ToLower(args[0]), strings.TrimSpace(strings.Join(args[1:], " "))
}

func (r *Router) group(ctx context.Context, sess chat.Session, threadID string, args []string) string {
	prefix := r.store.Prefix()
	sub, name := splitSub(args)
	switch sub {
	case "on":
		if name == "" {
			return fmt.Sprintf("Usage: %sgroup on <name>", prefix)
		}
		r.store.SetLock(policy.LockGroupTitle, threadID, name)
		retryutil.BestEffort(ctx, r.logger, "command_set_title", func(ctx context.Context) error {
			return sess.SetTitle(ctx, name, threadID)
		})
		return fmt.Sprintf("Group name locked to %q.", name)
	case "off":
		r.store.ClearLock(policy.LockGroupTitle, threadID)
		return "Group name unlocked."
	default:
		return fmt.Sprintf("Usage: %sgroup on/off", prefix)
	}
}

func (r *Router) nickname(ctx context.Context, sess chat.Session, threadID string, args []string) string {
	prefix := r.store.Prefix()
	sub, nick := splitSub(args)
	switch sub {
	case "on":
		if nick == "" {
			return fmt.Sprintf("Usage: %snickname on <nick>", prefix)
		}
		r.store.SetLock(policy.LockNickname, threadID, nick)
		r.renameParticipants(ctx, sess, threadID, nick)
		return fmt.Sprintf("Nicknames locked to %q.", nick)
	case "off":
		r.store.ClearLock(policy.LockNickname, threadID)
		return "Nickname lock disabled."
	default:
		return fmt.Sprintf("Usage: %snickname on/off", prefix)
	}
}

// renameParticipants applies nick to every participant except the admin and
// the bot, paced to stay under the platform's mutation rate limit.
func (r *Router) renameParticipants(ctx context.Context, sess chat.Session, threadID, nick string) {
	info, err := sess.ThreadInfo(ctx, threadID)
	if err != nil {
		r.logger.Warn("command_thread_info_failed", "thread_id", threadID, "error", err.Error())
		return
	}
	selfID := sess.CurrentUserID()
	for _, pid := range info.ParticipantIDs {
		if r.store.IsAdmin(pid) || pid == selfID {
			continue
		}
		if err := r.pacer.Wait(ctx); err != nil {
			return
		}
		retryutil.BestEffort(ctx, r.logger, "command_change_nickname", func(ctx context.Context) error {
			return sess.ChangeNickname(ctx, nick, threadID, pid)
		})
	}
}

func (r *Router) target(threadID string, args []string) string {
	prefix := r.store.Prefix()
	sub, candidate := splitSub(args)
	switch sub {
	case "on":
		if candidate == "" {
			return fmt.Sprintf("Usage: %starget on <userID>", prefix)
		}
		r.store.SetLock(policy.LockTarget, threadID, candidate)
		return fmt.Sprintf("Target locked to %q. Bot will reply only to that user.", candidate)
	case "off":
		r.store.ClearLock(policy.LockTarget, threadID)
		return "Target unlocked. Bot will reply normally."
	case "info":
		current, ok := r.store.Lock(policy.LockTarget, threadID)
		if !ok || current == "" {
			current = "None"
		}
		return "Current target: " + current
	default:
		return fmt.Sprintf("Usage: %starget on/off/info", prefix)
	}
}
