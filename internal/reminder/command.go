package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Limits bounds what a single user can schedule.
type Limits struct {
	MaxPending  int           // 0 means DefaultMaxPending
	MaxLeadTime time.Duration // 0 means DefaultMaxLeadTime
}

const (
	DefaultMaxPending  = 100
	DefaultMaxLeadTime = 365 * 24 * time.Hour
)

func (l Limits) withDefaults() Limits {
	if l.MaxPending <= 0 {
		l.MaxPending = DefaultMaxPending
	}
	if l.MaxLeadTime <= 0 {
		l.MaxLeadTime = DefaultMaxLeadTime
	}
	return l
}

// replySender is the outbound surface the command handlers need.
type replySender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// Commands handles the /remind command family over the update stream.
type Commands struct {
	mu     sync.Mutex
	limits Limits

	store  *storage.Store
	sender replySender
	log    logx.Logger

	// botUsername lets handlers match "/remind@MyBot" in group chats.
	botUsername string
}

func NewCommands(limits Limits, store *storage.Store, sender replySender, botUsername string, log logx.Logger) *Commands {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Commands{
		limits:      limits.withDefaults(),
		store:       store,
		sender:      sender,
		log:         log,
		botUsername: strings.TrimPrefix(botUsername, "@"),
	}
}

// Apply updates the limits. Safe while DispatchLoop is running.
func (c *Commands) Apply(limits Limits) {
	c.mu.Lock()
	c.limits = limits.withDefaults()
	c.mu.Unlock()
}

func (c *Commands) currentLimits() Limits {
	c.mu.Lock()
	l := c.limits
	c.mu.Unlock()
	return l
}

// MenuCommands lists the commands for the platform's command menu.
func (c *Commands) MenuCommands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "remind", Description: "schedule a reminder, e.g. /remind 2h water the plants"},
		{Command: "reminders", Description: "list your pending reminders"},
		{Command: "cancel", Description: "cancel a pending reminder by id"},
		{Command: "help", Description: "how to use the reminder bot"},
	}
}

// DispatchLoop consumes updates until ctx is cancelled or the channel closes.
func (c *Commands) DispatchLoop(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			c.handleMessage(ctx, up.Message)
		}
	}
}

func (c *Commands) handleMessage(ctx context.Context, m *kit.Message) {
	cmd, args, ok := c.parseCommand(m.Text)
	if !ok {
		return
	}

	var err error
	switch cmd {
	case "remind":
		err = c.handleRemind(ctx, m, args)
	case "reminders":
		err = c.handleList(ctx, m)
	case "cancel":
		err = c.handleCancel(ctx, m, args)
	case "help", "start":
		err = c.handleHelp(ctx, m)
	default:
		return
	}
	if err != nil {
		c.log.Warn("command failed",
			logx.String("cmd", cmd), logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}

// parseCommand splits "/cmd@Bot rest of line" into its command and argument
// string. Commands addressed to a different bot are ignored.
func (c *Commands) parseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if head == "" {
		return "", "", false
	}
	if name, target, hasAt := strings.Cut(head, "@"); hasAt {
		if c.botUsername != "" && !strings.EqualFold(target, c.botUsername) {
			return "", "", false
		}
		head = name
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (c *Commands) handleRemind(ctx context.Context, m *kit.Message, args string) error {
	limits := c.currentLimits()

	durStr, content, _ := strings.Cut(args, " ")
	content = strings.TrimSpace(content)
	if durStr == "" || content == "" {
		return c.reply(ctx, m, tgui.JoinH("",
			"Usage: ", tgui.Code("/remind <when> <text>"),
			", e.g. ", tgui.Code("/remind 2h30m water the plants"),
			". Units: s, m, h, d, w."))
	}

	lead, err := parseLeadTime(durStr)
	if err != nil {
		return c.reply(ctx, m, tgui.JoinH("",
			"I could not read ", tgui.Code(durStr),
			" as a time span. Try something like ", tgui.Code("45m"),
			", ", tgui.Code("2h30m"), " or ", tgui.Code("3d"), "."))
	}
	if lead <= 0 {
		return c.reply(ctx, m, tgui.Esc("The reminder has to be in the future."))
	}
	if lead > limits.MaxLeadTime {
		return c.reply(ctx, m, tgui.Esc(fmt.Sprintf(
			"That is too far ahead; the maximum is %s.", formatLeadTime(limits.MaxLeadTime))))
	}

	pending, err := c.store.CountByAuthor(ctx, m.FromID)
	if err != nil {
		return fmt.Errorf("count pending reminders: %w", err)
	}
	if pending >= limits.MaxPending {
		return c.reply(ctx, m, tgui.Esc(fmt.Sprintf(
			"You already have %d pending reminders, please wait until some have been sent.", pending)))
	}

	now := time.Now()
	remindAt := now.Add(lead)
	id, err := c.store.InsertReminder(ctx, storage.Reminder{
		ChatID:    m.ChatID,
		AuthorID:  m.FromID,
		Content:   content,
		CreatedAt: now,
		RemindAt:  remindAt,
	})
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}

	c.log.Info("reminder scheduled",
		logx.Int64("id", id), logx.Int64("author", m.FromID),
		logx.Duration("lead", lead))
	return c.reply(ctx, m, tgui.JoinH("",
		tgui.Esc(fmt.Sprintf("Will remind you in %s, at %s (",
			formatLeadTime(lead), remindAt.UTC().Format("Jan 2, 2006 15:04 MST"))),
		tgui.Code("#"+strconv.FormatInt(id, 10)),
		tgui.Esc(")."),
	))
}

func (c *Commands) handleList(ctx context.Context, m *kit.Message) error {
	reminders, err := c.store.RemindersByAuthor(ctx, m.FromID)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	if len(reminders) == 0 {
		return c.reply(ctx, m, tgui.Esc("You have no pending reminders."))
	}

	var b strings.Builder
	b.WriteString(tgui.B("Your pending reminders").String())
	for _, r := range reminders {
		b.WriteString("\n")
		b.WriteString(tgui.Code("#" + strconv.FormatInt(r.ID, 10)).String())
		b.WriteString(" ")
		b.WriteString(tgui.Esc(r.RemindAt.UTC().Format("Jan 2, 2006 15:04 MST")).String())
		b.WriteString(" ")
		b.WriteString(tgui.I(truncate(r.Content, 60)).String())
	}
	return c.reply(ctx, m, tgui.Raw(b.String()))
}

func (c *Commands) handleCancel(ctx context.Context, m *kit.Message, args string) error {
	idStr := strings.TrimPrefix(strings.TrimSpace(args), "#")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return c.reply(ctx, m, tgui.JoinH("",
			"Usage: ", tgui.Code("/cancel <id>"),
			" (see ", tgui.Code("/reminders"), " for ids)."))
	}
	// Scoped to the author so users cannot cancel each other's reminders.
	deleted, err := c.store.DeleteByAuthor(ctx, id, m.FromID)
	if err != nil {
		return fmt.Errorf("cancel reminder %d: %w", id, err)
	}
	if !deleted {
		return c.reply(ctx, m, tgui.JoinH("",
			"No pending reminder ", tgui.Code("#"+idStr), " of yours."))
	}
	c.log.Info("reminder cancelled", logx.Int64("id", id), logx.Int64("author", m.FromID))
	return c.reply(ctx, m, tgui.JoinH("", "Cancelled ", tgui.Code("#"+idStr), "."))
}

func (c *Commands) handleHelp(ctx context.Context, m *kit.Message) error {
	limits := c.currentLimits()
	text := tgui.JoinH("\n",
		tgui.B("Reminder bot"),
		tgui.Esc("I remind you of things in this chat, or via direct message if the chat is gone by then."),
		tgui.Raw(""),
		tgui.JoinH("", tgui.Code("/remind <when> <text>"), tgui.Esc(" schedule a reminder")),
		tgui.JoinH("", tgui.Code("/reminders"), tgui.Esc(" list your pending reminders")),
		tgui.JoinH("", tgui.Code("/cancel <id>"), tgui.Esc(" cancel one")),
		tgui.Raw(""),
		tgui.Esc(fmt.Sprintf("Time spans use s, m, h, d or w (up to %s ahead, at most %d pending).",
			formatLeadTime(limits.MaxLeadTime), limits.MaxPending)),
	)
	return c.reply(ctx, m, text)
}

func (c *Commands) reply(ctx context.Context, m *kit.Message, body tgui.H) error {
	_, err := c.sender.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
		body.String(), &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true})
	return err
}

// parseLeadTime reads a time span. On top of Go's duration syntax it accepts
// whole-unit day and week forms like "3d" and "1w".
func parseLeadTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, errors.New("empty time span")
	}
	if n, ok := cutUnit(s, "w"); ok {
		return time.Duration(n * float64(7*24*time.Hour)), nil
	}
	if n, ok := cutUnit(s, "d"); ok {
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(s)
}

func cutUnit(s, unit string) (float64, bool) {
	rest, ok := strings.CutSuffix(s, unit)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(rest, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// formatLeadTime renders a duration in the largest sensible whole units.
func formatLeadTime(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days%7 == 0 {
			if w := days / 7; w > 1 {
				return fmt.Sprintf("%d weeks", w)
			} else if w == 1 {
				return "1 week"
			}
		}
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	default:
		return d.String()
	}
}

func truncate(s string, max int) string {
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max-1]) + "…"
}
