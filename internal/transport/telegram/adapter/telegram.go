package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Adapter bridges Telegram (via telebot long-polling) to the transport kit.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop reporter).
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop; reported periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// BotUsername returns the bot's own username (without "@"), known after login.
func (a *Adapter) BotUsername() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		up := kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type != tele.ChatPrivate,
			},
		}
		a.sendUpdate(up)
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// Adapter failures should not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)",
					logx.Any("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() is a long-running loop; in some failure modes it can
	// exit unexpectedly, so run it under a restart loop.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		if a.bot != nil {
			a.bot.Start()
		}
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	// telebot Stop is expected to be fast; run it async just in case.
	if a.bot != nil {
		go a.bot.Stop()
	}
	if sup == nil {
		return nil
	}

	// Grace window: keep shutdown snappy even if the long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

// ---- ChatClient ----

// ChatByID resolves a chat. Any Telegram-side resolution failure (deleted chat,
// bot kicked, unknown id) is reported as ErrChatNotFound so callers can fall
// back to a direct message.
func (a *Adapter) ChatByID(ctx context.Context, chatID int64) (kit.ChatTarget, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.ChatTarget{}, err
	}
	if _, err := a.bot.ChatByID(chatID); err != nil {
		return kit.ChatTarget{}, fmt.Errorf("%w: chat %d: %v", kit.ErrChatNotFound, chatID, err)
	}
	return kit.ChatTarget{ChatID: chatID}, nil
}

// UserByID resolves a user profile. Telegram only exposes users the bot has
// seen, through their private chat.
func (a *Adapter) UserByID(ctx context.Context, userID int64) (kit.User, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.User{}, err
	}
	ch, err := a.bot.ChatByID(userID)
	if err != nil {
		return kit.User{}, fmt.Errorf("user %d: %w", userID, err)
	}
	if ch.Type != tele.ChatPrivate {
		return kit.User{}, fmt.Errorf("user %d: id is not a user", userID)
	}
	return userFromChat(ch), nil
}

// OpenPrivateChat opens (resolves) the direct chat with userID. Fails when the
// user never started the bot or blocked it.
func (a *Adapter) OpenPrivateChat(ctx context.Context, userID int64) (kit.ChatTarget, kit.User, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.ChatTarget{}, kit.User{}, err
	}
	ch, err := a.bot.ChatByID(userID)
	if err != nil {
		return kit.ChatTarget{}, kit.User{}, fmt.Errorf("open private chat with %d: %w", userID, err)
	}
	if ch.Type != tele.ChatPrivate {
		return kit.ChatTarget{}, kit.User{}, fmt.Errorf("open private chat with %d: id is not a user", userID)
	}
	return kit.ChatTarget{ChatID: ch.ID}, userFromChat(ch), nil
}

// SendEmbed renders the embed as an HTML message. Telegram has no native
// embeds; the icon and accent color fields have no visual mapping here.
func (a *Adapter) SendEmbed(ctx context.Context, to kit.ChatTarget, leadIn string, e kit.Embed) error {
	_, err := a.SendText(ctx, to, renderEmbed(leadIn, e), &kit.SendOptions{
		ParseMode:      tele.ModeHTML,
		DisablePreview: true,
	})
	return err
}

// renderEmbed produces the HTML body for an embed. leadIn is trusted HTML
// built by the caller (mention markup or a fixed sentence).
func renderEmbed(leadIn string, e kit.Embed) string {
	var b strings.Builder
	if leadIn != "" {
		b.WriteString(leadIn)
		b.WriteString("\n\n")
	}
	b.WriteString(tgui.B(e.AuthorName).String())
	b.WriteString("\n")
	b.WriteString(tgui.Esc(e.Description).String())
	if e.FooterText != "" || !e.Timestamp.IsZero() {
		b.WriteString("\n\n")
		footer := e.FooterText
		if !e.Timestamp.IsZero() {
			footer += " " + e.Timestamp.UTC().Format("Jan 2, 2006 15:04 MST")
		}
		b.WriteString(tgui.I(strings.TrimSpace(footer)).String())
	}
	return b.String()
}

func userFromChat(ch *tele.Chat) kit.User {
	return kit.User{
		ID:          ch.ID,
		Username:    ch.Username,
		DisplayName: strings.TrimSpace(strings.TrimSpace(ch.FirstName) + " " + strings.TrimSpace(ch.LastName)),
	}
}

// ---- text sending ----

const telegramTextLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctxErr(ctx); err != nil {
			if first.ChatID != 0 {
				return first, err
			}
			return kit.MessageRef{}, err
		}

		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			if first.ChatID != 0 {
				return first, err
			}
			return kit.MessageRef{}, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// splitText splits long messages on newline boundaries where possible. For
// HTML parse mode it additionally avoids (best-effort) cutting inside a tag
// or entity, which Telegram would reject as malformed markup.
func splitText(s string, limit int, parseMode string) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, tele.ModeHTML)

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		if html && end < len(rs) {
			if open := danglingMarkup(rs, start, end); open > start+1 {
				end = open
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// danglingMarkup reports the start index of an HTML tag or entity left open
// at the end of rs[start:end], or -1 when the window ends on plain text.
func danglingMarkup(rs []rune, start, end int) int {
	open := -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			open = -1
		case '&':
			if open == -1 {
				open = i
			}
		case ';':
			if open != -1 && rs[open] == '&' {
				open = -1
			}
		}
	}
	return open
}

// UpdateMenuCommands updates Telegram's /menu command list.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	tc := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		tc = append(tc, tele.Command{Text: c.Command, Description: d})
	}
	return a.bot.SetCommands(tc)
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
