package transport

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrChatNotFound reports that a chat id could not be resolved to a live chat
// (deleted, bot kicked, or never seen). Callers use it to trigger fallbacks.
var ErrChatNotFound = errors.New("chat not found")

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// User is a resolved chat-platform user profile.
type User struct {
	ID          int64
	Username    string
	DisplayName string
	AvatarURL   string
}

// Tag returns the user's display tag for embeds and mentions.
func (u User) Tag() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "user " + strconv.FormatInt(u.ID, 10)
}

// Embed is a platform-neutral message card. Adapters render what the platform
// supports; fields the platform cannot show (icon, color) are kept so callers
// have one rendering contract.
type Embed struct {
	AuthorName    string
	AuthorIconURL string // empty means no icon
	Description   string
	FooterText    string
	Timestamp     time.Time
	Color         int // 0xRRGGBB accent
}

// ChatClient is the narrow chat-platform surface the reminder pipeline needs.
//
// All operations may hit the network. ChatByID returns ErrChatNotFound (possibly
// wrapped) when the chat cannot be resolved; OpenPrivateChat fails when the user
// cannot be messaged directly.
type ChatClient interface {
	ChatByID(ctx context.Context, chatID int64) (ChatTarget, error)
	UserByID(ctx context.Context, userID int64) (User, error)
	OpenPrivateChat(ctx context.Context, userID int64) (ChatTarget, User, error)
	SendEmbed(ctx context.Context, to ChatTarget, leadIn string, embed Embed) error
}

// Adapter is a full platform transport: update stream plus outbound operations.
type Adapter interface {
	ChatClient

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand is a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface adapters can implement to update
// platform-specific command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
