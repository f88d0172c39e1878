package reminder

import (
	"time"

	kit "remindbot/internal/transport"
)

const (
	ambientColor    = 0xF7F492
	embedFooter     = "reminder from"
	unknownUserName = "Unknown user"
)

// reminderEmbed builds the outgoing reminder card. Pure; author may be nil,
// in which case the card shows a placeholder name and no icon.
func reminderEmbed(content string, createdAt time.Time, author *kit.User) kit.Embed {
	name, icon := unknownUserName, ""
	if author != nil {
		name = author.Tag()
		icon = author.AvatarURL
	}
	return kit.Embed{
		AuthorName:    name,
		AuthorIconURL: icon,
		Description:   content,
		FooterText:    embedFooter,
		Timestamp:     createdAt,
		Color:         ambientColor,
	}
}
