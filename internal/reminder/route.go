package reminder

import (
	"context"
	"fmt"

	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

// dmFallbackText is the lead-in used when a reminder is rerouted to a direct
// message because its original chat no longer resolves.
const dmFallbackText = "(Sending your reminder directly, because I was unable to locate the original channel you wanted it to be send to)"

// Route is the resolved delivery target for one reminder plus its rendering
// metadata. Built fresh per delivery attempt, never persisted.
type Route struct {
	Target kit.ChatTarget
	Author *kit.User // nil when the author could not be resolved
	LeadIn string    // sent before the embed; may be empty
}

func toPublic(target kit.ChatTarget, author *kit.User) Route {
	lead := ""
	if author != nil {
		lead = tgui.Mention(author.Tag(), author.ID).String()
	}
	return Route{Target: target, Author: author, LeadIn: lead}
}

func toPrivate(target kit.ChatTarget, user kit.User) Route {
	return Route{Target: target, Author: &user, LeadIn: dmFallbackText}
}

// computeRoute decides where to deliver: the original chat when it still
// resolves, otherwise the author's direct chat. An author lookup failure on
// the public path degrades the embed only; a direct-chat failure on the
// fallback path fails the whole delivery.
func computeRoute(ctx context.Context, client kit.ChatClient, chatID, authorID int64) (Route, error) {
	target, err := client.ChatByID(ctx, chatID)
	if err == nil {
		author, uerr := client.UserByID(ctx, authorID)
		if uerr != nil {
			return toPublic(target, nil), nil
		}
		return toPublic(target, &author), nil
	}

	dm, user, derr := client.OpenPrivateChat(ctx, authorID)
	if derr != nil {
		return Route{}, fmt.Errorf("resolve delivery route: %w", derr)
	}
	return toPrivate(dm, user), nil
}
