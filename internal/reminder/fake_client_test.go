package reminder

import (
	"context"
	"errors"
	"sync"

	kit "remindbot/internal/transport"
)

// fakeClient is an in-memory ChatClient for routing and dispatch tests.
type fakeClient struct {
	mu sync.Mutex

	chats map[int64]bool     // resolvable chat ids
	users map[int64]kit.User // resolvable user profiles
	dmOK  map[int64]bool     // users reachable via direct message

	sendErr error // forced SendEmbed failure

	sent []sentEmbed
}

type sentEmbed struct {
	To     kit.ChatTarget
	LeadIn string
	Embed  kit.Embed
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		chats: map[int64]bool{},
		users: map[int64]kit.User{},
		dmOK:  map[int64]bool{},
	}
}

func (f *fakeClient) ChatByID(_ context.Context, chatID int64) (kit.ChatTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.chats[chatID] {
		return kit.ChatTarget{}, kit.ErrChatNotFound
	}
	return kit.ChatTarget{ChatID: chatID}, nil
}

func (f *fakeClient) UserByID(_ context.Context, userID int64) (kit.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return kit.User{}, errors.New("user not found")
	}
	return u, nil
}

func (f *fakeClient) OpenPrivateChat(_ context.Context, userID int64) (kit.ChatTarget, kit.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dmOK[userID] {
		return kit.ChatTarget{}, kit.User{}, errors.New("user never started the bot")
	}
	u := f.users[userID]
	if u.ID == 0 {
		u = kit.User{ID: userID}
	}
	return kit.ChatTarget{ChatID: userID}, u, nil
}

func (f *fakeClient) SendEmbed(_ context.Context, to kit.ChatTarget, leadIn string, e kit.Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEmbed{To: to, LeadIn: leadIn, Embed: e})
	return nil
}

func (f *fakeClient) sentEmbeds() []sentEmbed {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentEmbed, len(f.sent))
	copy(out, f.sent)
	return out
}
