package reminder

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Path:        filepath.Join(t.TempDir(), "reminders.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertReminder(t *testing.T, st *storage.Store, chatID, authorID int64, content string, remindAt time.Time) int64 {
	t.Helper()
	id, err := st.InsertReminder(context.Background(), storage.Reminder{
		ChatID:    chatID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now(),
		RemindAt:  remindAt,
	})
	if err != nil {
		t.Fatalf("insert reminder: %v", err)
	}
	return id
}

func pendingCount(t *testing.T, st *storage.Store, authorID int64) int {
	t.Helper()
	n, err := st.CountByAuthor(context.Background(), authorID)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	return n
}

func TestRunCycleDeliversDueAndDeletesRows(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	fc := newFakeClient()
	fc.chats[100] = true
	fc.users[7] = kit.User{ID: 7, Username: "alice"}

	past := time.Now().Add(-time.Minute)
	insertReminder(t, st, 100, 7, "first", past.Add(-time.Second))
	insertReminder(t, st, 100, 7, "second", past)
	insertReminder(t, st, 100, 7, "later", time.Now().Add(time.Hour))

	d := NewDispatcher(Config{Enabled: true}, st, fc, logx.Nop(), nil)
	d.runCycle(context.Background())
	d.sendWG.Wait()

	sent := fc.sentEmbeds()
	if len(sent) != 2 {
		t.Fatalf("sent = %d embeds, want 2", len(sent))
	}
	// Sends are concurrent, so check the set rather than the order.
	got := map[string]bool{}
	for _, s := range sent {
		got[s.Embed.Description] = true
	}
	if !got["first"] || !got["second"] {
		t.Fatalf("sent descriptions = %v, want first and second", got)
	}
	// Due rows are gone, the future one is untouched.
	if n := pendingCount(t, st, 7); n != 1 {
		t.Fatalf("pending after cycle = %d, want 1", n)
	}
}

func TestRunCycleDueBoundaryIsInclusive(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	fc := newFakeClient()
	fc.chats[100] = true
	fc.users[7] = kit.User{ID: 7}

	// remind_at exactly "now" must be delivered.
	insertReminder(t, st, 100, 7, "exact", time.Now())

	d := NewDispatcher(Config{Enabled: true}, st, fc, logx.Nop(), nil)
	d.runCycle(context.Background())
	d.sendWG.Wait()

	if len(fc.sentEmbeds()) != 1 {
		t.Fatal("reminder due exactly now was not delivered")
	}
	if n := pendingCount(t, st, 7); n != 0 {
		t.Fatalf("pending after cycle = %d, want 0", n)
	}
}

func TestRunCycleIsolatesDeliveryFailures(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	fc := newFakeClient()
	// chat 200 resolves; chat 100 is gone and user 1 has no direct message path.
	fc.chats[200] = true
	fc.users[2] = kit.User{ID: 2, Username: "bob"}

	past := time.Now().Add(-time.Minute)
	failedID := insertReminder(t, st, 100, 1, "doomed", past.Add(-time.Second))
	insertReminder(t, st, 200, 2, "fine", past)

	var logBuf bytes.Buffer
	log := logx.NewWriter(&logBuf, "DEBUG")

	d := NewDispatcher(Config{Enabled: true}, st, fc, log, nil)
	d.runCycle(context.Background())
	d.sendWG.Wait()

	sent := fc.sentEmbeds()
	if len(sent) != 1 || sent[0].Embed.Description != "fine" {
		t.Fatalf("sent = %+v, want only the deliverable reminder", sent)
	}
	// Both rows are removed: a failed delivery is never retried.
	if n := pendingCount(t, st, 1); n != 0 {
		t.Fatalf("failed reminder still pending (%d rows)", n)
	}
	if n := pendingCount(t, st, 2); n != 0 {
		t.Fatalf("delivered reminder still pending (%d rows)", n)
	}

	logs := logBuf.String()
	if !strings.Contains(logs, "failed to send reminder") {
		t.Fatalf("logs missing delivery failure warning:\n%s", logs)
	}
	if !strings.Contains(logs, `"id":`+strconv.FormatInt(failedID, 10)) {
		t.Fatalf("logs missing failed reminder id %d:\n%s", failedID, logs)
	}
}

func TestRunCycleEmptyDueSetSendsNothing(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	fc := newFakeClient()

	insertReminder(t, st, 100, 7, "later", time.Now().Add(time.Hour))

	d := NewDispatcher(Config{Enabled: true}, st, fc, logx.Nop(), nil)
	d.runCycle(context.Background())
	d.sendWG.Wait()

	if len(fc.sentEmbeds()) != 0 {
		t.Fatal("nothing was due, but an embed was sent")
	}
	if n := pendingCount(t, st, 7); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
}

func TestApplyIntervalChangeDuringActiveCycles(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	fc := newFakeClient()
	fc.chats[100] = true
	fc.users[7] = kit.User{ID: 7}

	d := NewDispatcher(Config{Enabled: true, Interval: 10 * time.Millisecond}, st, fc, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop(context.Background())

	// Keep due rows flowing so schedule activations always have work and an
	// interval change lands while a cycle holds the store transaction.
	stop := make(chan struct{})
	var feeder sync.WaitGroup
	feeder.Add(1)
	go func() {
		defer feeder.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = st.InsertReminder(context.Background(), storage.Reminder{
				ChatID: 100, AuthorID: 7, Content: "x",
				CreatedAt: time.Now(), RemindAt: time.Now().Add(-time.Second),
			})
		}
	}()

	applied := make(chan struct{})
	go func() {
		defer close(applied)
		for i := 0; i < 20; i++ {
			d.Apply(Config{Enabled: true, Interval: time.Duration(10+i) * time.Millisecond})
		}
	}()

	select {
	case <-applied:
	case <-time.After(10 * time.Second):
		t.Fatal("Apply blocked while dispatch cycles were running")
	}
	close(stop)
	feeder.Wait()
}

func TestDispatcherStartRunsImmediateCycle(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	fc := newFakeClient()
	fc.chats[100] = true
	fc.users[7] = kit.User{ID: 7}

	insertReminder(t, st, 100, 7, "overdue", time.Now().Add(-time.Minute))

	d := NewDispatcher(Config{Enabled: true, Interval: time.Hour}, st, fc, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop(context.Background())

	// The first cycle runs at start, not after the first interval.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(fc.sentEmbeds()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("overdue reminder was not delivered by the startup cycle")
}
