package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// DefaultInterval is the fixed dispatch rate.
const DefaultInterval = 30 * time.Second

// Config controls the dispatcher.
type Config struct {
	Enabled  bool
	Interval time.Duration // 0 means DefaultInterval
}

// Dispatcher delivers due reminders on a fixed-rate schedule.
//
// Cycles are fixed rate, not fixed delay: cron activates every Interval and
// runs each cycle in its own goroutine, so a slow cycle can overlap the next
// one. The store transaction is the only guard against double-processing in
// that case (a deleted row cannot be re-selected).
type Dispatcher struct {
	mu  sync.Mutex
	cfg Config

	log    logx.Logger
	bus    eventbus.Bus
	client kit.ChatClient
	store  *storage.Store

	c   *cron.Cron
	sup *rtsup.Supervisor

	// sendWG tracks in-flight fire-and-forget sends (drain accounting only;
	// cycles never wait on it).
	sendWG sync.WaitGroup
}

func NewDispatcher(cfg Config, store *storage.Store, client kit.ChatClient, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Dispatcher{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		client: client,
		store:  store,
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply may run concurrently.)
func (d *Dispatcher) Enabled() bool {
	d.mu.Lock()
	en := d.cfg.Enabled
	d.mu.Unlock()
	return en
}

// Apply updates the config. An interval change while running restarts the
// schedule; enable/disable transitions are the caller's job (Start/Stop).
func (d *Dispatcher) Apply(cfg Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	d.mu.Lock()
	changed := cfg.Interval != d.cfg.Interval
	d.cfg = cfg
	c := d.c
	d.mu.Unlock()

	if !changed || c == nil {
		return
	}
	d.log.Info("dispatch interval changed", logx.Duration("interval", cfg.Interval))

	// Wait for the old schedule without holding mu: a running cycle takes the
	// mutex, so waiting under it would deadlock the cycle and the store.
	<-c.Stop().Done()

	d.mu.Lock()
	// Only reschedule if Stop/Start didn't race us in the meantime.
	if d.c == c {
		d.startCronLocked()
	}
	d.mu.Unlock()
}

// Start begins the schedule with an immediate first cycle.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.c != nil {
		d.mu.Unlock()
		return
	}
	d.sup = rtsup.New(ctx,
		rtsup.WithLogger(d.log),
		rtsup.WithCancelOnError(false),
	)
	sup := d.sup
	interval := d.cfg.Interval
	d.startCronLocked()
	d.mu.Unlock()

	sup.Go0("reminder.dispatch.initial", func(c context.Context) { d.runCycle(c) })
	d.log.Info("dispatcher started", logx.Duration("interval", interval))
}

func (d *Dispatcher) startCronLocked() {
	sup := d.sup
	c := cron.New()
	c.Schedule(cron.Every(d.cfg.Interval), cron.FuncJob(func() {
		d.runCycle(sup.Context())
	}))
	c.Start()
	d.c = c
}

// Stop halts the schedule and waits (bounded by ctx) for supervised
// goroutines. In-flight sends past the deadline are abandoned, not awaited.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	d.c = nil
	sup := d.sup
	d.sup = nil
	d.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(ctx)
	}
	d.log.Info("dispatcher stopped")
}

// runCycle processes one dispatch cycle: load the due set, initiate delivery
// for each reminder and delete its row, all inside a single transaction.
func (d *Dispatcher) runCycle(ctx context.Context) {
	// Snapshot the supervisor up front; the cycle must never touch mu while
	// the store transaction is open (Apply may be waiting on the schedule).
	d.mu.Lock()
	sup := d.sup
	d.mu.Unlock()

	now := time.Now()
	var due int
	err := d.store.Write(ctx, func(tx *storage.Tx) error {
		reminders, err := tx.DueReminders(ctx, now)
		if err != nil {
			return err
		}
		due = len(reminders)
		for _, r := range reminders {
			d.dispatch(ctx, sup, r)
			// The row is removed as soon as delivery is initiated, not when
			// it completes: at most one attempt, never re-spam.
			if err := tx.DeleteReminder(ctx, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.log.Error("dispatch cycle failed", logx.Err(err))
		return
	}
	if due > 0 {
		d.log.Debug("dispatch cycle complete", logx.Int("due", due))
	}
}

// dispatch hands one due reminder to the asynchronous route+send chain and
// returns without waiting. A failure anywhere in the chain ends in the warn
// log below; it never affects other reminders.
func (d *Dispatcher) dispatch(ctx context.Context, sup *rtsup.Supervisor, r storage.Reminder) {
	d.sendWG.Add(1)
	run := func(c context.Context) {
		defer d.sendWG.Done()
		if err := d.deliver(c, r); err != nil {
			d.log.Warn("failed to send reminder, skipping it; the chat may be gone and the user unreachable via direct message",
				logx.Int64("id", r.ID), logx.Err(err))
			d.publish(eventbus.TypeReminderDropped, r.ID)
			return
		}
		d.publish(eventbus.TypeReminderDelivered, r.ID)
	}
	if sup != nil {
		sup.Go0("reminder.send", run)
	} else {
		go run(ctx)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, r storage.Reminder) error {
	route, err := computeRoute(ctx, d.client, r.ChatID, r.AuthorID)
	if err != nil {
		return err
	}
	embed := reminderEmbed(r.Content, r.CreatedAt, route.Author)
	return d.client.SendEmbed(ctx, route.Target, route.LeadIn, embed)
}

func (d *Dispatcher) publish(typ string, id int64) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: id})
}
