// Package dispatch periodically delivers reminders whose trigger time has passed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erinder/internal/channel"
	"github.com/erinder/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrCycleInProgress is returned by RunCycle when the previous cycle has not finished.
var ErrCycleInProgress = errors.New("dispatch cycle already in progress")

const reminderSubject = "Scheduled Reminder"

// Store is the record-store contract the scheduler needs.
type Store interface {
	FindDue(ctx context.Context, now time.Time) ([]domain.Reminder, error)
	// MarkDelivered marks the reminder delivered only if it is still pending
	// at seenTriggerAt. Returns domain.ErrNotFound when it is gone or was
	// rescheduled since it was read.
	MarkDelivered(ctx context.Context, reminderID string, seenTriggerAt time.Time) error
}

type Config struct {
	Interval    time.Duration
	Concurrency int
	SendTimeout time.Duration
}

// Report summarizes one dispatch cycle.
type Report struct {
	Due       int // reminders picked up
	Delivered int // reminders marked delivered
	Sent      int // destination sends accepted
	Failed    int // destination sends that failed
	Skipped   int // reminders left unmarked (deleted or rescheduled mid-cycle, or cycle cancelled)
}

type Scheduler struct {
	store   Store
	senders channel.Registry
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
	running sync.Mutex
}

type Option func(*Scheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(store Store, senders channel.Registry, cfg Config, log *zap.Logger, opts ...Option) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	s := &Scheduler{
		store:   store,
		senders: senders,
		cfg:     cfg,
		log:     log.Named("dispatch"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes a cycle immediately and then on every tick until ctx is done.
// Ticks that land while a cycle is still running are skipped. Run returns once
// the in-flight cycle has finished.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	s.log.Info("dispatch scheduler started", zap.Duration("interval", s.cfg.Interval))
	for {
		wg.Go(func() { s.tick(ctx) })
		select {
		case <-ctx.Done():
			wg.Wait()
			s.log.Info("dispatch scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			s.log.Debug("tick skipped, previous cycle still running")
			return
		}
		s.log.Error("dispatch cycle failed", zap.Error(err))
	}
}

// RunCycle delivers every reminder due at the current time and marks it delivered.
// A failing destination never blocks its siblings or other reminders.
func (s *Scheduler) RunCycle(ctx context.Context) (Report, error) {
	if !s.running.TryLock() {
		return Report{}, ErrCycleInProgress
	}
	defer s.running.Unlock()

	now := s.now()
	due, err := s.store.FindDue(ctx, now)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return Report{}, fmt.Errorf("find due reminders: %w", err)
	}

	var delivered, sent, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	picked := 0
	for _, rem := range due {
		if !rem.IsDue(now) {
			continue
		}
		picked++
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			ok, bad := s.deliver(ctx, &rem)
			sent.Add(int64(ok))
			failed.Add(int64(bad))

			if err := s.store.MarkDelivered(ctx, rem.ReminderID, rem.TriggerAt); err != nil {
				skipped.Add(1)
				if errors.Is(err, domain.ErrNotFound) {
					s.log.Info("reminder deleted or rescheduled during dispatch", zap.String("reminder_id", rem.ReminderID))
					return nil
				}
				s.log.Error("mark reminder delivered", zap.String("reminder_id", rem.ReminderID), zap.Error(err))
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Due:       picked,
		Delivered: int(delivered.Load()),
		Sent:      int(sent.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	if report.Due > 0 {
		s.log.Info("dispatch cycle finished",
			zap.Int("due", report.Due),
			zap.Int("delivered", report.Delivered),
			zap.Int("sent", report.Sent),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)
	}
	return report, nil
}

// deliver sends rem to all of its destinations concurrently and returns how
// many sends succeeded and failed.
func (s *Scheduler) deliver(ctx context.Context, rem *domain.Reminder) (ok, bad int) {
	text, htmlBody := renderReminder(rem)

	var mu sync.Mutex
	var g errgroup.Group
	for _, dest := range rem.Destinations {
		g.Go(func() error {
			err := s.send(ctx, dest, text, htmlBody)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				bad++
				s.log.Warn("reminder delivery failed",
					zap.String("reminder_id", rem.ReminderID),
					zap.String("channel", string(dest.ResolveChannel())),
					zap.String("destination", dest.Address),
					zap.Error(err),
				)
				return nil
			}
			ok++
			return nil
		})
	}
	_ = g.Wait()
	return ok, bad
}

func (s *Scheduler) send(ctx context.Context, dest domain.Destination, text, htmlBody string) error {
	sender, err := s.senders.Lookup(dest.ResolveChannel())
	if err != nil {
		return err
	}
	_, err = channel.WithTimeout(sender, s.cfg.SendTimeout).Send(ctx, dest.Address, reminderSubject, text, htmlBody)
	return err
}

func renderReminder(rem *domain.Reminder) (text, htmlBody string) {
	when := rem.TriggerAt.UTC().Format(time.RFC1123)
	text = fmt.Sprintf("You have a scheduled reminder: %s on %s", rem.Title, when)
	htmlBody = fmt.Sprintf("<p>You have a scheduled reminder: <b>%s</b> on %s</p>", html.EscapeString(rem.Title), when)
	return text, htmlBody
}
