package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rmed/simpleice/internal/domain"
	"github.com/rmed/simpleice/internal/provider"
	"github.com/rmed/simpleice/internal/store"
)

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 30 * time.Second

// Outcome is the result of one delivery attempt within a check cycle.
type Outcome struct {
	Mail domain.IceMail
	Err  error
}

// CycleSummary reports what a check cycle did.
type CycleSummary struct {
	Now    time.Time
	Sent   []Outcome
	Failed []Outcome
}

// Scheduler runs check cycles: it finds due ICE mails, delivers them and
// marks the successful ones as sent.
type Scheduler struct {
	store       store.Store
	sender      provider.Sender
	account     provider.Account
	journal     store.Journal
	log         zerolog.Logger
	now         func() time.Time
	sendTimeout time.Duration
	onCycle     func(CycleSummary, error)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock overrides the clock used to evaluate trigger dates.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithJournal records every delivery attempt in j.
func WithJournal(j store.Journal) SchedulerOption {
	return func(s *Scheduler) { s.journal = j }
}

// WithLogger sets the logger used for cycle reports.
func WithLogger(l zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// WithSendTimeout overrides the per-delivery timeout.
func WithSendTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithCycleHook registers fn to be called after every daemon cycle.
func WithCycleHook(fn func(CycleSummary, error)) SchedulerOption {
	return func(s *Scheduler) { s.onCycle = fn }
}

// NewScheduler creates a Scheduler delivering through sender with account.
func NewScheduler(s store.Store, sender provider.Sender, account provider.Account, opts ...SchedulerOption) *Scheduler {
	sch := &Scheduler{
		store:       s,
		sender:      sender,
		account:     account,
		log:         zerolog.Nop(),
		now:         time.Now,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(sch)
	}
	return sch
}

// DueMails returns pointers into c for every mail due at now, ordered by
// trigger date and then by ID.
func DueMails(c store.Collection, now time.Time) []*domain.IceMail {
	var due []*domain.IceMail
	for i := range c {
		if c[i].Due(now) {
			due = append(due, &c[i])
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if !a.TriggerAt.Equal(*b.TriggerAt) {
			return a.TriggerAt.Before(*b.TriggerAt)
		}
		return a.ID < b.ID
	})
	return due
}

// Check runs a single check cycle at the current time.
func (s *Scheduler) Check(ctx context.Context) (CycleSummary, error) {
	return s.CheckAt(ctx, s.now())
}

// CheckAt runs a single check cycle as of now. Due mails are delivered one at
// a time; failures leave the mail Active for the next cycle. The store is
// saved once at the end, and only if a mail was sent. Once deliveries start
// the cycle runs to completion even if ctx is canceled.
func (s *Scheduler) CheckAt(ctx context.Context, now time.Time) (CycleSummary, error) {
	summary := CycleSummary{Now: now}

	c, err := s.store.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load ice mails: %w", err)
	}

	due := DueMails(c, now)
	if len(due) == 0 {
		s.log.Debug().Time("now", now).Msg("no ice mails due")
		return summary, nil
	}

	cycleCtx := context.WithoutCancel(ctx)
	for _, m := range due {
		err := s.deliver(cycleCtx, m)
		if err == nil {
			err = m.MarkSent(now)
		}
		s.record(cycleCtx, m, now, err)
		if err != nil {
			s.log.Warn().Err(err).
				Str("mail", m.Name).
				Str("kind", provider.KindOf(err).String()).
				Msg("delivery failed")
			summary.Failed = append(summary.Failed, Outcome{Mail: *m, Err: err})
			continue
		}
		s.log.Info().Str("mail", m.Name).Str("recipient", m.Recipient).Msg("ice mail sent")
		summary.Sent = append(summary.Sent, Outcome{Mail: *m})
	}

	if len(summary.Sent) > 0 {
		if err := s.store.Save(cycleCtx, c); err != nil {
			return summary, fmt.Errorf("failed to save ice mails after sending %d: %w", len(summary.Sent), err)
		}
	}
	return summary, nil
}

func (s *Scheduler) deliver(ctx context.Context, m *domain.IceMail) error {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	return s.sender.Send(ctx, s.account, provider.Message{
		Recipient: m.Recipient,
		Subject:   m.Subject,
		Body:      m.Body,
	})
}

func (s *Scheduler) record(ctx context.Context, m *domain.IceMail, now time.Time, sendErr error) {
	if s.journal == nil {
		return
	}
	d := &store.Delivery{
		MailID:      m.ID,
		MailName:    m.Name,
		Recipient:   m.Recipient,
		AttemptedAt: now,
		Outcome:     store.OutcomeSent,
	}
	if sendErr != nil {
		d.Outcome = store.OutcomeFailed
		d.ErrorKind = ErrorKind(sendErr)
		d.Error = sendErr.Error()
	}
	if err := s.journal.RecordDelivery(ctx, d); err != nil {
		s.log.Warn().Err(err).Str("mail", m.Name).Msg("failed to journal delivery")
	}
}

// Run performs a check cycle immediately and then every interval until ctx
// is canceled. Cancellation is only observed between cycles. Cycle errors
// are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid check interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", interval).Msg("daemon started")
	for {
		if ctx.Err() != nil {
			s.log.Info().Msg("daemon stopped")
			return nil
		}
		s.runCycle(ctx)

		select {
		case <-ctx.Done():
			s.log.Info().Msg("daemon stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	summary, err := s.Check(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("check cycle failed")
	} else {
		s.log.Info().
			Int("sent", len(summary.Sent)).
			Int("failed", len(summary.Failed)).
			Msg("check cycle complete")
	}
	if s.onCycle != nil {
		s.onCycle(summary, err)
	}
}

// ErrorKind names the category of err for reports and the delivery journal.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if k := domain.Kind(err); k != "" {
		return k
	}
	switch {
	case errors.Is(err, store.ErrCorrupt):
		return "StoreCorrupt"
	case errors.Is(err, store.ErrIO):
		return "StoreIO"
	case provider.IsDeliveryError(err):
		if provider.KindOf(err) == provider.Permanent {
			return "DeliveryPermanent"
		}
		return "DeliveryTransient"
	}
	return "Error"
}
