package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rmed/simpleice/internal/domain"
	"github.com/rmed/simpleice/internal/store"
)

// MailService applies lifecycle operations to the ICE mails held by a store.
// Every operation loads the current snapshot, mutates it and saves it back;
// failed operations leave the store untouched.
type MailService struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

// MailOption configures a MailService.
type MailOption func(*MailService)

// WithMailClock overrides the clock used to validate trigger dates.
func WithMailClock(now func() time.Time) MailOption {
	return func(s *MailService) { s.now = now }
}

// WithIDGenerator overrides how new mail IDs are generated.
func WithIDGenerator(newID func() string) MailOption {
	return func(s *MailService) { s.newID = newID }
}

// NewMailService creates a MailService backed by s.
func NewMailService(s store.Store, opts ...MailOption) *MailService {
	svc := &MailService{store: s, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create adds a new Draft mail.
func (s *MailService) Create(ctx context.Context, name, recipient, subject, body string) (domain.IceMail, error) {
	m, err := domain.New(s.newID(), name, recipient, subject, body)
	if err != nil {
		return domain.IceMail{}, err
	}
	err = s.update(ctx, func(c *store.Collection) error {
		return c.Insert(*m)
	})
	if err != nil {
		return domain.IceMail{}, err
	}
	return *m, nil
}

// Activate schedules the named mail for delivery at triggerAt, which must be
// strictly in the future.
func (s *MailService) Activate(ctx context.Context, name string, triggerAt time.Time) (domain.IceMail, error) {
	return s.apply(ctx, name, func(m *domain.IceMail) error {
		return m.Activate(triggerAt, s.now())
	})
}

// Deactivate reverts the named Active mail to Draft.
func (s *MailService) Deactivate(ctx context.Context, name string) (domain.IceMail, error) {
	return s.apply(ctx, name, func(m *domain.IceMail) error {
		return m.Deactivate()
	})
}

// Edit updates the content fields present in changes. A non-nil Name renames
// the mail.
func (s *MailService) Edit(ctx context.Context, name string, changes domain.Changes) (domain.IceMail, error) {
	var out domain.IceMail
	err := s.update(ctx, func(c *store.Collection) error {
		m, err := c.Get(name)
		if err != nil {
			return err
		}
		if err := m.Apply(changes); err != nil {
			return fmt.Errorf("%q: %w", name, err)
		}
		if changes.Name != nil {
			newName := strings.TrimSpace(*changes.Name)
			if err := c.Rename(name, newName); err != nil {
				return err
			}
		}
		out = *m
		return nil
	})
	if err != nil {
		return domain.IceMail{}, err
	}
	return out, nil
}

// Remove deletes the named mail regardless of its status.
func (s *MailService) Remove(ctx context.Context, name string) (domain.IceMail, error) {
	var removed domain.IceMail
	err := s.update(ctx, func(c *store.Collection) error {
		var err error
		removed, err = c.Remove(name)
		return err
	})
	if err != nil {
		return domain.IceMail{}, err
	}
	return removed, nil
}

// List returns all mails in store order.
func (s *MailService) List(ctx context.Context) (store.Collection, error) {
	return s.store.Load(ctx)
}

// Get returns the named mail.
func (s *MailService) Get(ctx context.Context, name string) (domain.IceMail, error) {
	c, err := s.store.Load(ctx)
	if err != nil {
		return domain.IceMail{}, err
	}
	m, err := c.Get(name)
	if err != nil {
		return domain.IceMail{}, err
	}
	return *m, nil
}

func (s *MailService) apply(ctx context.Context, name string, fn func(m *domain.IceMail) error) (domain.IceMail, error) {
	var out domain.IceMail
	err := s.update(ctx, func(c *store.Collection) error {
		m, err := c.Get(name)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return fmt.Errorf("%q: %w", name, err)
		}
		out = *m
		return nil
	})
	if err != nil {
		return domain.IceMail{}, err
	}
	return out, nil
}

func (s *MailService) update(ctx context.Context, fn func(c *store.Collection) error) error {
	c, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&c); err != nil {
		return err
	}
	return s.store.Save(ctx, c)
}
