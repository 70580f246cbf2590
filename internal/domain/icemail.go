package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an ICE mail.
type Status string

const (
	StatusDraft    Status = "Draft"
	StatusActive   Status = "Active"
	StatusSent     Status = "Sent"
	StatusInactive Status = "Inactive"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusSent, StatusInactive:
		return true
	}
	return false
}

// IceMail is a pre-composed message scheduled for delivery once its trigger
// date has passed.
type IceMail struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Status    Status     `json:"status"`
	TriggerAt *time.Time `json:"trigger_at,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// New returns a Draft ICE mail with the given ID.
func New(id, name, recipient, subject, body string) (*IceMail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	return &IceMail{
		ID:        id,
		Name:      name,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Status:    StatusDraft,
	}, nil
}

// Due reports whether the mail is Active and its trigger date is at or
// before now.
func (m *IceMail) Due(now time.Time) bool {
	return m.Status == StatusActive && m.TriggerAt != nil && !m.TriggerAt.After(now)
}

// Editable reports whether content changes are allowed.
func (m *IceMail) Editable() bool {
	return m.Status != StatusSent
}

// Activate schedules the mail for delivery at at. The trigger must be
// strictly after now. Activating an already Active mail reschedules it.
func (m *IceMail) Activate(at, now time.Time) error {
	if m.Status == StatusSent {
		return ErrInvalidState
	}
	if !at.After(now) {
		return ErrInvalidTrigger
	}
	t := at
	m.TriggerAt = &t
	m.Status = StatusActive
	return nil
}

// Deactivate reverts an Active mail to Draft and clears its trigger date.
func (m *IceMail) Deactivate() error {
	if m.Status != StatusActive {
		return ErrNotActive
	}
	m.Status = StatusDraft
	m.TriggerAt = nil
	return nil
}

// Changes lists the content fields to update in an edit. Nil fields are left
// untouched. Renames go through the owning collection so name uniqueness can
// be enforced.
type Changes struct {
	Name      *string
	Recipient *string
	Subject   *string
	Body      *string
}

// Empty reports whether no field is set.
func (c Changes) Empty() bool {
	return c.Name == nil && c.Recipient == nil && c.Subject == nil && c.Body == nil
}

// Apply updates the content fields present in c. Status and dates are never
// changed by an edit.
func (m *IceMail) Apply(c Changes) error {
	if !m.Editable() {
		return ErrInvalidState
	}
	if c.Recipient != nil {
		m.Recipient = *c.Recipient
	}
	if c.Subject != nil {
		m.Subject = *c.Subject
	}
	if c.Body != nil {
		m.Body = *c.Body
	}
	return nil
}

// MarkSent records a confirmed delivery at sentAt.
func (m *IceMail) MarkSent(sentAt time.Time) error {
	if m.Status != StatusActive {
		return ErrInvalidState
	}
	t := sentAt
	m.SentAt = &t
	m.Status = StatusSent
	return nil
}

// Normalize repairs a record read from disk so that optional fields match
// its status: trigger dates only exist on Active and Sent mails, and a send
// date only on Sent mails.
func (m *IceMail) Normalize() {
	if m.Status == "" {
		m.Status = StatusDraft
	}
	if m.Status != StatusActive && m.Status != StatusSent {
		m.TriggerAt = nil
	}
	if m.Status != StatusSent {
		m.SentAt = nil
	}
}

// Recipients splits the recipient field on commas.
func (m *IceMail) Recipients() []string {
	parts := strings.Split(m.Recipient, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StatusLine returns a one-line summary: "name ~> Active (02/01/2006)".
func (m *IceMail) StatusLine() string {
	switch {
	case m.Status == StatusActive && m.TriggerAt != nil:
		return m.Name + " ~> " + string(m.Status) + " (" + m.TriggerAt.Local().Format("02/01/2006 15:04") + ")"
	case m.Status == StatusSent && m.SentAt != nil:
		return m.Name + " ~> " + string(m.Status) + " (" + m.SentAt.Local().Format("02/01/2006 15:04") + ")"
	}
	return m.Name + " ~> " + string(m.Status)
}
