package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrIO is returned when the backing file cannot be read or written.
	ErrIO = errors.New("store i/o error")
	// ErrCorrupt is returned when the backing file exists but cannot be decoded.
	ErrCorrupt = errors.New("store is corrupt")
)

// Store defines the persistence interface for ICE mails. Implementations
// load and save the whole collection; Save must be atomic so a failed write
// never replaces the previous snapshot.
type Store interface {
	Load(ctx context.Context) (Collection, error)
	Save(ctx context.Context, c Collection) error
}

// Delivery outcomes recorded in the journal.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Delivery is one delivery attempt made by a check cycle.
type Delivery struct {
	ID          string    `db:"id"`
	MailID      string    `db:"mail_id"`
	MailName    string    `db:"mail_name"`
	Recipient   string    `db:"recipient"`
	AttemptedAt time.Time `db:"attempted_at"`
	Outcome     string    `db:"outcome"`
	ErrorKind   string    `db:"error_kind"`
	Error       string    `db:"error"`
}

// Journal records delivery attempts.
type Journal interface {
	RecordDelivery(ctx context.Context, d *Delivery) error
}

// ListDeliveryOptions configures journal queries.
type ListDeliveryOptions struct {
	MailName string
	Limit    int
}
