package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rmed/simpleice/internal/store"
)

var _ store.Journal = (*DB)(nil)

// RecordDelivery inserts a delivery attempt. An empty ID is filled in.
func (s *DB) RecordDelivery(ctx context.Context, d *store.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	row := *d
	row.AttemptedAt = row.AttemptedAt.UTC()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO deliveries (id, mail_id, mail_name, recipient, attempted_at, outcome, error_kind, error)
		VALUES (:id, :mail_id, :mail_name, :recipient, :attempted_at, :outcome, :error_kind, :error)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery for %s: %w", d.MailName, err)
	}
	return nil
}

// ListDeliveries returns delivery attempts, newest first.
func (s *DB) ListDeliveries(ctx context.Context, opts store.ListDeliveryOptions) ([]store.Delivery, error) {
	query := `SELECT id, mail_id, mail_name, recipient, attempted_at, outcome, error_kind, error FROM deliveries`
	var args []any
	if opts.MailName != "" {
		query += ` WHERE mail_name = ?`
		args = append(args, opts.MailName)
	}
	query += ` ORDER BY attempted_at DESC, rowid DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	var deliveries []store.Delivery
	if err := s.db.SelectContext(ctx, &deliveries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, nil
}

// CountDeliveries returns the number of attempts with the given outcome for a
// mail. An empty outcome counts all attempts.
func (s *DB) CountDeliveries(ctx context.Context, mailName, outcome string) (int, error) {
	query := `SELECT COUNT(*) FROM deliveries WHERE mail_name = ?`
	args := []any{mailName}
	if outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, outcome)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count deliveries for %s: %w", mailName, err)
	}
	return n, nil
}
