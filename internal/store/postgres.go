package store

import (
	"context"
	"fmt"
	"strings"
)

type submissionRepo struct {
	pool PgxPool
}

func (r *submissionRepo) Record(ctx context.Context, s *Submission) error {
	defer observeDB(ctx, "submissions.record")()
	const q = `INSERT INTO submissions (reference, kind, email, contact_id, action, event_id, scheduled_for)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`
	email := strings.ToLower(strings.TrimSpace(s.Email))
	row := r.pool.QueryRow(ctx, q, s.Reference, string(s.Kind), email, s.ContactID, s.Action, s.EventID, s.ScheduledFor)
	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("record %s submission %s: %w", s.Kind, s.Reference, err)
	}
	s.Email = email
	return nil
}

func (r *submissionRepo) ContactsForEmail(ctx context.Context, email string) (int, error) {
	defer observeDB(ctx, "submissions.contacts_for_email")()
	const q = `SELECT COUNT(DISTINCT contact_id) FROM submissions WHERE LOWER(email) = LOWER($1)`
	var n int
	if err := r.pool.QueryRow(ctx, q, strings.TrimSpace(email)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts for email: %w", err)
	}
	return n, nil
}
