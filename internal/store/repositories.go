package store

import "context"

// SubmissionRepository records CRM writes made on behalf of site visitors.
type SubmissionRepository interface {
	// Record inserts s and fills in its ID and CreatedAt.
	Record(ctx context.Context, s *Submission) error
	// ContactsForEmail returns how many distinct CRM contacts were written for
	// email. More than one points at a duplicate created by concurrent
	// submissions.
	ContactsForEmail(ctx context.Context, email string) (int, error)
}
