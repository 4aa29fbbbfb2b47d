package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a concurrent write could not be reconciled.
	ErrConflict = errors.New("concurrent modification")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrInvalid is returned when a record misses a required field.
	ErrInvalid = errors.New("invalid record")
)

// TicketMutator changes a ticket in place. Returning an error aborts the
// update without writing anything; the error is returned to the caller as is.
type TicketMutator func(ticket *domain.Ticket) error

// TicketRepository encapsulates ticket persistence. Implementations must be
// safe for concurrent use and serialize Update and AppendComment per ticket.
type TicketRepository interface {
	// Create assigns ID, CreatedAt and UpdatedAt. A blank title yields ErrInvalid.
	Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	// ListAll and ListByReporter order by CreatedAt descending.
	ListAll(ctx context.Context) ([]domain.Ticket, error)
	ListByReporter(ctx context.Context, reporter string) ([]domain.Ticket, error)
	// Update runs mutate against the latest state and refreshes UpdatedAt.
	// ID, Reporter, CreatedAt and Comments are restored after mutate runs.
	Update(ctx context.Context, id string, mutate TicketMutator) (*domain.Ticket, error)
	AppendComment(ctx context.Context, id string, comment domain.Comment) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	// Create returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// PasswordResetRepository tracks which reset tokens were already consumed.
type PasswordResetRepository interface {
	// MarkUsed records tokenID as consumed for ttl. It reports false when the
	// token had already been consumed.
	MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// preserveImmutable copies the fields a mutator must never change back from
// the stored state.
func preserveImmutable(dst, stored *domain.Ticket) {
	dst.ID = stored.ID
	dst.Reporter = stored.Reporter
	dst.CreatedAt = stored.CreatedAt
	dst.Comments = stored.Comments
}

// nextUpdatedAt returns now, nudged forward so it is strictly after prev.
func nextUpdatedAt(now, prev time.Time) time.Time {
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func validTicket(t *domain.Ticket) error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrInvalid
	}
	return nil
}
