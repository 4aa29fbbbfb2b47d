package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

type memoryTicket struct {
	ticket *domain.Ticket
	seq    uint64
}

// MemoryTicketRepository keeps tickets in process. All writes hold the
// store mutex, which serializes read-modify-write per ticket.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*memoryTicket
	seq     uint64
	now     func() time.Time
}

// NewMemoryTicketRepository builds an empty store. A nil clock uses time.Now.
func NewMemoryTicketRepository(now func() time.Time) *MemoryTicketRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryTicketRepository{tickets: make(map[string]*memoryTicket), now: now}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if err := validTicket(ticket); err != nil {
		return nil, err
	}
	stored := ticket.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Comments == nil {
		stored.Comments = []domain.Comment{}
	}
	r.seq++
	r.tickets[stored.ID] = &memoryTicket{ticket: stored, seq: r.seq}
	return stored.Clone(), nil
}

func (r *MemoryTicketRepository) Get(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.ticket.Clone(), nil
}

func (r *MemoryTicketRepository) ListAll(_ context.Context) ([]domain.Ticket, error) {
	return r.list(func(*domain.Ticket) bool { return true }), nil
}

func (r *MemoryTicketRepository) ListByReporter(_ context.Context, reporter string) ([]domain.Ticket, error) {
	return r.list(func(t *domain.Ticket) bool { return t.Reporter == reporter }), nil
}

func (r *MemoryTicketRepository) list(keep func(*domain.Ticket) bool) []domain.Ticket {
	r.mu.RLock()
	matched := make([]*memoryTicket, 0, len(r.tickets))
	for _, rec := range r.tickets {
		if keep(rec.ticket) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.ticket.CreatedAt.Equal(b.ticket.CreatedAt) {
			return a.ticket.CreatedAt.After(b.ticket.CreatedAt)
		}
		return a.seq > b.seq
	})
	result := make([]domain.Ticket, 0, len(matched))
	for _, rec := range matched {
		result = append(result, *rec.ticket.Clone())
	}
	r.mu.RUnlock()
	return result
}

func (r *MemoryTicketRepository) Update(_ context.Context, id string, mutate TicketMutator) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}

	working := rec.ticket.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	preserveImmutable(working, rec.ticket)
	working.UpdatedAt = nextUpdatedAt(r.now().UTC(), rec.ticket.UpdatedAt)
	rec.ticket = working
	return working.Clone(), nil
}

func (r *MemoryTicketRepository) AppendComment(_ context.Context, id string, comment domain.Comment) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := nextUpdatedAt(r.now().UTC(), rec.ticket.UpdatedAt)
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now
	}
	working := rec.ticket.Clone()
	working.Comments = append(working.Comments, comment)
	working.UpdatedAt = now
	rec.ticket = working
	return working.Clone(), nil
}

func (r *MemoryTicketRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}
