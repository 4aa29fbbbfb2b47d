package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

const ticketColumns = `id, title, description, priority, status, reporter, assignee, created_at, updated_at`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates a Postgres-backed repository. Comments
// live in ticket_comments and are ordered by their serial id.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	const query = `
        INSERT INTO tickets (title, description, priority, status, reporter, assignee)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	if err := validTicket(ticket); err != nil {
		return nil, err
	}
	created := ticket.Clone()
	created.Comments = []domain.Comment{}
	if err := r.pool.QueryRow(ctx, query,
		created.Title,
		created.Description,
		created.Priority,
		created.Status,
		created.Reporter,
		created.Assignee,
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *ticketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.load(ctx, r.pool, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) load(ctx context.Context, q querier, query, id string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(q.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, mapPgError(err)
	}
	comments, err := r.comments(ctx, q, []string{ticket.ID})
	if err != nil {
		return nil, err
	}
	ticket.Comments = comments[ticket.ID]
	if ticket.Comments == nil {
		ticket.Comments = []domain.Comment{}
	}
	return &ticket, nil
}

func (r *ticketRepository) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC, id DESC`)
}

func (r *ticketRepository) ListByReporter(ctx context.Context, reporter string) ([]domain.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE reporter=$1 ORDER BY created_at DESC, id DESC`, reporter)
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	ids := []string{}
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
		ids = append(ids, ticket.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	comments, err := r.comments(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Comments = comments[result[i].ID]
		if result[i].Comments == nil {
			result[i].Comments = []domain.Comment{}
		}
	}
	return result, nil
}

func (r *ticketRepository) comments(ctx context.Context, q querier, ticketIDs []string) (map[string][]domain.Comment, error) {
	const query = `
        SELECT ticket_id, author, body, created_at
        FROM ticket_comments WHERE ticket_id = ANY($1::uuid[]) ORDER BY id ASC`
	rows, err := q.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.Comment, len(ticketIDs))
	for rows.Next() {
		var ticketID string
		var c domain.Comment
		if err := rows.Scan(&ticketID, &c.Author, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		result[ticketID] = append(result[ticketID], c)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Update(ctx context.Context, id string, mutate TicketMutator) (*domain.Ticket, error) {
	var updated *domain.Ticket
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		stored, err := r.load(ctx, tx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		working := stored.Clone()
		if err := mutate(working); err != nil {
			return err
		}
		preserveImmutable(working, stored)

		const query = `
            UPDATE tickets SET title=$1, description=$2, priority=$3, status=$4, assignee=$5,
                updated_at=GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
            WHERE id=$6
            RETURNING updated_at`
		if err := tx.QueryRow(ctx, query,
			working.Title,
			working.Description,
			working.Priority,
			working.Status,
			working.Assignee,
			working.ID,
		).Scan(&working.UpdatedAt); err != nil {
			return err
		}
		updated = working
		return nil
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return updated, nil
}

func (r *ticketRepository) AppendComment(ctx context.Context, id string, comment domain.Comment) (*domain.Ticket, error) {
	var updated *domain.Ticket
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const touch = `
            UPDATE tickets SET updated_at=GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
            WHERE id=$1
            RETURNING updated_at`
		var updatedAt time.Time
		if err := tx.QueryRow(ctx, touch, id).Scan(&updatedAt); err != nil {
			return err
		}
		if comment.CreatedAt.IsZero() {
			comment.CreatedAt = updatedAt
		}
		const insert = `INSERT INTO ticket_comments (ticket_id, author, body, created_at) VALUES ($1,$2,$3,$4)`
		if _, err := tx.Exec(ctx, insert, id, comment.Author, comment.Text, comment.CreatedAt); err != nil {
			return err
		}
		ticket, err := r.load(ctx, tx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
		if err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return updated, nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Reporter,
		&ticket.Assignee,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

// mapPgError folds driver errors into repository sentinels. Malformed ids are
// reported as not found, since no ticket can carry them.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02":
			return ErrNotFound
		case "23505":
			return ErrDuplicate
		case "23514":
			return ErrInvalid
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}
