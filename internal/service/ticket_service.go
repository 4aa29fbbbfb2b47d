package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/policy"
	"github.com/spec-kit/issue-tracker/internal/repository"
	"github.com/spec-kit/issue-tracker/internal/workflow"
	apperrors "github.com/spec-kit/issue-tracker/pkg/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	workflow   *workflow.Engine
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Workflow   *workflow.Engine
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
}

// TicketUpdateInput lists the mutable fields. A nil field is left untouched.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Priority    *domain.TicketPriority
	Status      *domain.TicketStatus
	Assignee    *string
}

// StatusChangeInput describes a workflow transition.
type StatusChangeInput struct {
	Status   domain.TicketStatus
	Assignee *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	workflowEngine := deps.Workflow
	if workflowEngine == nil {
		workflowEngine = workflow.NewEngine(workflow.DefaultTable())
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		workflow:   workflowEngine,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        now,
	}
}

// Workflow exposes the transition engine the service enforces.
func (s *TicketService) Workflow() *workflow.Engine {
	return s.workflow
}

// List returns every ticket for admins and the caller's own tickets otherwise.
func (s *TicketService) List(ctx context.Context, principal *domain.Principal) ([]domain.Ticket, error) {
	p, err := requirePrincipal(principal)
	if err != nil {
		return nil, err
	}

	var tickets []domain.Ticket
	if policy.ListAll(p) {
		tickets, err = s.tickets.ListAll(ctx)
	} else {
		tickets, err = s.tickets.ListByReporter(ctx, p.ID)
	}
	if err != nil {
		return nil, mapStoreError(err, "")
	}
	return tickets, nil
}

// Create opens a ticket reported by the caller. Status always starts at Open.
func (s *TicketService) Create(ctx context.Context, principal *domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	p, err := requirePrincipal(principal)
	if err != nil {
		return nil, err
	}
	if !policy.CanCreate(p) {
		return nil, apperrors.NewForbidden("not allowed to create tickets")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityLow
	}
	if !priority.Valid() {
		return nil, invalidPriority(priority)
	}

	ticket, err := s.tickets.Create(ctx, &domain.Ticket{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Priority:    priority,
		Status:      domain.TicketStatusOpen,
		Reporter:    p.ID,
	})
	if err != nil {
		return nil, mapStoreError(err, "")
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(&p),
		Payload: events.TicketCreatedPayload{
			Title:    ticket.Title,
			Priority: ticket.Priority,
			Reporter: ticket.Reporter,
		},
	})
	return ticket, nil
}

// Get returns one ticket when the caller may view it.
func (s *TicketService) Get(ctx context.Context, principal *domain.Principal, id string) (*domain.Ticket, error) {
	p, err := requirePrincipal(principal)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, id)
	}
	if !policy.CanView(p, ticket) {
		return nil, apperrors.NewForbidden("not allowed to view this ticket")
	}
	return ticket, nil
}

// Update applies a partial update. Admins and the reporter may set any field,
// status included, without consulting the workflow table. Any other
// authenticated caller may only change the description; the other fields of
// such a request are ignored and not validated, and a request without a
// non-empty description is rejected.
func (s *TicketService) Update(ctx context.Context, principal *domain.Principal, id string, input TicketUpdateInput) (*domain.Ticket, error) {
	p, err := requirePrincipal(principal)
	if err != nil {
		return nil, err
	}
	var (
		changed   []string
		oldStatus domain.TicketStatus
	)
	updated, err := s.tickets.Update(ctx, id, func(t *domain.Ticket) error {
		changed = changed[:0]
		oldStatus = t.Status

		switch {
		case policy.CanEditFull(p, t):
			if err := validateUpdate(input); err != nil {
				return err
			}
			changed = applyFullUpdate(t, input)
		case policy.CanEditDescriptionOnly(p, t):
			if input.Description == nil || *input.Description == "" {
				return apperrors.NewForbidden("only the description may be changed by this caller")
			}
			if t.Description != *input.Description {
				t.Description = *input.Description
				changed = append(changed, "description")
			}
		default:
			return apperrors.NewForbidden("not allowed to update this ticket")
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, id)
	}

	actor := events.ActorFrom(&p)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: updated.ID,
		Actor:    actor,
		Payload:  events.TicketUpdatedPayload{Fields: append([]string{}, changed...)},
	})
	if updated.Status != oldStatus {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: updated.ID,
			Actor:    actor,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: updated.Status,
				Assignee:  updated.Assignee,
			},
		})
	}
	return updated, nil
}

// TransitionStatus moves a ticket along a workflow edge. The caller must be
// admin, reporter or assignee, and the edge must exist for every caller.
func (s *TicketService) TransitionStatus(ctx context.Context, principal *domain.Principal, id string, input StatusChangeInput) (*domain.Ticket, error) {
	p, err := requirePrincipal(principal)
	if err != nil {
		return nil, err
	}
	if input.Status == "" {
		return nil, apperrors.NewValidationError("status is required", map[string]any{"field": "status"})
	}
	if !input.Status.Valid() {
		return nil, invalidStatus(input.Status)
	}

	var oldStatus domain.TicketStatus
	updated, err := s.tickets.Update(ctx, id, func(t *domain.Ticket) error {
		if !policy.CanChangeStatus(p, t) {
			return apperrors.NewForbidden("only admin, reporter or assignee can change status")
		}
		if !s.workflow.CanTransition(t.Status, input.Status) {
			return apperrors.NewInvalidTransition(string(t.Status), string(input.Status))
		}
		oldStatus = t.Status
		t.Status = input.Status
		if input.Assignee != nil && *input.Assignee != "" {
			t.Assignee = *input.Assignee
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, id)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Actor:    events.ActorFrom(&p),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: updated.Status,
			Assignee:  updated.Assignee,
		},
	})
	return updated, nil
}

// Delete removes a ticket. Admins only.
func (s *TicketService) Delete(ctx context.Context, principal *domain.Principal, id string) error {
	p, err := requirePrincipal(principal)
	if err != nil {
		return err
	}
	if !policy.CanDelete(p) {
		return apperrors.NewForbidden("only admins can delete tickets")
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return mapStoreError(err, id)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: id,
		Actor:    events.ActorFrom(&p),
	})
	return nil
}

// AddComment appends a comment. Any authenticated caller may comment; the
// author is the caller's display name.
func (s *TicketService) AddComment(ctx context.Context, principal *domain.Principal, id, text string) (*domain.Ticket, error) {
	p, err := requirePrincipal(principal)
	if err != nil {
		return nil, err
	}
	if !policy.CanComment(p) {
		return nil, apperrors.NewForbidden("not allowed to comment")
	}
	if _, err := s.tickets.Get(ctx, id); err != nil {
		return nil, mapStoreError(err, id)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text required", map[string]any{"field": "text"})
	}

	comment := domain.Comment{Author: p.DisplayName(), Text: text, CreatedAt: s.now().UTC()}
	updated, err := s.tickets.AppendComment(ctx, id, comment)
	if err != nil {
		return nil, mapStoreError(err, id)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: updated.ID,
		Actor:    events.ActorFrom(&p),
		Payload: events.TicketCommentAddedPayload{
			Author:      comment.Author,
			BodyPreview: stringPreview(comment.Text, 120),
		},
	})
	return updated, nil
}

func validateUpdate(input TicketUpdateInput) error {
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return apperrors.NewValidationError("title must not be empty", map[string]any{"field": "title"})
	}
	if input.Priority != nil && !input.Priority.Valid() {
		return invalidPriority(*input.Priority)
	}
	if input.Status != nil && !input.Status.Valid() {
		return invalidStatus(*input.Status)
	}
	return nil
}

// applyFullUpdate copies every present field and reports which ones changed.
// An empty assignee clears the assignment.
func applyFullUpdate(t *domain.Ticket, input TicketUpdateInput) []string {
	var changed []string
	if input.Title != nil {
		if title := strings.TrimSpace(*input.Title); title != t.Title {
			t.Title = title
			changed = append(changed, "title")
		}
	}
	if input.Description != nil && *input.Description != t.Description {
		t.Description = *input.Description
		changed = append(changed, "description")
	}
	if input.Priority != nil && *input.Priority != t.Priority {
		t.Priority = *input.Priority
		changed = append(changed, "priority")
	}
	if input.Status != nil && *input.Status != t.Status {
		t.Status = *input.Status
		changed = append(changed, "status")
	}
	if input.Assignee != nil && *input.Assignee != t.Assignee {
		t.Assignee = *input.Assignee
		changed = append(changed, "assignee")
	}
	return changed
}

func requirePrincipal(p *domain.Principal) (domain.Principal, error) {
	if p == nil || p.ID == "" {
		return domain.Principal{}, apperrors.NewUnauthenticated("authentication required")
	}
	return *p, nil
}

func invalidPriority(p domain.TicketPriority) error {
	return apperrors.NewValidationError("invalid priority", map[string]any{
		"field":   "priority",
		"value":   string(p),
		"allowed": []string{"Low", "Medium", "High"},
	})
}

func invalidStatus(st domain.TicketStatus) error {
	allowed := make([]string, 0, len(domain.TicketStatuses))
	for _, candidate := range domain.TicketStatuses {
		allowed = append(allowed, string(candidate))
	}
	return apperrors.NewValidationError("invalid status", map[string]any{
		"field":   "status",
		"value":   string(st),
		"allowed": allowed,
	})
}

// mapStoreError turns repository sentinels into domain errors. Domain errors
// raised inside a mutator pass through unchanged.
func mapStoreError(err error, ticketID string) error {
	var domainErr *apperrors.DomainError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict("ticket was modified concurrently, retry", map[string]any{"ticket_id": ticketID})
	case errors.Is(err, repository.ErrInvalid):
		return apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	default:
		return apperrors.NewInternalError(err)
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func stringPreview(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "..."
}
