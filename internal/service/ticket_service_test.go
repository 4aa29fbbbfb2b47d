package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/repository"
	"github.com/spec-kit/issue-tracker/internal/workflow"
	apperrors "github.com/spec-kit/issue-tracker/pkg/errorutil"
)

var (
	customerU1 = &domain.Principal{ID: "u1", Name: "Uma", Role: domain.RoleCustomer}
	customerU2 = &domain.Principal{ID: "u2", Role: domain.RoleCustomer}
	adminA1    = &domain.Principal{ID: "a1", Name: "Ada", Role: domain.RoleAdmin}
)

type TicketServiceSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *stepClock
	repo      *repository.MemoryTicketRepository
	svc       *TicketService
	mu        sync.Mutex
	published []events.Event
}

// stepClock advances by one second on every read.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestTicketServiceSuite(t *testing.T) {
	suite.Run(t, new(TicketServiceSuite))
}

func (s *TicketServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s.repo = repository.NewMemoryTicketRepository(s.clock.Now)
	s.published = nil

	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range events.EventTypes {
		dispatcher.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.published = append(s.published, e)
			return nil
		})
	}

	s.svc = NewTicketService(TicketDependencies{
		TicketRepo: s.repo,
		Workflow:   workflow.NewEngine(workflow.DefaultTable()),
		Dispatcher: dispatcher,
		Now:        s.clock.Now,
	})
}

func (s *TicketServiceSuite) createAs(p *domain.Principal, title string) *domain.Ticket {
	ticket, err := s.svc.Create(s.ctx, p, TicketCreateInput{Title: title})
	s.Require().NoError(err)
	return ticket
}

func (s *TicketServiceSuite) forceStatus(id string, status domain.TicketStatus, assignee string) {
	_, err := s.repo.Update(s.ctx, id, func(t *domain.Ticket) error {
		t.Status = status
		t.Assignee = assignee
		return nil
	})
	s.Require().NoError(err)
}

func (s *TicketServiceSuite) requireCode(err error, code string) {
	s.Require().Error(err)
	s.Truef(apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func (s *TicketServiceSuite) eventTypes() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, 0, len(s.published))
	for _, e := range s.published {
		out = append(out, e.Type)
	}
	return out
}

func (s *TicketServiceSuite) TestCreateDefaults() {
	ticket := s.createAs(customerU1, "Printer broken")

	s.Equal(domain.TicketStatusOpen, ticket.Status)
	s.Equal("u1", ticket.Reporter)
	s.Equal(domain.TicketPriorityLow, ticket.Priority)
	s.Empty(ticket.Assignee)
	s.Empty(ticket.Comments)
	s.Equal([]events.EventType{events.EventTicketCreated}, s.eventTypes())
}

func (s *TicketServiceSuite) TestCreateValidation() {
	_, err := s.svc.Create(s.ctx, customerU1, TicketCreateInput{Title: "   "})
	s.requireCode(err, apperrors.CodeValidation)

	_, err = s.svc.Create(s.ctx, customerU1, TicketCreateInput{Title: "x", Priority: "Urgent"})
	s.requireCode(err, apperrors.CodeValidation)

	_, err = s.svc.Create(s.ctx, nil, TicketCreateInput{Title: "x"})
	s.requireCode(err, apperrors.CodeUnauthenticated)

	ticket, err := s.svc.Create(s.ctx, customerU1, TicketCreateInput{Title: "  Trim me ", Priority: domain.TicketPriorityHigh})
	s.Require().NoError(err)
	s.Equal("Trim me", ticket.Title)
	s.Equal(domain.TicketPriorityHigh, ticket.Priority)
}

func (s *TicketServiceSuite) TestCreateThenGetRoundTrip() {
	created := s.createAs(customerU1, "Printer broken")

	found, err := s.svc.Get(s.ctx, customerU1, created.ID)
	s.Require().NoError(err)
	s.Equal(created, found)

	again, err := s.svc.Get(s.ctx, customerU1, created.ID)
	s.Require().NoError(err)
	s.Equal(found, again)
}

func (s *TicketServiceSuite) TestGetForbiddenForNonReporter() {
	created := s.createAs(customerU1, "Printer broken")
	s.forceStatus(created.ID, domain.TicketStatusOpen, "u2")

	_, err := s.svc.Get(s.ctx, customerU2, created.ID)
	s.requireCode(err, apperrors.CodeForbidden)

	_, err = s.svc.Get(s.ctx, adminA1, created.ID)
	s.NoError(err)

	_, err = s.svc.Get(s.ctx, customerU1, "missing")
	s.requireCode(err, apperrors.CodeNotFound)
}

func (s *TicketServiceSuite) TestListScoping() {
	mine := s.createAs(customerU1, "mine")
	theirs := s.createAs(customerU2, "theirs")
	s.forceStatus(theirs.ID, domain.TicketStatusOpen, "u1")

	list, err := s.svc.List(s.ctx, customerU1)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(mine.ID, list[0].ID)

	all, err := s.svc.List(s.ctx, adminA1)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal(theirs.ID, all[0].ID)

	_, err = s.svc.List(s.ctx, nil)
	s.requireCode(err, apperrors.CodeUnauthenticated)
}

func (s *TicketServiceSuite) TestTransitionForbiddenForStranger() {
	ticket := s.createAs(customerU1, "Printer broken")

	_, err := s.svc.TransitionStatus(s.ctx, customerU2, ticket.ID, StatusChangeInput{Status: domain.TicketStatusInProgress})
	s.requireCode(err, apperrors.CodeForbidden)
}

func (s *TicketServiceSuite) TestTransitionOutsideTableRejectedForReporter() {
	ticket := s.createAs(customerU1, "Printer broken")

	_, err := s.svc.TransitionStatus(s.ctx, customerU1, ticket.ID, StatusChangeInput{Status: domain.TicketStatusResolved})
	s.requireCode(err, apperrors.CodeInvalidTransition)

	domainErr := apperrors.ToDomainError(err)
	s.Equal("Open", domainErr.Details["current"])
	s.Equal("Resolved", domainErr.Details["requested"])

	found, err := s.svc.Get(s.ctx, customerU1, ticket.ID)
	s.Require().NoError(err)
	s.Equal(domain.TicketStatusOpen, found.Status)
}

func (s *TicketServiceSuite) TestTransitionByAssignee() {
	ticket := s.createAs(customerU1, "Printer broken")
	s.forceStatus(ticket.ID, domain.TicketStatusInProgress, "u2")
	before, err := s.repo.Get(s.ctx, ticket.ID)
	s.Require().NoError(err)

	updated, err := s.svc.TransitionStatus(s.ctx, customerU2, ticket.ID, StatusChangeInput{Status: domain.TicketStatusResolved})
	s.Require().NoError(err)
	s.Equal(domain.TicketStatusResolved, updated.Status)
	s.True(updated.UpdatedAt.After(before.UpdatedAt))
	s.Equal("u2", updated.Assignee)
}

func (s *TicketServiceSuite) TestTransitionSetsAssignee() {
	ticket := s.createAs(customerU1, "Printer broken")
	assignee := "agent-7"

	updated, err := s.svc.TransitionStatus(s.ctx, adminA1, ticket.ID, StatusChangeInput{
		Status:   domain.TicketStatusInProgress,
		Assignee: &assignee,
	})
	s.Require().NoError(err)
	s.Equal(domain.TicketStatusInProgress, updated.Status)
	s.Equal("agent-7", updated.Assignee)
	s.Contains(s.eventTypes(), events.EventTicketStatusChanged)
}

func (s *TicketServiceSuite) TestTransitionErrorPrecedence() {
	_, err := s.svc.TransitionStatus(s.ctx, customerU2, "missing", StatusChangeInput{})
	s.requireCode(err, apperrors.CodeValidation)

	_, err = s.svc.TransitionStatus(s.ctx, customerU2, "missing", StatusChangeInput{Status: "Done"})
	s.requireCode(err, apperrors.CodeValidation)

	_, err = s.svc.TransitionStatus(s.ctx, customerU2, "missing", StatusChangeInput{Status: domain.TicketStatusClosed})
	s.requireCode(err, apperrors.CodeNotFound)

	ticket := s.createAs(customerU1, "Printer broken")
	_, err = s.svc.TransitionStatus(s.ctx, customerU2, ticket.ID, StatusChangeInput{Status: domain.TicketStatusResolved})
	s.requireCode(err, apperrors.CodeForbidden)
}

func (s *TicketServiceSuite) TestClosedIsTerminal() {
	ticket := s.createAs(customerU1, "Printer broken")
	s.forceStatus(ticket.ID, domain.TicketStatusClosed, "")

	for _, next := range domain.TicketStatuses {
		_, err := s.svc.TransitionStatus(s.ctx, adminA1, ticket.ID, StatusChangeInput{Status: next})
		s.requireCode(err, apperrors.CodeInvalidTransition)
	}
}

func (s *TicketServiceSuite) TestFullLifecycleAlongTable() {
	ticket := s.createAs(customerU1, "Printer broken")
	path := []domain.TicketStatus{
		domain.TicketStatusInProgress,
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	}
	for _, next := range path {
		updated, err := s.svc.TransitionStatus(s.ctx, customerU1, ticket.ID, StatusChangeInput{Status: next})
		s.Require().NoError(err)
		s.Equal(next, updated.Status)
	}
}

func (s *TicketServiceSuite) TestDescriptionOnlyFallback() {
	ticket := s.createAs(customerU1, "Printer broken")
	title, description := "x", "y"

	updated, err := s.svc.Update(s.ctx, customerU2, ticket.ID, TicketUpdateInput{Title: &title, Description: &description})
	s.Require().NoError(err)
	s.Equal("y", updated.Description)
	s.Equal("Printer broken", updated.Title)
	s.Equal("u1", updated.Reporter)
}

func (s *TicketServiceSuite) TestDescriptionOnlyFallbackWithoutDescriptionIsForbidden() {
	ticket := s.createAs(customerU1, "Printer broken")
	title := "x"

	_, err := s.svc.Update(s.ctx, customerU2, ticket.ID, TicketUpdateInput{Title: &title})
	s.requireCode(err, apperrors.CodeForbidden)

	found, err := s.repo.Get(s.ctx, ticket.ID)
	s.Require().NoError(err)
	s.Equal("Printer broken", found.Title)
}

func (s *TicketServiceSuite) TestFullUpdateByReporter() {
	ticket := s.createAs(customerU1, "Printer broken")
	title, description := "Printer on fire", "smoke everywhere"
	priority := domain.TicketPriorityHigh
	assignee := "agent-7"

	updated, err := s.svc.Update(s.ctx, customerU1, ticket.ID, TicketUpdateInput{
		Title:       &title,
		Description: &description,
		Priority:    &priority,
		Assignee:    &assignee,
	})
	s.Require().NoError(err)
	s.Equal(title, updated.Title)
	s.Equal(description, updated.Description)
	s.Equal(priority, updated.Priority)
	s.Equal(assignee, updated.Assignee)
	s.Equal(domain.TicketStatusOpen, updated.Status)

	cleared := ""
	updated, err = s.svc.Update(s.ctx, customerU1, ticket.ID, TicketUpdateInput{Assignee: &cleared})
	s.Require().NoError(err)
	s.Empty(updated.Assignee)
}

func (s *TicketServiceSuite) TestFallbackIgnoresInvalidUnappliedFields() {
	ticket := s.createAs(customerU1, "Printer broken")
	empty, description := "", "y"
	badPriority := domain.TicketPriority("Urgent")

	updated, err := s.svc.Update(s.ctx, customerU2, ticket.ID, TicketUpdateInput{
		Title:       &empty,
		Description: &description,
		Priority:    &badPriority,
	})
	s.Require().NoError(err)
	s.Equal("y", updated.Description)
	s.Equal("Printer broken", updated.Title)
	s.Equal(domain.TicketPriorityLow, updated.Priority)
}

func (s *TicketServiceSuite) TestFallbackTreatsEmptyDescriptionAsAbsent() {
	ticket := s.createAs(customerU1, "Printer broken")
	description := "keep"
	_, err := s.svc.Update(s.ctx, customerU1, ticket.ID, TicketUpdateInput{Description: &description})
	s.Require().NoError(err)

	empty := ""
	_, err = s.svc.Update(s.ctx, customerU2, ticket.ID, TicketUpdateInput{Description: &empty})
	s.requireCode(err, apperrors.CodeForbidden)

	found, err := s.repo.Get(s.ctx, ticket.ID)
	s.Require().NoError(err)
	s.Equal("keep", found.Description)
}

func (s *TicketServiceSuite) TestFullUpdateDirectStatusOverride() {
	ticket := s.createAs(customerU1, "Printer broken")
	closed := domain.TicketStatusClosed

	updated, err := s.svc.Update(s.ctx, adminA1, ticket.ID, TicketUpdateInput{Status: &closed})
	s.Require().NoError(err)
	s.Equal(domain.TicketStatusClosed, updated.Status)

	open := domain.TicketStatusOpen
	updated, err = s.svc.Update(s.ctx, customerU1, ticket.ID, TicketUpdateInput{Status: &open})
	s.Require().NoError(err)
	s.Equal(domain.TicketStatusOpen, updated.Status)
	s.Contains(s.eventTypes(), events.EventTicketStatusChanged)
}

func (s *TicketServiceSuite) TestFullUpdateValidation() {
	ticket := s.createAs(customerU1, "Printer broken")
	empty := ""
	badPriority := domain.TicketPriority("Urgent")
	badStatus := domain.TicketStatus("Done")

	_, err := s.svc.Update(s.ctx, customerU1, ticket.ID, TicketUpdateInput{Title: &empty})
	s.requireCode(err, apperrors.CodeValidation)
	_, err = s.svc.Update(s.ctx, customerU1, ticket.ID, TicketUpdateInput{Priority: &badPriority})
	s.requireCode(err, apperrors.CodeValidation)
	_, err = s.svc.Update(s.ctx, customerU1, ticket.ID, TicketUpdateInput{Status: &badStatus})
	s.requireCode(err, apperrors.CodeValidation)
	_, err = s.svc.Update(s.ctx, customerU1, "missing", TicketUpdateInput{})
	s.requireCode(err, apperrors.CodeNotFound)
}

func (s *TicketServiceSuite) TestDelete() {
	ticket := s.createAs(customerU1, "Printer broken")

	err := s.svc.Delete(s.ctx, customerU1, ticket.ID)
	s.requireCode(err, apperrors.CodeForbidden)

	s.Require().NoError(s.svc.Delete(s.ctx, adminA1, ticket.ID))
	for _, p := range []*domain.Principal{customerU1, customerU2, adminA1} {
		_, err := s.svc.Get(s.ctx, p, ticket.ID)
		s.requireCode(err, apperrors.CodeNotFound)
	}

	err = s.svc.Delete(s.ctx, adminA1, ticket.ID)
	s.requireCode(err, apperrors.CodeNotFound)
	s.Contains(s.eventTypes(), events.EventTicketDeleted)
}

func (s *TicketServiceSuite) TestAddComment() {
	ticket := s.createAs(customerU1, "Printer broken")

	updated, err := s.svc.AddComment(s.ctx, customerU1, ticket.ID, "  first  ")
	s.Require().NoError(err)
	s.Require().Len(updated.Comments, 1)
	s.Equal("Uma", updated.Comments[0].Author)
	s.Equal("first", updated.Comments[0].Text)

	updated, err = s.svc.AddComment(s.ctx, customerU2, ticket.ID, "second")
	s.Require().NoError(err)
	s.Require().Len(updated.Comments, 2)
	s.Equal("u2", updated.Comments[1].Author)
	s.Equal("first", updated.Comments[0].Text)

	_, err = s.svc.AddComment(s.ctx, customerU1, ticket.ID, "  ")
	s.requireCode(err, apperrors.CodeValidation)

	_, err = s.svc.AddComment(s.ctx, customerU1, "missing", "")
	s.requireCode(err, apperrors.CodeNotFound)

	_, err = s.svc.AddComment(s.ctx, nil, ticket.ID, "hi")
	s.requireCode(err, apperrors.CodeUnauthenticated)
}

func (s *TicketServiceSuite) TestCommentsSurviveUpdates() {
	ticket := s.createAs(customerU1, "Printer broken")
	_, err := s.svc.AddComment(s.ctx, customerU1, ticket.ID, "keep me")
	s.Require().NoError(err)

	title := "renamed"
	updated, err := s.svc.Update(s.ctx, adminA1, ticket.ID, TicketUpdateInput{Title: &title})
	s.Require().NoError(err)
	s.Require().Len(updated.Comments, 1)
	s.Equal("keep me", updated.Comments[0].Text)
}

func (s *TicketServiceSuite) TestReopenConfigAddsClosedToOpen() {
	svc := NewTicketService(TicketDependencies{
		TicketRepo: s.repo,
		Workflow:   workflow.NewEngine(config.WorkflowConfig{ReopenClosed: true}.Table()),
	})
	ticket := s.createAs(customerU1, "Printer broken")
	s.forceStatus(ticket.ID, domain.TicketStatusClosed, "")

	updated, err := svc.TransitionStatus(s.ctx, customerU1, ticket.ID, StatusChangeInput{Status: domain.TicketStatusOpen})
	s.Require().NoError(err)
	s.Equal(domain.TicketStatusOpen, updated.Status)
}
