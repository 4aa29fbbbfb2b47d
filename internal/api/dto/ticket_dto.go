package dto

import (
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=Low Medium High"`
}

// UpdateTicketRequest lists every mutable field. Absent fields stay nil.
// Values are checked by the service only for the fields it applies.
type UpdateTicketRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	Assignee    *string `json:"assignee"`
}

// StatusChangeRequest payload for PATCH /tickets/:id/status.
type StatusChangeRequest struct {
	Status   string  `json:"status" validate:"required,oneof=Open In-Progress Resolved Closed"`
	Assignee *string `json:"assignee"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text string `json:"text"`
}

// CommentResponse represents one comment.
type CommentResponse struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	Reporter    string                `json:"reporter"`
	Assignee    string                `json:"assignee"`
	Comments    []CommentResponse     `json:"comments"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// NewTicketResponse maps a domain ticket to its wire form.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	comments := make([]CommentResponse, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, CommentResponse{Author: c.Author, Text: c.Text, CreatedAt: c.CreatedAt})
	}
	return TicketResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      t.Status,
		Reporter:    t.Reporter,
		Assignee:    t.Assignee,
		Comments:    comments,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTicketListResponse maps a listing.
func NewTicketListResponse(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}
