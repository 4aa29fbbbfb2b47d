// Package workflow holds the ticket status state machine.
package workflow

import (
	"sort"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// Table maps a status to the statuses reachable from it in one step.
type Table map[domain.TicketStatus][]domain.TicketStatus

// DefaultTable returns the default transition table. Closed is terminal.
func DefaultTable() Table {
	return Table{
		domain.TicketStatusOpen:       {domain.TicketStatusInProgress},
		domain.TicketStatusInProgress: {domain.TicketStatusResolved, domain.TicketStatusOpen},
		domain.TicketStatusResolved:   {domain.TicketStatusClosed, domain.TicketStatusInProgress},
		domain.TicketStatusClosed:     {},
	}
}

// With returns a copy of t that also allows from -> to.
func (t Table) With(from, to domain.TicketStatus) Table {
	out := make(Table, len(t)+1)
	for k, targets := range t {
		out[k] = append([]domain.TicketStatus(nil), targets...)
	}
	out[from] = append(out[from], to)
	return out
}

// Engine answers transition questions against an immutable table.
type Engine struct {
	edges map[domain.TicketStatus]map[domain.TicketStatus]struct{}
}

// NewEngine copies table so later changes to it have no effect.
func NewEngine(table Table) *Engine {
	edges := make(map[domain.TicketStatus]map[domain.TicketStatus]struct{}, len(table))
	for from, targets := range table {
		set := make(map[domain.TicketStatus]struct{}, len(targets))
		for _, to := range targets {
			if to == from {
				continue
			}
			set[to] = struct{}{}
		}
		edges[from] = set
	}
	return &Engine{edges: edges}
}

// CanTransition reports whether next is an outgoing edge of current.
func (e *Engine) CanTransition(current, next domain.TicketStatus) bool {
	targets, ok := e.edges[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

// Targets returns the statuses reachable from current in workflow order.
func (e *Engine) Targets(current domain.TicketStatus) []domain.TicketStatus {
	targets := make([]domain.TicketStatus, 0, len(e.edges[current]))
	for to := range e.edges[current] {
		targets = append(targets, to)
	}
	sort.Slice(targets, func(i, j int) bool {
		return statusOrder(targets[i]) < statusOrder(targets[j])
	})
	return targets
}

// Table returns a copy of the transition table, suitable for clients that
// mirror the state machine.
func (e *Engine) Table() Table {
	out := make(Table, len(e.edges))
	for from := range e.edges {
		out[from] = e.Targets(from)
	}
	return out
}

// Reachable returns every status reachable from start, start included.
func (e *Engine) Reachable(start domain.TicketStatus) map[domain.TicketStatus]bool {
	seen := map[domain.TicketStatus]bool{start: true}
	queue := []domain.TicketStatus{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for to := range e.edges[cur] {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	return seen
}

func statusOrder(s domain.TicketStatus) int {
	for i, candidate := range domain.TicketStatuses {
		if candidate == s {
			return i
		}
	}
	return len(domain.TicketStatuses)
}
