package models

import "time"

// IssueStatus is the triage state of a reported issue.
type IssueStatus string

const (
	IssueOpen      IssueStatus = "OPEN"
	IssueInReview  IssueStatus = "IN_REVIEW"
	IssueResolved  IssueStatus = "RESOLVED"
	IssueDismissed IssueStatus = "DISMISSED"
)

// CanTransition reports whether moving to next is a legal triage step.
func (s IssueStatus) CanTransition(next IssueStatus) bool {
	switch s {
	case IssueOpen:
		return next == IssueInReview || next == IssueDismissed
	case IssueInReview:
		return next == IssueResolved || next == IssueDismissed
	default:
		return false
	}
}

// IssueCategory classifies a report for triage routing.
type IssueCategory string

const (
	IssueCategoryDevice  IssueCategory = "DEVICE"
	IssueCategoryNetwork IssueCategory = "NETWORK"
	IssueCategoryAccount IssueCategory = "ACCOUNT"
	IssueCategoryOther   IssueCategory = "OTHER"
)

// Issue is a citizen-reported problem triaged by administrators.
type Issue struct {
	ID         string        `db:"id" json:"id"`
	ReporterID string        `db:"reporter_id" json:"reporter_id"`
	GatewayID  *string       `db:"gateway_id" json:"gateway_id,omitempty"`
	Subject    string        `db:"subject" json:"subject"`
	Body       string        `db:"body" json:"body"`
	Category   IssueCategory `db:"category" json:"category"`
	Status     IssueStatus   `db:"status" json:"status"`
	AssigneeID *string       `db:"assignee_id" json:"assignee_id,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// CreateIssueRequest holds the payload for opening an issue.
type CreateIssueRequest struct {
	Subject   string        `json:"subject" validate:"required,max=200"`
	Body      string        `json:"body" validate:"required"`
	Category  IssueCategory `json:"category" validate:"required,oneof=DEVICE NETWORK ACCOUNT OTHER"`
	GatewayID *string       `json:"gateway_id"`
}

// UpdateIssueStatusRequest moves an issue through triage.
type UpdateIssueStatusRequest struct {
	Status IssueStatus `json:"status" validate:"required,oneof=IN_REVIEW RESOLVED DISMISSED"`
}

// IssueFilter captures list criteria for issues.
type IssueFilter struct {
	ReporterID string
	Status     *IssueStatus
	Category   *IssueCategory
	Page       int
	PageSize   int
}
