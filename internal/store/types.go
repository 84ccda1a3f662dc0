package store

import (
	"time"

	"wacrm/internal/domain"
)

// PendingAction is an action hydrated with the rows the processor needs.
// Contact and Profile are never nil for a well-formed row; Template may be
// nil when the action type does not require one.
type PendingAction struct {
	Action   domain.Action
	Contact  *domain.Contact
	Profile  *domain.Profile
	Template *domain.Template
}

type ActionResult struct {
	ID          string
	Status      domain.ActionStatus
	ActivityLog []domain.Activity
	Now         time.Time
}

type NewAction struct {
	ID         string
	Type       domain.ActionType
	ContactID  string
	ProfileID  string
	TemplateID string
	CreatedBy  string
	Data       domain.ActionData
	Now        time.Time
}

// ActionListItem is the listing view: the action plus lightweight summaries
// of the recipient and template for table rendering.
type ActionListItem struct {
	Action       domain.Action
	ContactName  string
	ContactPhone string
	TemplateName string
}
