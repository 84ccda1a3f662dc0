package domain

import (
	"errors"
	"time"
)

type ActionType string

const (
	ActionSendTemplateMessage ActionType = "SEND_TEMPLATE_MESSAGE"
)

type ActionStatus string

const (
	StatusPending ActionStatus = "PENDING"
	StatusSuccess ActionStatus = "SUCCESS"
	StatusFailed  ActionStatus = "FAILED"
)

// Activity is one entry in an action's append-only processing history.
type Activity struct {
	Timestamp time.Time    `json:"timestamp"`
	Status    ActionStatus `json:"status"`
	Message   string       `json:"message"`
	Error     string       `json:"error,omitempty"`
}

// ActionData carries the type-specific payload. For SEND_TEMPLATE_MESSAGE
// this is the ordered component substitutions for the template.
type ActionData struct {
	Components []map[string]any `json:"components"`
}

type Action struct {
	ID          string       `json:"id"`
	Type        ActionType   `json:"type"`
	Status      ActionStatus `json:"status"`
	Data        ActionData   `json:"data"`
	ContactID   string       `json:"contactId"`
	ProfileID   string       `json:"profileId"`
	TemplateID  string       `json:"templateId,omitempty"`
	CreatedBy   string       `json:"createdBy"`
	ActivityLog []Activity   `json:"activityLog"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Country   string    `json:"country"`
	Address   string    `json:"address"`
	ProfileID string    `json:"profileId"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile bundles the Cloud API credentials for one sender number.
type Profile struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AccessToken   string    `json:"accessToken"`
	PhoneNumberID string    `json:"phoneNumberId"`
	BusinessID    string    `json:"businessId"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Template is a provider-defined message template synced from the Graph API.
// Its id is the provider's template id, not one of ours.
type Template struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Language   string           `json:"language"`
	Status     string           `json:"status"`
	Category   string           `json:"category"`
	Components []map[string]any `json:"components"`
	ProfileID  string           `json:"profileId"`
	CreatedBy  string           `json:"createdBy"`
}

type QueueTemplateMessageRequest struct {
	TemplateID string      `json:"templateId"`
	CreatedBy  string      `json:"createdBy"`
	Recipients []Recipient `json:"recipients"`
}

type Recipient struct {
	ContactID  string           `json:"contactId"`
	Components []map[string]any `json:"components"`
}

func (r QueueTemplateMessageRequest) Validate() error {
	if r.TemplateID == "" || len(r.Recipients) == 0 {
		return ErrMissingFields
	}
	return nil
}

var ErrMissingFields = errors.New("missing required fields")
