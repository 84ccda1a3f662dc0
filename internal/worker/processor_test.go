package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"wacrm/internal/domain"
	"wacrm/internal/providers/whatsapp"
	"wacrm/internal/store"
)

type recordingStore struct {
	mu      sync.Mutex
	updates []store.ActionResult
	failErr error
}

func (s *recordingStore) UpdateActionResult(ctx context.Context, in store.ActionResult) (domain.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return domain.Action{}, s.failErr
	}
	s.updates = append(s.updates, in)
	return domain.Action{
		ID:          in.ID,
		Status:      in.Status,
		ActivityLog: in.ActivityLog,
		UpdatedAt:   in.Now,
	}, nil
}

func pendingSendAction(id string) store.PendingAction {
	return store.PendingAction{
		Action: domain.Action{
			ID:     id,
			Type:   domain.ActionSendTemplateMessage,
			Status: domain.StatusPending,
			Data:   domain.ActionData{Components: []map[string]any{}},
		},
		Contact:  &domain.Contact{ID: "ct_1", Phone: "+96550001111"},
		Profile:  &domain.Profile{ID: "pr_1", AccessToken: "tok", PhoneNumberID: "pn", BusinessID: "biz"},
		Template: &domain.Template{ID: "tpl_1", Name: "welcome", Language: "en_US"},
	}
}

func newProcessor(s ResultStore, h Handler) *Processor {
	return &Processor{
		Store:    s,
		Handlers: map[domain.ActionType]Handler{domain.ActionSendTemplateMessage: h},
		Now:      func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestProcessSuccess(t *testing.T) {
	rs := &recordingStore{}
	p := newProcessor(rs, func(ctx context.Context, act *store.PendingAction) error { return nil })

	updated, err := p.Process(context.Background(), pendingSendAction("act_1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if updated.Status != domain.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", updated.Status)
	}
	if len(updated.ActivityLog) != 1 {
		t.Fatalf("expected 1 activity entry, got %d", len(updated.ActivityLog))
	}
	entry := updated.ActivityLog[0]
	if entry.Status != domain.StatusSuccess {
		t.Fatalf("entry status = %s", entry.Status)
	}
	if !strings.Contains(entry.Message, "+96550001111") {
		t.Fatalf("entry message should name the recipient phone, got %q", entry.Message)
	}
	if len(rs.updates) != 1 {
		t.Fatalf("expected exactly one persist, got %d", len(rs.updates))
	}
}

func TestProcessFailureCapturesProviderMessage(t *testing.T) {
	rs := &recordingStore{}
	p := newProcessor(rs, func(ctx context.Context, act *store.PendingAction) error {
		return &whatsapp.APIError{StatusCode: 400, Message: "Invalid phone number"}
	})

	act := pendingSendAction("act_1")
	act.Action.ActivityLog = []domain.Activity{{Status: domain.StatusFailed, Message: "earlier attempt"}}

	updated, err := p.Process(context.Background(), act)
	if err != nil {
		t.Fatalf("handler failures must not escape Process: %v", err)
	}
	if updated.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", updated.Status)
	}
	if len(updated.ActivityLog) != 2 {
		t.Fatalf("expected log to grow by exactly one entry, got %d", len(updated.ActivityLog))
	}
	last := updated.ActivityLog[len(updated.ActivityLog)-1]
	if !strings.Contains(last.Message, "Invalid phone number") {
		t.Fatalf("expected provider message in log entry, got %q", last.Message)
	}
	if !strings.Contains(last.Message, "+96550001111") {
		t.Fatalf("expected recipient phone in log entry, got %q", last.Message)
	}
	if last.Error == "" {
		t.Fatal("expected captured error detail")
	}
	if len(rs.updates) != 1 {
		t.Fatalf("expected exactly one persist, got %d", len(rs.updates))
	}
}

func TestProcessUnknownActionType(t *testing.T) {
	rs := &recordingStore{}
	p := &Processor{Store: rs, Handlers: map[domain.ActionType]Handler{}}

	act := pendingSendAction("act_1")
	act.Action.Type = "SEND_CAROUSEL"

	updated, err := p.Process(context.Background(), act)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if updated.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", updated.Status)
	}
	if len(rs.updates) != 1 {
		t.Fatalf("expected exactly one persist, got %d", len(rs.updates))
	}
}

func TestProcessStoreFailurePropagates(t *testing.T) {
	rs := &recordingStore{failErr: errors.New("connection refused")}
	p := newProcessor(rs, func(ctx context.Context, act *store.PendingAction) error { return nil })

	if _, err := p.Process(context.Background(), pendingSendAction("act_1")); err == nil {
		t.Fatal("expected store failure to propagate")
	}
}

func TestSendTemplateHandlerMissingRelations(t *testing.T) {
	h := &SendTemplateHandler{Sender: senderFunc(func() error { return nil })}

	act := pendingSendAction("act_1")
	act.Template = nil
	if err := h.Handle(context.Background(), &act); err == nil {
		t.Fatal("expected error for missing template")
	}

	act = pendingSendAction("act_2")
	act.Profile = nil
	if err := h.Handle(context.Background(), &act); err == nil {
		t.Fatal("expected error for missing profile")
	}
}

type senderFunc func() error

func (f senderFunc) SendTemplateMessage(ctx context.Context, creds whatsapp.Credentials, to string, tpl whatsapp.TemplateRef, components []map[string]any) error {
	return f()
}
