package service

import (
	"context"
	"errors"
	"testing"

	"wacrm/internal/domain"
	"wacrm/internal/providers/whatsapp"
	"wacrm/internal/store"
)

type fakeStore struct {
	Store

	templates map[string]domain.Template
	contacts  map[string]domain.Contact
	profiles  map[string]domain.Profile

	insertedActions []store.NewAction
	upserted        []domain.Template
}

func (f *fakeStore) GetTemplate(ctx context.Context, id, createdBy string) (domain.Template, bool, error) {
	t, ok := f.templates[id]
	return t, ok, nil
}

func (f *fakeStore) GetContact(ctx context.Context, id, createdBy string) (domain.Contact, bool, error) {
	c, ok := f.contacts[id]
	return c, ok, nil
}

func (f *fakeStore) GetProfile(ctx context.Context, id string) (domain.Profile, bool, error) {
	p, ok := f.profiles[id]
	return p, ok, nil
}

func (f *fakeStore) InsertActions(ctx context.Context, ins []store.NewAction) error {
	f.insertedActions = append(f.insertedActions, ins...)
	return nil
}

func (f *fakeStore) UpsertTemplates(ctx context.Context, tpls []domain.Template) error {
	f.upserted = append(f.upserted, tpls...)
	return nil
}

type fakeGraph struct {
	defs []whatsapp.TemplateDefinition
	err  error
}

func (f *fakeGraph) ListMessageTemplates(ctx context.Context, creds whatsapp.Credentials) ([]whatsapp.TemplateDefinition, error) {
	return f.defs, f.err
}

func TestQueueTemplateMessage(t *testing.T) {
	fs := &fakeStore{
		templates: map[string]domain.Template{
			"tpl_1": {ID: "tpl_1", Name: "welcome", ProfileID: "pr_1"},
		},
		contacts: map[string]domain.Contact{
			"ct_1": {ID: "ct_1", Phone: "+96550001111"},
			"ct_2": {ID: "ct_2", Phone: "+96550002222"},
		},
	}
	svc := &CRMService{Store: fs}

	queued, err := svc.QueueTemplateMessage(context.Background(), domain.QueueTemplateMessageRequest{
		TemplateID: "tpl_1",
		CreatedBy:  "user-1",
		Recipients: []domain.Recipient{
			{ContactID: "ct_1", Components: []map[string]any{{"type": "body"}}},
			{ContactID: "ct_missing"},
			{ContactID: "ct_2"},
		},
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2 (unknown contact skipped)", queued)
	}
	if len(fs.insertedActions) != 2 {
		t.Fatalf("inserted %d actions", len(fs.insertedActions))
	}
	first := fs.insertedActions[0]
	if first.Type != domain.ActionSendTemplateMessage {
		t.Fatalf("type = %s", first.Type)
	}
	if first.ProfileID != "pr_1" || first.TemplateID != "tpl_1" || first.ContactID != "ct_1" {
		t.Fatalf("unexpected action wiring: %+v", first)
	}
	if len(first.Data.Components) != 1 {
		t.Fatalf("components not carried through: %+v", first.Data)
	}
}

func TestQueueTemplateMessageUnknownTemplate(t *testing.T) {
	svc := &CRMService{Store: &fakeStore{templates: map[string]domain.Template{}}}

	_, err := svc.QueueTemplateMessage(context.Background(), domain.QueueTemplateMessageRequest{
		TemplateID: "tpl_nope",
		Recipients: []domain.Recipient{{ContactID: "ct_1"}},
	})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestSyncTemplatesKeepsApprovedOnly(t *testing.T) {
	fs := &fakeStore{
		profiles: map[string]domain.Profile{
			"pr_1": {ID: "pr_1", AccessToken: "tok", BusinessID: "biz"},
		},
	}
	graph := &fakeGraph{defs: []whatsapp.TemplateDefinition{
		{ID: "1", Name: "welcome", Status: "APPROVED", Language: "en_US"},
		{ID: "2", Name: "draft", Status: "PENDING", Language: "en_US"},
		{ID: "3", Name: "promo", Status: "APPROVED", Language: "ar"},
	}}
	svc := &CRMService{Store: fs, Graph: graph}

	n, err := svc.SyncTemplates(context.Background(), "pr_1", "user-1")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 2 {
		t.Fatalf("synced = %d, want 2", n)
	}
	for _, tpl := range fs.upserted {
		if tpl.Status != "APPROVED" {
			t.Fatalf("non-approved template upserted: %+v", tpl)
		}
		if tpl.ProfileID != "pr_1" {
			t.Fatalf("template not bound to profile: %+v", tpl)
		}
	}
}

func TestSyncTemplatesUnknownProfile(t *testing.T) {
	svc := &CRMService{Store: &fakeStore{profiles: map[string]domain.Profile{}}, Graph: &fakeGraph{}}
	if _, err := svc.SyncTemplates(context.Background(), "pr_nope", "user-1"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}
