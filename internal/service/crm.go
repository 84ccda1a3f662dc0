package service

import (
	"context"
	"errors"

	"wacrm/internal/domain"
	"wacrm/internal/providers/whatsapp"
	"wacrm/internal/store"
	"wacrm/internal/util"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrContactNotFound  = errors.New("contact not found")
)

type Store interface {
	InsertActions(ctx context.Context, ins []store.NewAction) error
	ListActions(ctx context.Context, createdBy string, limit, offset int) ([]store.ActionListItem, error)

	InsertContact(ctx context.Context, c domain.Contact) error
	GetContact(ctx context.Context, id, createdBy string) (domain.Contact, bool, error)
	ListContacts(ctx context.Context, profileID string, limit, offset int) ([]domain.Contact, error)
	UpdateContact(ctx context.Context, c domain.Contact) (bool, error)
	DeleteContact(ctx context.Context, id, createdBy string) (bool, error)

	InsertProfile(ctx context.Context, p domain.Profile) error
	GetProfile(ctx context.Context, id string) (domain.Profile, bool, error)
	ListProfiles(ctx context.Context, createdBy string) ([]domain.Profile, error)
	UpdateProfile(ctx context.Context, p domain.Profile) (bool, error)
	DeleteProfile(ctx context.Context, id, createdBy string) (bool, error)

	UpsertTemplates(ctx context.Context, tpls []domain.Template) error
	GetTemplate(ctx context.Context, id, createdBy string) (domain.Template, bool, error)
	ListTemplates(ctx context.Context, profileID string) ([]domain.Template, error)
}

type TemplateLister interface {
	ListMessageTemplates(ctx context.Context, creds whatsapp.Credentials) ([]whatsapp.TemplateDefinition, error)
}

type CRMService struct {
	Store Store
	Graph TemplateLister
}

// QueueTemplateMessage creates one PENDING action per known recipient.
// Unknown contact ids are skipped, matching the queueing form's behavior of
// tolerating stale recipient lists. Returns the number of actions queued.
func (s *CRMService) QueueTemplateMessage(ctx context.Context, req domain.QueueTemplateMessageRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	tpl, found, err := s.Store.GetTemplate(ctx, req.TemplateID, req.CreatedBy)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrTemplateNotFound
	}

	now := util.NowUTC()
	var ins []store.NewAction
	for _, rcpt := range req.Recipients {
		contact, found, err := s.Store.GetContact(ctx, rcpt.ContactID, req.CreatedBy)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		ins = append(ins, store.NewAction{
			ID:         util.NewActionID(),
			Type:       domain.ActionSendTemplateMessage,
			ContactID:  contact.ID,
			ProfileID:  tpl.ProfileID,
			TemplateID: tpl.ID,
			CreatedBy:  req.CreatedBy,
			Data:       domain.ActionData{Components: rcpt.Components},
			Now:        now,
		})
	}
	if err := s.Store.InsertActions(ctx, ins); err != nil {
		return 0, err
	}
	return len(ins), nil
}

// SyncTemplates pulls the profile's template definitions from the Graph API
// and upserts the APPROVED ones. Returns the number of templates synced.
func (s *CRMService) SyncTemplates(ctx context.Context, profileID, createdBy string) (int, error) {
	profile, found, err := s.Store.GetProfile(ctx, profileID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrProfileNotFound
	}

	defs, err := s.Graph.ListMessageTemplates(ctx, whatsapp.Credentials{
		AccessToken:   profile.AccessToken,
		PhoneNumberID: profile.PhoneNumberID,
		BusinessID:    profile.BusinessID,
	})
	if err != nil {
		return 0, err
	}

	var tpls []domain.Template
	for _, def := range defs {
		if def.Status != "APPROVED" {
			continue
		}
		tpls = append(tpls, domain.Template{
			ID:         def.ID,
			Name:       def.Name,
			Language:   def.Language,
			Status:     def.Status,
			Category:   def.Category,
			Components: def.Components,
			ProfileID:  profile.ID,
			CreatedBy:  createdBy,
		})
	}
	if err := s.Store.UpsertTemplates(ctx, tpls); err != nil {
		return 0, err
	}
	return len(tpls), nil
}

func (s *CRMService) CreateContact(ctx context.Context, c domain.Contact) (domain.Contact, error) {
	c.ID = util.NewContactID()
	c.Phone = util.NormalizePhone(c.Phone)
	if c.Country == "" {
		c.Country = "KW"
	}
	c.CreatedAt = util.NowUTC()
	if err := s.Store.InsertContact(ctx, c); err != nil {
		return domain.Contact{}, err
	}
	return c, nil
}

func (s *CRMService) UpdateContact(ctx context.Context, c domain.Contact) error {
	c.Phone = util.NormalizePhone(c.Phone)
	ok, err := s.Store.UpdateContact(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		return ErrContactNotFound
	}
	return nil
}

func (s *CRMService) DeleteContact(ctx context.Context, id, createdBy string) error {
	ok, err := s.Store.DeleteContact(ctx, id, createdBy)
	if err != nil {
		return err
	}
	if !ok {
		return ErrContactNotFound
	}
	return nil
}

func (s *CRMService) CreateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	p.ID = util.NewProfileID()
	p.CreatedAt = util.NowUTC()
	if err := s.Store.InsertProfile(ctx, p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (s *CRMService) UpdateProfile(ctx context.Context, p domain.Profile) error {
	ok, err := s.Store.UpdateProfile(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProfileNotFound
	}
	return nil
}

func (s *CRMService) DeleteProfile(ctx context.Context, id, createdBy string) error {
	ok, err := s.Store.DeleteProfile(ctx, id, createdBy)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProfileNotFound
	}
	return nil
}
