package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wacrm/internal/domain"
	"wacrm/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// CountUnfinishedActions returns the number of actions still eligible for
// processing, i.e. everything not yet SUCCESS.
func (s *Store) CountUnfinishedActions(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT count(*) FROM actions WHERE status <> 'SUCCESS'`).Scan(&n)
	return n, err
}

// ListUnfinishedActionIDs snapshots the ids of every unfinished action in a
// stable order. The runner pages over this snapshot so that actions flipping
// to SUCCESS or FAILED mid-run cannot shift later pages.
func (s *Store) ListUnfinishedActionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM actions WHERE status <> 'SUCCESS' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetActionsByIDs hydrates one snapshot page with its contact, profile and
// template rows. Actions deleted since the snapshot are silently absent.
func (s *Store) GetActionsByIDs(ctx context.Context, ids []string) ([]store.PendingAction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, `
		SELECT a.id, a.type, a.status, a.data, a.contact_id, a.profile_id,
		       COALESCE(a.template_id,''), a.created_by, a.activity_log, a.created_at, a.updated_at,
		       c.id, c.name, c.phone, c.country, c.address, c.profile_id, c.created_by, c.created_at,
		       p.id, p.name, p.access_token, p.phone_number_id, p.business_id, p.created_by, p.created_at,
		       t.id, t.name, t.language, t.status, t.category, t.components, t.profile_id, t.created_by
		FROM actions a
		JOIN contacts c ON c.id = a.contact_id
		JOIN profiles p ON p.id = a.profile_id
		LEFT JOIN templates t ON t.id = a.template_id
		WHERE a.id = ANY($1)
		ORDER BY a.id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.PendingAction
	for rows.Next() {
		var (
			pa            store.PendingAction
			dataJSON      []byte
			logJSON       []byte
			contact       domain.Contact
			profile       domain.Profile
			tplID         *string
			tplName       *string
			tplLang       *string
			tplStatus     *string
			tplCategory   *string
			tplComponents []byte
			tplProfileID  *string
			tplCreatedBy  *string
		)
		err := rows.Scan(
			&pa.Action.ID, &pa.Action.Type, &pa.Action.Status, &dataJSON,
			&pa.Action.ContactID, &pa.Action.ProfileID, &pa.Action.TemplateID,
			&pa.Action.CreatedBy, &logJSON, &pa.Action.CreatedAt, &pa.Action.UpdatedAt,
			&contact.ID, &contact.Name, &contact.Phone, &contact.Country,
			&contact.Address, &contact.ProfileID, &contact.CreatedBy, &contact.CreatedAt,
			&profile.ID, &profile.Name, &profile.AccessToken, &profile.PhoneNumberID,
			&profile.BusinessID, &profile.CreatedBy, &profile.CreatedAt,
			&tplID, &tplName, &tplLang, &tplStatus, &tplCategory, &tplComponents,
			&tplProfileID, &tplCreatedBy,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(dataJSON, &pa.Action.Data); err != nil {
			return nil, fmt.Errorf("decode action data for %s: %w", pa.Action.ID, err)
		}
		if err := json.Unmarshal(logJSON, &pa.Action.ActivityLog); err != nil {
			return nil, fmt.Errorf("decode activity log for %s: %w", pa.Action.ID, err)
		}
		pa.Contact = &contact
		pa.Profile = &profile
		if tplID != nil {
			tpl := domain.Template{
				ID:        *tplID,
				Name:      *tplName,
				Language:  *tplLang,
				Status:    *tplStatus,
				Category:  *tplCategory,
				ProfileID: *tplProfileID,
				CreatedBy: *tplCreatedBy,
			}
			if len(tplComponents) > 0 {
				_ = json.Unmarshal(tplComponents, &tpl.Components)
			}
			pa.Template = &tpl
		}
		out = append(out, pa)
	}
	return out, rows.Err()
}

// UpdateActionResult persists the outcome of one processing attempt: the new
// status and the full activity log, in one write.
func (s *Store) UpdateActionResult(ctx context.Context, in store.ActionResult) (domain.Action, error) {
	logJSON, err := json.Marshal(in.ActivityLog)
	if err != nil {
		return domain.Action{}, err
	}

	var (
		act      domain.Action
		dataJSON []byte
		outLog   []byte
	)
	row := s.DB.QueryRow(ctx, `
		UPDATE actions SET status=$2, activity_log=$3, updated_at=$4
		WHERE id=$1
		RETURNING id, type, status, data, contact_id, profile_id, COALESCE(template_id,''),
		          created_by, activity_log, created_at, updated_at
	`, in.ID, in.Status, logJSON, in.Now)
	err = row.Scan(&act.ID, &act.Type, &act.Status, &dataJSON, &act.ContactID, &act.ProfileID,
		&act.TemplateID, &act.CreatedBy, &outLog, &act.CreatedAt, &act.UpdatedAt)
	if err != nil {
		return domain.Action{}, err
	}
	_ = json.Unmarshal(dataJSON, &act.Data)
	_ = json.Unmarshal(outLog, &act.ActivityLog)
	return act, nil
}

func (s *Store) InsertActions(ctx context.Context, ins []store.NewAction) error {
	if len(ins) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, in := range ins {
		dataJSON, err := json.Marshal(in.Data)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO actions (id, type, status, data, contact_id, profile_id, template_id, created_by, activity_log, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'[]',$9,$9)
		`, in.ID, in.Type, domain.StatusPending, dataJSON, in.ContactID, in.ProfileID,
			nullIfEmpty(in.TemplateID), in.CreatedBy, in.Now)
	}
	br := s.DB.SendBatch(ctx, batch)
	defer br.Close()
	for range ins {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListActions(ctx context.Context, createdBy string, limit, offset int) ([]store.ActionListItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT a.id, a.type, a.status, a.data, a.contact_id, a.profile_id, COALESCE(a.template_id,''),
		       a.created_by, a.activity_log, a.created_at, a.updated_at,
		       c.name, c.phone, COALESCE(t.name,'')
		FROM actions a
		JOIN contacts c ON c.id = a.contact_id
		LEFT JOIN templates t ON t.id = a.template_id
		WHERE a.created_by = $1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $2 OFFSET $3
	`, createdBy, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ActionListItem
	for rows.Next() {
		var (
			item     store.ActionListItem
			dataJSON []byte
			logJSON  []byte
		)
		err := rows.Scan(&item.Action.ID, &item.Action.Type, &item.Action.Status, &dataJSON,
			&item.Action.ContactID, &item.Action.ProfileID, &item.Action.TemplateID,
			&item.Action.CreatedBy, &logJSON, &item.Action.CreatedAt, &item.Action.UpdatedAt,
			&item.ContactName, &item.ContactPhone, &item.TemplateName)
		if err != nil {
			return nil, err
		}
		_ = json.Unmarshal(dataJSON, &item.Action.Data)
		_ = json.Unmarshal(logJSON, &item.Action.ActivityLog)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) InsertContact(ctx context.Context, c domain.Contact) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO contacts (id, name, phone, country, address, profile_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Name, c.Phone, c.Country, c.Address, c.ProfileID, c.CreatedBy, c.CreatedAt)
	return err
}

func (s *Store) GetContact(ctx context.Context, id, createdBy string) (domain.Contact, bool, error) {
	var c domain.Contact
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, phone, country, address, profile_id, created_by, created_at
		FROM contacts WHERE id=$1 AND created_by=$2
	`, id, createdBy)
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Country, &c.Address, &c.ProfileID, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contact{}, false, nil
		}
		return domain.Contact{}, false, err
	}
	return c, true, nil
}

func (s *Store) ListContacts(ctx context.Context, profileID string, limit, offset int) ([]domain.Contact, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, phone, country, address, profile_id, created_by, created_at
		FROM contacts WHERE profile_id=$1
		ORDER BY name, id
		LIMIT $2 OFFSET $3
	`, profileID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Country, &c.Address, &c.ProfileID, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateContact(ctx context.Context, c domain.Contact) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE contacts SET name=$2, phone=$3, country=$4, address=$5
		WHERE id=$1 AND created_by=$6
	`, c.ID, c.Name, c.Phone, c.Country, c.Address, c.CreatedBy)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) DeleteContact(ctx context.Context, id, createdBy string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM contacts WHERE id=$1 AND created_by=$2`, id, createdBy)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) InsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO profiles (id, name, access_token, phone_number_id, business_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.Name, p.AccessToken, p.PhoneNumberID, p.BusinessID, p.CreatedBy, p.CreatedAt)
	return err
}

func (s *Store) GetProfile(ctx context.Context, id string) (domain.Profile, bool, error) {
	var p domain.Profile
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, access_token, phone_number_id, business_id, created_by, created_at
		FROM profiles WHERE id=$1
	`, id)
	err := row.Scan(&p.ID, &p.Name, &p.AccessToken, &p.PhoneNumberID, &p.BusinessID, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, false, nil
		}
		return domain.Profile{}, false, err
	}
	return p, true, nil
}

func (s *Store) ListProfiles(ctx context.Context, createdBy string) ([]domain.Profile, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, access_token, phone_number_id, business_id, created_by, created_at
		FROM profiles WHERE created_by=$1
		ORDER BY name, id
	`, createdBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.AccessToken, &p.PhoneNumberID, &p.BusinessID, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProfile(ctx context.Context, p domain.Profile) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE profiles SET name=$2, access_token=$3, phone_number_id=$4, business_id=$5
		WHERE id=$1 AND created_by=$6
	`, p.ID, p.Name, p.AccessToken, p.PhoneNumberID, p.BusinessID, p.CreatedBy)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) DeleteProfile(ctx context.Context, id, createdBy string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM profiles WHERE id=$1 AND created_by=$2`, id, createdBy)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// UpsertTemplates replaces synced template definitions in place, keyed by the
// provider's template id.
func (s *Store) UpsertTemplates(ctx context.Context, tpls []domain.Template) error {
	if len(tpls) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range tpls {
		compJSON, err := json.Marshal(t.Components)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO templates (id, name, language, status, category, components, profile_id, created_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET
				name=excluded.name, language=excluded.language, status=excluded.status,
				category=excluded.category, components=excluded.components
		`, t.ID, t.Name, t.Language, t.Status, t.Category, compJSON, t.ProfileID, t.CreatedBy)
	}
	br := s.DB.SendBatch(ctx, batch)
	defer br.Close()
	for range tpls {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id, createdBy string) (domain.Template, bool, error) {
	var (
		t        domain.Template
		compJSON []byte
	)
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, language, status, category, components, profile_id, created_by
		FROM templates WHERE id=$1 AND created_by=$2
	`, id, createdBy)
	err := row.Scan(&t.ID, &t.Name, &t.Language, &t.Status, &t.Category, &compJSON, &t.ProfileID, &t.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Template{}, false, nil
		}
		return domain.Template{}, false, err
	}
	_ = json.Unmarshal(compJSON, &t.Components)
	return t, true, nil
}

func (s *Store) ListTemplates(ctx context.Context, profileID string) ([]domain.Template, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, language, status, category, components, profile_id, created_by
		FROM templates WHERE profile_id=$1
		ORDER BY name, id
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		var (
			t        domain.Template
			compJSON []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Language, &t.Status, &t.Category, &compJSON, &t.ProfileID, &t.CreatedBy); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(compJSON, &t.Components)
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
