package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"wacrm/internal/domain"
	"wacrm/internal/observability"
	"wacrm/internal/service"
	"wacrm/internal/worker"
)

type API struct {
	Svc       *service.CRMService
	Scheduler *worker.Scheduler

	// Shared secret for the trigger endpoint; empty disables the check.
	TriggerToken string
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/profiles", a.handleCreateProfile).Methods(http.MethodPost)
	r.HandleFunc("/v1/profiles", a.handleListProfiles).Methods(http.MethodGet)
	r.HandleFunc("/v1/profiles/{id}", a.handleUpdateProfile).Methods(http.MethodPut)
	r.HandleFunc("/v1/profiles/{id}", a.handleDeleteProfile).Methods(http.MethodDelete)
	r.HandleFunc("/v1/profiles/{id}/templates", a.handleListTemplates).Methods(http.MethodGet)
	r.HandleFunc("/v1/profiles/{id}/templates/sync", a.handleSyncTemplates).Methods(http.MethodPost)

	r.HandleFunc("/v1/contacts", a.handleCreateContact).Methods(http.MethodPost)
	r.HandleFunc("/v1/contacts", a.handleListContacts).Methods(http.MethodGet)
	r.HandleFunc("/v1/contacts/{id}", a.handleUpdateContact).Methods(http.MethodPut)
	r.HandleFunc("/v1/contacts/{id}", a.handleDeleteContact).Methods(http.MethodDelete)

	r.HandleFunc("/v1/actions/send-template", a.handleQueueTemplateMessage).Methods(http.MethodPost)
	r.HandleFunc("/v1/actions/process", a.handleProcessPending).Methods(http.MethodPost)
	r.HandleFunc("/v1/actions", a.handleListActions).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 20
	page := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	return limit, (page - 1) * limit
}

func (a *API) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if p.Name == "" || p.AccessToken == "" || p.PhoneNumberID == "" || p.BusinessID == "" {
		http.Error(w, "missing fields", http.StatusBadRequest)
		return
	}
	p.CreatedBy = userID(r)

	created, err := a.Svc.CreateProfile(r.Context(), p)
	if err != nil {
		slog.Error("create profile failed", "err", err)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := a.Svc.Store.ListProfiles(r.Context(), userID(r))
	if err != nil {
		slog.Error("list profiles failed", "err", err)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	p.ID = mux.Vars(r)["id"]
	p.CreatedBy = userID(r)

	if err := a.Svc.UpdateProfile(r.Context(), p); err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		slog.Error("update profile failed", "err", err, "id", p.ID)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.Svc.DeleteProfile(r.Context(), id, userID(r)); err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		slog.Error("delete profile failed", "err", err, "id", id)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := a.Svc.Store.ListTemplates(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		slog.Error("list templates failed", "err", err)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, tpls)
}

func (a *API) handleSyncTemplates(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, err := a.Svc.SyncTemplates(r.Context(), id, userID(r))
	if err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		slog.Error("template sync failed", "err", err, "profile_id", id)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": n})
}

func (a *API) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var c domain.Contact
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if c.Name == "" || c.Phone == "" || c.ProfileID == "" {
		http.Error(w, "missing fields", http.StatusBadRequest)
		return
	}
	c.CreatedBy = userID(r)

	created, err := a.Svc.CreateContact(r.Context(), c)
	if err != nil {
		slog.Error("create contact failed", "err", err)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleListContacts(w http.ResponseWriter, r *http.Request) {
	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		http.Error(w, "missing profile_id", http.StatusBadRequest)
		return
	}
	limit, offset := pageParams(r)
	contacts, err := a.Svc.Store.ListContacts(r.Context(), profileID, limit, offset)
	if err != nil {
		slog.Error("list contacts failed", "err", err)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (a *API) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var c domain.Contact
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	c.ID = mux.Vars(r)["id"]
	c.CreatedBy = userID(r)

	if err := a.Svc.UpdateContact(r.Context(), c); err != nil {
		if errors.Is(err, service.ErrContactNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		slog.Error("update contact failed", "err", err, "id", c.ID)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.Svc.DeleteContact(r.Context(), id, userID(r)); err != nil {
		if errors.Is(err, service.ErrContactNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		slog.Error("delete contact failed", "err", err, "id", id)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleQueueTemplateMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.QueueTemplateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.APIRequests.WithLabelValues("/v1/actions/send-template", "400").Inc()
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.CreatedBy = userID(r)

	queued, err := a.Svc.QueueTemplateMessage(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMissingFields):
			observability.APIRequests.WithLabelValues("/v1/actions/send-template", "400").Inc()
			http.Error(w, "missing fields", http.StatusBadRequest)
		case errors.Is(err, service.ErrTemplateNotFound):
			observability.APIRequests.WithLabelValues("/v1/actions/send-template", "404").Inc()
			http.Error(w, "template not found", http.StatusNotFound)
		default:
			slog.Error("queue template message failed", "err", err, "template_id", req.TemplateID)
			observability.APIRequests.WithLabelValues("/v1/actions/send-template", "502").Inc()
			http.Error(w, "db error", http.StatusBadGateway)
		}
		return
	}

	observability.APIRequests.WithLabelValues("/v1/actions/send-template", "202").Inc()
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (a *API) handleListActions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	items, err := a.Svc.Store.ListActions(r.Context(), userID(r), limit, offset)
	if err != nil {
		slog.Error("list actions failed", "err", err)
		http.Error(w, "db error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
