package handler

import (
	"context"
	"net/http"

	"github.com/erinder/internal/application/reminder"
	"github.com/erinder/internal/domain"
	"github.com/erinder/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// ReminderHandler handles reminder CRUD endpoints. Requests carrying JWT
// claims are scoped to the token's user.
type ReminderHandler struct {
	svc reminder.Service
}

func NewReminderHandler(svc reminder.Service) *ReminderHandler { return &ReminderHandler{svc: svc} }

func ownerFrom(ctx context.Context) string {
	if c, ok := middleware.ClaimsFromContext(ctx); ok {
		return c.UserID
	}
	return ""
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	rems, err := h.svc.List(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rems)
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input domain.CreateReminderRequest
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.svc.Create(r.Context(), ownerFrom(r.Context()), input)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	rem, err := h.svc.Get(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input domain.UpdateReminderRequest
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := h.svc.Update(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"), input)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "reminder deleted"})
}

func (h *ReminderHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteAll(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeletedEnvelope{Message: "reminders deleted", Deleted: n})
}
