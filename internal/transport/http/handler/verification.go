package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/erinder/internal/domain"
	"github.com/erinder/internal/pkg/validate"
	"github.com/erinder/internal/transport/http/middleware"
)

// CodeManager issues and checks verification codes.
type CodeManager interface {
	Issue(ctx context.Context, subjectKey string) error
	Validate(ctx context.Context, subjectKey, code string) error
	Status(ctx context.Context, subjectKey string) (*domain.User, error)
}

// VerificationHandler handles email verification endpoints.
type VerificationHandler struct {
	codes CodeManager
}

func NewVerificationHandler(codes CodeManager) *VerificationHandler {
	return &VerificationHandler{codes: codes}
}

func (h *VerificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.SendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpError(w, err)
		return
	}
	if err := h.codes.Issue(r.Context(), req.Email); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
}

func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpError(w, err)
		return
	}
	if err := h.codes.Validate(r.Context(), req.Email, req.Code); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email verified"})
}

// Status reports whether an email is verified. An authenticated caller may only
// look up the email in their own token.
func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if c, ok := middleware.ClaimsFromContext(r.Context()); ok {
		if c.Email == "" || (email != "" && !strings.EqualFold(email, c.Email)) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		email = c.Email
	}
	u, err := h.codes.Status(r.Context(), email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
