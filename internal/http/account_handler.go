package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/sessionboard/internal/application"
)

type accountDirectory interface {
	Me(ctx context.Context, principal application.Principal) (application.Actor, error)
	GetActor(ctx context.Context, viewer application.Principal, id string) (application.Actor, error)
}

type accountEraser interface {
	EraseAccount(ctx context.Context, principal application.Principal) error
}

// AccountHandler serves /api/me and actor profiles.
type AccountHandler struct {
	directory    accountDirectory
	eraser       accountEraser
	responder    responder
	logger       *slog.Logger
	secureCookie bool
}

func NewAccountHandler(directory accountDirectory, eraser accountEraser, secureCookie bool, logger *slog.Logger) *AccountHandler {
	base := defaultLogger(logger)
	return &AccountHandler{
		directory:    directory,
		eraser:       eraser,
		responder:    newResponder(base),
		logger:       base,
		secureCookie: secureCookie,
	}
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.directory == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	actor, err := h.directory.Me(r.Context(), principalOf(r.Context()))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, actorResponse{Actor: toActorDTO(actor)})
}

// DeleteMe erases the calling account. Every binding of the actor is gone
// afterwards, so the cookie is cleared too.
func (h *AccountHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.eraser == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal := principalOf(r.Context())
	if err := h.eraser.EraseAccount(r.Context(), principal); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	clearSessionCookie(w, h.secureCookie)
	handlerLogger(r.Context(), h.logger, "AccountHandler", "DeleteMe").InfoContext(r.Context(), "account erased")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AccountHandler) GetActor(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.directory == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	actor, err := h.directory.GetActor(r.Context(), principalOf(r.Context()), chi.URLParam(r, "actorID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, actorResponse{Actor: toActorDTO(actor)})
}

type actorResponse struct {
	Actor actorDTO `json:"actor"`
}

type actorDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toActorDTO(actor application.Actor) actorDTO {
	return actorDTO{
		ID:          actor.ID,
		DisplayName: actor.DisplayName,
		Email:       actor.Email,
		CreatedAt:   actor.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   actor.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
