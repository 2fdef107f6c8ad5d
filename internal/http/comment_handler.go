package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/sessionboard/internal/application"
)

type commentService interface {
	Add(ctx context.Context, principal application.Principal, sessionID, text string) (application.Comment, error)
	Delete(ctx context.Context, principal application.Principal, commentID string) error
	List(ctx context.Context, sessionID string) ([]application.Comment, error)
}

type CommentHandler struct {
	service   commentService
	responder responder
}

func NewCommentHandler(service commentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{service: service, responder: newResponder(logger)}
}

func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	comments, err := h.service.List(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]commentDTO, 0, len(comments))
	for _, c := range comments {
		out = append(out, toCommentDTO(c))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listCommentsResponse{Comments: out})
}

func (h *CommentHandler) Add(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.badRequest(r.Context(), w, err)
		return
	}

	comment, err := h.service.Add(r.Context(), principalOf(r.Context()), chi.URLParam(r, "sessionID"), req.Text)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, commentResponse{Comment: toCommentDTO(comment)})
}

func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.service.Delete(r.Context(), principalOf(r.Context()), chi.URLParam(r, "commentID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type commentRequest struct {
	Text string `json:"text"`
}

type commentResponse struct {
	Comment commentDTO `json:"comment"`
}

type listCommentsResponse struct {
	Comments []commentDTO `json:"comments"`
}

type commentDTO struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	CreatorID string `json:"creator_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toCommentDTO(c application.Comment) commentDTO {
	return commentDTO{
		ID:        c.ID,
		Text:      c.Text,
		SessionID: c.SessionID,
		CreatorID: c.CreatorID,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
