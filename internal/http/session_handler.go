package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/sessionboard/internal/application"
)

type sessionService interface {
	Create(ctx context.Context, principal application.Principal, params application.CreateSessionParams) (application.SessionView, error)
	Get(ctx context.Context, viewer application.Principal, id string) (application.SessionView, error)
	List(ctx context.Context, viewer application.Principal, cursor string, limit int) (application.SessionPage, error)
	Edit(ctx context.Context, principal application.Principal, id string, params application.EditSessionParams) (application.SessionView, error)
	Cancel(ctx context.Context, principal application.Principal, id string) (application.SessionView, error)
	Delete(ctx context.Context, principal application.Principal, id string) error
}

type membershipLedger interface {
	Join(ctx context.Context, principal application.Principal, sessionID string) (application.JoinOutcome, error)
	Leave(ctx context.Context, principal application.Principal, sessionID string) (bool, error)
}

// SessionHandler serves the session lifecycle and membership endpoints.
type SessionHandler struct {
	sessions    sessionService
	memberships membershipLedger
	responder   responder
	logger      *slog.Logger
}

func NewSessionHandler(sessions sessionService, memberships membershipLedger, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{sessions: sessions, memberships: memberships, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.sessions == nil || h.memberships == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, fieldProblem("limit", "limit must be a number"))
			return
		}
		limit = parsed
	}

	page, err := h.sessions.List(r.Context(), principalOf(r.Context()), strings.TrimSpace(query.Get("cursor")), limit)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{
		Sessions:   toSessionDTOs(page.Sessions),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.badRequest(r.Context(), w, err)
		return
	}
	params, err := req.toParams()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	view, err := h.sessions.Create(r.Context(), principalOf(r.Context()), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.renderSession(r.Context(), w, view, http.StatusCreated)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	view, err := h.sessions.Get(r.Context(), principalOf(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.renderSession(r.Context(), w, view, http.StatusOK)
}

func (h *SessionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req editSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.badRequest(r.Context(), w, err)
		return
	}

	view, err := h.sessions.Edit(r.Context(), principalOf(r.Context()), chi.URLParam(r, "sessionID"), application.EditSessionParams{
		Title:           req.Title,
		Body:            req.Body,
		VoiceChannelURL: req.VoiceChannelURL,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.renderSession(r.Context(), w, view, http.StatusOK)
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	view, err := h.sessions.Cancel(r.Context(), principalOf(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.renderSession(r.Context(), w, view, http.StatusOK)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	if err := h.sessions.Delete(r.Context(), principalOf(r.Context()), chi.URLParam(r, "sessionID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Join renders refusals (full, cancelled, past, creator, already a member)
// as errors and the refreshed session on success.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal := principalOf(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	outcome, err := h.memberships.Join(r.Context(), principal, sessionID)
	if err == nil && !outcome.OK() {
		err = outcome.Err()
	}
	if err != nil {
		handlerLogger(r.Context(), h.logger, "SessionHandler", "Join", "session_id", sessionID).
			DebugContext(r.Context(), "join refused", "outcome", outcome.String())
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	view, err := h.sessions.Get(r.Context(), principal, sessionID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.renderSession(r.Context(), w, view, http.StatusOK)
}

func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal := principalOf(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	left, err := h.memberships.Leave(r.Context(), principal, sessionID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	view, err := h.sessions.Get(r.Context(), principal, sessionID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, leaveResponse{Left: left, Session: toSessionDTO(view)})
}

func (h *SessionHandler) renderSession(ctx context.Context, w http.ResponseWriter, view application.SessionView, status int) {
	h.responder.writeJSON(ctx, w, status, sessionResponse{Session: toSessionDTO(view)})
}

type createSessionRequest struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	Start           string `json:"start"`
	End             string `json:"end"`
	AttendeeLimit   int    `json:"attendee_limit"`
	VoiceChannelURL string `json:"voice_channel_url"`
}

func (r createSessionRequest) toParams() (application.CreateSessionParams, error) {
	vErr := &application.ValidationError{}
	start, ok := parseTime(r.Start)
	if !ok {
		vErr.FieldErrors = append(vErr.FieldErrors, application.FieldError{Field: "start", Message: "start must be an RFC 3339 timestamp"})
	}
	end, ok := parseTime(r.End)
	if !ok {
		vErr.FieldErrors = append(vErr.FieldErrors, application.FieldError{Field: "end", Message: "end must be an RFC 3339 timestamp"})
	}
	if vErr.HasErrors() {
		return application.CreateSessionParams{}, vErr
	}
	return application.CreateSessionParams{
		Title:           r.Title,
		Body:            r.Body,
		Start:           start,
		End:             end,
		AttendeeLimit:   r.AttendeeLimit,
		VoiceChannelURL: r.VoiceChannelURL,
	}, nil
}

type editSessionRequest struct {
	Title           *string `json:"title"`
	Body            *string `json:"body"`
	VoiceChannelURL *string `json:"voice_channel_url"`
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type leaveResponse struct {
	Left    bool       `json:"left"`
	Session sessionDTO `json:"session"`
}

type listSessionsResponse struct {
	Sessions   []sessionDTO `json:"sessions"`
	NextCursor string       `json:"next_cursor,omitempty"`
	HasMore    bool         `json:"has_more"`
}

type sessionDTO struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	TextSnippet     string          `json:"text_snippet"`
	Start           string          `json:"start"`
	End             string          `json:"end"`
	AttendeeLimit   int             `json:"attendee_limit"`
	AttendeeCount   int             `json:"attendee_count"`
	CreatorID       string          `json:"creator_id"`
	IsCancelled     bool            `json:"is_cancelled"`
	VoiceChannelURL string          `json:"voice_channel_url,omitempty"`
	Status          string          `json:"status"`
	IsMember        bool            `json:"is_member"`
	Capabilities    capabilitiesDTO `json:"capabilities"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

type capabilitiesDTO struct {
	CanEdit    bool `json:"can_edit"`
	CanCancel  bool `json:"can_cancel"`
	CanDelete  bool `json:"can_delete"`
	CanJoin    bool `json:"can_join"`
	CanLeave   bool `json:"can_leave"`
	CanComment bool `json:"can_comment"`
}

func toSessionDTO(view application.SessionView) sessionDTO {
	return sessionDTO{
		ID:              view.ID,
		Title:           view.Title,
		Body:            view.Body,
		TextSnippet:     view.TextSnippet,
		Start:           view.Start.UTC().Format(time.RFC3339Nano),
		End:             view.End.UTC().Format(time.RFC3339Nano),
		AttendeeLimit:   view.AttendeeLimit,
		AttendeeCount:   view.AttendeeCount,
		CreatorID:       view.CreatorID,
		IsCancelled:     view.IsCancelled,
		VoiceChannelURL: view.VoiceChannelURL,
		Status:          string(view.Status),
		IsMember:        view.IsMember,
		Capabilities: capabilitiesDTO{
			CanEdit:    view.Capabilities.CanEdit,
			CanCancel:  view.Capabilities.CanCancel,
			CanDelete:  view.Capabilities.CanDelete,
			CanJoin:    view.Capabilities.CanJoin,
			CanLeave:   view.Capabilities.CanLeave,
			CanComment: view.Capabilities.CanComment,
		},
		CreatedAt: view.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: view.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toSessionDTOs(views []application.SessionView) []sessionDTO {
	out := make([]sessionDTO, 0, len(views))
	for _, view := range views {
		out = append(out, toSessionDTO(view))
	}
	return out
}
