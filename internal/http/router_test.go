package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sessionboard/internal/metrics"
	"github.com/example/sessionboard/internal/testfixtures"
)

type testAPI struct {
	t       *testing.T
	svc     *testfixtures.Services
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	svc := testfixtures.NewServiceFactory().Build(t)
	registry := metrics.NewRegistry()
	handler := NewRouter(RouterConfig{
		Auth:           NewAuthHandler(svc.Directory, false, nil),
		Accounts:       NewAccountHandler(svc.Directory, svc.Erasure, false, nil),
		Sessions:       NewSessionHandler(svc.Sessions, svc.Memberships, nil),
		Comments:       NewCommentHandler(svc.Comments, nil),
		Resolver:       svc.Directory,
		Health:         svc.Harness.Pool,
		Metrics:        registry.Handler(),
		AllowedOrigins: []string{"http://localhost:5173"},
		Middleware:     []func(http.Handler) http.Handler{registry.Middleware},
	})
	return &testAPI{t: t, svc: svc, handler: handler}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) signup(name string) authResponse {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":     name,
		"email":    name + "@x.com",
		"password": "longenough1",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[authResponse](a.t, rec)
}

func (a *testAPI) createSession(token string, limit int) sessionDTO {
	a.t.Helper()
	start := a.svc.Clock.Now().Add(time.Hour)
	rec := a.do(http.MethodPost, "/api/sessions", token, map[string]any{
		"title":          "Standup",
		"body":           "daily sync",
		"start":          start.Format(time.RFC3339),
		"end":            start.Add(time.Hour).Format(time.RFC3339),
		"attendee_limit": limit,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionResponse](a.t, rec).Session
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSignupBindsCookieAndToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "alice", "email": "alice@x.com", "password": "longenough1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[authResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, resp.Token, rec.Header().Get("X-Session-Token"))
	assert.Equal(t, "alice@x.com", resp.Actor.Email)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	// The cookie alone identifies the caller.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	api.handler.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	assert.Equal(t, resp.Actor.ID, decode[actorResponse](t, me).Actor.ID)
}

func TestSignupConflictReportsField(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice")

	rec := api.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "ALICE", "email": "other@x.com", "password": "longenough1",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, codeAlreadyExists, resp.ErrorCode)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "name", resp.Errors[0].Field)
	assert.Equal(t, "name is already taken", resp.Errors[0].Message)
}

func TestLoginAndLogout(t *testing.T) {
	api := newTestAPI(t)
	api.signup("bob")

	rec := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"name_or_email": "bob@x.com", "password": "longenough1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[authResponse](t, rec).Token

	bad := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"name_or_email": "bob", "password": "wrong-password"})
	require.Equal(t, http.StatusBadRequest, bad.Code)
	resp := decode[errorResponse](t, bad)
	assert.Equal(t, codeValidation, resp.ErrorCode)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "password", resp.Errors[0].Field)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/me", token, nil).Code)

	out := api.do(http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, out.Code)
	cookies := out.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	// The revoked token now resolves to an anonymous caller.
	me := api.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, me.Code)
	assert.Equal(t, codeUnauthenticated, decode[errorResponse](t, me).ErrorCode)

	// Logging out twice is harmless.
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodPost, "/api/auth/logout", token, nil).Code)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/auth/login", "", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeBadRequest, decode[errorResponse](t, rec).ErrorCode)
}

func TestActorEmailIsRedactedForOthers(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup("alice")
	bob := api.signup("bob")

	rec := api.do(http.MethodGet, "/api/actors/"+alice.Actor.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	actor := decode[actorResponse](t, rec).Actor
	assert.Equal(t, "alice", actor.DisplayName)
	assert.Empty(t, actor.Email)

	own := decode[actorResponse](t, api.do(http.MethodGet, "/api/actors/"+alice.Actor.ID, alice.Token, nil)).Actor
	assert.Equal(t, "alice@x.com", own.Email)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/actors/missing", "", nil).Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	host := api.signup("host")
	guest := api.signup("guest")

	anon := api.do(http.MethodPost, "/api/sessions", "", map[string]any{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, anon.Code)
	assert.Equal(t, codeUnauthenticated, decode[errorResponse](t, anon).ErrorCode)

	session := api.createSession(host.Token, 5)
	assert.Equal(t, "UPCOMING", session.Status)
	assert.True(t, session.Capabilities.CanEdit)
	assert.False(t, session.Capabilities.CanJoin)

	rec := api.do(http.MethodGet, "/api/sessions/"+session.ID, guest.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	seen := decode[sessionResponse](t, rec).Session
	assert.True(t, seen.Capabilities.CanJoin)
	assert.False(t, seen.Capabilities.CanEdit)

	forbidden := api.do(http.MethodPatch, "/api/sessions/"+session.ID, guest.Token, map[string]string{"title": "Hijack"})
	require.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Equal(t, codeForbidden, decode[errorResponse](t, forbidden).ErrorCode)

	edited := api.do(http.MethodPatch, "/api/sessions/"+session.ID, host.Token, map[string]string{"title": "Retro"})
	require.Equal(t, http.StatusOK, edited.Code, edited.Body.String())
	assert.Equal(t, "Retro", decode[sessionResponse](t, edited).Session.Title)
	assert.Equal(t, "daily sync", decode[sessionResponse](t, edited).Session.Body)

	cancelled := api.do(http.MethodPost, "/api/sessions/"+session.ID+"/cancel", host.Token, nil)
	require.Equal(t, http.StatusOK, cancelled.Code)
	assert.True(t, decode[sessionResponse](t, cancelled).Session.IsCancelled)

	join := api.do(http.MethodPost, "/api/sessions/"+session.ID+"/join", guest.Token, nil)
	require.Equal(t, http.StatusConflict, join.Code)
	assert.Equal(t, codeSessionCancelled, decode[errorResponse](t, join).ErrorCode)

	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/sessions/"+session.ID, host.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/sessions/"+session.ID, host.Token, nil).Code)
}

func TestCreateSessionValidation(t *testing.T) {
	api := newTestAPI(t)
	host := api.signup("host")

	rec := api.do(http.MethodPost, "/api/sessions", host.Token, map[string]any{
		"title":          "Standup",
		"start":          "tomorrow",
		"end":            api.svc.Clock.Now().Add(2 * time.Hour).Format(time.RFC3339),
		"attendee_limit": 3,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, codeValidation, resp.ErrorCode)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "start", resp.Errors[0].Field)

	past := api.svc.Clock.Now().Add(-time.Hour)
	rec = api.do(http.MethodPost, "/api/sessions", host.Token, map[string]any{
		"title":          "",
		"start":          past.Format(time.RFC3339),
		"end":            past.Add(time.Hour).Format(time.RFC3339),
		"attendee_limit": 0,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := map[string]string{}
	for _, fe := range decode[errorResponse](t, rec).Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "title is required", fields["title"])
	assert.Equal(t, "attendee limit must be at least 1", fields["attendeeLimit"])
	assert.Equal(t, "start cannot be in the past", fields["start"])
}

func TestJoinAndLeaveOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	host := api.signup("host")
	first := api.signup("first")
	second := api.signup("second")

	session := api.createSession(host.Token, 1)
	path := "/api/sessions/" + session.ID

	creator := api.do(http.MethodPost, path+"/join", host.Token, nil)
	require.Equal(t, http.StatusBadRequest, creator.Code)
	assert.Equal(t, "session", decode[errorResponse](t, creator).Errors[0].Field)

	joined := api.do(http.MethodPost, path+"/join", first.Token, nil)
	require.Equal(t, http.StatusOK, joined.Code, joined.Body.String())
	view := decode[sessionResponse](t, joined).Session
	assert.True(t, view.IsMember)
	assert.Equal(t, 1, view.AttendeeCount)
	assert.True(t, view.Capabilities.CanLeave)

	again := api.do(http.MethodPost, path+"/join", first.Token, nil)
	require.Equal(t, http.StatusConflict, again.Code)
	assert.Equal(t, codeAlreadyExists, decode[errorResponse](t, again).ErrorCode)

	full := api.do(http.MethodPost, path+"/join", second.Token, nil)
	require.Equal(t, http.StatusConflict, full.Code)
	assert.Equal(t, codeSessionFull, decode[errorResponse](t, full).ErrorCode)

	left := api.do(http.MethodPost, path+"/leave", first.Token, nil)
	require.Equal(t, http.StatusOK, left.Code)
	leave := decode[leaveResponse](t, left)
	assert.True(t, leave.Left)
	assert.Equal(t, 0, leave.Session.AttendeeCount)

	noop := decode[leaveResponse](t, api.do(http.MethodPost, path+"/leave", first.Token, nil))
	assert.False(t, noop.Left)

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, path+"/join", second.Token, nil).Code)

	api.svc.Clock.Advance(3 * time.Hour)
	past := api.do(http.MethodPost, path+"/join", first.Token, nil)
	require.Equal(t, http.StatusConflict, past.Code)
	assert.Equal(t, codeSessionPast, decode[errorResponse](t, past).ErrorCode)
}

func TestListSessionsPaginates(t *testing.T) {
	api := newTestAPI(t)
	host := api.signup("host")
	for i := 0; i < 3; i++ {
		api.createSession(host.Token, 2)
		api.svc.Clock.Advance(time.Second)
	}

	first := decode[listSessionsResponse](t, api.do(http.MethodGet, "/api/sessions?limit=2", "", nil))
	require.Len(t, first.Sessions, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)

	second := decode[listSessionsResponse](t, api.do(http.MethodGet, "/api/sessions?limit=2&cursor="+first.NextCursor, "", nil))
	require.Len(t, second.Sessions, 1)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextCursor)

	bad := api.do(http.MethodGet, "/api/sessions?limit=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "limit", decode[errorResponse](t, bad).Errors[0].Field)

	cursor := api.do(http.MethodGet, "/api/sessions?cursor=invalid!", "", nil)
	require.Equal(t, http.StatusBadRequest, cursor.Code)
	assert.Equal(t, "invalid cursor", decode[errorResponse](t, cursor).Errors[0].Message)

	// A stale token does not block public reads.
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/sessions", "stale-token", nil).Code)
}

func TestCommentsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	host := api.signup("host")
	guest := api.signup("guest")
	session := api.createSession(host.Token, 3)
	path := "/api/sessions/" + session.ID + "/comments"

	empty := api.do(http.MethodPost, path, guest.Token, map[string]string{"text": "   "})
	require.Equal(t, http.StatusBadRequest, empty.Code)
	assert.Equal(t, "comment cannot be empty", decode[errorResponse](t, empty).Errors[0].Message)

	rec := api.do(http.MethodPost, path, guest.Token, map[string]string{"text": "see you there"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	comment := decode[commentResponse](t, rec).Comment
	assert.Equal(t, guest.Actor.ID, comment.CreatorID)

	list := decode[listCommentsResponse](t, api.do(http.MethodGet, path, "", nil))
	require.Len(t, list.Comments, 1)
	assert.Equal(t, "see you there", list.Comments[0].Text)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, "/api/comments/"+comment.ID, host.Token, nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/comments/"+comment.ID, guest.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/sessions/missing/comments", "", nil).Code)
}

func TestPasswordRecoveryOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.signup("carol")

	unknown := api.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "nobody@x.com"})
	require.Equal(t, http.StatusNoContent, unknown.Code)
	require.Empty(t, api.svc.Mailer.Sent())

	rec := api.do(http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "carol@x.com"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	sent := api.svc.Mailer.Sent()
	require.Len(t, sent, 1)
	_, rest, ok := strings.Cut(sent[0].Body, "/change-password/")
	require.True(t, ok, sent[0].Body)
	token, _, _ := strings.Cut(rest, `"`)

	changed := api.do(http.MethodPost, "/api/auth/change-password", "", map[string]string{"token": token, "new_password": "brand-new-pass"})
	require.Equal(t, http.StatusOK, changed.Code, changed.Body.String())
	assert.NotEmpty(t, decode[authResponse](t, changed).Token)

	reused := api.do(http.MethodPost, "/api/auth/change-password", "", map[string]string{"token": token, "new_password": "brand-new-pass"})
	require.Equal(t, http.StatusBadRequest, reused.Code)
	resp := decode[errorResponse](t, reused)
	assert.Equal(t, codeTokenExpired, resp.ErrorCode)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "token is expired", resp.Errors[0].Message)

	login := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"name_or_email": "carol", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, login.Code)
}

func TestDeleteMeErasesAccount(t *testing.T) {
	api := newTestAPI(t)
	host := api.signup("host")
	guest := api.signup("guest")
	session := api.createSession(guest.Token, 3)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/sessions/"+session.ID+"/join", host.Token, nil).Code)

	rec := api.do(http.MethodDelete, "/api/me", guest.Token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/me", guest.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/sessions/"+session.ID, host.Token, nil).Code)

	login := api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"name_or_email": "guest", "password": "longenough1"})
	require.Equal(t, http.StatusBadRequest, login.Code)
	assert.Equal(t, "nameOrEmail", decode[errorResponse](t, login).Errors[0].Field)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	health := api.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok"}`, health.Body.String())

	api.do(http.MethodGet, "/api/sessions", "", nil)
	rec := api.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sessionboard_http_request_duration_seconds_count{method="GET",route="/api/sessions`)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
