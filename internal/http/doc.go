// Package http exposes the sessionboard services as a JSON API on a chi router.
//
// The router exposes the following endpoints:
//   - POST /api/auth/signup, POST /api/auth/login: bind a new identity. Body:
//     {"name","email","password"} or {"name_or_email","password"}. Response:
//     {"actor","token","expires_at"} with the token also surfaced via the
//     `X-Session-Token` header and a `session_token` cookie.
//   - POST /api/auth/logout: revokes the token carried by the request and
//     clears the cookie. Always 204.
//   - POST /api/auth/forgot-password {"email"}: mails a recovery link. The
//     response is 204 whether or not the address is registered.
//   - POST /api/auth/change-password {"token","new_password"}: consumes a
//     recovery token and binds a fresh identity like login does.
//   - GET /api/me, DELETE /api/me: the calling actor; DELETE erases the
//     account with everything it owns.
//   - GET /api/actors/{actorID}: any actor, email redacted for others.
//   - GET /api/sessions?cursor=&limit=, POST /api/sessions,
//     GET|PATCH|DELETE /api/sessions/{sessionID},
//     POST /api/sessions/{sessionID}/{cancel,join,leave}: session lifecycle
//     and membership, exchanging the `sessionDTO` payload in session_handler.go.
//   - GET|POST /api/sessions/{sessionID}/comments, DELETE /api/comments/{commentID}.
//   - GET /healthz, GET /metrics.
//
// Failures are rendered as {"error_code","message","errors":[{"field","message"}]}.
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
