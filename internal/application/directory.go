package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/sessionboard/internal/persistence"
)

// RecoveryTokenPrefix namespaces password recovery keys in the token store.
const RecoveryTokenPrefix = "forget-password:"

// PasswordHasher hashes and verifies actor passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// Mailer delivers an HTML message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// DirectoryDeps wires an ActorDirectory.
type DirectoryDeps struct {
	Actors         persistence.ActorRepository
	AuthSessions   persistence.AuthSessionRepository
	Tokens         *ExpiringTokenStore
	Hasher         PasswordHasher
	Mailer         Mailer
	IDGenerator    func() string
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	RecoveryTTL    time.Duration
	PublicURL      string
	Logger         *slog.Logger
	Observer       OperationObserver
}

// ActorDirectory owns accounts, credentials and session-context bindings.
type ActorDirectory struct {
	actors         persistence.ActorRepository
	authSessions   persistence.AuthSessionRepository
	tokens         *ExpiringTokenStore
	hasher         PasswordHasher
	mailer         Mailer
	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	recoveryTTL    time.Duration
	publicURL      string
	logger         *slog.Logger
	observer       OperationObserver
}

// NewActorDirectory constructs an ActorDirectory, filling unset optional
// dependencies with defaults.
func NewActorDirectory(deps DirectoryDeps) *ActorDirectory {
	d := &ActorDirectory{
		actors:         deps.Actors,
		authSessions:   deps.AuthSessions,
		tokens:         deps.Tokens,
		hasher:         deps.Hasher,
		mailer:         deps.Mailer,
		idGenerator:    deps.IDGenerator,
		tokenGenerator: deps.TokenGenerator,
		now:            deps.Now,
		sessionTTL:     deps.SessionTTL,
		recoveryTTL:    deps.RecoveryTTL,
		publicURL:      strings.TrimRight(deps.PublicURL, "/"),
		logger:         defaultLogger(deps.Logger),
		observer:       defaultObserver(deps.Observer),
	}
	if d.hasher == nil {
		d.hasher = NewCredentialHasher(DefaultArgon2idParams)
	}
	if d.idGenerator == nil {
		d.idGenerator = RandomToken
	}
	if d.tokenGenerator == nil {
		d.tokenGenerator = RandomToken
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.sessionTTL <= 0 {
		d.sessionTTL = 30 * 24 * time.Hour
	}
	if d.recoveryTTL <= 0 {
		d.recoveryTTL = 72 * time.Hour
	}
	return d
}

func (d *ActorDirectory) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, d.logger, "ActorDirectory", operation, attrs...)
}

func (d *ActorDirectory) ready() error {
	if d == nil {
		return fmt.Errorf("ActorDirectory is nil")
	}
	if d.actors == nil || d.authSessions == nil {
		return fmt.Errorf("actor directory repositories not configured")
	}
	return nil
}

// Signup registers a new actor and binds it to a fresh session context.
// When both name and email are taken the name conflict is reported.
func (d *ActorDirectory) Signup(ctx context.Context, params SignupParams) (result AuthResult, err error) {
	if err = d.ready(); err != nil {
		return
	}
	logger := d.loggerWith(ctx, "Signup", "name", strings.TrimSpace(params.Name))
	defer func() {
		if err == nil {
			logger = logger.With("actor_id", result.Actor.ID)
		}
		finish(ctx, logger, d.observer, "ActorDirectory", "Signup", err)
	}()

	if vErr := validateSignup(params); vErr.HasErrors() {
		err = vErr
		return
	}
	name := strings.TrimSpace(params.Name)
	email := strings.TrimSpace(params.Email)

	if err = d.ensureAvailable(ctx, name, email); err != nil {
		return
	}

	var hash string
	hash, err = d.hasher.Hash(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := d.now()
	actor := Actor{
		ID:           d.idGenerator(),
		DisplayName:  name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = d.actors.CreateActor(ctx, toPersistenceActor(actor)); err != nil {
		// A concurrent signup may have claimed the name or email after the
		// availability check; the unique index decides.
		if field, ok := persistence.DuplicateField(err); ok && (field == "name" || field == "email") {
			err = newConflict(field, field+" is already taken")
			return
		}
		err = mapRepoError(err)
		return
	}

	var session AuthSession
	session, err = d.bind(ctx, actor.ID)
	if err != nil {
		return
	}
	result = AuthResult{Actor: actor.visibleTo(Principal{ActorID: actor.ID}), Session: session}
	return
}

func (d *ActorDirectory) ensureAvailable(ctx context.Context, name, email string) error {
	if _, err := d.actors.GetActorByName(ctx, name); err == nil {
		return newConflict("name", "name is already taken")
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return mapRepoError(err)
	}
	if _, err := d.actors.GetActorByEmail(ctx, email); err == nil {
		return newConflict("email", "email is already taken")
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return mapRepoError(err)
	}
	return nil
}

// Login resolves an actor by email (input containing "@") or by
// case-insensitive name and binds it to a fresh session context.
func (d *ActorDirectory) Login(ctx context.Context, params LoginParams) (result AuthResult, err error) {
	if err = d.ready(); err != nil {
		return
	}
	logger := d.loggerWith(ctx, "Login")
	defer func() {
		if err == nil {
			logger = logger.With("actor_id", result.Actor.ID)
		}
		finish(ctx, logger, d.observer, "ActorDirectory", "Login", err)
	}()

	identifier := strings.TrimSpace(params.NameOrEmail)
	var model persistence.Actor
	if strings.Contains(identifier, "@") {
		model, err = d.actors.GetActorByEmail(ctx, identifier)
	} else {
		model, err = d.actors.GetActorByName(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = fieldError("nameOrEmail", "name or email doesn't exist")
			return
		}
		err = mapRepoError(err)
		return
	}

	actor := toActor(model)
	if !d.hasher.Verify(actor.PasswordHash, params.Password) {
		err = fieldError("password", "password is incorrect")
		return
	}

	var session AuthSession
	session, err = d.bind(ctx, actor.ID)
	if err != nil {
		return
	}
	result = AuthResult{Actor: actor.visibleTo(Principal{ActorID: actor.ID}), Session: session}
	return
}

// Logout revokes the binding behind token. Unknown, expired and already
// revoked tokens count as logged out.
func (d *ActorDirectory) Logout(ctx context.Context, token string) (err error) {
	if err = d.ready(); err != nil {
		return
	}
	token = strings.TrimSpace(token)
	logger := d.loggerWith(ctx, "Logout", "token_provided", token != "")
	defer func() {
		finish(ctx, logger, d.observer, "ActorDirectory", "Logout", err)
	}()

	if token == "" {
		return nil
	}
	now := d.now()
	if _, err = d.authSessions.RevokeAuthSession(ctx, token, now); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = nil
			return
		}
		err = mapRepoError(err)
		return
	}
	if pruneErr := d.authSessions.DeleteExpiredAuthSessions(ctx, now); pruneErr != nil {
		logger.WarnContext(ctx, "failed to prune expired auth sessions", "error", pruneErr)
	}
	return nil
}

// ResolveSession maps a client token onto the principal it is bound to.
func (d *ActorDirectory) ResolveSession(ctx context.Context, token string) (principal Principal, err error) {
	if err = d.ready(); err != nil {
		return
	}
	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrUnauthorized
		return
	}

	model, err := d.authSessions.GetAuthSession(ctx, token)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
			return
		}
		err = mapRepoError(err)
		return
	}
	session := toAuthSession(model)
	if session.RevokedAt != nil || !session.ExpiresAt.After(d.now()) {
		err = ErrUnauthorized
		return
	}
	principal = Principal{ActorID: session.ActorID}
	return
}

// Me returns the actor bound to the principal.
func (d *ActorDirectory) Me(ctx context.Context, principal Principal) (actor Actor, err error) {
	if err = d.ready(); err != nil {
		return
	}
	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	model, err := d.actors.GetActor(ctx, principal.ActorID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	actor = toActor(model).visibleTo(principal)
	return
}

// GetActor returns any actor; the email is only visible to the actor itself.
func (d *ActorDirectory) GetActor(ctx context.Context, viewer Principal, id string) (actor Actor, err error) {
	if err = d.ready(); err != nil {
		return
	}
	model, err := d.actors.GetActor(ctx, strings.TrimSpace(id))
	if err != nil {
		err = mapRepoError(err)
		return
	}
	actor = toActor(model).visibleTo(viewer)
	return
}

// RequestPasswordRecovery mails a recovery link when email belongs to an
// actor. The caller sees the same result whether or not it does.
func (d *ActorDirectory) RequestPasswordRecovery(ctx context.Context, email string) (err error) {
	if err = d.ready(); err != nil {
		return
	}
	if d.tokens == nil {
		return fmt.Errorf("token store not configured")
	}
	logger := d.loggerWith(ctx, "RequestPasswordRecovery")
	defer func() {
		finish(ctx, logger, d.observer, "ActorDirectory", "RequestPasswordRecovery", err)
	}()

	model, lookupErr := d.actors.GetActorByEmail(ctx, email)
	if lookupErr != nil {
		if errors.Is(lookupErr, persistence.ErrNotFound) {
			logger.DebugContext(ctx, "recovery requested for unknown email")
			return nil
		}
		err = mapRepoError(lookupErr)
		return
	}

	// From here on failures are only logged, so the response does not
	// reveal that the account exists.
	token, issueErr := d.tokens.Issue(ctx, RecoveryTokenPrefix, model.ID, d.recoveryTTL)
	if issueErr != nil {
		logger.ErrorContext(ctx, "failed to issue recovery token", "actor_id", model.ID, "error", issueErr)
		return nil
	}
	if d.mailer == nil {
		logger.WarnContext(ctx, "no mailer configured; recovery link not sent", "actor_id", model.ID)
		return nil
	}
	body := fmt.Sprintf(`<a href="%s/change-password/%s">reset password</a>`, d.publicURL, token)
	if mailErr := d.mailer.Send(ctx, model.Email, "Reset your password", body); mailErr != nil {
		logger.ErrorContext(ctx, "failed to send recovery email", "actor_id", model.ID, "error", mailErr)
	}
	return nil
}

// CompletePasswordRecovery consumes a recovery token, stores the new
// password and binds the actor to a fresh session context.
func (d *ActorDirectory) CompletePasswordRecovery(ctx context.Context, token, newPassword string) (result AuthResult, err error) {
	if err = d.ready(); err != nil {
		return
	}
	if d.tokens == nil {
		err = fmt.Errorf("token store not configured")
		return
	}
	logger := d.loggerWith(ctx, "CompletePasswordRecovery")
	defer func() {
		if err == nil {
			logger = logger.With("actor_id", result.Actor.ID)
		}
		finish(ctx, logger, d.observer, "ActorDirectory", "CompletePasswordRecovery", err)
	}()

	if utf8.RuneCountInString(newPassword) < minPasswordLength {
		err = fieldError("newPassword", passwordTooShort)
		return
	}

	actorID, ok, err := d.tokens.Consume(ctx, RecoveryTokenPrefix+strings.TrimSpace(token))
	if err != nil {
		return
	}
	if !ok {
		err = fmt.Errorf("%w: %w", ErrTokenExpired, fieldError("token", "token is expired"))
		return
	}

	model, err := d.actors.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = fieldError("token", "user does not exist")
			return
		}
		err = mapRepoError(err)
		return
	}

	hash, err := d.hasher.Hash(newPassword)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}
	now := d.now()
	if err = d.actors.UpdatePassword(ctx, actorID, hash, now); err != nil {
		err = mapRepoError(err)
		return
	}

	actor := toActor(model)
	actor.PasswordHash = hash
	actor.UpdatedAt = now

	session, err := d.bind(ctx, actor.ID)
	if err != nil {
		return
	}
	result = AuthResult{Actor: actor.visibleTo(Principal{ActorID: actor.ID}), Session: session}
	return
}

// bind creates the server-side session context for actorID.
func (d *ActorDirectory) bind(ctx context.Context, actorID string) (AuthSession, error) {
	now := d.now()
	model := persistence.AuthSession{
		ID:        d.idGenerator(),
		ActorID:   actorID,
		Token:     d.tokenGenerator(),
		ExpiresAt: now.Add(d.sessionTTL),
		CreatedAt: now,
	}
	stored, err := d.authSessions.CreateAuthSession(ctx, model)
	if err != nil {
		return AuthSession{}, mapRepoError(err)
	}
	return toAuthSession(stored), nil
}
