package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/sessionboard/internal/application"
)

// FastHashParams keeps Argon2id cheap enough for tests.
var FastHashParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

// SentMail is a message captured by RecordingMailer.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// RecordingMailer captures outgoing mail instead of delivering it.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentMail
}

// Send records the message.
func (m *RecordingMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// Sent returns a copy of every recorded message.
func (m *RecordingMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// Services bundles the application services wired over one Harness.
type Services struct {
	Harness     *Harness
	Clock       *Clock
	IDs         *IDSequence
	Mailer      *RecordingMailer
	Directory   *application.ActorDirectory
	Sessions    *application.SessionService
	Memberships *application.MembershipLedger
	Comments    *application.CommentService
	Erasure     *application.AccountErasureCoordinator
}

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDs         *IDSequence
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDs:         NewIDSequence("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDs == nil {
		factory.IDs = NewIDSequence("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDs overrides the identifier sequence used by the factory.
func WithIDs(ids *IDSequence) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDs = ids
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Build wires every application service over a fresh Harness.
func (f *ServiceFactory) Build(tb testing.TB) *Services {
	tb.Helper()
	return f.BuildOn(NewHarness(tb))
}

// BuildOn wires every application service over h.
func (f *ServiceFactory) BuildOn(h *Harness) *Services {
	now := f.Clock.NowFunc()
	ids := f.IDs.NextFunc()
	mailer := &RecordingMailer{}

	tokens := application.NewExpiringTokenStore(h.Tokens, nil, now)
	return &Services{
		Harness: h,
		Clock:   f.Clock,
		IDs:     f.IDs,
		Mailer:  mailer,
		Directory: application.NewActorDirectory(application.DirectoryDeps{
			Actors:       h.Actors,
			AuthSessions: h.AuthSessions,
			Tokens:       tokens,
			Hasher:       application.NewCredentialHasher(FastHashParams),
			Mailer:       mailer,
			IDGenerator:  ids,
			Now:          now,
			PublicURL:    "http://sessionboard.test",
			Logger:       f.Logger,
		}),
		Sessions: application.NewSessionService(application.SessionServiceDeps{
			Sessions:    h.Sessions,
			Memberships: h.Memberships,
			IDGenerator: ids,
			Now:         now,
			Logger:      f.Logger,
		}),
		Memberships: application.NewMembershipLedgerWithLogger(h.Sessions, h.Memberships, now, f.Logger, nil),
		Comments:    application.NewCommentServiceWithLogger(h.Sessions, h.Comments, ids, now, f.Logger, nil),
		Erasure:     application.NewAccountErasureCoordinator(h.Eraser, f.Logger, nil),
	}
}
