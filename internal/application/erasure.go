package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/sessionboard/internal/persistence"
)

// AccountErasureCoordinator deletes an actor together with its comments,
// memberships, owned sessions, voice links and session bindings.
type AccountErasureCoordinator struct {
	eraser   persistence.AccountEraser
	logger   *slog.Logger
	observer OperationObserver
}

// NewAccountErasureCoordinator constructs a coordinator over eraser, which
// must perform the whole deletion as one transaction.
func NewAccountErasureCoordinator(eraser persistence.AccountEraser, logger *slog.Logger, observer OperationObserver) *AccountErasureCoordinator {
	return &AccountErasureCoordinator{
		eraser:   eraser,
		logger:   defaultLogger(logger),
		observer: defaultObserver(observer),
	}
}

// EraseAccount removes every trace of the principal. On success all of the
// principal's session bindings are gone as well, so the caller must also drop
// its client side token. Any failure other than a missing actor is reported
// as ErrErasureFailed; in that case nothing was deleted.
func (c *AccountErasureCoordinator) EraseAccount(ctx context.Context, principal Principal) (err error) {
	if c == nil || c.eraser == nil {
		return fmt.Errorf("AccountErasureCoordinator not configured")
	}
	logger := serviceLogger(ctx, c.logger, "AccountErasureCoordinator", "EraseAccount", "actor_id", principal.ActorID)
	defer func() {
		finish(ctx, logger, c.observer, "AccountErasureCoordinator", "EraseAccount", err)
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	if eraseErr := c.eraser.EraseActor(ctx, principal.ActorID); eraseErr != nil {
		if errors.Is(eraseErr, persistence.ErrNotFound) {
			err = ErrNotFound
			return
		}
		err = fmt.Errorf("%w: %v", ErrErasureFailed, eraseErr)
		return
	}
	return nil
}
