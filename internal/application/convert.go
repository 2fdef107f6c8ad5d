package application

import (
	"errors"
	"fmt"

	"github.com/example/sessionboard/internal/persistence"
)

func toActor(model persistence.Actor) Actor {
	return Actor{
		ID:           model.ID,
		DisplayName:  model.DisplayName,
		Email:        model.Email,
		PasswordHash: model.PasswordHash,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

func toPersistenceActor(actor Actor) persistence.Actor {
	return persistence.Actor{
		ID:           actor.ID,
		DisplayName:  actor.DisplayName,
		Email:        actor.Email,
		PasswordHash: actor.PasswordHash,
		CreatedAt:    actor.CreatedAt,
		UpdatedAt:    actor.UpdatedAt,
	}
}

func toSession(model persistence.Session) Session {
	session := Session{
		ID:            model.ID,
		Title:         model.Title,
		Body:          model.Body,
		Start:         model.Start,
		End:           model.End,
		AttendeeLimit: model.AttendeeLimit,
		CreatorID:     model.CreatorID,
		IsCancelled:   model.IsCancelled,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
	if model.VoiceChannelURL != nil {
		session.VoiceChannelURL = *model.VoiceChannelURL
	}
	return session
}

func toPersistenceSession(session Session) persistence.Session {
	model := persistence.Session{
		ID:            session.ID,
		Title:         session.Title,
		Body:          session.Body,
		Start:         session.Start,
		End:           session.End,
		AttendeeLimit: session.AttendeeLimit,
		CreatorID:     session.CreatorID,
		IsCancelled:   session.IsCancelled,
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}
	if session.VoiceChannelURL != "" {
		url := session.VoiceChannelURL
		model.VoiceChannelURL = &url
	}
	return model
}

func toComment(model persistence.Comment) Comment {
	return Comment{
		ID:        model.ID,
		Text:      model.Text,
		SessionID: model.SessionID,
		CreatorID: model.CreatorID,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toAuthSession(model persistence.AuthSession) AuthSession {
	return AuthSession{
		ID:        model.ID,
		ActorID:   model.ActorID,
		Token:     model.Token,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
		RevokedAt: model.RevokedAt,
	}
}

// mapRepoError translates persistence failures into application errors.
// Unknown failures become ErrStore so they are never mistaken for business
// outcomes.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		field, _ := persistence.DuplicateField(err)
		return newConflict(field, field+" already exists")
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrNotFound
	case errors.Is(err, persistence.ErrConstraintViolation):
		return &ValidationError{FieldErrors: []FieldError{{Field: "input", Message: "value violates a storage constraint"}}}
	}
	return fmt.Errorf("%w: %v", ErrStore, err)
}
