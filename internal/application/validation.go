package application

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const minPasswordLength = 8

const passwordTooShort = "password has to be at least 8 characters long"

type signupForm struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

var noAtSign = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, "@") {
		return errors.New("cannot include an @")
	}
	return nil
})

func validateSignup(params SignupParams) *ValidationError {
	form := signupForm{
		Name:     strings.TrimSpace(params.Name),
		Email:    strings.TrimSpace(params.Email),
		Password: params.Password,
	}
	err := validation.ValidateStruct(&form,
		validation.Field(&form.Name,
			validation.Required.Error("name is required"),
			validation.RuneLength(3, 30).Error("name must be between 3 and 30 characters"),
			noAtSign,
		),
		validation.Field(&form.Email,
			validation.Required.Error("email is required"),
			is.Email.Error("invalid email"),
		),
		validation.Field(&form.Password,
			validation.Required.Error(passwordTooShort),
			validation.RuneLength(minPasswordLength, 128).Error(passwordTooShort),
		),
	)
	return fromRuleErrors(err, "name", "email", "password")
}

type sessionForm struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	AttendeeLimit   int    `json:"attendeeLimit"`
	VoiceChannelURL string `json:"voiceChannelUrl"`
}

func validateSessionFields(title, body string, attendeeLimit int, voiceChannelURL string) *ValidationError {
	form := sessionForm{
		Title:           strings.TrimSpace(title),
		Body:            body,
		AttendeeLimit:   attendeeLimit,
		VoiceChannelURL: strings.TrimSpace(voiceChannelURL),
	}
	err := validation.ValidateStruct(&form,
		validation.Field(&form.Title,
			validation.Required.Error("title is required"),
			validation.RuneLength(1, 100).Error("title must be at most 100 characters"),
		),
		validation.Field(&form.Body,
			validation.RuneLength(0, 10000).Error("body must be at most 10000 characters"),
		),
		validation.Field(&form.AttendeeLimit,
			validation.Required.Error("attendee limit must be at least 1"),
			validation.Min(1).Error("attendee limit must be at least 1"),
		),
		validation.Field(&form.VoiceChannelURL,
			is.URL.Error("voice channel url must be a valid url"),
		),
	)
	return fromRuleErrors(err, "title", "body", "attendeeLimit", "voiceChannelUrl")
}

func validateSchedule(start, end, now time.Time) *ValidationError {
	vErr := &ValidationError{}
	if start.IsZero() {
		vErr.add("start", "start is required")
	}
	if end.IsZero() {
		vErr.add("end", "end is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	if start.Before(now) {
		vErr.add("start", "start cannot be in the past")
	}
	if !end.After(start) {
		vErr.add("end", "end must be after start")
	}
	return vErr
}

// fromRuleErrors converts ozzo-validation output into a ValidationError with
// fields in the given order.
func fromRuleErrors(err error, order ...string) *ValidationError {
	vErr := &ValidationError{}
	if err == nil {
		return vErr
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		vErr.add("input", err.Error())
		return vErr
	}
	for _, field := range order {
		if fieldErr, ok := errs[field]; ok && fieldErr != nil {
			vErr.add(field, fieldErr.Error())
		}
	}
	return vErr
}
