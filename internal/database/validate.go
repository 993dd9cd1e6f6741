package database

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/edgard/chatlog/internal/errors"
)

// Validator checks payloads against the struct rules and the configured
// required-field list, and turns valid payloads into Messages.
type Validator struct {
	validate       *validator.Validate
	requiredFields []string
}

// NewValidator creates a Validator. user_id is always required whether or
// not it is listed.
func NewValidator(requiredFields []string) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{
		validate:       v,
		requiredFields: append([]string(nil), requiredFields...),
	}
}

// Prepare normalizes p and validates the result. now is used as the
// timestamp when p carries none.
func (v *Validator) Prepare(p Payload, now time.Time) (*Message, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	p.MessageType = strings.TrimSpace(p.MessageType)

	if err := v.validate.Struct(p); err != nil {
		return nil, apperrors.NewValidationError(reason(err), err)
	}

	fields := map[string]string{
		"user_id":      p.UserID,
		"message_text": p.MessageText,
		"bot_response": p.BotResponse,
		"message_type": p.MessageType,
	}
	for _, name := range v.requiredFields {
		if err := v.validate.Var(fields[name], "required"); err != nil {
			return nil, apperrors.NewValidationError(name+" is required", err)
		}
	}

	ts := now
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		ts = *p.Timestamp
	}

	return &Message{
		UserID:                   p.UserID,
		MessageText:              p.MessageText,
		BotResponse:              p.BotResponse,
		MessageType:              p.MessageType,
		InteractionRounds:        p.InteractionRounds,
		ConstructiveContribution: p.ConstructiveContribution,
		// Both backends keep microseconds; truncating here keeps the
		// returned copy equal to what is read back.
		Timestamp: ts.UTC().Truncate(time.Microsecond),
	}, nil
}

func reason(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_without":
		return "message_text or bot_response is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
