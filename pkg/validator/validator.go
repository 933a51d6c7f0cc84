package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fatalwatch/internal/event"

	"github.com/google/uuid"
)

// ValidationError wraps the reason an event was rejected before delivery.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid event: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

type BasicValidator struct {
	// MaxMessageBytes rejects longer messages when positive.
	MaxMessageBytes int
}

func (v *BasicValidator) Validate(ctx context.Context, e event.FatalEvent) error {
	if err := v.check(e); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func (v *BasicValidator) check(e event.FatalEvent) error {
	// Check required fields
	if strings.TrimSpace(e.Message) == "" {
		return errors.New("missing message")
	}
	if e.Timestamp.IsZero() {
		return errors.New("missing timestamp")
	}

	// text columns reject NUL and invalid UTF-8 on PostgreSQL
	if strings.IndexByte(e.Message, 0) >= 0 {
		return errors.New("message contains NUL byte")
	}
	if !utf8.ValidString(e.Message) {
		return errors.New("message is not valid UTF-8")
	}
	if v.MaxMessageBytes > 0 && len(e.Message) > v.MaxMessageBytes {
		return fmt.Errorf("message is %d bytes, limit %d", len(e.Message), v.MaxMessageBytes)
	}

	// Check UUID format if provided
	if e.ID != "" {
		if _, err := uuid.Parse(e.ID); err != nil {
			return errors.New("invalid UUID format")
		}
	}

	return nil
}
