package event

import "fmt"

// TimestampFormatError is returned when a line carries the FATAL marker but
// its leading field is not a YYYY-MM-DD HH:MM:SS.ffffff timestamp.
type TimestampFormatError struct {
	Raw string
	Err error
}

func (e *TimestampFormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed timestamp %q", e.Raw)
	}
	return fmt.Sprintf("malformed timestamp %q: %v", e.Raw, e.Err)
}

func (e *TimestampFormatError) Unwrap() error {
	return e.Err
}
