package event

import (
	"time"

	"github.com/google/uuid"
)

// FatalEvent is one FATAL line recognised in a database log.
type FatalEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Line      int64     `json:"line,omitempty"`
}

// NewFatalEvent ensures ID is set
func NewFatalEvent(e FatalEvent) FatalEvent {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return e
}
