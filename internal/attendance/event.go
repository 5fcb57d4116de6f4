package attendance

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMarked  EventType = "attendance.marked"
	EventUpdated EventType = "attendance.updated"
	EventDeleted EventType = "attendance.deleted"
)

// Event is published after a successful mutation.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	RecordID   int       `json:"record_id"`
	UserID     int       `json:"user_id"`
	MarkedBy   int       `json:"marked_by"`
	Date       string    `json:"date"`
	Status     Status    `json:"status"`
	Created    bool      `json:"created,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key partitions events by owner so one user's changes stay ordered.
func (e Event) Key() string {
	return strconv.Itoa(e.UserID)
}

// Publisher delivers events to a message broker.
type Publisher interface {
	SendMessage(ctx context.Context, key string, value interface{}) error
}

func newEvent(t EventType, rec *Record, actorID int, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		RecordID:   rec.ID,
		UserID:     rec.UserID,
		MarkedBy:   actorID,
		Date:       rec.Date.Format(DateLayout),
		Status:     rec.Status,
		OccurredAt: at.UTC(),
	}
}
