package attendance

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrForbidden      = errors.New("forbidden")
	ErrRecordNotFound = errors.New("attendance record not found")
	ErrConflict       = errors.New("attendance already recorded for this user and date")
)

// ValidationError carries per-field messages for the caller to render.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Field messages shared by the engine and the HTTP request validator.
const (
	MsgDateRequired   = "Date is required."
	MsgDateInvalid    = "Please provide a valid date."
	MsgDateInFuture   = "Cannot mark attendance for future dates."
	MsgStatusRequired = "Attendance status is required."
	MsgStatusInvalid  = "Please select a valid attendance status."
	MsgUserNotFound   = "Selected user does not exist."
	MsgUserInvalid    = "Please select a valid user."
	MsgNotesTooLong   = "Notes cannot exceed 1000 characters."
	MsgPatchEmpty     = "Provide a status or notes to update."
)

const MaxNotesLength = 1000
