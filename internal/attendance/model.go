package attendance

import (
	"encoding/json"
	"time"

	"attendance-service/internal/user"

	"github.com/uptrace/bun"
)

const DateLayout = "2006-01-02"

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusSick    Status = "sick"
	StatusExcused Status = "excused"
	StatusLate    Status = "late"
)

var Statuses = []Status{StatusPresent, StatusAbsent, StatusSick, StatusExcused, StatusLate}

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusSick, StatusExcused, StatusLate:
		return true
	default:
		return false
	}
}

func (s Status) Label() string {
	switch s {
	case StatusPresent:
		return "Present"
	case StatusAbsent:
		return "Absent"
	case StatusSick:
		return "Sick"
	case StatusExcused:
		return "Excused"
	case StatusLate:
		return "Late"
	default:
		return "Unknown"
	}
}

func (s Status) Color() string {
	switch s {
	case StatusPresent:
		return "green"
	case StatusAbsent:
		return "red"
	case StatusSick:
		return "orange"
	case StatusExcused:
		return "blue"
	case StatusLate:
		return "yellow"
	default:
		return "gray"
	}
}

// Record is one user's attendance on one calendar day.
type Record struct {
	bun.BaseModel `bun:"table:attendance_records,alias:ar"`

	ID        int       `bun:"id,pk,autoincrement"`
	UserID    int       `bun:"user_id,notnull"`
	MarkedBy  int       `bun:"marked_by,nullzero"`
	Date      time.Time `bun:"date,type:date,notnull"`
	Status    Status    `bun:"status,notnull"`
	Notes     *string   `bun:"notes"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`

	User   *user.User `bun:"rel:belongs-to,join:user_id=id"`
	Marker *user.User `bun:"rel:belongs-to,join:marked_by=id"`
}

type markerJSON struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type recordJSON struct {
	ID          int         `json:"id"`
	UserID      int         `json:"user_id"`
	MarkedBy    *int        `json:"marked_by"`
	Date        string      `json:"date"`
	Status      Status      `json:"status"`
	StatusLabel string      `json:"status_label"`
	StatusColor string      `json:"status_color"`
	Notes       *string     `json:"notes"`
	Marker      *markerJSON `json:"marker,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:          r.ID,
		UserID:      r.UserID,
		Date:        r.Date.Format(DateLayout),
		Status:      r.Status,
		StatusLabel: r.Status.Label(),
		StatusColor: r.Status.Color(),
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.MarkedBy != 0 {
		markedBy := r.MarkedBy
		out.MarkedBy = &markedBy
	}
	if r.Marker != nil && r.Marker.ID != 0 {
		out.Marker = &markerJSON{ID: r.Marker.ID, Name: r.Marker.Name}
	}
	return json.Marshal(out)
}

// StudentAttendance pairs a supervised student with their record for one day, if any.
type StudentAttendance struct {
	Student user.User `json:"student"`
	Record  *Record   `json:"record"`
}

// Day truncates t to a calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
