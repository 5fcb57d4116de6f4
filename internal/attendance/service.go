package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"attendance-service/internal/metrics"
	"attendance-service/internal/pagination"
	"attendance-service/internal/user"

	"golang.org/x/sync/errgroup"
)

var errUpsertContended = errors.New("attendance upsert still contended after retry")

// Directory resolves users for authorization decisions and class rosters.
type Directory interface {
	GetByID(ctx context.Context, id int) (*user.User, error)
	ListStudentsOfTeacher(ctx context.Context, teacherID int) ([]user.User, error)
}

type MarkInput struct {
	TargetUserID *int
	Date         time.Time
	Status       Status
	Notes        *string
}

// Patch carries the optional fields of an update. An empty Notes clears notes.
type Patch struct {
	Status *Status
	Notes  *string
}

type History struct {
	Owner   *user.User      `json:"owner"`
	Records []Record        `json:"records"`
	Meta    pagination.Meta `json:"meta"`
	Summary Summary         `json:"summary"`
}

type TeacherView struct {
	Students  []StudentAttendance `json:"students"`
	OwnRecord *Record             `json:"own_record"`
	Tally     Tally               `json:"tally"`
}

type StudentView struct {
	History     *History `json:"history"`
	TodayRecord *Record  `json:"today_record"`
}

type Dashboard struct {
	Role    user.Role    `json:"role"`
	Date    string       `json:"date"`
	Teacher *TeacherView `json:"teacher,omitempty"`
	Student *StudentView `json:"student,omitempty"`
}

type Service interface {
	MarkAttendance(ctx context.Context, actor Actor, in MarkInput) (*Record, bool, error)
	UpdateAttendance(ctx context.Context, actor Actor, id int, patch Patch) (*Record, error)
	DeleteAttendance(ctx context.Context, actor Actor, id int) error
	ListAttendance(ctx context.Context, actor Actor, targetUserID int, page pagination.Params) (*History, error)
	DashboardSnapshot(ctx context.Context, actor Actor, date time.Time, page pagination.Params) (*Dashboard, error)
	Today() time.Time
}

type service struct {
	store     Store
	users     Directory
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics

	now                func() time.Time
	loc                *time.Location
	selfPageSize       int
	supervisedPageSize int
	maxPageSize        int
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLocation sets the time zone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithPageSizes(self, supervised, max int) Option {
	return func(s *service) {
		if self > 0 {
			s.selfPageSize = self
		}
		if supervised > 0 {
			s.supervisedPageSize = supervised
		}
		if max > 0 {
			s.maxPageSize = max
		}
	}
}

// NewService builds the engine. publisher may be nil.
func NewService(store Store, users Directory, publisher Publisher, logger *slog.Logger, m *metrics.Metrics, opts ...Option) Service {
	s := &service{
		store:              store,
		users:              users,
		publisher:          publisher,
		logger:             logger,
		metrics:            m,
		now:                time.Now,
		loc:                time.UTC,
		selfPageSize:       10,
		supervisedPageSize: 20,
		maxPageSize:        100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Today() time.Time {
	return Day(s.now().In(s.loc))
}

func (s *service) MarkAttendance(ctx context.Context, actor Actor, in MarkInput) (*Record, bool, error) {
	ve := &ValidationError{}
	date := Day(in.Date)
	switch {
	case in.Date.IsZero():
		ve.add("date", MsgDateRequired)
	case date.After(s.Today()):
		ve.add("date", MsgDateInFuture)
	}
	validateStatus(ve, in.Status)
	notes := normalizeNotes(in.Notes)
	validateNotes(ve, notes)

	targetID := actor.ID
	if in.TargetUserID != nil {
		targetID = *in.TargetUserID
	}

	var target *user.User
	if targetID <= 0 {
		ve.add("user_id", MsgUserInvalid)
	} else {
		u, err := s.users.GetByID(ctx, targetID)
		switch {
		case errors.Is(err, user.ErrUserNotFound):
			ve.add("user_id", MsgUserNotFound)
		case err != nil:
			return nil, false, fmt.Errorf("lookup target user: %w", err)
		default:
			target = u
		}
	}

	if err := ve.orNil(); err != nil {
		return nil, false, err
	}

	if !canActOn(actor, target) {
		s.metrics.Attendance.RecordDenied(ctx, "mark")
		s.logger.WarnContext(ctx, "attendance mark denied", "actor_id", actor.ID, "target_id", target.ID)
		return nil, false, ErrForbidden
	}

	rec, created, err := s.upsert(ctx, actor, target.ID, date, in.Status, notes)
	if err != nil {
		return nil, false, err
	}
	if actor.ID == target.ID {
		rec.Marker = target
	}

	s.metrics.Attendance.RecordMarked(ctx, created)
	s.logger.InfoContext(ctx, "attendance marked",
		"record_id", rec.ID,
		"user_id", rec.UserID,
		"marked_by", actor.ID,
		"date", rec.Date.Format(DateLayout),
		"status", rec.Status,
		"created", created,
	)

	ev := newEvent(EventMarked, rec, actor.ID, s.now())
	ev.Created = created
	s.publish(ctx, ev)

	return rec, created, nil
}

// upsert finds or creates the (user, date) record. The unique index arbitrates
// concurrent writers: a conflicting create retries as an update, and an update
// whose row vanished retries as a create. Each path is retried at most once.
func (s *service) upsert(ctx context.Context, actor Actor, userID int, date time.Time, status Status, notes *string) (*Record, bool, error) {
	const attempts = 2

	for i := 0; i < attempts; i++ {
		existing, err := s.store.FindByUserAndDate(ctx, userID, date)
		switch {
		case err == nil:
			existing.Status = status
			existing.Notes = notes
			existing.MarkedBy = actor.ID
			existing.Marker = nil
			if err := s.store.Update(ctx, existing); err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					continue
				}
				return nil, false, fmt.Errorf("update attendance: %w", err)
			}
			return existing, false, nil

		case errors.Is(err, ErrRecordNotFound):
			rec := &Record{
				UserID:   userID,
				MarkedBy: actor.ID,
				Date:     date,
				Status:   status,
				Notes:    notes,
			}
			if err := s.store.Create(ctx, rec); err != nil {
				if errors.Is(err, ErrConflict) {
					s.metrics.Attendance.RecordUpsertConflict(ctx)
					s.logger.InfoContext(ctx, "attendance create conflicted, retrying as update",
						"user_id", userID, "date", date.Format(DateLayout))
					continue
				}
				return nil, false, fmt.Errorf("create attendance: %w", err)
			}
			return rec, true, nil

		default:
			return nil, false, fmt.Errorf("find attendance: %w", err)
		}
	}

	return nil, false, fmt.Errorf("user %d on %s: %w", userID, date.Format(DateLayout), errUpsertContended)
}

func (s *service) UpdateAttendance(ctx context.Context, actor Actor, id int, patch Patch) (*Record, error) {
	rec, err := s.authorizedRecord(ctx, actor, id, "update")
	if err != nil {
		return nil, err
	}

	ve := &ValidationError{}
	if patch.Status == nil && patch.Notes == nil {
		ve.add("status", MsgPatchEmpty)
	}
	if patch.Status != nil {
		validateStatus(ve, *patch.Status)
	}
	notes := normalizeNotes(patch.Notes)
	validateNotes(ve, notes)
	if err := ve.orNil(); err != nil {
		return nil, err
	}

	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Notes != nil {
		rec.Notes = notes
	}
	rec.MarkedBy = actor.ID
	rec.Marker = nil
	if actor.ID == rec.UserID {
		rec.Marker = rec.User
	}

	if err := s.store.Update(ctx, rec); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update attendance: %w", err)
	}

	s.metrics.Attendance.RecordUpdated(ctx)
	s.logger.InfoContext(ctx, "attendance updated", "record_id", rec.ID, "marked_by", actor.ID, "status", rec.Status)
	s.publish(ctx, newEvent(EventUpdated, rec, actor.ID, s.now()))

	return rec, nil
}

func (s *service) DeleteAttendance(ctx context.Context, actor Actor, id int) error {
	rec, err := s.authorizedRecord(ctx, actor, id, "delete")
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, rec.ID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("delete attendance: %w", err)
	}

	s.metrics.Attendance.RecordDeleted(ctx)
	s.logger.InfoContext(ctx, "attendance deleted", "record_id", rec.ID, "deleted_by", actor.ID)
	s.publish(ctx, newEvent(EventDeleted, rec, actor.ID, s.now()))

	return nil
}

// authorizedRecord loads a record and checks that actor may modify it.
// A missing record is reported before authorization.
func (s *service) authorizedRecord(ctx context.Context, actor Actor, id int, op string) (*Record, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}

	owner := rec.User
	if owner == nil || owner.ID != rec.UserID {
		owner, err = s.users.GetByID(ctx, rec.UserID)
		if err != nil {
			return nil, fmt.Errorf("lookup record owner: %w", err)
		}
		rec.User = owner
	}

	if !canActOn(actor, owner) {
		s.metrics.Attendance.RecordDenied(ctx, op)
		s.logger.WarnContext(ctx, "attendance "+op+" denied", "actor_id", actor.ID, "record_id", rec.ID)
		return nil, ErrForbidden
	}
	return rec, nil
}

// ListAttendance returns a page of targetUserID's history. For anyone but the
// actor, an unknown user is indistinguishable from an unsupervised one.
func (s *service) ListAttendance(ctx context.Context, actor Actor, targetUserID int, page pagination.Params) (*History, error) {
	owner, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			return nil, fmt.Errorf("lookup history owner: %w", err)
		}
		if targetUserID == actor.ID {
			return nil, err
		}
	}

	if owner == nil || !canActOn(actor, owner) {
		s.metrics.Attendance.RecordDenied(ctx, "list")
		return nil, ErrForbidden
	}

	h, err := s.history(ctx, actor, owner, page)
	if err != nil {
		return nil, err
	}

	s.metrics.Attendance.RecordHistoryViewed(ctx)
	return h, nil
}

func (s *service) history(ctx context.Context, actor Actor, owner *user.User, page pagination.Params) (*History, error) {
	perPage := s.supervisedPageSize
	if owner.ID == actor.ID {
		perPage = s.selfPageSize
	}
	p := page.Normalize(pagination.Options{DefaultPerPage: perPage, MaxPerPage: s.maxPageSize})

	records, total, err := s.store.ListByUser(ctx, owner.ID, p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}

	return &History{
		Owner:   owner,
		Records: records,
		Meta:    pagination.BuildMeta(total, p),
		Summary: Summarize(records),
	}, nil
}

func (s *service) DashboardSnapshot(ctx context.Context, actor Actor, date time.Time, page pagination.Params) (*Dashboard, error) {
	if date.IsZero() {
		date = s.Today()
	}
	date = Day(date)

	dash := &Dashboard{Role: actor.Role, Date: date.Format(DateLayout)}

	switch actor.Role {
	case user.RoleTeacher:
		view, err := s.teacherView(ctx, actor, date)
		if err != nil {
			return nil, err
		}
		dash.Teacher = view
	case user.RoleStudent:
		view, err := s.studentView(ctx, actor, page)
		if err != nil {
			return nil, err
		}
		dash.Student = view
	default:
		return nil, ErrForbidden
	}

	s.metrics.Attendance.RecordDashboardViewed(ctx, string(actor.Role))
	return dash, nil
}

func (s *service) teacherView(ctx context.Context, actor Actor, date time.Time) (*TeacherView, error) {
	var (
		students []StudentAttendance
		own      *Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = s.classOnDate(gctx, actor.ID, date)
		return err
	})
	g.Go(func() error {
		var err error
		own, err = s.findOptional(gctx, actor.ID, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if students == nil {
		students = []StudentAttendance{}
	}
	return &TeacherView{
		Students:  students,
		OwnRecord: own,
		Tally:     TallyDay(students),
	}, nil
}

// classOnDate joins the teacher's roster, ordered by name, with each student's
// record for date. Students without a record get a nil Record.
func (s *service) classOnDate(ctx context.Context, teacherID int, date time.Time) ([]StudentAttendance, error) {
	roster, err := s.users.ListStudentsOfTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	if len(roster) == 0 {
		return []StudentAttendance{}, nil
	}

	ids := make([]int, len(roster))
	for i, st := range roster {
		ids[i] = st.ID
	}
	records, err := s.store.ListForUsersOnDate(ctx, ids, date)
	if err != nil {
		return nil, fmt.Errorf("list class attendance: %w", err)
	}

	byUser := make(map[int]*Record, len(records))
	for i := range records {
		byUser[records[i].UserID] = &records[i]
	}

	out := make([]StudentAttendance, len(roster))
	for i, st := range roster {
		out[i] = StudentAttendance{Student: st, Record: byUser[st.ID]}
	}
	return out, nil
}

func (s *service) studentView(ctx context.Context, actor Actor, page pagination.Params) (*StudentView, error) {
	owner, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}

	var (
		hist  *History
		today *Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hist, err = s.history(gctx, actor, owner, page)
		return err
	})
	g.Go(func() error {
		var err error
		today, err = s.findOptional(gctx, actor.ID, s.Today())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &StudentView{History: hist, TodayRecord: today}, nil
}

func (s *service) findOptional(ctx context.Context, userID int, date time.Time) (*Record, error) {
	rec, err := s.store.FindByUserAndDate(ctx, userID, date)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return rec, nil
}

// publish emits ev when a publisher is configured. Failures are logged only.
func (s *service) publish(ctx context.Context, ev Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.SendMessage(ctx, ev.Key(), ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish attendance event",
			"type", ev.Type, "record_id", ev.RecordID, "error", err)
	}
}

func validateStatus(ve *ValidationError, st Status) {
	if st == "" {
		ve.add("status", MsgStatusRequired)
		return
	}
	if !st.Valid() {
		ve.add("status", MsgStatusInvalid)
	}
}

func validateNotes(ve *ValidationError, notes *string) {
	if notes != nil && utf8.RuneCountInString(*notes) > MaxNotesLength {
		ve.add("notes", MsgNotesTooLong)
	}
}

// normalizeNotes maps blank notes to nil so they clear the column.
func normalizeNotes(notes *string) *string {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return nil
	}
	v := *notes
	return &v
}
