package attendance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"attendance-service/internal/metrics"
	"attendance-service/internal/pagination"
	"attendance-service/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jan15 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	jan16 = jan15.AddDate(0, 0, 1)
)

func intPtr(v int) *int          { return &v }
func strPtr(v string) *string    { return &v }
func statusPtr(s Status) *Status { return &s }

type fixture struct {
	svc       Service
	store     *memStore
	users     *memDirectory
	publisher *recordingPublisher

	teacher      Actor
	otherTeacher Actor
	bea          Actor // supervised by teacher
	al           Actor // supervised by teacher
	kim          Actor // supervised by otherTeacher
	lone         Actor // no teacher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	teacherID, otherID := 1, 2
	dir := newMemDirectory(
		&user.User{ID: teacherID, Name: "Ms. Teach", Role: user.RoleTeacher},
		&user.User{ID: otherID, Name: "Mr. Other", Role: user.RoleTeacher},
		&user.User{ID: 10, Name: "Bea", Role: user.RoleStudent, TeacherID: intPtr(teacherID)},
		&user.User{ID: 11, Name: "Al", Role: user.RoleStudent, TeacherID: intPtr(teacherID)},
		&user.User{ID: 12, Name: "Kim", Role: user.RoleStudent, TeacherID: intPtr(otherID)},
		&user.User{ID: 13, Name: "Lone", Role: user.RoleStudent},
	)
	store := newMemStore(dir)
	pub := &recordingPublisher{}

	clock := func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	opts = append([]Option{WithClock(clock)}, opts...)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		svc:          NewService(store, dir, pub, logger, metrics.NewMock(), opts...),
		store:        store,
		users:        dir,
		publisher:    pub,
		teacher:      Actor{ID: teacherID, Role: user.RoleTeacher},
		otherTeacher: Actor{ID: otherID, Role: user.RoleTeacher},
		bea:          Actor{ID: 10, Role: user.RoleStudent},
		al:           Actor{ID: 11, Role: user.RoleStudent},
		kim:          Actor{ID: 12, Role: user.RoleStudent},
		lone:         Actor{ID: 13, Role: user.RoleStudent},
	}
}

func requireValidation(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Fields
}

func TestMarkAttendance_Authorization(t *testing.T) {
	ctx := context.Background()

	t.Run("TeacherMarksSupervisedStudent", func(t *testing.T) {
		f := newFixture(t)
		rec, created, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{
			TargetUserID: intPtr(f.bea.ID), Date: jan15, Status: StatusPresent,
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, f.bea.ID, rec.UserID)
		assert.Equal(t, f.teacher.ID, rec.MarkedBy)
		assert.Equal(t, 1, f.store.count())
	})

	t.Run("TeacherMarksUnsupervisedStudent", func(t *testing.T) {
		f := newFixture(t)
		for _, target := range []int{f.kim.ID, f.lone.ID, f.otherTeacher.ID} {
			_, _, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{
				TargetUserID: intPtr(target), Date: jan15, Status: StatusPresent,
			})
			assert.ErrorIs(t, err, ErrForbidden, "target %d", target)
		}
		assert.Equal(t, 0, f.store.count())
	})

	t.Run("StudentMarksAnotherStudent", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{
			TargetUserID: intPtr(f.al.ID), Date: jan15, Status: StatusPresent,
		})
		assert.ErrorIs(t, err, ErrForbidden)

		_, _, err = f.svc.MarkAttendance(ctx, f.bea, MarkInput{
			TargetUserID: intPtr(f.teacher.ID), Date: jan15, Status: StatusPresent,
		})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, 0, f.store.count())
	})

	t.Run("UnassignedStudentSelfMarks", func(t *testing.T) {
		f := newFixture(t)
		rec, created, err := f.svc.MarkAttendance(ctx, f.lone, MarkInput{Date: jan15, Status: StatusSick})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, f.lone.ID, rec.UserID)
		assert.Equal(t, rec.UserID, rec.MarkedBy)
		require.NotNil(t, rec.Marker)
		assert.Equal(t, "Lone", rec.Marker.Name)
	})

	t.Run("ExplicitSelfTarget", func(t *testing.T) {
		f := newFixture(t)
		rec, _, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{
			TargetUserID: intPtr(f.teacher.ID), Date: jan15, Status: StatusPresent,
		})
		require.NoError(t, err)
		assert.Equal(t, f.teacher.ID, rec.UserID)
	})

	t.Run("UnknownTargetIsValidationError", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{
			TargetUserID: intPtr(999), Date: jan15, Status: StatusPresent,
		})
		fields := requireValidation(t, err)
		assert.Equal(t, MsgUserNotFound, fields["user_id"])
	})
}

func TestMarkAttendance_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("TodayAcceptedTomorrowRejected", func(t *testing.T) {
		f := newFixture(t)

		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusPresent})
		require.NoError(t, err)

		_, _, err = f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan16, Status: StatusPresent})
		fields := requireValidation(t, err)
		assert.Equal(t, MsgDateInFuture, fields["date"])
		assert.Equal(t, 1, f.store.count())
	})

	t.Run("TodayFollowsConfiguredZone", func(t *testing.T) {
		// 23:30 UTC on the 15th is already the 16th two hours east.
		late := func() time.Time { return time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC) }
		f := newFixture(t, WithClock(late), WithLocation(time.FixedZone("UTC+2", 2*60*60)))

		assert.Equal(t, jan16, f.svc.Today())
		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan16, Status: StatusPresent})
		assert.NoError(t, err)
	})

	t.Run("FieldErrors", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{
			Status: "on-holiday",
			Notes:  strPtr(strings.Repeat("n", MaxNotesLength+1)),
		})
		fields := requireValidation(t, err)
		assert.Equal(t, MsgDateRequired, fields["date"])
		assert.Equal(t, MsgStatusInvalid, fields["status"])
		assert.Equal(t, MsgNotesTooLong, fields["notes"])
	})

	t.Run("StatusRequired", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15})
		fields := requireValidation(t, err)
		assert.Equal(t, MsgStatusRequired, fields["status"])
	})

	t.Run("NotesLimitCountsCharacters", func(t *testing.T) {
		f := newFixture(t)
		notes := strings.Repeat("é", MaxNotesLength)
		rec, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusLate, Notes: &notes})
		require.NoError(t, err)
		require.NotNil(t, rec.Notes)
		assert.Equal(t, notes, *rec.Notes)
	})

	t.Run("NonPositiveTarget", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{TargetUserID: intPtr(-4), Date: jan15, Status: StatusPresent})
		fields := requireValidation(t, err)
		assert.Equal(t, MsgUserInvalid, fields["user_id"])
	})
}

func TestMarkAttendance_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("IdempotentOverwrite", func(t *testing.T) {
		f := newFixture(t)

		first, created, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{
			TargetUserID: intPtr(f.bea.ID), Date: jan15, Status: StatusPresent,
		})
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{
			TargetUserID: intPtr(f.bea.ID), Date: jan15, Status: StatusLate, Notes: strPtr("note"),
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, f.store.count())

		stored, err := f.store.FindByUserAndDate(ctx, f.bea.ID, jan15)
		require.NoError(t, err)
		assert.Equal(t, StatusLate, stored.Status)
		require.NotNil(t, stored.Notes)
		assert.Equal(t, "note", *stored.Notes)
	})

	t.Run("AbsentNotesClearExisting", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusLate, Notes: strPtr("bus")})
		require.NoError(t, err)

		rec, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusPresent})
		require.NoError(t, err)
		assert.Nil(t, rec.Notes)
	})

	t.Run("OverwriteRecordsLastMarker", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusAbsent})
		require.NoError(t, err)

		rec, created, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{
			TargetUserID: intPtr(f.bea.ID), Date: jan15, Status: StatusExcused,
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, f.bea.ID, rec.UserID)
		assert.Equal(t, f.teacher.ID, rec.MarkedBy)
	})

	t.Run("TeacherOwnRecordScenario", func(t *testing.T) {
		f := newFixture(t)

		_, _, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{Date: jan15, Status: StatusPresent})
		require.NoError(t, err)
		assert.Equal(t, 1, f.store.count())

		_, _, err = f.svc.MarkAttendance(ctx, f.teacher, MarkInput{
			Date: jan15, Status: StatusLate, Notes: strPtr("Updated status"),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, f.store.count())

		stored, err := f.store.FindByUserAndDate(ctx, f.teacher.ID, jan15)
		require.NoError(t, err)
		assert.Equal(t, StatusLate, stored.Status)
		assert.Equal(t, "Updated status", *stored.Notes)
		assert.Equal(t, f.teacher.ID, stored.MarkedBy)
	})

	t.Run("ConcurrentCreateRetriesAsUpdate", func(t *testing.T) {
		f := newFixture(t)
		raced := false
		f.store.beforeCreate = func(rec *Record) {
			if raced {
				return
			}
			raced = true
			f.store.seed(&Record{UserID: rec.UserID, MarkedBy: f.teacher.ID, Date: rec.Date, Status: StatusAbsent})
		}

		rec, created, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusPresent})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, StatusPresent, rec.Status)
		assert.Equal(t, f.bea.ID, rec.MarkedBy)
		assert.Equal(t, 1, f.store.count())
	})

	t.Run("RepeatedConflictIsInternal", func(t *testing.T) {
		f := newFixture(t)
		f.store.forceConflicts = 2

		_, _, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusPresent})
		require.Error(t, err)
		assert.ErrorIs(t, err, errUpsertContended)
		assert.NotErrorIs(t, err, ErrConflict)
		assert.NotErrorIs(t, err, ErrForbidden)
		assert.Equal(t, 0, f.store.count())
	})

	t.Run("VanishedRecordRetriesAsCreate", func(t *testing.T) {
		f := newFixture(t)
		f.store.seed(&Record{UserID: f.bea.ID, MarkedBy: f.bea.ID, Date: jan15, Status: StatusAbsent})
		vanished := false
		f.store.beforeUpdate = func(rec *Record) {
			if vanished {
				return
			}
			vanished = true
			require.NoError(t, f.store.Delete(ctx, rec.ID))
		}

		rec, created, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusPresent})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, StatusPresent, rec.Status)
		assert.Equal(t, 1, f.store.count())
	})
}

func TestUpdateAttendance(t *testing.T) {
	ctx := context.Background()

	seedBea := func(f *fixture) *Record {
		return f.store.seed(&Record{UserID: f.bea.ID, MarkedBy: f.teacher.ID, Date: jan15, Status: StatusAbsent, Notes: strPtr("no show")})
	}

	t.Run("OwnerMayPatchRecordMarkedByTeacher", func(t *testing.T) {
		f := newFixture(t)
		rec := seedBea(f)

		updated, err := f.svc.UpdateAttendance(ctx, f.bea, rec.ID, Patch{Status: statusPtr(StatusSick)})
		require.NoError(t, err)
		assert.Equal(t, StatusSick, updated.Status)
		assert.Equal(t, f.bea.ID, updated.MarkedBy)
		require.NotNil(t, updated.Notes)
		assert.Equal(t, "no show", *updated.Notes)
	})

	t.Run("SupervisingTeacherMayPatch", func(t *testing.T) {
		f := newFixture(t)
		rec := seedBea(f)

		updated, err := f.svc.UpdateAttendance(ctx, f.teacher, rec.ID, Patch{Notes: strPtr("")})
		require.NoError(t, err)
		assert.Nil(t, updated.Notes)
		assert.Equal(t, StatusAbsent, updated.Status)
	})

	t.Run("OthersForbidden", func(t *testing.T) {
		f := newFixture(t)
		rec := seedBea(f)

		for _, actor := range []Actor{f.otherTeacher, f.al, f.kim} {
			_, err := f.svc.UpdateAttendance(ctx, actor, rec.ID, Patch{Status: statusPtr(StatusPresent)})
			assert.ErrorIs(t, err, ErrForbidden, "actor %d", actor.ID)
		}
	})

	t.Run("StudentCannotPatchTeacherRecord", func(t *testing.T) {
		f := newFixture(t)
		rec := f.store.seed(&Record{UserID: f.teacher.ID, MarkedBy: f.teacher.ID, Date: jan15, Status: StatusPresent})

		_, err := f.svc.UpdateAttendance(ctx, f.bea, rec.ID, Patch{Status: statusPtr(StatusAbsent)})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("ForbiddenBeforeValidation", func(t *testing.T) {
		f := newFixture(t)
		rec := seedBea(f)

		_, err := f.svc.UpdateAttendance(ctx, f.otherTeacher, rec.ID, Patch{})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("EmptyPatch", func(t *testing.T) {
		f := newFixture(t)
		rec := seedBea(f)

		_, err := f.svc.UpdateAttendance(ctx, f.bea, rec.ID, Patch{})
		fields := requireValidation(t, err)
		assert.Equal(t, MsgPatchEmpty, fields["status"])
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		f := newFixture(t)
		rec := seedBea(f)

		_, err := f.svc.UpdateAttendance(ctx, f.bea, rec.ID, Patch{Status: statusPtr("gone")})
		fields := requireValidation(t, err)
		assert.Equal(t, MsgStatusInvalid, fields["status"])
	})

	t.Run("NotFound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateAttendance(ctx, f.teacher, 404, Patch{Status: statusPtr(StatusPresent)})
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func TestDeleteAttendance(t *testing.T) {
	ctx := context.Background()

	t.Run("SupervisingTeacher", func(t *testing.T) {
		f := newFixture(t)
		rec := f.store.seed(&Record{UserID: f.al.ID, MarkedBy: f.al.ID, Date: jan15, Status: StatusPresent})

		require.NoError(t, f.svc.DeleteAttendance(ctx, f.teacher, rec.ID))
		assert.Equal(t, 0, f.store.count())

		err := f.svc.DeleteAttendance(ctx, f.teacher, rec.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("Owner", func(t *testing.T) {
		f := newFixture(t)
		rec := f.store.seed(&Record{UserID: f.lone.ID, MarkedBy: f.lone.ID, Date: jan15, Status: StatusPresent})

		require.NoError(t, f.svc.DeleteAttendance(ctx, f.lone, rec.ID))
	})

	t.Run("Forbidden", func(t *testing.T) {
		f := newFixture(t)
		rec := f.store.seed(&Record{UserID: f.kim.ID, MarkedBy: f.kim.ID, Date: jan15, Status: StatusPresent})

		assert.ErrorIs(t, f.svc.DeleteAttendance(ctx, f.teacher, rec.ID), ErrForbidden)
		assert.ErrorIs(t, f.svc.DeleteAttendance(ctx, f.bea, rec.ID), ErrForbidden)
		assert.Equal(t, 1, f.store.count())
	})
}

func TestListAttendance(t *testing.T) {
	ctx := context.Background()

	seedDays := func(f *fixture, userID, n int) {
		for i := 0; i < n; i++ {
			st := StatusPresent
			if i%4 == 3 {
				st = StatusAbsent
			}
			f.store.seed(&Record{UserID: userID, MarkedBy: userID, Date: jan15.AddDate(0, 0, -i), Status: st})
		}
	}

	t.Run("SelfDefaultsToTenPerPage", func(t *testing.T) {
		f := newFixture(t)
		seedDays(f, f.bea.ID, 25)

		h, err := f.svc.ListAttendance(ctx, f.bea, f.bea.ID, pagination.Params{Page: 1})
		require.NoError(t, err)
		assert.Len(t, h.Records, 10)
		assert.Equal(t, 10, h.Meta.PerPage)
		assert.Equal(t, 25, h.Meta.Total)
		assert.Equal(t, 3, h.Meta.TotalPages)
		assert.True(t, h.Meta.HasNext)
		assert.False(t, h.Meta.HasPrev)
		assert.Equal(t, "Bea", h.Owner.Name)

		for i := 1; i < len(h.Records); i++ {
			assert.True(t, h.Records[i-1].Date.After(h.Records[i].Date), "records must be newest first")
		}
	})

	t.Run("SupervisingTeacherDefaultsToTwentyPerPage", func(t *testing.T) {
		f := newFixture(t)
		seedDays(f, f.bea.ID, 25)

		h, err := f.svc.ListAttendance(ctx, f.teacher, f.bea.ID, pagination.Params{Page: 2})
		require.NoError(t, err)
		assert.Len(t, h.Records, 5)
		assert.Equal(t, 20, h.Meta.PerPage)
		assert.True(t, h.Meta.HasPrev)
		assert.False(t, h.Meta.HasNext)
	})

	t.Run("PageSizeCapped", func(t *testing.T) {
		f := newFixture(t, WithPageSizes(0, 0, 5))
		seedDays(f, f.bea.ID, 8)

		h, err := f.svc.ListAttendance(ctx, f.bea, f.bea.ID, pagination.Params{Page: 1, PerPage: 50})
		require.NoError(t, err)
		assert.Len(t, h.Records, 5)
	})

	t.Run("Summary", func(t *testing.T) {
		f := newFixture(t)
		seedDays(f, f.al.ID, 8)

		h, err := f.svc.ListAttendance(ctx, f.al, f.al.ID, pagination.Params{})
		require.NoError(t, err)
		assert.Equal(t, 8, h.Summary.Total)
		assert.Equal(t, 6, h.Summary.Counts[StatusPresent])
		assert.Equal(t, 2, h.Summary.Counts[StatusAbsent])
		assert.Equal(t, 0, h.Summary.Counts[StatusLate])
		assert.Equal(t, 75, h.Summary.Rate)
	})

	t.Run("RoundTripIncludesMarkedRecordOnce", func(t *testing.T) {
		f := newFixture(t)
		rec, _, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{TargetUserID: intPtr(f.al.ID), Date: jan15, Status: StatusLate})
		require.NoError(t, err)
		_, _, err = f.svc.MarkAttendance(ctx, f.teacher, MarkInput{TargetUserID: intPtr(f.al.ID), Date: jan15, Status: StatusPresent})
		require.NoError(t, err)

		h, err := f.svc.ListAttendance(ctx, f.al, f.al.ID, pagination.Params{})
		require.NoError(t, err)
		found := 0
		for _, r := range h.Records {
			if r.ID == rec.ID {
				found++
				assert.Equal(t, StatusPresent, r.Status)
			}
		}
		assert.Equal(t, 1, found)
	})

	t.Run("Forbidden", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ListAttendance(ctx, f.otherTeacher, f.bea.ID, pagination.Params{})
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = f.svc.ListAttendance(ctx, f.al, f.bea.ID, pagination.Params{})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("UnknownUserLooksForbidden", func(t *testing.T) {
		f := newFixture(t)
		_, unknownErr := f.svc.ListAttendance(ctx, f.teacher, 999, pagination.Params{})
		_, unsupervisedErr := f.svc.ListAttendance(ctx, f.teacher, f.kim.ID, pagination.Params{})

		assert.ErrorIs(t, unknownErr, ErrForbidden)
		assert.ErrorIs(t, unsupervisedErr, ErrForbidden)
		assert.NotErrorIs(t, unknownErr, user.ErrUserNotFound)
	})
}

func TestDashboardSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("Teacher", func(t *testing.T) {
		f := newFixture(t)
		f.store.seed(&Record{UserID: f.bea.ID, MarkedBy: f.teacher.ID, Date: jan15, Status: StatusPresent})
		f.store.seed(&Record{UserID: f.bea.ID, MarkedBy: f.teacher.ID, Date: jan15.AddDate(0, 0, -1), Status: StatusAbsent})
		f.store.seed(&Record{UserID: f.kim.ID, MarkedBy: f.kim.ID, Date: jan15, Status: StatusPresent})
		own := f.store.seed(&Record{UserID: f.teacher.ID, MarkedBy: f.teacher.ID, Date: jan15, Status: StatusLate})

		dash, err := f.svc.DashboardSnapshot(ctx, f.teacher, time.Time{}, pagination.Params{})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-15", dash.Date)
		require.NotNil(t, dash.Teacher)
		assert.Nil(t, dash.Student)

		students := dash.Teacher.Students
		require.Len(t, students, 2)
		assert.Equal(t, "Al", students[0].Student.Name)
		assert.Nil(t, students[0].Record)
		assert.Equal(t, "Bea", students[1].Student.Name)
		require.NotNil(t, students[1].Record)
		assert.Equal(t, StatusPresent, students[1].Record.Status)

		require.NotNil(t, dash.Teacher.OwnRecord)
		assert.Equal(t, own.ID, dash.Teacher.OwnRecord.ID)
		assert.Equal(t, Tally{Present: 1, AbsentOrUnmarked: 1, Total: 2}, dash.Teacher.Tally)
	})

	t.Run("TeacherForEarlierDate", func(t *testing.T) {
		f := newFixture(t)
		f.store.seed(&Record{UserID: f.bea.ID, MarkedBy: f.teacher.ID, Date: jan15.AddDate(0, 0, -1), Status: StatusAbsent})

		dash, err := f.svc.DashboardSnapshot(ctx, f.teacher, jan15.AddDate(0, 0, -1), pagination.Params{})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-14", dash.Date)
		assert.Nil(t, dash.Teacher.OwnRecord)
		assert.Equal(t, Tally{Present: 0, AbsentOrUnmarked: 2, Total: 2}, dash.Teacher.Tally)
	})

	t.Run("TeacherWithoutStudents", func(t *testing.T) {
		f := newFixture(t)
		f.users.users[f.kim.ID].TeacherID = nil

		dash, err := f.svc.DashboardSnapshot(ctx, f.otherTeacher, jan15, pagination.Params{})
		require.NoError(t, err)
		assert.NotNil(t, dash.Teacher.Students)
		assert.Empty(t, dash.Teacher.Students)
	})

	t.Run("Student", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 12; i++ {
			f.store.seed(&Record{UserID: f.lone.ID, MarkedBy: f.lone.ID, Date: jan15.AddDate(0, 0, -i), Status: StatusPresent})
		}

		dash, err := f.svc.DashboardSnapshot(ctx, f.lone, time.Time{}, pagination.Params{Page: 1})
		require.NoError(t, err)
		require.NotNil(t, dash.Student)
		assert.Nil(t, dash.Teacher)
		assert.Len(t, dash.Student.History.Records, 10)
		assert.Equal(t, 12, dash.Student.History.Meta.Total)
		require.NotNil(t, dash.Student.TodayRecord)
		assert.Equal(t, "2024-01-15", dash.Student.TodayRecord.Date.Format(DateLayout))
	})

	t.Run("StudentWithoutTodayRecord", func(t *testing.T) {
		f := newFixture(t)
		dash, err := f.svc.DashboardSnapshot(ctx, f.bea, time.Time{}, pagination.Params{})
		require.NoError(t, err)
		assert.Nil(t, dash.Student.TodayRecord)
		assert.Empty(t, dash.Student.History.Records)
	})
}

func TestEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("EmittedAfterEachMutation", func(t *testing.T) {
		f := newFixture(t)

		rec, _, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{TargetUserID: intPtr(f.bea.ID), Date: jan15, Status: StatusPresent})
		require.NoError(t, err)
		_, err = f.svc.UpdateAttendance(ctx, f.teacher, rec.ID, Patch{Status: statusPtr(StatusLate)})
		require.NoError(t, err)
		require.NoError(t, f.svc.DeleteAttendance(ctx, f.teacher, rec.ID))

		assert.Equal(t, []EventType{EventMarked, EventUpdated, EventDeleted}, f.publisher.types())

		first := f.publisher.sent[0]
		assert.Equal(t, "10", first.key)
		assert.True(t, first.event.Created)
		assert.Equal(t, rec.ID, first.event.RecordID)
		assert.Equal(t, f.teacher.ID, first.event.MarkedBy)
		assert.Equal(t, "2024-01-15", first.event.Date)
		assert.NotEmpty(t, first.event.ID)
		assert.Equal(t, StatusLate, f.publisher.sent[1].event.Status)
	})

	t.Run("NotEmittedOnFailure", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.MarkAttendance(ctx, f.teacher, MarkInput{TargetUserID: intPtr(f.kim.ID), Date: jan15, Status: StatusPresent})
		require.ErrorIs(t, err, ErrForbidden)
		assert.Empty(t, f.publisher.types())
	})

	t.Run("PublishFailureDoesNotFailMutation", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.err = errors.New("broker down")

		_, created, err := f.svc.MarkAttendance(ctx, f.bea, MarkInput{Date: jan15, Status: StatusPresent})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 1, f.store.count())
	})

	t.Run("NilPublisher", func(t *testing.T) {
		dir := newMemDirectory(&user.User{ID: 1, Name: "Solo", Role: user.RoleStudent})
		svc := NewService(newMemStore(dir), dir, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewMock(),
			WithClock(func() time.Time { return jan15 }))

		_, _, err := svc.MarkAttendance(ctx, Actor{ID: 1, Role: user.RoleStudent}, MarkInput{Date: jan15, Status: StatusPresent})
		assert.NoError(t, err)
	})
}
