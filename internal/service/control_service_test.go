package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
)

type fakeControlUserStore struct {
	forceLogoutOK  bool
	forceLogoutErr error
	loggedOut      []int
	toggleLocked   bool
	toggleLockErr  error
}

func (f *fakeControlUserStore) ForceLogout(ctx context.Context, userID int, epoch time.Time) (bool, error) {
	if f.forceLogoutErr != nil {
		return false, f.forceLogoutErr
	}
	f.loggedOut = append(f.loggedOut, userID)
	return f.forceLogoutOK, nil
}

func (f *fakeControlUserStore) ToggleLock(ctx context.Context, userID int) (bool, error) {
	return f.toggleLocked, f.toggleLockErr
}

type fakeControlAttemptStore struct {
	attempt   *model.ExamAttempt
	getErr    error
	addTimeOK bool
	deleted   []int64
	deleteOK  bool
}

func (f *fakeControlAttemptStore) GetByID(ctx context.Context, id int64) (*model.ExamAttempt, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.attempt, nil
}

func (f *fakeControlAttemptStore) AddTime(ctx context.Context, attemptID int64, minutes int) (bool, error) {
	return f.addTimeOK, nil
}

func (f *fakeControlAttemptStore) Delete(ctx context.Context, attemptID int64, userID int) (bool, error) {
	if f.deleteOK {
		f.deleted = append(f.deleted, attemptID)
	}
	return f.deleteOK, nil
}

type fakeRosterStore struct {
	rows []repository.RosterRow
}

func (f *fakeRosterStore) ListStudents(ctx context.Context) ([]repository.RosterRow, error) {
	return f.rows, nil
}

type recordingAudit struct {
	events []model.AuditEvent
}

func (r *recordingAudit) Record(ctx context.Context, e model.AuditEvent) {
	r.events = append(r.events, e)
}

type fakeDraftClearer struct {
	cleared []uuid.UUID
	err     error
}

func (f *fakeDraftClearer) Clear(ctx context.Context, examID uuid.UUID, userID int) error {
	if f.err != nil {
		return f.err
	}
	f.cleared = append(f.cleared, examID)
	return f.err
}

type controlFixture struct {
	svc      *ControlService
	users    *fakeControlUserStore
	attempts *fakeControlAttemptStore
	audit    *recordingAudit
	mirror   *fakeDraftClearer
}

func newControlFixture(now time.Time) *controlFixture {
	f := &controlFixture{
		users:    &fakeControlUserStore{forceLogoutOK: true},
		attempts: &fakeControlAttemptStore{},
		audit:    &recordingAudit{},
		mirror:   &fakeDraftClearer{},
	}
	f.svc = NewControlService(f.users, f.attempts, &fakeRosterStore{}, f.audit, f.mirror,
		clock.Fixed(now), 5*time.Minute, zerolog.Nop())
	return f
}

var testNow = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

func TestDispatchForceLogout(t *testing.T) {
	f := newControlFixture(testNow)

	msg, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action: model.ControlForceLogout,
		UserID: 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == "" {
		t.Error("expected a confirmation message")
	}
	if len(f.users.loggedOut) != 1 || f.users.loggedOut[0] != 42 {
		t.Errorf("expected user 42 logged out, got %v", f.users.loggedOut)
	}
	if len(f.audit.events) != 1 || f.audit.events[0].Event != AuditAdminForceLogout {
		t.Errorf("expected one force-logout audit event, got %+v", f.audit.events)
	}
}

func TestDispatchForceLogoutUnknownUser(t *testing.T) {
	f := newControlFixture(testNow)
	f.users.forceLogoutOK = false

	_, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action: model.ControlForceLogout,
		UserID: 9999,
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
	if len(f.audit.events) != 0 {
		t.Error("failed action must not be audited as applied")
	}
}

func TestDispatchLockToggle(t *testing.T) {
	f := newControlFixture(testNow)
	f.users.toggleLocked = true

	msg, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action: model.ControlLockLogin,
		UserID: 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Login akun telah dikunci." {
		t.Errorf("unexpected message %q", msg)
	}

	f.users.toggleLocked = false
	msg, err = f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action: model.ControlLockLogin,
		UserID: 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Login akun telah dibuka." {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestDispatchLockToggleUnknownUser(t *testing.T) {
	f := newControlFixture(testNow)
	f.users.toggleLockErr = pgx.ErrNoRows

	_, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action: model.ControlLockLogin,
		UserID: 9999,
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
}

func TestDispatchResetExam(t *testing.T) {
	examID := uuid.New()
	f := newControlFixture(testNow)
	f.attempts.attempt = &model.ExamAttempt{ID: 5, ExamID: examID, UserID: 42}
	f.attempts.deleteOK = true

	_, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action:    model.ControlResetExam,
		UserID:    42,
		AttemptID: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.attempts.deleted) != 1 || f.attempts.deleted[0] != 5 {
		t.Errorf("expected attempt 5 deleted, got %v", f.attempts.deleted)
	}
	if len(f.users.loggedOut) != 1 {
		t.Error("reset must also revoke the device session")
	}
	if len(f.mirror.cleared) != 1 || f.mirror.cleared[0] != examID {
		t.Error("reset must clear the draft mirror")
	}
}

func TestDispatchResetExamLogoutFailureTolerated(t *testing.T) {
	f := newControlFixture(testNow)
	f.attempts.attempt = &model.ExamAttempt{ID: 5, ExamID: uuid.New(), UserID: 42}
	f.attempts.deleteOK = true
	f.users.forceLogoutErr = errors.New("connection refused")

	// The destroyed attempt is the safety property; a failed logout
	// afterwards must not fail the action.
	if _, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action:    model.ControlResetExam,
		UserID:    42,
		AttemptID: 5,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatchResetExamRequiresAttemptID(t *testing.T) {
	f := newControlFixture(testNow)

	_, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action: model.ControlResetExam,
		UserID: 42,
	})
	if !errors.Is(err, ErrAttemptRequired) {
		t.Fatalf("got %v, want ErrAttemptRequired", err)
	}
}

func TestDispatchAddTime(t *testing.T) {
	f := newControlFixture(testNow)
	f.attempts.addTimeOK = true

	msg, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action:    model.ControlAddTime,
		UserID:    42,
		AttemptID: 5,
		Minutes:   15,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Waktu ujian ditambah 15 menit." {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestDispatchAddTimeOnFinalizedAttempt(t *testing.T) {
	f := newControlFixture(testNow)
	f.attempts.addTimeOK = false
	f.attempts.attempt = &model.ExamAttempt{ID: 5, Status: model.AttemptStatusCompleted}

	_, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action:    model.ControlAddTime,
		UserID:    42,
		AttemptID: 5,
		Minutes:   15,
	})
	if !errors.Is(err, ErrAttemptFinalized) {
		t.Fatalf("got %v, want ErrAttemptFinalized", err)
	}
}

func TestDispatchAddTimeOnMissingAttempt(t *testing.T) {
	f := newControlFixture(testNow)
	f.attempts.addTimeOK = false
	f.attempts.getErr = pgx.ErrNoRows

	_, err := f.svc.Dispatch(context.Background(), 1, &model.ControlActionRequest{
		Action:    model.ControlAddTime,
		UserID:    42,
		AttemptID: 5,
		Minutes:   15,
	})
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("got %v, want ErrAttemptNotFound", err)
	}
}

func TestRosterDerivesLiveness(t *testing.T) {
	className := "XII RPL 1"
	rows := []repository.RosterRow{
		{UserID: 1, Username: "siswa1", Name: "Siswa Satu", ClassName: &className,
			LastActivity: testNow.Add(-1 * time.Minute)},
		{UserID: 2, Username: "siswa2", Name: "Siswa Dua",
			LastActivity: testNow.Add(-30 * time.Minute)},
		// Clock skew on a fresh row must not produce negative inactivity.
		{UserID: 3, Username: "siswa3", Name: "Siswa Tiga",
			LastActivity: testNow.Add(2 * time.Second)},
	}

	f := newControlFixture(testNow)
	svc := NewControlService(f.users, f.attempts, &fakeRosterStore{rows: rows}, f.audit,
		f.mirror, clock.Fixed(testNow), 5*time.Minute, zerolog.Nop())

	roster, err := svc.Roster(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roster) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(roster))
	}

	if !roster[0].IsOnline {
		t.Error("recently active student should be online")
	}
	if roster[0].InactiveSeconds != 60 {
		t.Errorf("inactive seconds: got %d, want 60", roster[0].InactiveSeconds)
	}
	if roster[1].IsOnline {
		t.Error("student idle 30m should be offline")
	}
	if roster[2].InactiveSeconds != 0 {
		t.Errorf("future activity must clamp to 0, got %d", roster[2].InactiveSeconds)
	}
}
