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
)

type fakeAttemptStore struct {
	attempt  *model.ExamAttempt
	getErr   error
	updateOK bool
	updates  int
}

func (f *fakeAttemptStore) GetInProgress(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.attempt, nil
}

func (f *fakeAttemptStore) UpdateProgress(ctx context.Context, attemptID int64, userID int, doubtful *[]uuid.UUID, lastIndex *int) (bool, error) {
	if f.updateOK {
		f.updates++
	}
	return f.updateOK, nil
}

type fakeExamResolver struct {
	exam *model.Exam
}

func (f *fakeExamResolver) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return f.exam, nil
}

type fakeQuestionLister struct {
	questions []model.QuestionForStudent
}

func (f *fakeQuestionLister) ListForStudent(ctx context.Context, examID uuid.UUID) ([]model.QuestionForStudent, error) {
	return f.questions, nil
}

type fakeDraftReader struct {
	drafts map[string]string
	err    error
}

func (f *fakeDraftReader) ListDrafts(ctx context.Context, examID uuid.UUID, userID int) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.drafts, nil
}

type fakeDraftMirror struct {
	snapshot    map[string]string
	snapshotErr error
	warmed      map[string]string
	saved       int
}

func (f *fakeDraftMirror) Save(ctx context.Context, examID uuid.UUID, userID int, questionID, answer string) error {
	f.saved++
	return nil
}

func (f *fakeDraftMirror) Snapshot(ctx context.Context, examID uuid.UUID, userID int) (map[string]string, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakeDraftMirror) Warm(ctx context.Context, examID uuid.UUID, userID int, drafts map[string]string) {
	f.warmed = drafts
}

type attemptFixture struct {
	svc      *AttemptService
	attempts *fakeAttemptStore
	drafts   *fakeDraftReader
	mirror   *fakeDraftMirror
	examID   uuid.UUID
}

func newAttemptFixture() *attemptFixture {
	examID := uuid.New()
	f := &attemptFixture{
		attempts: &fakeAttemptStore{
			attempt: &model.ExamAttempt{
				ID:                7,
				ExamID:            examID,
				UserID:            42,
				Status:            model.AttemptStatusInProgress,
				StartTime:         testNow.Add(-10 * time.Minute),
				LastQuestionIndex: 3,
			},
			updateOK: true,
		},
		drafts: &fakeDraftReader{drafts: map[string]string{}},
		mirror: &fakeDraftMirror{},
		examID: examID,
	}
	exams := &fakeExamResolver{exam: &model.Exam{
		ID:              examID,
		Title:           "Matematika Wajib",
		TimerMode:       model.TimerModeAsync,
		DurationMinutes: 60,
	}}
	quests := &fakeQuestionLister{questions: []model.QuestionForStudent{
		{ID: uuid.New(), QuestionText: "1 + 1"},
		{ID: uuid.New(), QuestionText: "2 + 2"},
	}}
	f.svc = NewAttemptService(f.attempts, exams, quests, f.drafts, f.mirror,
		clock.Fixed(testNow), zerolog.Nop())
	return f
}

func TestDetailsComputesRemainingTime(t *testing.T) {
	f := newAttemptFixture()

	details, err := f.svc.Details(context.Background(), 42, f.examID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.AttemptID != 7 {
		t.Errorf("attempt id: got %d, want 7", details.AttemptID)
	}
	if details.SecondsLeft != 50*60 {
		t.Errorf("seconds left: got %d, want %d", details.SecondsLeft, 50*60)
	}
}

func TestDetailsAfterResetReturnsNoActiveAttempt(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.getErr = pgx.ErrNoRows

	_, err := f.svc.Details(context.Background(), 42, f.examID)
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("got %v, want ErrNoActiveAttempt", err)
	}
}

func TestDetailsStoreErrorIsNotNoActiveAttempt(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.getErr = errors.New("connection refused")

	_, err := f.svc.Details(context.Background(), 42, f.examID)
	if err == nil || errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("got %v, want a wrapped store error", err)
	}
}

func TestUpdateProgressGoneAttemptReturnsNotFound(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.updateOK = false

	err := f.svc.UpdateProgress(context.Background(), 42, 7, &model.UpdateAttemptRequest{})
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("got %v, want ErrAttemptNotFound", err)
	}
}

func TestUpdateProgressWritesOnce(t *testing.T) {
	f := newAttemptFixture()
	idx := 5

	err := f.svc.UpdateProgress(context.Background(), 42, 7, &model.UpdateAttemptRequest{LastQuestionIndex: &idx})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.attempts.updates != 1 {
		t.Errorf("guarded writes: got %d, want 1", f.attempts.updates)
	}
}

func TestPaperAfterResetReturnsNoActiveAttempt(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.getErr = pgx.ErrNoRows

	_, err := f.svc.Paper(context.Background(), 42, f.examID)
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("got %v, want ErrNoActiveAttempt", err)
	}
}

func TestPaperServesDraftsFromWarmMirror(t *testing.T) {
	f := newAttemptFixture()
	qid := uuid.NewString()
	f.mirror.snapshot = map[string]string{qid: "B"}

	paper, err := f.svc.Paper(context.Background(), 42, f.examID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paper.Drafts[qid] != "B" {
		t.Errorf("drafts: got %v, want mirror snapshot", paper.Drafts)
	}
	if f.mirror.warmed != nil {
		t.Error("a warm mirror must not be re-warmed")
	}
	if paper.LastIndex != 3 {
		t.Errorf("last index: got %d, want 3", paper.LastIndex)
	}
}

func TestPaperColdMirrorFallsBackAndSelfHeals(t *testing.T) {
	f := newAttemptFixture()
	qid := uuid.NewString()
	f.mirror.snapshotErr = errors.New("redis down")
	f.drafts.drafts = map[string]string{qid: "C"}

	paper, err := f.svc.Paper(context.Background(), 42, f.examID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paper.Drafts[qid] != "C" {
		t.Errorf("drafts: got %v, want store fallback", paper.Drafts)
	}
	if f.mirror.warmed[qid] != "C" {
		t.Error("the mirror must be re-warmed from the store")
	}
}

func TestPaperDraftStoreFailureSurfaced(t *testing.T) {
	f := newAttemptFixture()
	f.mirror.snapshotErr = errors.New("redis down")
	f.drafts.err = errors.New("connection refused")

	_, err := f.svc.Paper(context.Background(), 42, f.examID)
	if err == nil {
		t.Fatal("expected an error when both draft sources fail")
	}
}

func TestAutosaveWithoutAttemptRejected(t *testing.T) {
	f := newAttemptFixture()
	f.attempts.getErr = pgx.ErrNoRows

	err := f.svc.Autosave(context.Background(), 42, f.examID, uuid.NewString(), "A")
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("got %v, want ErrNoActiveAttempt", err)
	}
	if f.mirror.saved != 0 {
		t.Error("no mirror write expected without a live attempt")
	}
}
