package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// Attempt registry errors.
var (
	// ErrNoActiveAttempt means the user has no in-progress attempt for the
	// exam: either they never started, or a reset destroyed it.
	ErrNoActiveAttempt = errors.New("no active attempt")
	// ErrAttemptNotFound covers an absent attempt and one not owned by the
	// caller alike; the distinction is never surfaced.
	ErrAttemptNotFound = errors.New("attempt not found")
)

type attemptStore interface {
	GetInProgress(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error)
	UpdateProgress(ctx context.Context, attemptID int64, userID int, doubtful *[]uuid.UUID, lastIndex *int) (bool, error)
}

type examSettingsResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

type questionLister interface {
	ListForStudent(ctx context.Context, examID uuid.UUID) ([]model.QuestionForStudent, error)
}

type draftReader interface {
	ListDrafts(ctx context.Context, examID uuid.UUID, userID int) (map[string]string, error)
}

type draftMirror interface {
	Save(ctx context.Context, examID uuid.UUID, userID int, questionID, answer string) error
	Snapshot(ctx context.Context, examID uuid.UUID, userID int) (map[string]string, error)
	Warm(ctx context.Context, examID uuid.UUID, userID int, drafts map[string]string)
}

// AttemptService serves the student-facing attempt operations: timer
// polling, progress bookkeeping, paper retrieval, and draft autosave.
type AttemptService struct {
	attempts attemptStore
	exams    examSettingsResolver
	quests   questionLister
	drafts   draftReader
	mirror   draftMirror
	clk      clock.Clock
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts attemptStore, exams examSettingsResolver, quests questionLister, drafts draftReader, mirror draftMirror, clk clock.Clock, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		exams:    exams,
		quests:   quests,
		drafts:   drafts,
		mirror:   mirror,
		clk:      clk,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// Details returns the authoritative timer state for the user's live attempt
// on the exam. Clients recover from any failed write by re-querying this.
func (s *AttemptService) Details(ctx context.Context, userID int, examID uuid.UUID) (*model.AttemptDetails, error) {
	attempt, err := s.attempts.GetInProgress(ctx, userID, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAttempt
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	settings, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load exam settings: %w", err)
	}

	return &model.AttemptDetails{
		AttemptID:     attempt.ID,
		Status:        attempt.Status,
		SecondsLeft:   RemainingSeconds(settings, attempt, s.clk.Now()),
		TimeExtension: attempt.TimeExtension,
	}, nil
}

// UpdateProgress saves doubtful-question flags and/or the last viewed
// question index. The guarded write reports ErrAttemptNotFound when the
// attempt is gone, finalized, or not owned by the caller.
func (s *AttemptService) UpdateProgress(ctx context.Context, userID int, attemptID int64, req *model.UpdateAttemptRequest) error {
	var doubtful *[]uuid.UUID
	if req.DoubtfulQuestions != nil {
		doubtful = req.DoubtfulQuestions
	}

	ok, err := s.attempts.UpdateProgress(ctx, attemptID, userID, doubtful, req.LastQuestionIndex)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if !ok {
		return ErrAttemptNotFound
	}
	return nil
}

// PaperPayload is the exam paper plus restore state after a reload.
type PaperPayload struct {
	ExamID      uuid.UUID                  `json:"exam_id"`
	Title       string                     `json:"title"`
	SecondsLeft int64                      `json:"seconds_left"`
	Questions   []model.QuestionForStudent `json:"questions"`
	Drafts      map[string]string          `json:"drafts"`
	LastIndex   int                        `json:"last_question_index"`
	Doubtful    []uuid.UUID                `json:"doubtful_questions"`
}

// Paper returns the shuffled question set (no correct options) together with
// the student's saved drafts and bookmarks. The shuffle is deterministic per
// (user, exam), so a reload always reproduces the same order.
func (s *AttemptService) Paper(ctx context.Context, userID int, examID uuid.UUID) (*PaperPayload, error) {
	attempt, err := s.attempts.GetInProgress(ctx, userID, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAttempt
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	settings, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load exam settings: %w", err)
	}

	questions, err := s.quests.ListForStudent(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	ShuffleQuestions(questions, PaperSeed(userID, examID))

	drafts, err := s.mirror.Snapshot(ctx, examID, userID)
	if err != nil || len(drafts) == 0 {
		// Cold or unreachable mirror: fall back to the store, then self-heal
		// the mirror so the next reload is fast.
		drafts, err = s.drafts.ListDrafts(ctx, examID, userID)
		if err != nil {
			return nil, fmt.Errorf("load drafts: %w", err)
		}
		s.mirror.Warm(ctx, examID, userID, drafts)
	}

	return &PaperPayload{
		ExamID:      examID,
		Title:       settings.Title,
		SecondsLeft: RemainingSeconds(settings, attempt, s.clk.Now()),
		Questions:   questions,
		Drafts:      drafts,
		LastIndex:   attempt.LastQuestionIndex,
		Doubtful:    attempt.DoubtfulQuestions,
	}, nil
}

// Autosave stores one draft selection for the user's live attempt.
func (s *AttemptService) Autosave(ctx context.Context, userID int, examID uuid.UUID, questionID, answer string) error {
	if _, err := s.attempts.GetInProgress(ctx, userID, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoActiveAttempt
		}
		return fmt.Errorf("load attempt: %w", err)
	}
	return s.mirror.Save(ctx, examID, userID, questionID, answer)
}
