package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/model"
)

type submitAttemptStore interface {
	GetByID(ctx context.Context, id int64) (*model.ExamAttempt, error)
	Finalize(ctx context.Context, attemptID int64, userID int, score float64, now time.Time) (bool, error)
}

type answerKeyer interface {
	AnswerKey(ctx context.Context, examID uuid.UUID) (map[string]string, error)
}

type finalAnswerStore interface {
	InsertFinal(ctx context.Context, answers []model.ExamAnswer) error
	DeleteDrafts(ctx context.Context, examID uuid.UUID, userID int) error
}

// SubmitService finalizes exam attempts. The status flip on the attempt row
// is the commit point: whichever caller wins the conditional update owns the
// submission, every other caller gets ErrAttemptFinalized and the stored
// score is never recomputed.
type SubmitService struct {
	attempts submitAttemptStore
	key      answerKeyer
	answers  finalAnswerStore
	mirror   draftClearer
	clk      clock.Clock
	log      zerolog.Logger
}

// NewSubmitService creates a new SubmitService.
func NewSubmitService(attempts submitAttemptStore, key answerKeyer, answers finalAnswerStore, mirror draftClearer, clk clock.Clock, log zerolog.Logger) *SubmitService {
	return &SubmitService{
		attempts: attempts,
		key:      key,
		answers:  answers,
		mirror:   mirror,
		clk:      clk,
		log:      log.With().Str("component", "submit_service").Logger(),
	}
}

// Submit grades the submitted answers against the exam's answer key and
// finalizes the attempt. Returns the score on the winning call; a repeat
// call returns ErrAttemptFinalized without touching the stored result.
func (s *SubmitService) Submit(ctx context.Context, userID int, examID uuid.UUID, req *model.SubmitRequest) (float64, error) {
	attempt, err := s.attempts.GetByID(ctx, req.AttemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAttemptNotFound
		}
		return 0, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.UserID != userID || attempt.ExamID != examID {
		return 0, ErrAttemptNotFound
	}

	key, err := s.key.AnswerKey(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("load answer key: %w", err)
	}

	score := gradeAnswers(key, req.Answers)

	ok, err := s.attempts.Finalize(ctx, req.AttemptID, userID, score, s.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		return 0, ErrAttemptFinalized
	}

	// The attempt is committed at this point and the flip is never undone.
	// The permanent answer rows are part of the submission though: if they
	// cannot be written the caller must hear about it, so that error is
	// surfaced. Only draft cleanup below is best effort.
	if len(req.Answers) > 0 {
		rows := make([]model.ExamAnswer, 0, len(req.Answers))
		for questionID, answer := range req.Answers {
			qid, parseErr := uuid.Parse(questionID)
			if parseErr != nil {
				s.log.Warn().Str("question_id", questionID).Int64("attempt_id", req.AttemptID).Msg("dropping answer with malformed question id")
				continue
			}
			correct, graded := key[questionID]
			rows = append(rows, model.ExamAnswer{
				AttemptID:  req.AttemptID,
				QuestionID: qid,
				Answer:     answer,
				IsCorrect:  graded && answer == correct,
			})
		}
		if err := s.answers.InsertFinal(ctx, rows); err != nil {
			s.log.Error().Err(err).Int64("attempt_id", req.AttemptID).Msg("failed to persist final answers")
			return 0, fmt.Errorf("persist final answers: %w", err)
		}
	}

	if err := s.answers.DeleteDrafts(ctx, examID, userID); err != nil {
		s.log.Warn().Err(err).Int64("attempt_id", req.AttemptID).Msg("failed to delete draft answers")
	}
	if err := s.mirror.Clear(ctx, examID, userID); err != nil {
		s.log.Warn().Err(err).Int64("attempt_id", req.AttemptID).Msg("failed to clear draft mirror")
	}

	s.log.Info().
		Int("user_id", userID).
		Int64("attempt_id", req.AttemptID).
		Float64("score", score).
		Msg("attempt finalized")

	return score, nil
}

// gradeAnswers scores a submission against the answer key. Only questions
// present in the key count toward the total; an exam with no questions
// scores zero.
func gradeAnswers(key, answers map[string]string) float64 {
	if len(key) == 0 {
		return 0
	}
	correct := 0
	for questionID, expected := range key {
		if answers[questionID] == expected {
			correct++
		}
	}
	return float64(correct) / float64(len(key)) * 100
}
