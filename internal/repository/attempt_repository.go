package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// AttemptRepository is the attempt registry. Every state-changing method is a
// single conditional mutation: the WHERE clause re-states the precondition
// and the caller learns from the affected-row count whether it still held.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, user_id, status, start_time, end_time,
	time_extension, score, doubtful_questions, last_question_index`

func scanAttempt(row interface{ Scan(...any) error }) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &a.StartTime,
		&a.EndTime, &a.TimeExtension, &a.Score, &a.DoubtfulQuestions,
		&a.LastQuestionIndex)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by primary key.
func (r *AttemptRepository) GetByID(ctx context.Context, id int64) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// GetInProgress retrieves the single live attempt for a (user, exam) pair.
func (r *AttemptRepository) GetInProgress(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 AND status = $3`,
		userID, examID, model.AttemptStatusInProgress))
}

// HasInProgress reports whether the user has a live attempt on any exam.
// The session validator uses this as the standing idle-timeout exception.
func (r *AttemptRepository) HasInProgress(ctx context.Context, userID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM exam_attempts WHERE user_id = $1 AND status = $2
		 )`, userID, model.AttemptStatusInProgress).Scan(&exists)
	return exists, err
}

// AddTime grants extension minutes, but only while the attempt is still live.
// Extending a finalized attempt matches zero rows and leaves it untouched.
func (r *AttemptRepository) AddTime(ctx context.Context, attemptID int64, minutes int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET time_extension = time_extension + $1
		 WHERE id = $2 AND status = $3`,
		minutes, attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateProgress saves doubtful-question flags and/or the last viewed index.
// Ownership and liveness sit in the WHERE clause; nil fields are left alone.
// Only the SET list is assembled dynamically; every comparison stays
// parameterized.
func (r *AttemptRepository) UpdateProgress(ctx context.Context, attemptID int64, userID int, doubtful *[]uuid.UUID, lastIndex *int) (bool, error) {
	sets := ""
	args := []any{attemptID, userID, model.AttemptStatusInProgress}

	if doubtful != nil {
		args = append(args, *doubtful)
		sets += fmt.Sprintf("doubtful_questions = $%d", len(args))
	}
	if lastIndex != nil {
		if sets != "" {
			sets += ", "
		}
		args = append(args, *lastIndex)
		sets += fmt.Sprintf("last_question_index = $%d", len(args))
	}
	if sets == "" {
		// Nothing to change; still report whether the row exists and is live.
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (
			    SELECT 1 FROM exam_attempts
			    WHERE id = $1 AND user_id = $2 AND status = $3
			 )`, args...).Scan(&exists)
		return exists, err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts SET `+sets+`
		 WHERE id = $1 AND user_id = $2 AND status = $3`, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Finalize is the terminal transition. The status predicate makes it
// exclusive and idempotent-safe: a double submit, or a submit racing a reset,
// matches zero rows instead of re-finalizing or resurrecting the attempt.
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID int64, userID int, score float64, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $1, score = $2, end_time = $3
		 WHERE id = $4 AND user_id = $5 AND status = $6`,
		model.AttemptStatusCompleted, score, now,
		attemptID, userID, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete destroys an attempt row outright: an administrator reset is a full
// reset, not a soft status change. Conditioned on the owning user.
func (r *AttemptRepository) Delete(ctx context.Context, attemptID int64, userID int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exam_attempts WHERE id = $1 AND user_id = $2`,
		attemptID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
