package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// AnswerRepository handles draft (temporary) and permanent answer records.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// UpsertDraft creates or refreshes a single draft selection.
func (r *AnswerRepository) UpsertDraft(ctx context.Context, examID uuid.UUID, userID int, questionID uuid.UUID, answer string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO temporary_answers (exam_id, user_id, question_id, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, user_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		examID, userID, questionID, answer)
	return err
}

// ListDrafts returns question id → draft answer for (user, exam). Used to
// rebuild the paper after a reload when the Redis mirror is cold.
func (r *AnswerRepository) ListDrafts(ctx context.Context, examID uuid.UUID, userID int) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer
		 FROM temporary_answers
		 WHERE exam_id = $1 AND user_id = $2`, examID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drafts := make(map[string]string)
	for rows.Next() {
		var qid uuid.UUID
		var ans string
		if err := rows.Scan(&qid, &ans); err != nil {
			return nil, err
		}
		drafts[qid.String()] = ans
	}
	return drafts, rows.Err()
}

// DeleteDrafts removes all draft rows for (user, exam). Draft cleanup after
// a successful submission; not reversible.
func (r *AnswerRepository) DeleteDrafts(ctx context.Context, examID uuid.UUID, userID int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM temporary_answers WHERE exam_id = $1 AND user_id = $2`,
		examID, userID)
	return err
}

// InsertFinal writes the permanent answer records for a finalized attempt in
// one round trip.
func (r *AnswerRepository) InsertFinal(ctx context.Context, answers []model.ExamAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(
			`INSERT INTO exam_answers (attempt_id, question_id, answer, is_correct)
			 VALUES ($1, $2, $3, $4)`,
			a.AttemptID, a.QuestionID, a.Answer, a.IsCorrect)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range answers {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
