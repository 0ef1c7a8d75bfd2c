package model

import (
	"time"

	"github.com/google/uuid"
)

// TemporaryAnswer is a per-question draft selection, upserted continuously
// while the attempt runs and deleted wholesale on successful submission.
// It is not authoritative until copied into ExamAnswer at submit.
type TemporaryAnswer struct {
	ExamID     uuid.UUID `json:"exam_id"`
	UserID     int       `json:"user_id"`
	QuestionID uuid.UUID `json:"question_id"`
	Answer     string    `json:"answer"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ExamAnswer is the permanent answer record written at submission, flagged
// correct/incorrect at write time for audit and report speed.
type ExamAnswer struct {
	ID         int64     `json:"id"`
	AttemptID  int64     `json:"attempt_id"`
	QuestionID uuid.UUID `json:"question_id"`
	Answer     string    `json:"answer"`
	IsCorrect  bool      `json:"is_correct"`
	CreatedAt  time.Time `json:"created_at"`
}

// AutosaveRequest is the payload for saving a single draft answer.
type AutosaveRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid4"`
	Answer     string `json:"answer" binding:"required,max=10"`
}
