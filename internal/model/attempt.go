package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states. COMPLETED is terminal; an
// administrator reset deletes the row instead of transitioning it.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// ExamAttempt is one student's single try at one exam. At most one
// IN_PROGRESS row may exist per (user, exam) pair.
type ExamAttempt struct {
	ID                int64         `json:"id"`
	ExamID            uuid.UUID     `json:"exam_id"`
	UserID            int           `json:"user_id"`
	Status            AttemptStatus `json:"status"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	TimeExtension     int           `json:"time_extension"` // minutes, monotonically non-decreasing
	Score             *float64      `json:"score,omitempty"`
	DoubtfulQuestions []uuid.UUID   `json:"doubtful_questions"`
	LastQuestionIndex int           `json:"last_question_index"`
}

// AttemptDetails is the student polling payload: authoritative remaining
// time and extension state, computed from the server clock.
type AttemptDetails struct {
	AttemptID     int64         `json:"attempt_id"`
	Status        AttemptStatus `json:"status"`
	SecondsLeft   int64         `json:"seconds_left"`
	TimeExtension int           `json:"time_extension"`
}

// UpdateAttemptRequest is the autosave payload for attempt bookkeeping.
type UpdateAttemptRequest struct {
	DoubtfulQuestions *[]uuid.UUID `json:"doubtful_questions" binding:"omitempty,max=500"`
	LastQuestionIndex *int         `json:"last_question_index" binding:"omitempty,min=0"`
}

// SubmitRequest carries the final answer map for grading.
type SubmitRequest struct {
	AttemptID int64             `json:"attempt_id" binding:"required,min=1"`
	Answers   map[string]string `json:"answers" binding:"required"`
}
