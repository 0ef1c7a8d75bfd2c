package model

import (
	"time"

	"github.com/google/uuid"
)

// TimerMode selects how an attempt's deadline is computed.
// Async attempts run for DurationMinutes from their own start time;
// sync attempts share the exam's wall-clock EndTime regardless of when
// each student started.
type TimerMode string

const (
	TimerModeSync  TimerMode = "sync"
	TimerModeAsync TimerMode = "async"
)

// Exam holds the per-exam timing configuration. The exam core treats it as
// immutable for the lifetime of an attempt; authoring mutates it elsewhere.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	TimerMode       TimerMode  `json:"timer_mode"`
	DurationMinutes int        `json:"duration_minutes"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
