package service

import (
	"time"

	"github.com/ujianku/ujianku-backend/internal/model"
)

// Deadline returns the wall-clock instant at which an attempt expires.
//
// Async exams run for the configured duration from the attempt's own start;
// sync exams share the exam-wide end time regardless of individual start.
// Admin-granted extension minutes push either deadline back.
func Deadline(settings *model.Exam, attempt *model.ExamAttempt) time.Time {
	extension := time.Duration(attempt.TimeExtension) * time.Minute

	if settings.TimerMode == model.TimerModeSync && settings.EndTime != nil {
		return settings.EndTime.Add(extension)
	}
	return attempt.StartTime.
		Add(time.Duration(settings.DurationMinutes) * time.Minute).
		Add(extension)
}

// RemainingSeconds computes seconds left for an attempt at the given server
// time, clamped at zero. Every caller, the student polling endpoint and the
// submission expiry check alike, must use this one formula so that no
// client/server skew can arise. now is always the server clock; a
// client-submitted timestamp is never used here.
func RemainingSeconds(settings *model.Exam, attempt *model.ExamAttempt, now time.Time) int64 {
	remaining := Deadline(settings, attempt).Sub(now)
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}
