package service

import (
	"testing"
	"time"

	"github.com/ujianku/ujianku-backend/internal/model"
)

func asyncExam(durationMinutes int) *model.Exam {
	return &model.Exam{
		TimerMode:       model.TimerModeAsync,
		DurationMinutes: durationMinutes,
	}
}

func TestRemainingSecondsAsync(t *testing.T) {
	start := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	exam := asyncExam(60)
	attempt := &model.ExamAttempt{StartTime: start}

	got := RemainingSeconds(exam, attempt, start)
	if got != 3600 {
		t.Errorf("at start: got %d, want 3600", got)
	}

	got = RemainingSeconds(exam, attempt, start.Add(45*time.Minute))
	if got != 900 {
		t.Errorf("after 45m: got %d, want 900", got)
	}
}

func TestRemainingSecondsClampsAtZero(t *testing.T) {
	start := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	exam := asyncExam(30)
	attempt := &model.ExamAttempt{StartTime: start}

	got := RemainingSeconds(exam, attempt, start.Add(2*time.Hour))
	if got != 0 {
		t.Errorf("past deadline: got %d, want 0", got)
	}
}

func TestRemainingSecondsExtension(t *testing.T) {
	start := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	exam := asyncExam(60)

	base := &model.ExamAttempt{StartTime: start}
	extended := &model.ExamAttempt{StartTime: start, TimeExtension: 15}

	now := start.Add(30 * time.Minute)
	diff := RemainingSeconds(exam, extended, now) - RemainingSeconds(exam, base, now)
	if diff != 15*60 {
		t.Errorf("extension delta: got %d, want %d", diff, 15*60)
	}

	// An extension can revive an expired attempt.
	late := start.Add(65 * time.Minute)
	if got := RemainingSeconds(exam, base, late); got != 0 {
		t.Errorf("expired base: got %d, want 0", got)
	}
	if got := RemainingSeconds(exam, extended, late); got != 10*60 {
		t.Errorf("revived: got %d, want %d", got, 10*60)
	}
}

func TestRemainingSecondsSyncSharedDeadline(t *testing.T) {
	end := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	exam := &model.Exam{
		TimerMode:       model.TimerModeSync,
		DurationMinutes: 90,
		EndTime:         &end,
	}

	// Two students who started at different times share the same deadline.
	early := &model.ExamAttempt{StartTime: end.Add(-90 * time.Minute)}
	late := &model.ExamAttempt{StartTime: end.Add(-20 * time.Minute)}

	now := end.Add(-10 * time.Minute)
	if a, b := RemainingSeconds(exam, early, now), RemainingSeconds(exam, late, now); a != b {
		t.Errorf("sync deadlines diverge: %d vs %d", a, b)
	}
	if got := RemainingSeconds(exam, early, now); got != 600 {
		t.Errorf("sync remaining: got %d, want 600", got)
	}
}

func TestRemainingSecondsMonotonicNonIncreasing(t *testing.T) {
	start := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	exam := asyncExam(10)
	attempt := &model.ExamAttempt{StartTime: start}

	prev := RemainingSeconds(exam, attempt, start)
	for i := 1; i <= 12; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		cur := RemainingSeconds(exam, attempt, now)
		if cur > prev {
			t.Fatalf("remaining increased from %d to %d at minute %d", prev, cur, i)
		}
		prev = cur
	}
}
