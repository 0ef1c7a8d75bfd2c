package model

import "time"

// ControlAction enumerates administrator state transitions against a
// student's session or attempt.
type ControlAction string

const (
	ControlForceLogout ControlAction = "force_logout"
	ControlLockLogin   ControlAction = "lock_login"
	ControlResetExam   ControlAction = "reset_exam"
	ControlAddTime     ControlAction = "add_time"
)

// ControlActionRequest is the payload for POST /control/actions.
type ControlActionRequest struct {
	Action    ControlAction `json:"action" binding:"required,oneof=force_logout lock_login reset_exam add_time"`
	UserID    int           `json:"user_id" binding:"required,min=1"`
	AttemptID int64         `json:"attempt_id" binding:"omitempty,min=1"`
	Minutes   int           `json:"minutes" binding:"omitempty,min=1,max=480"`
}

// RosterEntry is one row of the live admin roster. IsOnline and
// InactiveSeconds are derived from last_activity at read time, against the
// same clock source the timer math uses.
type RosterEntry struct {
	UserID          int     `json:"user_id"`
	Username        string  `json:"username"`
	Name            string  `json:"name"`
	ClassName       *string `json:"class_name,omitempty"`
	IsLocked        bool    `json:"is_locked"`
	IsOnline        bool    `json:"is_online"`
	InactiveSeconds int64   `json:"inactive_seconds"`
	CurrentExam     *string `json:"current_exam,omitempty"`
	AttemptID       *int64  `json:"attempt_id,omitempty"`
}

// AuditEvent is a security-relevant record queued for the append-only
// activity log.
type AuditEvent struct {
	UserID    *int      `json:"user_id,omitempty"`
	ActorID   *int      `json:"actor_id,omitempty"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
