package model

import "time"

// Role enumerates user account roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// User represents a platform account. SessionID is the device-session
// identifier: at most one non-null value is honored per account, and any
// previously issued credential that no longer matches it is stale.
type User struct {
	ID                  int        `json:"id"`
	Username            string     `json:"username"`
	Name                string     `json:"name"`
	Role                Role       `json:"role"`
	ClassID             *int       `json:"class_id,omitempty"`
	PasswordHash        string     `json:"-"`
	IsLocked            bool       `json:"is_locked"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	SessionID           *string    `json:"-"`
	LastActivity        time.Time  `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// LaunchRequest exchanges a one-time SSO launch token for a session.
type LaunchRequest struct {
	Token string `json:"token" binding:"required,uuid4"`
}

// IssueLaunchTokenRequest asks for a one-time launch token for a user.
type IssueLaunchTokenRequest struct {
	UserID int `json:"user_id" binding:"required,min=1"`
}

// CreateStudentRequest is the payload for creating a new student account.
type CreateStudentRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Password string `json:"password" binding:"required,min=6,max=128"`
	ClassID  int    `json:"class_id" binding:"required,min=1"`
}
