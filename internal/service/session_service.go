package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// Session validation errors.
var (
	// ErrSessionDenied means the presented credential is no longer the
	// authoritative one for the account (replaced, revoked, or idled out).
	// The client must discard its token and re-authenticate.
	ErrSessionDenied = errors.New("session denied")
	// ErrAccountLocked means the account's lock flag (or a temporary
	// failed-login lockout) is in effect.
	ErrAccountLocked = errors.New("account locked")
)

type sessionUserStore interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
	RefreshActivity(ctx context.Context, userID int, now time.Time) error
}

type attemptChecker interface {
	HasInProgress(ctx context.Context, userID int) (bool, error)
}

// SessionService is the session validator: it decides, per authenticated
// request, whether a presented device-session token is still the
// authoritative one for the account.
type SessionService struct {
	users           sessionUserStore
	attempts        attemptChecker
	clk             clock.Clock
	inactivityLimit time.Duration
	log             zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(users sessionUserStore, attempts attemptChecker, clk clock.Clock, inactivityLimit time.Duration, log zerolog.Logger) *SessionService {
	return &SessionService{
		users:           users,
		attempts:        attempts,
		clk:             clk,
		inactivityLimit: inactivityLimit,
		log:             log.With().Str("component", "session_service").Logger(),
	}
}

// Validate implements the ALLOW/DENY decision for a presented session token,
// refreshing last_activity only on ALLOW:
//
//  1. locked account → DENY
//  2. token does not match the stored session id → DENY (a later login
//     elsewhere silently invalidates this token; no notification is sent,
//     the first device simply starts failing here)
//  3. idle time within the inactivity limit → ALLOW
//  4. otherwise ALLOW only if the user has an in-progress exam attempt;
//     a student deep in an exam is never logged out for reading a question
//
// This runs on every authenticated request, so the idle clock is
// continuously extended while the session is used.
func (s *SessionService) Validate(ctx context.Context, userID int, sessionID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	now := s.clk.Now()

	if s.isLocked(user, now) {
		return ErrAccountLocked
	}

	if user.SessionID == nil || *user.SessionID != sessionID {
		return ErrSessionDenied
	}

	if now.Sub(user.LastActivity) > s.inactivityLimit {
		inExam, err := s.attempts.HasInProgress(ctx, userID)
		if err != nil {
			return fmt.Errorf("check in-progress attempt: %w", err)
		}
		if !inExam {
			return ErrSessionDenied
		}
	}

	if err := s.users.RefreshActivity(ctx, userID, now); err != nil {
		// The decision was ALLOW; a failed refresh only shortens the idle
		// window, so log and continue.
		s.log.Warn().Err(err).Int("user_id", userID).Msg("refresh activity failed")
	}
	return nil
}

// StillActive reports whether the user's existing session would still pass
// validation at now. Login applies this in reverse: while the prior session
// is active, a new login is rejected with a conflict instead of silently
// evicting the other device.
func (s *SessionService) StillActive(ctx context.Context, user *model.User, now time.Time) (bool, error) {
	if user.SessionID == nil {
		return false, nil
	}
	if now.Sub(user.LastActivity) <= s.inactivityLimit {
		return true, nil
	}
	inExam, err := s.attempts.HasInProgress(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("check in-progress attempt: %w", err)
	}
	return inExam, nil
}

func (s *SessionService) isLocked(user *model.User, now time.Time) bool {
	if user.IsLocked {
		return true
	}
	return user.LockedUntil != nil && user.LockedUntil.After(now)
}
