package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
)

// Control dispatcher errors.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrAttemptFinalized reports a guarded write that matched zero rows
	// because the attempt already left IN_PROGRESS. Surfaced distinctly so
	// an operator is never told time was granted when it was not.
	ErrAttemptFinalized = errors.New("attempt already finalized")
	ErrAttemptRequired  = errors.New("attempt id required for this action")
	ErrMinutesRequired  = errors.New("minutes required for this action")
)

// sessionEpoch is the far-past last_activity installed by force_logout, so
// the validator's idle branch fires on the user's next request.
var sessionEpoch = time.Unix(0, 0).UTC()

type controlUserStore interface {
	ForceLogout(ctx context.Context, userID int, epoch time.Time) (bool, error)
	ToggleLock(ctx context.Context, userID int) (bool, error)
}

type controlAttemptStore interface {
	GetByID(ctx context.Context, id int64) (*model.ExamAttempt, error)
	AddTime(ctx context.Context, attemptID int64, minutes int) (bool, error)
	Delete(ctx context.Context, attemptID int64, userID int) (bool, error)
}

type rosterStore interface {
	ListStudents(ctx context.Context) ([]repository.RosterRow, error)
}

type auditRecorder interface {
	Record(ctx context.Context, e model.AuditEvent)
}

type draftClearer interface {
	Clear(ctx context.Context, examID uuid.UUID, userID int) error
}

// ControlService is the administrator action dispatcher. Every action is one
// conditional mutation against the store, never a blind write, so an action
// issued against a target that changed underneath it completes as a reported
// no-op instead of corrupting state.
type ControlService struct {
	users        controlUserStore
	attempts     controlAttemptStore
	roster       rosterStore
	audit        auditRecorder
	mirror       draftClearer
	clk          clock.Clock
	onlineWindow time.Duration
	log          zerolog.Logger
}

// NewControlService creates a new ControlService.
func NewControlService(users controlUserStore, attempts controlAttemptStore, roster rosterStore, audit auditRecorder, mirror draftClearer, clk clock.Clock, onlineWindow time.Duration, log zerolog.Logger) *ControlService {
	return &ControlService{
		users:        users,
		attempts:     attempts,
		roster:       roster,
		audit:        audit,
		mirror:       mirror,
		clk:          clk,
		onlineWindow: onlineWindow,
		log:          log.With().Str("component", "control_service").Logger(),
	}
}

// Dispatch applies one administrator action and returns an operator message.
func (s *ControlService) Dispatch(ctx context.Context, actorID int, req *model.ControlActionRequest) (string, error) {
	switch req.Action {
	case model.ControlForceLogout:
		return s.forceLogout(ctx, actorID, req.UserID)
	case model.ControlLockLogin:
		return s.toggleLock(ctx, actorID, req.UserID)
	case model.ControlResetExam:
		if req.AttemptID == 0 {
			return "", ErrAttemptRequired
		}
		return s.resetExam(ctx, actorID, req.UserID, req.AttemptID)
	case model.ControlAddTime:
		if req.AttemptID == 0 {
			return "", ErrAttemptRequired
		}
		if req.Minutes == 0 {
			return "", ErrMinutesRequired
		}
		return s.addTime(ctx, actorID, req.UserID, req.AttemptID, req.Minutes)
	default:
		return "", fmt.Errorf("unknown action %q", req.Action)
	}
}

// forceLogout revokes the device binding only. Any in-progress attempt
// survives; the student may log back in and resume.
func (s *ControlService) forceLogout(ctx context.Context, actorID, userID int) (string, error) {
	ok, err := s.users.ForceLogout(ctx, userID, sessionEpoch)
	if err != nil {
		return "", fmt.Errorf("force logout: %w", err)
	}
	if !ok {
		return "", ErrUserNotFound
	}

	s.audit.Record(ctx, model.AuditEvent{UserID: &userID, ActorID: &actorID, Event: AuditAdminForceLogout})
	return "Sesi perangkat siswa telah dicabut.", nil
}

// toggleLock flips the login lock. Enforcement happens at the next
// validation or login check; no live connection is terminated out-of-band.
func (s *ControlService) toggleLock(ctx context.Context, actorID, userID int) (string, error) {
	locked, err := s.users.ToggleLock(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("toggle lock: %w", err)
	}

	s.audit.Record(ctx, model.AuditEvent{
		UserID: &userID, ActorID: &actorID,
		Event:  AuditAdminLockToggle,
		Detail: fmt.Sprintf("locked=%t", locked),
	})
	if locked {
		return "Login akun telah dikunci.", nil
	}
	return "Login akun telah dibuka.", nil
}

// resetExam destroys the attempt row, then force-logs-out the owner.
// The ordering is deliberate: a destroyed attempt is the primary safety
// property. If the logout step fails the student still cannot resume:
// their next validated request finds no in-progress attempt to grant the
// idle-timeout exception.
func (s *ControlService) resetExam(ctx context.Context, actorID, userID int, attemptID int64) (string, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAttemptNotFound
		}
		return "", fmt.Errorf("load attempt: %w", err)
	}

	ok, err := s.attempts.Delete(ctx, attemptID, userID)
	if err != nil {
		return "", fmt.Errorf("delete attempt: %w", err)
	}
	if !ok {
		return "", ErrAttemptNotFound
	}

	if _, err := s.users.ForceLogout(ctx, userID, sessionEpoch); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("post-reset logout failed")
	}
	if err := s.mirror.Clear(ctx, attempt.ExamID, userID); err != nil {
		s.log.Warn().Err(err).Int64("attempt_id", attemptID).Msg("clear draft mirror failed")
	}

	s.audit.Record(ctx, model.AuditEvent{
		UserID: &userID, ActorID: &actorID,
		Event:  AuditAdminResetExam,
		Detail: fmt.Sprintf("attempt %d exam %s", attemptID, attempt.ExamID),
	})
	return "Ujian telah direset dan sesi siswa dicabut.", nil
}

// addTime grants extension minutes while the attempt is still live. A zero-
// row write means the attempt was finalized (or deleted) in the meantime and
// is surfaced as such, never as success.
func (s *ControlService) addTime(ctx context.Context, actorID, userID int, attemptID int64, minutes int) (string, error) {
	ok, err := s.attempts.AddTime(ctx, attemptID, minutes)
	if err != nil {
		return "", fmt.Errorf("add time: %w", err)
	}
	if !ok {
		if _, err := s.attempts.GetByID(ctx, attemptID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", ErrAttemptNotFound
			}
			return "", fmt.Errorf("load attempt: %w", err)
		}
		return "", ErrAttemptFinalized
	}

	s.audit.Record(ctx, model.AuditEvent{
		UserID: &userID, ActorID: &actorID,
		Event:  AuditAdminAddTime,
		Detail: fmt.Sprintf("attempt %d +%dm", attemptID, minutes),
	})
	return fmt.Sprintf("Waktu ujian ditambah %d menit.", minutes), nil
}

// Roster returns the live admin roster; is_online and inactive_seconds are
// derived at read time from the clock source.
func (s *ControlService) Roster(ctx context.Context) ([]model.RosterEntry, error) {
	rows, err := s.roster.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}

	now := s.clk.Now()
	entries := make([]model.RosterEntry, 0, len(rows))
	for _, row := range rows {
		inactive := now.Sub(row.LastActivity)
		if inactive < 0 {
			inactive = 0
		}
		entries = append(entries, model.RosterEntry{
			UserID:          row.UserID,
			Username:        row.Username,
			Name:            row.Name,
			ClassName:       row.ClassName,
			IsLocked:        row.IsLocked,
			IsOnline:        inactive <= s.onlineWindow,
			InactiveSeconds: int64(inactive.Seconds()),
			CurrentExam:     row.CurrentExam,
			AttemptID:       row.AttemptID,
		})
	}
	return entries, nil
}
