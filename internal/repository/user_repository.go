package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// ErrDuplicateUsername is returned when creating a user with a username
// that already exists.
var ErrDuplicateUsername = errors.New("user with this username already exists")

// UserRepository is the session store: one row per account carrying the
// authoritative device-session identifier and activity bookkeeping.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, name, role, class_id, password_hash,
	is_locked, failed_login_attempts, locked_until, session_id, last_activity,
	created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.ClassID,
		&u.PasswordHash, &u.IsLocked, &u.FailedLoginAttempts, &u.LockedUntil,
		&u.SessionID, &u.LastActivity, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id int) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByUsername retrieves a user by login name.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// ClaimSession atomically installs a new device-session identifier. The write
// is conditioned on the session column still holding prev (NULL when the
// caller observed no session), so two concurrent logins cannot both win.
func (r *UserRepository) ClaimSession(ctx context.Context, userID int, sessionID string, prev *string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET session_id = $1, last_activity = $2,
		     failed_login_attempts = 0, locked_until = NULL, updated_at = $2
		 WHERE id = $3 AND session_id IS NOT DISTINCT FROM $4`,
		sessionID, now, userID, prev)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RefreshActivity bumps last_activity after a session validation ALLOW.
func (r *UserRepository) RefreshActivity(ctx context.Context, userID int, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_activity = $1 WHERE id = $2`, now, userID)
	return err
}

// ClearSession removes the device binding on voluntary logout. Conditioned on
// the caller's own session id so a stale client cannot log out its successor.
func (r *UserRepository) ClearSession(ctx context.Context, userID int, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET session_id = NULL WHERE id = $1 AND session_id = $2`,
		userID, sessionID)
	return err
}

// ForceLogout revokes the device binding and rewinds last_activity to an
// epoch far in the past, guaranteeing the validator's idle-timeout branch
// fires on the user's next request.
func (r *UserRepository) ForceLogout(ctx context.Context, userID int, epoch time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET session_id = NULL, last_activity = $1 WHERE id = $2`,
		epoch, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ToggleLock flips the account lock flag and returns the new state.
func (r *UserRepository) ToggleLock(ctx context.Context, userID int) (bool, error) {
	var locked bool
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET is_locked = NOT is_locked, updated_at = NOW()
		 WHERE id = $1
		 RETURNING is_locked`, userID).Scan(&locked)
	return locked, err
}

// RecordLoginFailure increments the failure counter and arms the temporary
// lockout once the threshold is reached. Returns the new counter value.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, userID, threshold int, lockUntil time.Time) (int, error) {
	var failures int
	err := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     locked_until = CASE
		         WHEN failed_login_attempts + 1 >= $2 THEN $3
		         ELSE locked_until
		     END
		 WHERE id = $1
		 RETURNING failed_login_attempts`,
		userID, threshold, lockUntil).Scan(&failures)
	return failures, err
}

// Create inserts a new user account.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, name, role, class_id, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		u.Username, u.Name, u.Role, u.ClassID, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateUsername
		}
		return err
	}
	return nil
}
