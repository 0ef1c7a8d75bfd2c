package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionAlreadyActive rejects a login while another device's session
	// is still judged active. The prior device is never silently evicted.
	ErrSessionAlreadyActive = errors.New("another session is already active")
	// ErrLaunchTokenInvalid covers unknown, expired, and already-used launch
	// tokens alike.
	ErrLaunchTokenInvalid = errors.New("launch token invalid or consumed")
)

// Claims extends JWT standard claims with app-specific fields. The JTI
// doubles as the device-session identifier checked against the session
// store on every request.
type Claims struct {
	jwt.RegisteredClaims
	Role    model.Role `json:"role"`
	UserID  int        `json:"user_id"`
	ClassID int        `json:"class_id,omitempty"` // Students only
}

type authUserStore interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, id int) (*model.User, error)
	ClaimSession(ctx context.Context, userID int, sessionID string, prev *string, now time.Time) (bool, error)
	ClearSession(ctx context.Context, userID int, sessionID string) error
	RecordLoginFailure(ctx context.Context, userID, threshold int, lockUntil time.Time) (int, error)
}

// AuthService handles credential verification, JWT issuance, and the
// single-device session claim.
type AuthService struct {
	cfg      *config.Config
	users    authUserStore
	sessions *SessionService
	audit    auditRecorder
	rdb      *redis.Client
	clk      clock.Clock
	log      zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, users authUserStore, sessions *SessionService, audit auditRecorder, rdb *redis.Client, clk clock.Clock, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		audit:    audit,
		rdb:      rdb,
		clk:      clk,
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
// Default cost is 6 for high-concurrency performance. Adjustable via BCRYPT_COST env.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies credentials and installs a new device session.
//
// The single-device rule applies in reverse here: while an existing session
// is still active by the validator's elapsed/exam-override rule, the new
// login fails with a conflict. Only once the prior session is judged
// inactive does login succeed, atomically replacing the session id.
// Callers never learn whether the username or the password was wrong.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.audit.Record(ctx, model.AuditEvent{Event: AuditLoginFailed, Detail: "unknown username"})
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}

	now := s.clk.Now()

	if user.IsLocked || (user.LockedUntil != nil && user.LockedUntil.After(now)) {
		s.audit.Record(ctx, model.AuditEvent{UserID: &user.ID, Event: AuditLoginLocked})
		return "", nil, ErrAccountLocked
	}

	if err := s.CheckPassword(user.PasswordHash, password); err != nil {
		failures, recErr := s.users.RecordLoginFailure(ctx, user.ID, s.cfg.MaxLoginFailures, now.Add(s.cfg.LoginLockDuration))
		if recErr != nil {
			s.log.Error().Err(recErr).Int("user_id", user.ID).Msg("record login failure")
		}
		s.audit.Record(ctx, model.AuditEvent{
			UserID: &user.ID,
			Event:  AuditLoginFailed,
			Detail: fmt.Sprintf("failure %d", failures),
		})
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.establishSession(ctx, user, now)
	if err != nil {
		return "", nil, err
	}

	s.audit.Record(ctx, model.AuditEvent{UserID: &user.ID, Event: AuditLoginSuccess})
	return token, user, nil
}

// establishSession performs the conflict check and the conditional session
// claim shared by password login and launch-token exchange.
func (s *AuthService) establishSession(ctx context.Context, user *model.User, now time.Time) (string, error) {
	active, err := s.sessions.StillActive(ctx, user, now)
	if err != nil {
		return "", fmt.Errorf("check existing session: %w", err)
	}
	if active {
		s.audit.Record(ctx, model.AuditEvent{UserID: &user.ID, Event: AuditLoginConflict})
		return "", ErrSessionAlreadyActive
	}

	jti := uuid.New().String()
	claimed, err := s.users.ClaimSession(ctx, user.ID, jti, user.SessionID, now)
	if err != nil {
		return "", fmt.Errorf("claim session: %w", err)
	}
	if !claimed {
		// The session column changed between our read and the write: a
		// concurrent login won the claim. Report it as the same conflict.
		return "", ErrSessionAlreadyActive
	}

	return s.signToken(user, jti, now)
}

func (s *AuthService) signToken(user *model.User, jti string, now time.Time) (string, error) {
	classID := 0
	if user.ClassID != nil {
		classID = *user.ClassID
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		Role:    user.Role,
		UserID:  user.ID,
		ClassID: classID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Profile loads the account behind an authenticated request.
func (s *AuthService) Profile(ctx context.Context, userID int) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// Logout clears the caller's own device binding.
func (s *AuthService) Logout(ctx context.Context, userID int, sessionID string) error {
	if err := s.users.ClearSession(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.audit.Record(ctx, model.AuditEvent{UserID: &userID, Event: AuditLogout})
	return nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// IssueLaunchToken mints a short-lived single-use SSO handoff token for the
// given user. The admin console embeds it in a portal launch URL.
func (s *AuthService) IssueLaunchToken(ctx context.Context, actorID, userID int) (string, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	token := uuid.New().String()
	key := config.CacheKey.LaunchTokenKey(token)
	if err := s.rdb.Set(ctx, key, userID, s.cfg.LaunchTokenTTL).Err(); err != nil {
		return "", fmt.Errorf("store launch token: %w", err)
	}

	s.audit.Record(ctx, model.AuditEvent{UserID: &userID, ActorID: &actorID, Event: AuditLaunchIssued})
	return token, nil
}

// ExchangeLaunchToken consumes a launch token and establishes a session for
// its user, under the same single-device conflict rule as password login.
// GETDEL makes consumption atomic: a second exchange of the same token fails.
func (s *AuthService) ExchangeLaunchToken(ctx context.Context, token string) (string, *model.User, error) {
	key := config.CacheKey.LaunchTokenKey(token)
	val, err := s.rdb.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil, ErrLaunchTokenInvalid
		}
		return "", nil, fmt.Errorf("consume launch token: %w", err)
	}

	userID, err := strconv.Atoi(val)
	if err != nil {
		return "", nil, ErrLaunchTokenInvalid
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("load user: %w", err)
	}

	now := s.clk.Now()
	if user.IsLocked || (user.LockedUntil != nil && user.LockedUntil.After(now)) {
		s.audit.Record(ctx, model.AuditEvent{UserID: &user.ID, Event: AuditLoginLocked})
		return "", nil, ErrAccountLocked
	}

	signed, err := s.establishSession(ctx, user, now)
	if err != nil {
		return "", nil, err
	}

	s.audit.Record(ctx, model.AuditEvent{UserID: &user.ID, Event: AuditLaunchExchanged})
	return signed, user, nil
}
