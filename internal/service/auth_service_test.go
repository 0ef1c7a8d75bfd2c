package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

type fakeAuthUserStore struct {
	user       *model.User
	getErr     error
	failures   int
	lockedAt   *time.Time
	claimCalls int
}

func (f *fakeAuthUserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.user, nil
}

func (f *fakeAuthUserStore) GetByID(ctx context.Context, id int) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.user, nil
}

func (f *fakeAuthUserStore) ClaimSession(ctx context.Context, userID int, sessionID string, prev *string, now time.Time) (bool, error) {
	f.claimCalls++
	return true, nil
}

func (f *fakeAuthUserStore) ClearSession(ctx context.Context, userID int, sessionID string) error {
	return nil
}

func (f *fakeAuthUserStore) RecordLoginFailure(ctx context.Context, userID, threshold int, lockUntil time.Time) (int, error) {
	f.failures++
	if f.failures >= threshold {
		f.lockedAt = &lockUntil
	}
	return f.failures, nil
}

type authFixture struct {
	svc   *AuthService
	users *fakeAuthUserStore
	audit *recordingAudit
}

func newAuthFixture(t *testing.T, password string) *authFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	f := &authFixture{
		users: &fakeAuthUserStore{
			user: &model.User{ID: 42, Username: "budi", PasswordHash: string(hash), Role: model.RoleStudent},
		},
		audit: &recordingAudit{},
	}
	cfg := &config.Config{
		BcryptCost:        bcrypt.MinCost,
		MaxLoginFailures:  3,
		LoginLockDuration: 15 * time.Minute,
	}
	f.svc = NewAuthService(cfg, f.users, nil, f.audit, nil, clock.Fixed(testNow), zerolog.Nop())
	return f
}

func TestLoginUnknownUsernameIsInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t, "rahasia")
	f.users.getErr = pgx.ErrNoRows

	_, _, err := f.svc.Login(context.Background(), "nobody", "rahasia")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginStoreOutageIsNotInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t, "rahasia")
	f.users.getErr = errors.New("connection refused")

	// An unreachable store must not read as a credential failure, or
	// clients would discard valid tokens during an outage.
	_, _, err := f.svc.Login(context.Background(), "budi", "rahasia")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("store outage must not be reported as invalid credentials")
	}
	if len(f.audit.events) != 0 {
		t.Errorf("no audit event expected on a store outage, got %d", len(f.audit.events))
	}
}

func TestLoginWrongPasswordCountsFailure(t *testing.T) {
	f := newAuthFixture(t, "rahasia")

	_, _, err := f.svc.Login(context.Background(), "budi", "salah")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
	if f.users.failures != 1 {
		t.Errorf("recorded failures: got %d, want 1", f.users.failures)
	}
	if f.users.claimCalls != 0 {
		t.Error("a failed login must not claim a session")
	}
}

func TestLoginLockedAccountRejected(t *testing.T) {
	f := newAuthFixture(t, "rahasia")
	until := testNow.Add(10 * time.Minute)
	f.users.user.LockedUntil = &until

	_, _, err := f.svc.Login(context.Background(), "budi", "rahasia")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("got %v, want ErrAccountLocked", err)
	}
}
