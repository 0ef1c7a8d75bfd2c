package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/model"
)

type fakeSessionUserStore struct {
	user       *model.User
	refreshed  []time.Time
	refreshErr error
	getByIDErr error
}

func (f *fakeSessionUserStore) GetByID(ctx context.Context, id int) (*model.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	return f.user, nil
}

func (f *fakeSessionUserStore) RefreshActivity(ctx context.Context, userID int, now time.Time) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshed = append(f.refreshed, now)
	return nil
}

type fakeAttemptChecker struct {
	inProgress bool
	err        error
}

func (f *fakeAttemptChecker) HasInProgress(ctx context.Context, userID int) (bool, error) {
	return f.inProgress, f.err
}

func strPtr(s string) *string { return &s }

func newSessionFixture(user *model.User, inExam bool, now time.Time) (*SessionService, *fakeSessionUserStore) {
	users := &fakeSessionUserStore{user: user}
	attempts := &fakeAttemptChecker{inProgress: inExam}
	svc := NewSessionService(users, attempts, clock.Fixed(now), time.Hour, zerolog.Nop())
	return svc, users
}

func TestValidateAllowsActiveSession(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	user := &model.User{
		ID:           7,
		SessionID:    strPtr("jti-1"),
		LastActivity: now.Add(-10 * time.Minute),
	}
	svc, users := newSessionFixture(user, false, now)

	if err := svc.Validate(context.Background(), 7, "jti-1"); err != nil {
		t.Fatalf("unexpected deny: %v", err)
	}
	if len(users.refreshed) != 1 || !users.refreshed[0].Equal(now) {
		t.Errorf("expected one activity refresh at %v, got %v", now, users.refreshed)
	}
}

func TestValidateDeniesMismatchedSessionID(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	user := &model.User{
		ID:           7,
		SessionID:    strPtr("jti-new-device"),
		LastActivity: now.Add(-1 * time.Minute),
	}
	svc, users := newSessionFixture(user, false, now)

	err := svc.Validate(context.Background(), 7, "jti-old-device")
	if !errors.Is(err, ErrSessionDenied) {
		t.Fatalf("got %v, want ErrSessionDenied", err)
	}
	if len(users.refreshed) != 0 {
		t.Error("activity must not be refreshed on deny")
	}
}

func TestValidateDeniesEmptySession(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	user := &model.User{ID: 7, SessionID: nil, LastActivity: now}
	svc, _ := newSessionFixture(user, false, now)

	if err := svc.Validate(context.Background(), 7, "jti-1"); !errors.Is(err, ErrSessionDenied) {
		t.Fatalf("got %v, want ErrSessionDenied", err)
	}
}

func TestValidateIdleTimeout(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	t.Run("just inside the limit", func(t *testing.T) {
		user := &model.User{
			ID:           7,
			SessionID:    strPtr("jti-1"),
			LastActivity: now.Add(-time.Hour),
		}
		svc, _ := newSessionFixture(user, false, now)
		if err := svc.Validate(context.Background(), 7, "jti-1"); err != nil {
			t.Fatalf("exactly at limit should allow, got %v", err)
		}
	})

	t.Run("past the limit without an exam", func(t *testing.T) {
		user := &model.User{
			ID:           7,
			SessionID:    strPtr("jti-1"),
			LastActivity: now.Add(-time.Hour - time.Second),
		}
		svc, _ := newSessionFixture(user, false, now)
		if err := svc.Validate(context.Background(), 7, "jti-1"); !errors.Is(err, ErrSessionDenied) {
			t.Fatalf("got %v, want ErrSessionDenied", err)
		}
	})

	t.Run("past the limit during an exam", func(t *testing.T) {
		user := &model.User{
			ID:           7,
			SessionID:    strPtr("jti-1"),
			LastActivity: now.Add(-3 * time.Hour),
		}
		svc, users := newSessionFixture(user, true, now)
		if err := svc.Validate(context.Background(), 7, "jti-1"); err != nil {
			t.Fatalf("in-progress attempt should override idle timeout, got %v", err)
		}
		if len(users.refreshed) != 1 {
			t.Error("override allow must still refresh activity")
		}
	})
}

func TestValidateDeniesLockedAccount(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	t.Run("manual lock", func(t *testing.T) {
		user := &model.User{
			ID:        7,
			IsLocked:  true,
			SessionID: strPtr("jti-1"), LastActivity: now,
		}
		svc, _ := newSessionFixture(user, false, now)
		if err := svc.Validate(context.Background(), 7, "jti-1"); !errors.Is(err, ErrAccountLocked) {
			t.Fatalf("got %v, want ErrAccountLocked", err)
		}
	})

	t.Run("temporary lockout", func(t *testing.T) {
		until := now.Add(10 * time.Minute)
		user := &model.User{
			ID:          7,
			LockedUntil: &until,
			SessionID:   strPtr("jti-1"), LastActivity: now,
		}
		svc, _ := newSessionFixture(user, false, now)
		if err := svc.Validate(context.Background(), 7, "jti-1"); !errors.Is(err, ErrAccountLocked) {
			t.Fatalf("got %v, want ErrAccountLocked", err)
		}
	})

	t.Run("expired lockout", func(t *testing.T) {
		until := now.Add(-1 * time.Minute)
		user := &model.User{
			ID:          7,
			LockedUntil: &until,
			SessionID:   strPtr("jti-1"), LastActivity: now,
		}
		svc, _ := newSessionFixture(user, false, now)
		if err := svc.Validate(context.Background(), 7, "jti-1"); err != nil {
			t.Fatalf("expired lockout should allow, got %v", err)
		}
	})
}

func TestValidateAllowsDespiteRefreshFailure(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	user := &model.User{
		ID:        7,
		SessionID: strPtr("jti-1"), LastActivity: now.Add(-time.Minute),
	}
	users := &fakeSessionUserStore{user: user, refreshErr: errors.New("pool exhausted")}
	svc := NewSessionService(users, &fakeAttemptChecker{}, clock.Fixed(now), time.Hour, zerolog.Nop())

	if err := svc.Validate(context.Background(), 7, "jti-1"); err != nil {
		t.Fatalf("refresh failure must not flip an allow, got %v", err)
	}
}

func TestStillActive(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		user   *model.User
		inExam bool
		want   bool
	}{
		{"no session", &model.User{ID: 1}, false, false},
		{"fresh session", &model.User{ID: 1, SessionID: strPtr("j"), LastActivity: now.Add(-5 * time.Minute)}, false, true},
		{"idle session", &model.User{ID: 1, SessionID: strPtr("j"), LastActivity: now.Add(-2 * time.Hour)}, false, false},
		{"idle but in exam", &model.User{ID: 1, SessionID: strPtr("j"), LastActivity: now.Add(-2 * time.Hour)}, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newSessionFixture(tc.user, tc.inExam, now)
			got, err := svc.StillActive(context.Background(), tc.user, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
