package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/clock"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// Audit event names.
const (
	AuditLoginSuccess     = "login_success"
	AuditLoginFailed      = "login_failed"
	AuditLoginLocked      = "login_locked"
	AuditLoginConflict    = "login_conflict"
	AuditSessionDenied    = "session_denied"
	AuditLogout           = "logout"
	AuditLaunchIssued     = "launch_token_issued"
	AuditLaunchExchanged  = "launch_token_exchanged"
	AuditAdminForceLogout = "admin_force_logout"
	AuditAdminLockToggle  = "admin_lock_toggle"
	AuditAdminResetExam   = "admin_reset_exam"
	AuditAdminAddTime     = "admin_add_time"
)

// AuditSink enqueues security-relevant events for the append-only activity
// log. Delivery is best-effort: the log is a sink, never a gate on the
// request path. A background worker batch-inserts the queue into PostgreSQL.
type AuditSink struct {
	rdb *redis.Client
	clk clock.Clock
	log zerolog.Logger
}

// NewAuditSink creates a new AuditSink.
func NewAuditSink(rdb *redis.Client, clk clock.Clock, log zerolog.Logger) *AuditSink {
	return &AuditSink{
		rdb: rdb,
		clk: clk,
		log: log.With().Str("component", "audit_sink").Logger(),
	}
}

// Record timestamps the event and pushes it to the audit queue.
func (s *AuditSink) Record(ctx context.Context, e model.AuditEvent) {
	e.CreatedAt = s.clk.Now()

	payload, err := json.Marshal(e)
	if err != nil {
		s.log.Error().Err(err).Str("event", e.Event).Msg("marshal audit event")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.AuditEventsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("event", e.Event).Msg("enqueue audit event")
	}
}
