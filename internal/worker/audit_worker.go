package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/model"
)

const (
	AuditBatchSize    = 50
	AuditBatchTimeout = 2 * time.Second
	AuditPollTimeout  = 1 * time.Second
)

// AuditWorker drains the audit queue into the append-only activity_logs
// table. Events are batched so a burst of session denials costs one insert.
type AuditWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAuditWorker creates a new AuditWorker.
func NewAuditWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AuditWorker {
	return &AuditWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "audit_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *AuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AuditWorker started")

	batch := make([]*model.AuditEvent, 0, AuditBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AuditBatchSize || time.Since(lastFlush) >= AuditBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, AuditPollTimeout, config.WorkerKey.AuditEventsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var e model.AuditEvent
			if err := json.Unmarshal([]byte(item[1]), &e); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &e)
		}
	}
}

func (w *AuditWorker) flushSafe(ctx context.Context, batch []*model.AuditEvent) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Error().Err(err).Int("count", len(batch)).Msg("bulk audit insert failed, requeueing")
		for _, e := range batch {
			raw, _ := json.Marshal(e)
			w.rdb.RPush(ctx, config.WorkerKey.AuditEventsQueue, raw)
		}
	}
}

// ----------------------------------------------------------------
// BULK PostgreSQL INSERT using UNNEST
// ----------------------------------------------------------------

func (w *AuditWorker) bulkInsert(ctx context.Context, batch []*model.AuditEvent) error {
	n := len(batch)

	userIDs := make([]*int, 0, n)
	actorIDs := make([]*int, 0, n)
	events := make([]string, 0, n)
	details := make([]string, 0, n)
	createdAts := make([]time.Time, 0, n)

	for _, e := range batch {
		userIDs = append(userIDs, e.UserID)
		actorIDs = append(actorIDs, e.ActorID)
		events = append(events, e.Event)
		details = append(details, e.Detail)
		createdAts = append(createdAts, e.CreatedAt)
	}

	query := `
		INSERT INTO activity_logs (user_id, actor_id, event, detail, created_at)
		SELECT u.user_id, u.actor_id, u.event, u.detail, u.created_at
		FROM UNNEST(
			$1::int[],
			$2::int[],
			$3::text[],
			$4::text[],
			$5::timestamptz[]
		) AS u (user_id, actor_id, event, detail, created_at)
	`

	_, err := w.pool.Exec(ctx, query, userIDs, actorIDs, events, details, createdAts)
	return err
}
