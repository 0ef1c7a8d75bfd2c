package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ujianku/ujianku-backend/internal/config"
)

// DraftMirror keeps a read-fast Redis copy of a student's draft answers next
// to the durable temporary_answers rows. Saves also queue the durable upsert
// for the autosave worker, so the request path stays a single Redis round
// trip.
type DraftMirror struct {
	rdb *redis.Client
}

// NewDraftMirror creates a new DraftMirror.
func NewDraftMirror(rdb *redis.Client) *DraftMirror {
	return &DraftMirror{rdb: rdb}
}

// Save mirrors one draft selection and enqueues its durable upsert.
func (m *DraftMirror) Save(ctx context.Context, examID uuid.UUID, userID int, questionID, answer string) error {
	key := config.CacheKey.DraftAnswersKey(examID.String(), userID)
	if err := m.rdb.HSet(ctx, key, questionID, answer).Err(); err != nil {
		return fmt.Errorf("mirror draft: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":     userID,
		"exam_id":     examID.String(),
		"question_id": questionID,
		"answer":      answer,
	})
	if err := m.rdb.RPush(ctx, config.WorkerKey.PersistDraftsQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue draft: %w", err)
	}
	return nil
}

// Snapshot returns all mirrored drafts for (user, exam). An empty map with
// no error means the mirror is cold; callers fall back to the store.
func (m *DraftMirror) Snapshot(ctx context.Context, examID uuid.UUID, userID int) (map[string]string, error) {
	key := config.CacheKey.DraftAnswersKey(examID.String(), userID)
	return m.rdb.HGetAll(ctx, key).Result()
}

// Warm repopulates a cold mirror from store-loaded drafts.
func (m *DraftMirror) Warm(ctx context.Context, examID uuid.UUID, userID int, drafts map[string]string) {
	if len(drafts) == 0 {
		return
	}
	key := config.CacheKey.DraftAnswersKey(examID.String(), userID)
	flat := make([]interface{}, 0, len(drafts)*2)
	for qid, ans := range drafts {
		flat = append(flat, qid, ans)
	}
	_ = m.rdb.HSet(ctx, key, flat...).Err()
}

// Clear drops the mirror for (user, exam).
func (m *DraftMirror) Clear(ctx context.Context, examID uuid.UUID, userID int) error {
	key := config.CacheKey.DraftAnswersKey(examID.String(), userID)
	return m.rdb.Del(ctx, key).Err()
}
