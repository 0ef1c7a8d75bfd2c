package service

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"

	"github.com/google/uuid"
	"github.com/ujianku/ujianku-backend/internal/model"
)

// PaperSeed derives a stable shuffle seed from (user, exam), so every reload
// of the same paper reproduces the same question order.
func PaperSeed(userID int, examID uuid.UUID) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(userID))
	h.Write(buf[:])
	h.Write(examID[:])
	return int64(h.Sum64())
}

// ShuffleQuestions permutes the question slice deterministically for the
// given seed. Pure utility: same seed, same order.
func ShuffleQuestions(questions []model.QuestionForStudent, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
}
