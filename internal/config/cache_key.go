package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LaunchTokenKey returns the cache key for a one-time SSO launch token.
func (r *CacheKeyStruct) LaunchTokenKey(token string) string {
	return fmt.Sprintf("launch:%s", token)
}

// DraftAnswersKey returns the cache key for a student's draft answer mirror.
func (r *CacheKeyStruct) DraftAnswersKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:drafts", userID, examID)
}

var CacheKey = NewCacheKeyStruct()
