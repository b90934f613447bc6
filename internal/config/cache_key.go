package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserActiveInterviewKey returns the cache key holding the id of the user's running interview session
func (r *CacheKeyStruct) UserActiveInterviewKey(userID int) string {
	return fmt.Sprintf("user:%d:active_interview", userID)
}

// UserDraftsKey returns the hash key of a user's live practice drafts, one field per question
func (r *CacheKeyStruct) UserDraftsKey(userID int) string {
	return fmt.Sprintf("user:%d:drafts", userID)
}

// DraftDebounceKey identifies a single editable resource for the autosave debouncer
func (r *CacheKeyStruct) DraftDebounceKey(userID int, questionID string) string {
	return fmt.Sprintf("draft:%d:%s", userID, questionID)
}

var CacheKey = NewCacheKeyStruct()
