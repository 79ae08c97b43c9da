package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey returns the cache key for a candidate's login session
func (r *CacheKeyStruct) CandidateSessionKey(candidateID string) string {
	return fmt.Sprintf("login:%s", candidateID)
}

// ExamDefinitionKey returns the cache key for a published exam definition
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamAccessHashKey returns the cache key for an exam's access-code hash.
// Kept separate from the definition so the serialized definition can never
// leak it.
func (r *CacheKeyStruct) ExamAccessHashKey(examID string) string {
	return fmt.Sprintf("exam:%s:access_hash", examID)
}

// CandidatePaperKey returns the cache key for a candidate's sanitized paper
func (r *CacheKeyStruct) CandidatePaperKey(examID, candidateID string) string {
	return fmt.Sprintf("candidate:%s:exam:%s:paper", candidateID, examID)
}

// CandidateAnswersKey returns the cache key for a candidate's autosaved answers
func (r *CacheKeyStruct) CandidateAnswersKey(examID, candidateID string) string {
	return fmt.Sprintf("candidate:%s:exam:%s:answers", candidateID, examID)
}

// CandidateOrderKey returns the cache key for a candidate's shuffled question order
func (r *CacheKeyStruct) CandidateOrderKey(examID, candidateID string) string {
	return fmt.Sprintf("candidate:%s:exam:%s:order", candidateID, examID)
}

// CandidateDeadlineKey returns the cache key for a candidate's exam deadline
func (r *CacheKeyStruct) CandidateDeadlineKey(examID, candidateID string) string {
	return fmt.Sprintf("candidate:%s:exam:%s:deadline", candidateID, examID)
}

// CandidateActiveAttemptKey returns the cache key for a candidate's active attempt
func (r *CacheKeyStruct) CandidateActiveAttemptKey(candidateID string) string {
	return fmt.Sprintf("candidate:%s:active_attempt", candidateID)
}

// AttemptEventChannel returns the Redis PubSub channel for an attempt's live integrity feed
func (r *CacheKeyStruct) AttemptEventChannel(attemptID string) string {
	return fmt.Sprintf("attempt:%s:events", attemptID)
}

var CacheKey = NewCacheKeyStruct()
