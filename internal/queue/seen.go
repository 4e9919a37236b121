package queue

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const seenCacheSize = 512

// seenRegistry remembers recently processed attachment ids for one tab so a
// burst of grid mutations for the same node produces exactly one job.
//
// Entries age out by TTL; the LRU cap is just a memory bound for pathological
// grids and never matters in practice.
type seenRegistry struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func newSeenRegistry(ttl time.Duration) *seenRegistry {
	cache, _ := lru.New[string, time.Time](seenCacheSize)
	return &seenRegistry{
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Seen reports whether the attachment was marked within the TTL window.
// Stale entries are evicted on read.
func (s *seenRegistry) Seen(attachmentID string) bool {
	at, ok := s.cache.Get(attachmentID)
	if !ok {
		return false
	}
	if s.now().Sub(at) > s.ttl {
		s.cache.Remove(attachmentID)
		return false
	}
	return true
}

// Mark records the attachment as processed now.
func (s *seenRegistry) Mark(attachmentID string) {
	s.cache.Add(attachmentID, s.now())
}

// Forget drops the attachment so it can be admitted again before the TTL
// expires. Used when a hand-off ultimately failed for a non-duplicate reason.
func (s *seenRegistry) Forget(attachmentID string) {
	s.cache.Remove(attachmentID)
}
