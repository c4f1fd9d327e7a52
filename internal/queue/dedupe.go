package queue

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// dedupeCacheSize bounds the in-process dedup probe; a miss always
// falls through to the transactional insert, which remains the
// actual source of truth for the dedup invariant.
const dedupeCacheSize = 4096

func newDedupeCache() *lru.Cache[string, struct{}] {
	c, err := lru.New[string, struct{}](dedupeCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// dedupeCacheSize never is.
		panic(err)
	}
	return c
}
