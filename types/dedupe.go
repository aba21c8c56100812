package types

import (
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/mitchellh/hashstructure/v2"
)

// NewDedupeLRUFunc returns a predicate that passes records it has not seen among
// the last size distinct records. Error records always pass.
// Clients resend whole batches after a failed upload; this drops the repeats.
// The predicate is safe for concurrent use.
func NewDedupeLRUFunc(size int) func(Record) bool {
	var mu sync.Mutex
	dedupeCache := lru.New(size)
	return func(r Record) bool {
		if r.Kind == RecordError {
			return true
		}
		hash, err := hashstructure.Hash(r, hashstructure.FormatV2, nil)
		if err != nil {
			return true
		}
		key := fmt.Sprintf("%d", hash)

		mu.Lock()
		defer mu.Unlock()
		if _, ok := dedupeCache.Get(key); ok {
			return false
		}
		dedupeCache.Add(key, true)
		return true
	}
}
