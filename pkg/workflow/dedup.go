package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/patrickmn/go-cache"
	"github.com/spaolacci/murmur3"
)

const (
	seenKeyTTL     = 10 * time.Minute
	seenKeyCleanup = 20 * time.Minute
)

// DedupKey identifies one delivery of a stimulus to one definition. token is
// the caller supplied delivery or idempotency id; without one the canonical
// JSON of the payload stands in for it.
func DedupKey(workflowID string, kind models.TriggerKind, token string, payload map[string]any) string {
	if token == "" {
		// encoding/json writes map keys sorted, which makes this canonical
		canonical, err := json.Marshal(payload)
		if err != nil {
			canonical = fmt.Appendf(nil, "%v", payload)
		}

		token = "payload:" + string(canonical)
	}

	hi, lo := murmur3.Sum128([]byte(workflowID + "\x00" + string(kind) + "\x00" + token))

	return fmt.Sprintf("%016x%016x", hi, lo)
}

// seenKeys remembers recently used dedup keys and the execution they
// created, so redeliveries skip the store. The store's unique constraint
// stays authoritative.
type seenKeys struct {
	cache *cache.Cache
}

func newSeenKeys() *seenKeys {
	return &seenKeys{cache: cache.New(seenKeyTTL, seenKeyCleanup)}
}

func (s *seenKeys) lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	executionID, ok := s.cache.Get(key)
	if !ok {
		return "", false
	}

	return executionID.(string), true
}

func (s *seenKeys) remember(key, executionID string) {
	if key == "" {
		return
	}

	s.cache.SetDefault(key, executionID)
}
