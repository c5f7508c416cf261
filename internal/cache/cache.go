// Package cache serves repeated identical invocations of read-only actions
// from a short-lived result cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DefaultTTL is how long a cached result stays valid.
const DefaultTTL = 5 * time.Minute

// Cache stores encoded results by key. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key derives the cache key of one invocation. Arguments are encoded as JSON
// with sorted object keys, so equal argument maps give equal keys.
func Key(actionName, callerID string, args map[string]any) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(actionName))
	h.Write([]byte{0})
	h.Write([]byte(callerID))
	h.Write([]byte{0})
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil)), nil
}
