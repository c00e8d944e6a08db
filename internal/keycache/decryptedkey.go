// Package keycache implements the process-wide decrypted-key cache the
// broker consults and feeds. It is owned by the process, not by any one
// broker instance — many Broker values over the lifetime of a process
// share a single DecryptedKeyCache, fronting expensive KMS calls for every
// request that passes through.
package keycache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
)

// DecryptedKeyCache caches plaintext DEK material by key id so repeated
// requests that reference the same key skip the key-vault fetch and KMS
// unwrap entirely. Entries expire after ttl to bound how long plaintext key
// material is held outside the broker that decrypted it.
type DecryptedKeyCache struct {
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

// NewDecryptedKeyCache builds a cache sized for a modest number of hot keys;
// ttl bounds how long plaintext material survives after its last decrypt.
func NewDecryptedKeyCache(ttl time.Duration) (*DecryptedKeyCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     1 << 20, // ~1MB of 96-byte keys, generous for a key cache
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &DecryptedKeyCache{cache: cache, ttl: ttl}, nil
}

// Lookup returns a lease on the cached plaintext material for id, if
// present and unexpired. The broker may use this to transition a
// newly-added entry straight to DECRYPTED, skipping fetch and KMS unwrap
// entirely.
func (c *DecryptedKeyCache) Lookup(id uuid.UUID) ([]byte, bool) {
	return c.cache.Get(id.String())
}

// Publish feeds newly-decrypted plaintext material back into the cache,
// keyed by id, after the broker completes a decryption.
func (c *DecryptedKeyCache) Publish(id uuid.UUID, material []byte) {
	cp := make([]byte, len(material))
	copy(cp, material)
	c.cache.SetWithTTL(id.String(), cp, int64(len(cp)), c.ttl)
	c.cache.Wait()
}

// Close releases the cache's background goroutines.
func (c *DecryptedKeyCache) Close() {
	c.cache.Close()
}
