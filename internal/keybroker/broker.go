// Package keybroker implements the per-request key broker: the coordinator
// that materializes the set of DEKs one encrypt-or-decrypt operation needs
// by fetching key-vault documents and driving per-key KMS decryption. This
// file covers construction and teardown.
package keybroker

import (
	"github.com/google/uuid"

	"github.com/vincentkam/keybroker/internal/keycache"
	"github.com/vincentkam/keybroker/internal/kmsprovider"
)

// Broker is the per-request key broker. One instance exists per
// encrypt-or-decrypt operation; it is never shared between requests and is
// not safe for concurrent use by multiple goroutines — only the decryptor
// handles it dispenses may be driven concurrently.
type Broker struct {
	entries []*entry
	byID    map[uuid.UUID]int
	byAlt   map[string]int

	providers map[string]kmsprovider.Provider
	cache     *keycache.DecryptedKeyCache

	closed bool
}

// Option configures a Broker at construction.
type Option func(*Broker)

// WithProvider registers a KMS provider the broker may dispatch decryptors
// to, keyed by provider.ID() ("aws" or "local"). Providers and their
// credentials are read-only once the broker is constructed.
func WithProvider(p kmsprovider.Provider) Option {
	return func(b *Broker) {
		b.providers[p.ID()] = p
	}
}

// WithDecryptedKeyCache attaches the process-wide decrypted-key cache the
// broker consults on AddID and feeds on AddDecryptedKey. Optional: a
// broker with no cache simply never short-circuits.
func WithDecryptedKeyCache(c *keycache.DecryptedKeyCache) Option {
	return func(b *Broker) {
		b.cache = c
	}
}

// NewBroker constructs an empty broker with no pending entries.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		byID:      map[uuid.UUID]int{},
		byAlt:     map[string]int{},
		providers: map[string]kmsprovider.Provider{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close releases all entries, cancelling any still-outstanding decryptor
// handles. Idempotent.
func (b *Broker) Close() {
	if b.closed {
		return
	}
	b.closed = true
	for _, e := range b.entries {
		if e.decryptor != nil {
			e.decryptor.Cancel()
			e.decryptor = nil
		}
	}
	b.entries = nil
	b.byID = nil
	b.byAlt = nil
}

// liveEntries iterates non-tombstoned entries in insertion order.
func (b *Broker) liveEntries(fn func(*entry)) {
	for _, e := range b.entries {
		if !e.merged {
			fn(e)
		}
	}
}
