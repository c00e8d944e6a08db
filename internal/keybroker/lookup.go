package keybroker

import (
	"github.com/google/uuid"

	"github.com/vincentkam/keybroker/internal/status"
)

// DecryptedKeyMaterialByID returns the 96-byte plaintext DEK for id, once
// its entry has reached DECRYPTED. Alt-name lookup is not provided: callers
// resolve alt name to id themselves from the documents they ingested via
// AddDoc.
func (b *Broker) DecryptedKeyMaterialByID(id uuid.UUID) ([]byte, error) {
	idx, ok := b.byID[id]
	if !ok || b.entries[idx].merged {
		return nil, status.New(status.KeyNotFound, 40, "key id %s was never added to this broker", id)
	}
	e := b.entries[idx]
	if e.state != StateDecrypted {
		return nil, status.New(status.KeyNotDecrypted, 41,
			"key id %s is in state %s, not DECRYPTED", id, e.state)
	}
	return e.plaintext, nil
}

// EntryError returns the recorded error for id's entry if it is in ERROR
// state, or nil otherwise — errors are surfaced on demand rather than
// raised eagerly when the entry first fails.
func (b *Broker) EntryError(id uuid.UUID) error {
	idx, ok := b.byID[id]
	if !ok || b.entries[idx].merged {
		return nil
	}
	e := b.entries[idx]
	if e.state != StateError {
		return nil
	}
	return e.err
}
