package keybroker

import (
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vincentkam/keybroker/internal/status"
)

// AddID registers id as a key this broker must resolve. Idempotent: if an
// entry with this id already exists, AddID succeeds without creating a
// duplicate.
func (b *Broker) AddID(id uuid.UUID) error {
	if idx, ok := b.byID[id]; ok && !b.entries[idx].merged {
		return nil
	}

	// An id already present in the decrypted-key cache can skip straight to
	// DECRYPTED, short-circuiting the fetch-and-decrypt cycle entirely.
	if b.cache != nil {
		if material, ok := b.cache.Lookup(id); ok {
			e := newEmptyEntry()
			e.id = &id
			e.state = StateDecrypted
			e.plaintext = material
			b.appendEntry(e)
			return nil
		}
	}

	e := newEmptyEntry()
	e.id = &id
	b.appendEntry(e)
	return nil
}

// AddIDBytes validates raw as an exactly-16-byte key id and registers it.
// A malformed length fails with INVALID_ARGUMENT and leaves the registry
// unchanged.
func (b *Broker) AddIDBytes(raw []byte) error {
	if len(raw) != 16 {
		return status.New(status.InvalidArgument, 3, "key id must be exactly 16 bytes, got %d", len(raw))
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return status.Wrap(status.InvalidArgument, 4, err, "decoding key id")
	}
	return b.AddID(id)
}

// AddAltName registers name as a key alt name this broker must resolve.
// Idempotent like AddID.
func (b *Broker) AddAltName(name string) error {
	if name == "" || !utf8.ValidString(name) {
		return status.New(status.InvalidArgument, 2, "key alt name must be non-empty valid UTF-8")
	}
	if idx, ok := b.byAlt[name]; ok && !b.entries[idx].merged {
		return nil
	}

	e := newEmptyEntry()
	e.altNames[name] = struct{}{}
	b.appendEntry(e)
	return nil
}

// appendEntry adds e to the registry and indexes it by whichever
// identifiers it currently carries.
func (b *Broker) appendEntry(e *entry) {
	idx := len(b.entries)
	b.entries = append(b.entries, e)
	if e.id != nil {
		b.byID[*e.id] = idx
	}
	for n := range e.altNames {
		b.byAlt[n] = idx
	}
}

// Has reports whether any live entry is in the given state.
func (b *Broker) Has(state State) bool {
	found := false
	b.liveEntries(func(e *entry) {
		if e.state == state {
			found = true
		}
	})
	return found
}

// Empty reports whether the registry has no live entries.
func (b *Broker) Empty() bool {
	empty := true
	b.liveEntries(func(*entry) { empty = false })
	return empty
}
