package keybroker

import (
	"github.com/vincentkam/keybroker/internal/kmsprovider"
	"github.com/vincentkam/keybroker/internal/status"
)

// Cursor resumes a NextKeyDecryptor scan. CursorStart restarts iteration
// from the registry's head; the Cursor returned from one call resumes
// immediately after the entry it just dispensed. Go has no null-handle
// sentinel to overload, so advancement is carried by the returned Cursor
// value instead of by re-passing the decryptor handle itself.
type Cursor int

// CursorStart begins iteration from the registry's head.
const CursorStart Cursor = 0

// NextKeyDecryptor dispenses the next not-yet-dispensed ENCRYPTED entry's
// decryptor handle, building it from the provider matching the entry's KEK.
// AddDoc already refused to transition an entry to ENCRYPTED with an
// unregistered provider, so every ENCRYPTED entry's provider is guaranteed
// to resolve here. Entries are visited in insertion order. ok is false once
// no ENCRYPTED entry remains undispensed. If the provider can't build a
// decryptor from this entry's KEK parameters, that's a per-entry failure:
// the entry transitions to ERROR and the scan continues rather than
// failing the whole call — dispatch decrypts what it can, same as AddDoc
// and AddDecryptedKey.
func (b *Broker) NextKeyDecryptor(cursor Cursor) (handle kmsprovider.Decryptor, next Cursor, ok bool) {
	for idx := int(cursor); idx < len(b.entries); idx++ {
		e := b.entries[idx]
		if e.merged || e.state != StateEncrypted || e.dispensed {
			continue
		}

		provider := b.providers[e.kek.Provider]
		d, err := provider.NewDecryptor(e.kek.Params, e.ciphertext)
		if err != nil {
			e.state = StateError
			e.err = status.Wrap(status.KMSFailure, 31, err, "building KMS decryptor")
			continue
		}

		e.decryptor = d
		e.dispensed = true
		return d, Cursor(idx + 1), true
	}
	return nil, CursorStart, false
}
