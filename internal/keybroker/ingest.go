package keybroker

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vincentkam/keybroker/internal/keyvault"
	"github.com/vincentkam/keybroker/internal/kmsprovider"
	"github.com/vincentkam/keybroker/internal/status"
)

// AddDoc ingests one key-vault document, matching it to the EMPTY entries it
// satisfies and transitioning the (possibly merged) entry to ENCRYPTED or, on
// a per-entry problem, ERROR. Independent calls may be made for distinct
// documents in any order.
func (b *Broker) AddDoc(raw bson.Raw) error {
	doc, err := keyvault.Parse(raw)
	if err != nil {
		return status.Wrap(status.MalformedKeyDocument, 10, err, "parsing key-vault document")
	}

	altNameSet := make(map[string]struct{}, len(doc.KeyAltNames))
	for _, n := range doc.KeyAltNames {
		altNameSet[n] = struct{}{}
	}

	var matched []int
	for idx, e := range b.entries {
		if e.merged || e.state != StateEmpty {
			continue
		}
		if e.hasID(doc.ID) {
			matched = append(matched, idx)
			continue
		}
		for n := range e.altNames {
			if _, ok := altNameSet[n]; ok {
				matched = append(matched, idx)
				break
			}
		}
	}

	if len(matched) == 0 {
		return status.New(status.UnexpectedKeyDocument, 11,
			"key-vault document %s matches no pending entry", doc.ID)
	}

	survivorIdx := matched[0]
	survivor := b.entries[survivorIdx]
	for _, idx := range matched[1:] {
		other := b.entries[idx]
		for n := range other.altNames {
			b.byAlt[n] = survivorIdx
		}
		if other.id != nil {
			b.byID[*other.id] = survivorIdx
		}
		survivor.absorb(other)
	}

	id := doc.ID
	survivor.id = &id
	b.byID[id] = survivorIdx

	if _, ok := b.providers[doc.MasterKey.Provider]; !ok {
		survivor.state = StateError
		survivor.err = status.New(status.MalformedKeyDocument, 12,
			"key-vault document %s names unsupported KMS provider %q", doc.ID, doc.MasterKey.Provider)
		return nil
	}

	survivor.kek = doc.MasterKey
	survivor.ciphertext = doc.KeyMaterial
	survivor.state = StateEncrypted
	return nil
}

// AddDecryptedKey consumes a dispensed decryptor handle. If the KMS exchange
// behind it hasn't finished, the call fails with KMS_NOT_DONE.
// If it finished with an error, that failure is recorded on the owning
// entry as ERROR and AddDecryptedKey still returns success — only the
// entry, not the call, failed. On success the entry becomes DECRYPTED and,
// if this broker has a decrypted-key cache, the plaintext is published to it.
func (b *Broker) AddDecryptedKey(d kmsprovider.Decryptor) error {
	idx, e := b.findByDecryptor(d)
	if e == nil {
		return status.New(status.KMSNotDone, 20, "decryptor handle does not belong to any entry in this broker")
	}
	if !d.Ready() {
		return status.New(status.KMSNotDone, 21, "KMS exchange for entry %d is not complete", idx)
	}

	plain, err := d.Take()
	e.decryptor = nil
	e.dispensed = false
	if err != nil {
		e.state = StateError
		e.err = status.Wrap(status.KMSFailure, 22, err, "KMS decrypt failed")
		return nil
	}
	if len(plain) != decryptedKeyLen {
		e.state = StateError
		e.err = status.New(status.KMSFailure, 23,
			"KMS returned %d bytes of key material, expected %d", len(plain), decryptedKeyLen)
		return nil
	}

	e.plaintext = plain
	e.state = StateDecrypted
	if e.id != nil && b.cache != nil {
		b.cache.Publish(*e.id, plain)
	}
	return nil
}

func (b *Broker) findByDecryptor(d kmsprovider.Decryptor) (int, *entry) {
	for idx, e := range b.entries {
		if !e.merged && e.decryptor == d {
			return idx, e
		}
	}
	return -1, nil
}
