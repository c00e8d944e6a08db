package keybroker_test

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vincentkam/keybroker/internal/keybroker"
	"github.com/vincentkam/keybroker/internal/keyvault"
	"github.com/vincentkam/keybroker/internal/kmsprovider/local"
)

var localMasterKey = func() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}()

func sealLocal(t *testing.T, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(localMasterKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	nonce := make([]byte, 12)
	return append(nonce, gcm.Seal(nil, nonce, plaintext, nil)...)
}

func keyDoc(t *testing.T, id uuid.UUID, plaintext []byte, provider string, altNames []string) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(bson.M{
		"_id":         keyvault.BinaryFromUUID(id),
		"keyMaterial": bson.Binary{Subtype: 0x00, Data: sealLocal(t, plaintext)},
		"masterKey":   bson.M{"provider": provider},
		"keyAltNames": altNames,
	})
	require.NoError(t, err)
	return raw
}

func newTestBroker(t *testing.T) *keybroker.Broker {
	t.Helper()
	p, err := local.NewProvider(localMasterKey)
	require.NoError(t, err)
	b := keybroker.NewBroker(keybroker.WithProvider(p))
	t.Cleanup(b.Close)
	return b
}

func plaintext96(fill byte) []byte {
	p := make([]byte, 96)
	for i := range p {
		p[i] = fill
	}
	return p
}

// drives every dispensed decryptor to completion and feeds it back.
func driveAll(t *testing.T, b *keybroker.Broker) {
	t.Helper()
	cursor := keybroker.CursorStart
	for {
		d, next, ok := b.NextKeyDecryptor(cursor)
		if !ok {
			return
		}
		cursor = next
		d.Start(context.Background())
		require.True(t, d.Ready())
		require.NoError(t, b.AddDecryptedKey(d))
	}
}

// Scenario 1: happy path, single key.
func TestHappyPathSingleKey(t *testing.T) {
	b := newTestBroker(t)
	id := uuid.New()
	require.NoError(t, b.AddID(id))

	require.True(t, b.Has(keybroker.StateEmpty))
	filter := b.Filter()
	in := filter["_id"].(bson.M)["$in"].(bson.A)
	require.Len(t, in, 1)

	want := plaintext96(0xAB)
	require.NoError(t, b.AddDoc(keyDoc(t, id, want, "local", nil)))
	require.True(t, b.Has(keybroker.StateEncrypted))

	driveAll(t, b)

	got, err := b.DecryptedKeyMaterialByID(id)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// Scenario 2: alt-name resolution.
func TestAltNameResolution(t *testing.T) {
	b := newTestBroker(t)
	require.NoError(t, b.AddAltName("alice"))

	id := uuid.New()
	want := plaintext96(0x11)
	require.NoError(t, b.AddDoc(keyDoc(t, id, want, "local", []string{"alice", "a"})))

	driveAll(t, b)

	got, err := b.DecryptedKeyMaterialByID(id)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// Scenario 3: merge on ingest.
func TestMergeOnIngest(t *testing.T) {
	b := newTestBroker(t)
	id := uuid.New()
	require.NoError(t, b.AddID(id))
	require.NoError(t, b.AddAltName("bob"))

	want := plaintext96(0x22)
	require.NoError(t, b.AddDoc(keyDoc(t, id, want, "local", []string{"bob"})))

	// The merged entry should now be DECRYPTED and resolvable by id.
	driveAll(t, b)
	got, err := b.DecryptedKeyMaterialByID(id)
	require.NoError(t, err)
	require.Equal(t, want, got)

	// After the drain above, no decryptor remains to be dispensed.
	_, _, ok := b.NextKeyDecryptor(keybroker.CursorStart)
	require.False(t, ok)
}

// Scenario 4: partial failure.
func TestPartialFailure(t *testing.T) {
	b := newTestBroker(t)
	okID := uuid.New()
	badID := uuid.New()
	require.NoError(t, b.AddID(okID))
	require.NoError(t, b.AddID(badID))

	want := plaintext96(0x33)
	require.NoError(t, b.AddDoc(keyDoc(t, okID, want, "local", nil)))
	// badID's keyMaterial is a zero nonce followed by bytes that are not a
	// valid GCM payload, so the KMS unwrap will fail even though the
	// document itself is well-formed.
	badRaw, err := bson.Marshal(bson.M{
		"_id":         keyvault.BinaryFromUUID(badID),
		"keyMaterial": bson.Binary{Subtype: 0x00, Data: append(make([]byte, 12), []byte("not-valid-gcm-payload-at-all")...)},
		"masterKey":   bson.M{"provider": "local"},
	})
	require.NoError(t, err)
	require.NoError(t, b.AddDoc(badRaw))

	driveAll(t, b)

	gotOK, err := b.DecryptedKeyMaterialByID(okID)
	require.NoError(t, err)
	require.Equal(t, want, gotOK)

	_, err = b.DecryptedKeyMaterialByID(badID)
	require.Error(t, err)
	require.NotNil(t, b.EntryError(badID))
}

// Scenario 5: unexpected document.
func TestUnexpectedDocument(t *testing.T) {
	b := newTestBroker(t)
	require.NoError(t, b.AddID(uuid.New()))

	unrelated := uuid.New()
	err := b.AddDoc(keyDoc(t, unrelated, plaintext96(0x00), "local", nil))
	require.Error(t, err)
}

// Scenario 6: iterator completeness.
func TestIteratorCompleteness(t *testing.T) {
	b := newTestBroker(t)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, b.AddID(id))
		require.NoError(t, b.AddDoc(keyDoc(t, id, plaintext96(0x01), "local", nil)))
	}

	cursor := keybroker.CursorStart
	seen := map[uuid.UUID]bool{}
	for i := 0; i < 3; i++ {
		d, next, ok := b.NextKeyDecryptor(cursor)
		require.True(t, ok)
		cursor = next
		d.Start(context.Background())
		require.NoError(t, b.AddDecryptedKey(d))
	}
	for _, id := range ids {
		_, err := b.DecryptedKeyMaterialByID(id)
		require.NoError(t, err)
		seen[id] = true
	}
	require.Len(t, seen, 3)

	_, _, ok := b.NextKeyDecryptor(cursor)
	require.False(t, ok)
}

func TestAddIDIdempotent(t *testing.T) {
	b := newTestBroker(t)
	id := uuid.New()
	require.NoError(t, b.AddID(id))
	require.NoError(t, b.AddID(id))

	// filter() should reference the id exactly once, proving there's still
	// only one entry for it.
	in := b.Filter()["_id"].(bson.M)["$in"].(bson.A)
	require.Len(t, in, 1)
}

func TestAddIDBytesRejectsWrongLength(t *testing.T) {
	b := newTestBroker(t)
	require.Error(t, b.AddIDBytes(make([]byte, 15)))
	require.Error(t, b.AddIDBytes(make([]byte, 17)))
	require.True(t, b.Empty())
}

func TestFilterOnEmptyRegistryMatchesNothing(t *testing.T) {
	b := newTestBroker(t)
	in := b.Filter()["_id"].(bson.M)["$in"].(bson.A)
	require.Empty(t, in)
}

func TestCleanupCancelsOutstandingDecryptors(t *testing.T) {
	b := newTestBroker(t)
	id := uuid.New()
	require.NoError(t, b.AddID(id))
	require.NoError(t, b.AddDoc(keyDoc(t, id, plaintext96(0x44), "local", nil)))

	d, _, ok := b.NextKeyDecryptor(keybroker.CursorStart)
	require.True(t, ok)
	d.Start(context.Background())

	b.Close()
	b.Close() // idempotent

	// Close cancelled the dispensed decryptor, dropping its result.
	got, err := d.Take()
	require.NoError(t, err)
	require.Nil(t, got)
}
