package keyvault_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vincentkam/keybroker/internal/keyvault"
)

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func TestParseRoundTrip(t *testing.T) {
	id := mustParseUUID(t, "01020304-0506-0708-0910-111213141516")
	raw, err := bson.Marshal(bson.M{
		"_id":         keyvault.BinaryFromUUID(id),
		"keyMaterial": bson.Binary{Subtype: 0x00, Data: []byte("ciphertext")},
		"masterKey":   bson.M{"provider": "local"},
		"keyAltNames": []string{"alice", "a"},
	})
	require.NoError(t, err)

	doc, err := keyvault.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, id, doc.ID)
	require.Equal(t, []byte("ciphertext"), doc.KeyMaterial)
	require.Equal(t, "local", doc.MasterKey.Provider)
	require.ElementsMatch(t, []string{"alice", "a"}, doc.KeyAltNames)
}

func TestParseMissingProviderFails(t *testing.T) {
	id := mustParseUUID(t, "01020304-0506-0708-0910-111213141516")
	raw, err := bson.Marshal(bson.M{
		"_id":         keyvault.BinaryFromUUID(id),
		"keyMaterial": bson.Binary{Subtype: 0x00, Data: []byte("ct")},
		"masterKey":   bson.M{},
	})
	require.NoError(t, err)

	_, err = keyvault.Parse(raw)
	require.Error(t, err)
}

func TestParseMissingKeyMaterialFails(t *testing.T) {
	id := mustParseUUID(t, "01020304-0506-0708-0910-111213141516")
	raw, err := bson.Marshal(bson.M{
		"_id":       keyvault.BinaryFromUUID(id),
		"masterKey": bson.M{"provider": "local"},
	})
	require.NoError(t, err)

	_, err = keyvault.Parse(raw)
	require.Error(t, err)
}

func TestBuildFilterDeterministic(t *testing.T) {
	id1 := mustParseUUID(t, "11111111-1111-1111-1111-111111111111")
	id2 := mustParseUUID(t, "22222222-2222-2222-2222-222222222222")

	f1 := keyvault.BuildFilter([]uuid.UUID{id2, id1}, []string{"bob", "alice"})
	f2 := keyvault.BuildFilter([]uuid.UUID{id1, id2}, []string{"alice", "bob"})
	require.Equal(t, f1, f2)
}

func TestBuildFilterEmptyMatchesNothing(t *testing.T) {
	f := keyvault.BuildFilter(nil, nil)
	in, ok := f["_id"].(bson.M)["$in"].(bson.A)
	require.True(t, ok)
	require.Empty(t, in)
}
