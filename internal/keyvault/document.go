// Package keyvault parses key-vault documents and renders key-vault filter
// documents against a Mongo-shaped collection. The key broker itself never
// talks to a database — it only consumes documents handed to it by a
// caller and emits filter documents for the caller to run.
package keyvault

import (
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// KEK describes the key-encryption-key that wraps a DEK's keyMaterial.
// Provider-specific fields are carried in Params; only the provider tag is
// interpreted by the broker itself.
type KEK struct {
	// Provider is the KMS provider tag, e.g. "aws" or "local".
	Provider string
	// Params holds provider-specific parameters verbatim (e.g. AWS's
	// "key" ARN and "region"), passed through to the kmsprovider package
	// that knows how to build a decryptor handle for this provider.
	Params bson.M
}

// Document is the decoded form of a key-vault document:
// { _id, keyMaterial, masterKey, keyAltNames? }.
type Document struct {
	ID          uuid.UUID
	KeyMaterial []byte
	MasterKey   KEK
	KeyAltNames []string
}

// rawDocument mirrors the wire shape for bson unmarshaling.
type rawDocument struct {
	ID          bson.Binary `bson:"_id"`
	KeyMaterial bson.Binary `bson:"keyMaterial"`
	MasterKey   bson.M      `bson:"masterKey"`
	KeyAltNames []string    `bson:"keyAltNames,omitempty"`
}

// Parse decodes a single key-vault document. Structural errors (missing
// fields, wrong types, a malformed UUID) are returned as plain errors; the
// caller (internal/keybroker) wraps them with status.MalformedKeyDocument.
func Parse(raw bson.Raw) (*Document, error) {
	var doc rawDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("keyvault: decoding document: %w", err)
	}

	id, err := uuidFromBinary(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("keyvault: decoding _id: %w", err)
	}

	if len(doc.KeyMaterial.Data) == 0 {
		return nil, fmt.Errorf("keyvault: missing keyMaterial")
	}

	provider, _ := doc.MasterKey["provider"].(string)
	if provider == "" {
		return nil, fmt.Errorf("keyvault: masterKey.provider is required")
	}

	return &Document{
		ID:          id,
		KeyMaterial: doc.KeyMaterial.Data,
		MasterKey:   KEK{Provider: provider, Params: doc.MasterKey},
		KeyAltNames: doc.KeyAltNames,
	}, nil
}

// BSON binary subtypes for UUID values, per the BSON binary subtype spec.
// Defined locally rather than imported so Parse doesn't depend on exactly
// which symbol name the driver version exports for them.
const (
	binarySubtypeUUIDOld byte = 0x03
	binarySubtypeUUID    byte = 0x04
)

func uuidFromBinary(b bson.Binary) (uuid.UUID, error) {
	if b.Subtype != binarySubtypeUUID && b.Subtype != binarySubtypeUUIDOld {
		return uuid.Nil, fmt.Errorf("_id must be a UUID binary subtype, got %v", b.Subtype)
	}
	if len(b.Data) != 16 {
		return uuid.Nil, fmt.Errorf("_id must be exactly 16 bytes, got %d", len(b.Data))
	}
	var id uuid.UUID
	copy(id[:], b.Data)
	return id, nil
}

// BinaryFromUUID renders id as the bson UUID binary subtype used for _id,
// matching the wire shape Parse expects — used by BuildFilter and by tests
// that fabricate key-vault documents.
func BinaryFromUUID(id uuid.UUID) bson.Binary {
	data := make([]byte, 16)
	copy(data, id[:])
	return bson.Binary{Subtype: binarySubtypeUUID, Data: data}
}
