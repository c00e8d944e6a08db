// Package kmsprovider defines the decryptor-handle abstraction the broker's
// decryptor dispatcher hands to callers, and the per-KMS-provider factories
// that build one. Concrete providers live in the aws and local subpackages.
//
// libmongocrypt represents an outstanding KMS exchange as raw
// request/response byte buffers driven over a TCP connection the caller
// owns. Go's AWS SDK and crypto/cipher both perform their own I/O framing
// internally, so Decryptor trades "feed me N bytes of wire response" for
// "Start, then poll Ready/Take" — the same ready()-before-take()-or-it's-
// an-error discipline, expressed without a hand-rolled wire protocol.
package kmsprovider

import "context"

// Decryptor represents one outstanding KMS unwrap request for a single key
// entry's KEK + ciphertext. The broker dispenses one per ENCRYPTED entry via
// NextKeyDecryptor and retains ownership until AddDecryptedKey consumes it or
// Broker.Close cancels it.
type Decryptor interface {
	// Start dispatches the KMS exchange. Non-blocking: the caller may start
	// many decryptors and drive them concurrently. Calling Start more than
	// once is a no-op.
	Start(ctx context.Context)

	// Ready reports whether the exchange has finished, successfully or not.
	Ready() bool

	// Take returns the unwrapped 96-byte DEK plaintext, or the error the KMS
	// exchange failed with. Must only be called once Ready() is true; the
	// broker maps "called before Ready" to status.KMSNotDone.
	Take() ([]byte, error)

	// Cancel drops the handle's result. It does not interrupt a KMS call
	// already in flight: the aws implementation's call ends only when the
	// context passed to Start is cancelled.
	// Safe to call at any time, including after Ready(); idempotent.
	Cancel()
}

// Provider builds Decryptor handles for one KMS provider tag ("aws", "local").
type Provider interface {
	// ID is the provider tag matched against a key document's masterKey.provider.
	ID() string

	// NewDecryptor builds a decryptor for one entry's KEK parameters and
	// encrypted key material. kekParams is the provider-specific bson
	// sub-document from masterKey (e.g. AWS's "key"/"region").
	NewDecryptor(kekParams map[string]interface{}, ciphertext []byte) (Decryptor, error)
}
