// Package local implements the "local" KMS provider: KEKs are not managed
// by a real KMS at all, just a single master key configured on the broker,
// unwrapped with AES-256-GCM — a test/offline provider alongside AWS.
package local

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/vincentkam/keybroker/internal/kmsprovider"
)

const masterKeyLen = 32 // AES-256

// Provider is the "local" KMS provider: one master key unwraps every KEK.
type Provider struct {
	masterKey []byte
}

// NewProvider builds a local provider from a 32-byte AES-256 master key.
func NewProvider(masterKey []byte) (*Provider, error) {
	if len(masterKey) != masterKeyLen {
		return nil, fmt.Errorf("local: master key must be %d bytes, got %d", masterKeyLen, len(masterKey))
	}
	return &Provider{masterKey: masterKey}, nil
}

func (p *Provider) ID() string { return "local" }

// NewDecryptor builds a decryptor that unwraps ciphertext with the master
// key. The local provider ignores kekParams beyond requiring the provider
// tag to have matched — there are no ARN/region parameters to carry.
func (p *Provider) NewDecryptor(_ map[string]interface{}, ciphertext []byte) (kmsprovider.Decryptor, error) {
	if len(ciphertext) < 12 {
		return nil, fmt.Errorf("local: ciphertext too short to contain a nonce")
	}
	return &decryptor{masterKey: p.masterKey, nonce: ciphertext[:12], sealed: ciphertext[12:]}, nil
}

// decryptor unwraps its ciphertext synchronously on Start since it's pure
// CPU work with no I/O to overlap; Ready is true immediately after.
type decryptor struct {
	masterKey []byte
	nonce     []byte
	sealed    []byte

	started bool
	plain   []byte
	err     error
}

func (d *decryptor) Start(_ context.Context) {
	if d.started {
		return
	}
	d.started = true
	block, err := aes.NewCipher(d.masterKey)
	if err != nil {
		d.err = fmt.Errorf("local: AES cipher: %w", err)
		return
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		d.err = fmt.Errorf("local: GCM: %w", err)
		return
	}
	plain, err := gcm.Open(nil, d.nonce, d.sealed, nil)
	if err != nil {
		d.err = fmt.Errorf("local: unwrap failed: %w", err)
		return
	}
	d.plain = plain
}

func (d *decryptor) Ready() bool { return d.started }

func (d *decryptor) Take() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.plain, nil
}

func (d *decryptor) Cancel() {
	d.plain = nil
}
