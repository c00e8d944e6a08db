package keybroker

import (
	"sort"

	"github.com/google/uuid"

	"github.com/vincentkam/keybroker/internal/keyvault"
	"github.com/vincentkam/keybroker/internal/kmsprovider"
	"github.com/vincentkam/keybroker/internal/status"
)

// decryptedKeyLen is the fixed plaintext DEK length enforced at the
// KMS-decrypt boundary.
const decryptedKeyLen = 96

// State is a key entry's position in its lifecycle, mirroring mongocrypt's
// KEY_EMPTY/KEY_ENCRYPTED/KEY_DECRYPTED/KEY_ERROR state set.
type State int

const (
	// StateEmpty: has an id and/or alt name, nothing else.
	StateEmpty State = iota
	// StateEncrypted: has the key-vault document's KEK and ciphertext.
	StateEncrypted
	// StateDecrypted: has plaintext key material. Terminal.
	StateDecrypted
	// StateError: could not be resolved. Terminal.
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateEncrypted:
		return "ENCRYPTED"
	case StateDecrypted:
		return "DECRYPTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// entry is a tagged union in spirit: which fields are meaningful is
// determined entirely by state, kept consistent by the code that performs
// each state transition rather than by the Go type system, since a contiguous slice of a
// sum-typed interface would cost an allocation and an index-to-pointer
// indirection per entry for no behavioral benefit here.
type entry struct {
	id       *uuid.UUID
	altNames map[string]struct{}
	state    State

	// merged marks a tombstoned slot: its identity and any EMPTY data were
	// absorbed into another entry during AddDoc's merge step. Stable
	// indices are preserved by tombstoning in place rather than compacting
	// the slice.
	merged bool

	kek        keyvault.KEK
	ciphertext []byte

	plaintext []byte

	decryptor kmsprovider.Decryptor
	dispensed bool

	err *status.Error
}

func newEmptyEntry() *entry {
	return &entry{state: StateEmpty, altNames: map[string]struct{}{}}
}

func (e *entry) hasID(id uuid.UUID) bool {
	return e.id != nil && *e.id == id
}

func (e *entry) hasAltName(name string) bool {
	_, ok := e.altNames[name]
	return ok
}

// altNameList renders altNames in a deterministic order for filter
// building and testing.
func (e *entry) altNameList() []string {
	names := make([]string, 0, len(e.altNames))
	for n := range e.altNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// absorb merges other's identity into e (e is the survivor). Both must be
// StateEmpty. The merged entry carries the union of id and alt names; a
// document's _id is singular so at most one of the two sides contributes
// an id.
func (e *entry) absorb(other *entry) {
	if e.id == nil {
		e.id = other.id
	}
	for n := range other.altNames {
		e.altNames[n] = struct{}{}
	}
	other.merged = true
	other.altNames = nil
}
