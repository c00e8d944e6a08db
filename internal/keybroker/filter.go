package keybroker

import (
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vincentkam/keybroker/internal/keyvault"
)

// Filter renders a key-vault query document selecting every EMPTY entry.
// Calling it when Has(StateEmpty) is false still succeeds, returning a
// filter that matches no document — callers are expected to check
// Has(StateEmpty) first if they want to skip the round trip entirely.
func (b *Broker) Filter() bson.M {
	var ids []uuid.UUID
	var names []string
	b.liveEntries(func(e *entry) {
		if e.state != StateEmpty {
			return
		}
		if e.id != nil {
			ids = append(ids, *e.id)
		}
		names = append(names, e.altNameList()...)
	})
	return keyvault.BuildFilter(ids, names)
}
