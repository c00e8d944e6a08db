package keyvault

import (
	"sort"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// BuildFilter renders the key-vault query document selecting every document
// whose _id is in ids or whose keyAltNames array contains any of altNames.
// ids and altNames are sorted before being placed in the filter so that two
// calls over the same logical set produce byte-identical output.
//
// When both ids and altNames are empty, the returned filter matches no
// document ({_id: {$in: []}}) rather than failing — callers distinguish
// "nothing to fetch" via Broker.Has(StateEmpty).
func BuildFilter(ids []uuid.UUID, altNames []string) bson.M {
	sortedIDs := make([]uuid.UUID, len(ids))
	copy(sortedIDs, ids)
	sort.Slice(sortedIDs, func(i, j int) bool {
		return sortedIDs[i].String() < sortedIDs[j].String()
	})
	idBins := make(bson.A, 0, len(sortedIDs))
	for _, id := range sortedIDs {
		idBins = append(idBins, BinaryFromUUID(id))
	}

	sortedNames := make([]string, len(altNames))
	copy(sortedNames, altNames)
	sort.Strings(sortedNames)
	nameVals := make(bson.A, 0, len(sortedNames))
	for _, n := range sortedNames {
		nameVals = append(nameVals, n)
	}

	if len(nameVals) == 0 {
		return bson.M{"_id": bson.M{"$in": idBins}}
	}
	return bson.M{
		"$or": bson.A{
			bson.M{"_id": bson.M{"$in": idBins}},
			bson.M{"keyAltNames": bson.M{"$in": nameVals}},
		},
	}
}
