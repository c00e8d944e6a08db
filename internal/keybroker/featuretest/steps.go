// Package featuretest drives internal/keybroker's public API from Gherkin
// scenarios via github.com/cucumber/godog. These scenarios run entirely
// in-process against the "local" KMS provider — a key broker has no server
// or datastore of its own to stand up or containerize.
package featuretest

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vincentkam/keybroker/internal/keybroker"
	"github.com/vincentkam/keybroker/internal/keyvault"
	"github.com/vincentkam/keybroker/internal/kmsprovider/local"
	"github.com/vincentkam/keybroker/internal/status"
)

var masterKey = func() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}()

// world holds per-scenario state. godog constructs a fresh one per
// scenario via InitializeScenario's closure.
type world struct {
	broker     *keybroker.Broker
	ids        map[string]uuid.UUID
	plaintexts map[string][]byte
}

func newWorld() *world {
	return &world{ids: map[string]uuid.UUID{}, plaintexts: map[string][]byte{}}
}

func (w *world) idFor(name string) uuid.UUID {
	if id, ok := w.ids[name]; ok {
		return id
	}
	id := uuid.New()
	w.ids[name] = id
	return id
}

func (w *world) plaintextFor(name string) []byte {
	if p, ok := w.plaintexts[name]; ok {
		return p
	}
	p := make([]byte, 96)
	fill := byte(len(w.plaintexts) + 1)
	for i := range p {
		p[i] = fill
	}
	w.plaintexts[name] = p
	return p
}

func seal(plaintext []byte) []byte {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		panic(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	nonce := make([]byte, 12)
	return append(nonce, gcm.Seal(nil, nonce, plaintext, nil)...)
}

func splitNames(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (w *world) aFreshKeyBroker() error {
	p, err := local.NewProvider(masterKey)
	if err != nil {
		return err
	}
	w.broker = keybroker.NewBroker(keybroker.WithProvider(p))
	return nil
}

func (w *world) iAddID(name string) error {
	return w.broker.AddID(w.idFor(name))
}

func (w *world) iAddAltName(name string) error {
	return w.broker.AddAltName(name)
}

func (w *world) docFor(name, altNamesCSV string) bson.Raw {
	raw, err := bson.Marshal(bson.M{
		"_id":         keyvault.BinaryFromUUID(w.idFor(name)),
		"keyMaterial": bson.Binary{Subtype: 0x00, Data: seal(w.plaintextFor(name))},
		"masterKey":   bson.M{"provider": "local"},
		"keyAltNames": splitNames(altNamesCSV),
	})
	if err != nil {
		panic(err)
	}
	return raw
}

func (w *world) iIngestAKeyDocumentForIDWithAltNames(name, altNamesCSV string) error {
	return w.broker.AddDoc(w.docFor(name, altNamesCSV))
}

func (w *world) iIngestACorruptKeyDocumentForID(name string) error {
	raw, err := bson.Marshal(bson.M{
		"_id":         keyvault.BinaryFromUUID(w.idFor(name)),
		"keyMaterial": bson.Binary{Subtype: 0x00, Data: append(make([]byte, 12), []byte("not a valid gcm payload")...)},
		"masterKey":   bson.M{"provider": "local"},
	})
	if err != nil {
		return err
	}
	return w.broker.AddDoc(raw)
}

func (w *world) ingestingAKeyDocumentForIDWithAltNamesShouldFailWithKind(name, altNamesCSV, kind string) error {
	err := w.iIngestAKeyDocumentForIDWithAltNames(name, altNamesCSV)
	if err == nil {
		return fmt.Errorf("expected AddDoc to fail, it succeeded")
	}
	if !status.Is(err, status.Kind(kind)) {
		return fmt.Errorf("expected error kind %s, got %v", kind, err)
	}
	return nil
}

func (w *world) iDriveAllPendingDecryptors() error {
	cursor := keybroker.CursorStart
	for {
		d, next, ok := w.broker.NextKeyDecryptor(cursor)
		if !ok {
			return nil
		}
		cursor = next
		d.Start(context.Background())
		if err := w.broker.AddDecryptedKey(d); err != nil {
			return err
		}
	}
}

func (w *world) theDecryptedKeyMaterialForIDShouldEqualItsPlaintext(name string) error {
	got, err := w.broker.DecryptedKeyMaterialByID(w.idFor(name))
	if err != nil {
		return err
	}
	want := w.plaintextFor(name)
	if string(got) != string(want) {
		return fmt.Errorf("plaintext mismatch for %s", name)
	}
	return nil
}

func (w *world) thereShouldBeNoPendingDecryptors() error {
	_, _, ok := w.broker.NextKeyDecryptor(keybroker.CursorStart)
	if ok {
		return fmt.Errorf("expected no pending decryptors")
	}
	return nil
}

func (w *world) theEntryForIDShouldBeInError(name string) error {
	if w.broker.EntryError(w.idFor(name)) == nil {
		return fmt.Errorf("expected entry %s to be in error", name)
	}
	return nil
}

func (w *world) lookingUpIDShouldFailWithKind(name, kind string) error {
	_, err := w.broker.DecryptedKeyMaterialByID(w.idFor(name))
	if err == nil {
		return fmt.Errorf("expected lookup to fail")
	}
	if !status.Is(err, status.Kind(kind)) {
		return fmt.Errorf("expected error kind %s, got %v", kind, err)
	}
	return nil
}

func (w *world) iShouldBeAbleToDispenseExactlyNDecryptorsBeforeEND(n int) error {
	cursor := keybroker.CursorStart
	count := 0
	for {
		d, next, ok := w.broker.NextKeyDecryptor(cursor)
		if !ok {
			break
		}
		cursor = next
		count++
		d.Start(context.Background())
		if err := w.broker.AddDecryptedKey(d); err != nil {
			return err
		}
	}
	if count != n {
		return fmt.Errorf("expected %d decryptors, dispensed %d", n, count)
	}
	return nil
}

// InitializeScenario registers every step definition above.
func InitializeScenario(ctx *godog.ScenarioContext) {
	w := newWorld()

	ctx.Step(`^a fresh key broker$`, w.aFreshKeyBroker)
	ctx.Step(`^I add id "([^"]*)"$`, w.iAddID)
	ctx.Step(`^I add alt name "([^"]*)"$`, w.iAddAltName)
	ctx.Step(`^I ingest a key document for id "([^"]*)" with alt names "([^"]*)"$`, w.iIngestAKeyDocumentForIDWithAltNames)
	ctx.Step(`^I ingest a corrupt key document for id "([^"]*)"$`, w.iIngestACorruptKeyDocumentForID)
	ctx.Step(`^ingesting a key document for id "([^"]*)" with alt names "([^"]*)" should fail with kind "([^"]*)"$`, w.ingestingAKeyDocumentForIDWithAltNamesShouldFailWithKind)
	ctx.Step(`^I drive all pending decryptors$`, w.iDriveAllPendingDecryptors)
	ctx.Step(`^the decrypted key material for id "([^"]*)" should equal its plaintext$`, w.theDecryptedKeyMaterialForIDShouldEqualItsPlaintext)
	ctx.Step(`^there should be no pending decryptors$`, w.thereShouldBeNoPendingDecryptors)
	ctx.Step(`^the entry for id "([^"]*)" should be in error$`, w.theEntryForIDShouldBeInError)
	ctx.Step(`^looking up id "([^"]*)" should fail with kind "([^"]*)"$`, w.lookingUpIDShouldFailWithKind)
	ctx.Step(`^I should be able to dispense exactly (\d+) decryptors before END$`, w.iShouldBeAbleToDispenseExactlyNDecryptorsBeforeEND)
}
