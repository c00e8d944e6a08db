// Command keybrokerdemo exercises a single key-broker request round trip
// end to end against the local KMS provider, for manual smoke testing of
// internal/keybroker without a real key vault or KMS present.
package main

import (
	"context"
	"encoding/hex"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/vincentkam/keybroker/internal/config"
	"github.com/vincentkam/keybroker/internal/keybroker"
	"github.com/vincentkam/keybroker/internal/keycache"
	"github.com/vincentkam/keybroker/internal/keyvault"
	"github.com/vincentkam/keybroker/internal/kmsprovider/aws"
	"github.com/vincentkam/keybroker/internal/kmsprovider/local"

	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func main() {
	app := &cli.Command{
		Name:  "keybrokerdemo",
		Usage: "Materialize a demo DEK through a local-provider key broker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "master-key-hex",
				Usage:   "32-byte AES-256 master key, hex or base64 encoded (random if omitted)",
				Sources: cli.EnvVars("KEYBROKER_LOCAL_MASTER_KEY"),
			},
		},
		Action: run,
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if hexKey := cmd.String("master-key-hex"); hexKey != "" {
		cfg.LocalMasterKey, err = config.DecodeMasterKey(hexKey)
		if err != nil {
			return err
		}
	}
	masterKey := cfg.LocalMasterKey
	if masterKey == nil {
		masterKey = make([]byte, 32)
		if _, err := rand.Read(masterKey); err != nil {
			return err
		}
	}

	provider, err := local.NewProvider(masterKey)
	if err != nil {
		return err
	}
	opts := []keybroker.Option{keybroker.WithProvider(provider)}

	if cfg.AWSRegion != "" {
		awsProvider, err := aws.NewProvider(ctx, aws.Credentials{
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			SessionToken:    cfg.AWSSessionToken,
			DefaultRegion:   cfg.AWSRegion,
		})
		if err != nil {
			return err
		}
		opts = append(opts, keybroker.WithProvider(awsProvider))
	}

	if cfg.DecryptedKeyCacheTTL > 0 {
		cache, err := keycache.NewDecryptedKeyCache(cfg.DecryptedKeyCacheTTL)
		if err != nil {
			return err
		}
		defer cache.Close()
		opts = append(opts, keybroker.WithDecryptedKeyCache(cache))
	}

	broker := keybroker.NewBroker(opts...)
	defer broker.Close()

	id := uuid.New()
	plaintext := make([]byte, 96)
	if _, err := rand.Read(plaintext); err != nil {
		return err
	}
	doc, err := sealedDoc(id, plaintext, masterKey)
	if err != nil {
		return err
	}

	log.Info("requesting key", "id", id)
	if err := broker.AddID(id); err != nil {
		return err
	}
	if err := broker.AddDoc(doc); err != nil {
		return err
	}

	cursor := keybroker.CursorStart
	for {
		d, next, ok := broker.NextKeyDecryptor(cursor)
		if !ok {
			break
		}
		cursor = next
		d.Start(ctx)
		if err := broker.AddDecryptedKey(d); err != nil {
			return err
		}
	}

	material, err := broker.DecryptedKeyMaterialByID(id)
	if err != nil {
		return err
	}
	log.Info("decrypted key material", "bytes", len(material), "matches_plaintext", hex.EncodeToString(material) == hex.EncodeToString(plaintext))
	return nil
}

func sealedDoc(id uuid.UUID, plaintext, masterKey []byte) (bson.Raw, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := append(nonce, gcm.Seal(nil, nonce, plaintext, nil)...)

	return bson.Marshal(bson.M{
		"_id":         keyvault.BinaryFromUUID(id),
		"keyMaterial": bson.Binary{Subtype: 0x00, Data: ciphertext},
		"masterKey":   bson.M{"provider": "local"},
	})
}
