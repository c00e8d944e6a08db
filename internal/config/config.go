// Package config resolves the settings a key broker needs to construct its
// KMS providers and decrypted-key cache from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the settings needed to wire up a Broker: which KMS providers
// to enable and the decrypted-key cache TTL. It says nothing about how key
// documents reach the broker or where requests come from — that's left to
// the caller embedding this package; the broker itself never reaches
// outside its own API to construct its collaborators.
type Config struct {
	// LocalMasterKey is the AES-256 master key for the "local" provider, or
	// nil if that provider is disabled.
	LocalMasterKey []byte

	// AWSRegion, when non-empty, enables the "aws" provider.
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string

	// DecryptedKeyCacheTTL is how long decrypted key material survives in
	// the process-wide cache. Zero disables the cache.
	DecryptedKeyCacheTTL time.Duration
}

// FromEnv reads KEYBROKER_* environment variables into a Config, one env
// var per field with a documented default.
func FromEnv() (Config, error) {
	var cfg Config

	if raw := os.Getenv("KEYBROKER_LOCAL_MASTER_KEY"); raw != "" {
		key, err := DecodeMasterKey(raw)
		if err != nil {
			return Config{}, fmt.Errorf("KEYBROKER_LOCAL_MASTER_KEY: %w", err)
		}
		cfg.LocalMasterKey = key
	}

	cfg.AWSRegion = os.Getenv("KEYBROKER_AWS_REGION")
	cfg.AWSAccessKeyID = os.Getenv("KEYBROKER_AWS_ACCESS_KEY_ID")
	cfg.AWSSecretAccessKey = os.Getenv("KEYBROKER_AWS_SECRET_ACCESS_KEY")
	cfg.AWSSessionToken = os.Getenv("KEYBROKER_AWS_SESSION_TOKEN")

	cfg.DecryptedKeyCacheTTL = 5 * time.Minute
	if raw := os.Getenv("KEYBROKER_CACHE_TTL_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("KEYBROKER_CACHE_TTL_SECONDS: %w", err)
		}
		cfg.DecryptedKeyCacheTTL = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}
