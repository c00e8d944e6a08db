// Package aws implements the "aws" KMS provider, unwrapping each KEK by
// calling the real AWS KMS Decrypt API — one call per entry, since the
// broker's KEKs are per-document rather than a small set of long-lived
// secrets that would be worth caching at startup.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/charmbracelet/log"

	"github.com/vincentkam/keybroker/internal/kmsprovider"
)

// Credentials holds the long-lived AWS credentials the broker was
// constructed with; they are read-only once the provider is built.
// DefaultRegion is the region the shared KMS client is configured with; a
// KEK's own "region" parameter is not used to route calls.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultRegion   string
}

// Provider is the "aws" KMS provider: every KEK names its own CMK ARN (and
// optionally region); the client is shared across all decryptors it builds.
type Provider struct {
	client *kms.Client
}

// NewProvider builds an AWS KMS provider from explicit credentials rather
// than reading them from the ambient environment.
func NewProvider(ctx context.Context, creds Credentials) (*Provider, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, fmt.Errorf("aws: access key id and secret access key are required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.DefaultRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("aws: loading AWS config: %w", err)
	}
	log.Debug("aws kms provider configured", "accessKeyId", creds.AccessKeyID, "region", creds.DefaultRegion)
	return &Provider{client: kms.NewFromConfig(cfg)}, nil
}

func (p *Provider) ID() string { return "aws" }

// NewDecryptor builds a decryptor for one entry. kekParams must carry a
// "key" string (the CMK ARN); "region" is optional and only informational —
// aws-sdk-go-v2 routes by the client's configured region and the ARN itself.
func (p *Provider) NewDecryptor(kekParams map[string]interface{}, ciphertext []byte) (kmsprovider.Decryptor, error) {
	cmkARN, _ := kekParams["key"].(string)
	if cmkARN == "" {
		return nil, fmt.Errorf("aws: masterKey.key (CMK ARN) is required")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("aws: empty ciphertext")
	}
	return &decryptor{client: p.client, cmkARN: cmkARN, ciphertext: ciphertext, done: make(chan struct{})}, nil
}

// decryptor drives one AWS KMS Decrypt call on a background goroutine so
// the caller can dispatch many of them concurrently and poll Ready.
type decryptor struct {
	client     *kms.Client
	cmkARN     string
	ciphertext []byte

	startOnce sync.Once
	done      chan struct{}
	plain     []byte
	err       error
}

func (d *decryptor) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go func() {
			defer close(d.done)
			out, err := d.client.Decrypt(ctx, &kms.DecryptInput{
				CiphertextBlob: d.ciphertext,
				KeyId:          aws.String(d.cmkARN),
			})
			if err != nil {
				d.err = fmt.Errorf("aws: Decrypt: %w", err)
				return
			}
			d.plain = out.Plaintext
		}()
	})
}

func (d *decryptor) Ready() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (d *decryptor) Take() ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.plain, nil
}

// Cancel drops the result; the in-flight HTTP call (if any) is not aborted
// since aws-sdk-go-v2 ties cancellation to the context passed to Start,
// which the caller owns — cancelling that context is what actually signals
// the KMS layer to stop.
func (d *decryptor) Cancel() {
	d.plain = nil
}
