// Package keysrc resolves the process-wide symmetric key at startup. The key
// is fetched exactly once, from whichever backend the deployment uses, and is
// never rotated within a process lifetime. Callers own the returned bytes and
// should wipe them once the cipher is constructed.
package keysrc

import (
	"context"
	"encoding/base64"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

const (
	SourceEnv    = "env"
	SourceFile   = "file"
	SourceVault  = "vault"
	SourceAWSSM  = "aws-secretsmanager"
	SourceAWSKMS = "aws-kms"
)

var ErrUnknownSource = errors.New("unknown key source")

type Config struct {
	Source           string
	EnvKeyB64        string
	FilePath         string
	VaultMount       string
	VaultPath        string
	VaultField       string
	AWSSecretID      string
	KMSCiphertextB64 string
}

func Load(ctx context.Context, c Config) ([]byte, error) {
	switch c.Source {
	case SourceEnv, "":
		return fromEnv(c.EnvKeyB64)
	case SourceFile:
		return fromFile(c.FilePath)
	case SourceVault:
		return fromVault(ctx, c)
	case SourceAWSSM:
		return fromSecretsManager(ctx, c.AWSSecretID)
	case SourceAWSKMS:
		return fromKMS(ctx, c.KMSCiphertextB64)
	default:
		return nil, ErrUnknownSource
	}
}

func fromEnv(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, errors.New("ENCRYPTION_KEY not set")
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, errors.Wrap(err, "decode ENCRYPTION_KEY")
	}
	return key, nil
}

func fromFile(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("ENCRYPTION_KEY_FILE not set")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read key file")
	}
	trimmed := strings.TrimSpace(string(raw))
	if key, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		return key, nil
	}
	// Not base64: treat file contents as the raw key.
	return []byte(trimmed), nil
}

func fromVault(ctx context.Context, c Config) ([]byte, error) {
	vcfg := vault.DefaultConfig()
	vcfg.Timeout = 5 * time.Second
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, errors.Wrap(err, "vault client")
	}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Sys().HealthWithContext(healthCtx); err != nil {
		return nil, errors.Wrap(err, "vault health check")
	}
	mount := c.VaultMount
	if mount == "" {
		mount = "secret"
	}
	field := c.VaultField
	if field == "" {
		field = "key"
	}
	secret, err := client.KVv2(mount).Get(ctx, c.VaultPath)
	if err != nil {
		return nil, errors.Wrap(err, "vault read")
	}
	val, ok := secret.Data[field].(string)
	if !ok || val == "" {
		return nil, errors.Errorf("vault secret missing field %q", field)
	}
	key, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, errors.Wrap(err, "decode vault key")
	}
	return key, nil
}

func fromSecretsManager(ctx context.Context, secretID string) ([]byte, error) {
	if secretID == "" {
		return nil, errors.New("AWS_KEY_SECRET_ID not set")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "aws config")
	}
	out, err := secretsmanager.NewFromConfig(awsCfg).GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "secretsmanager get")
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return nil, errors.New("secretsmanager returned empty secret")
	}
	key, err := base64.StdEncoding.DecodeString(*out.SecretString)
	if err != nil {
		return nil, errors.Wrap(err, "decode secretsmanager key")
	}
	return key, nil
}

// fromKMS decrypts a KMS-wrapped key blob carried in configuration. The
// plaintext key only ever exists in process memory.
func fromKMS(ctx context.Context, ciphertextB64 string) ([]byte, error) {
	if ciphertextB64 == "" {
		return nil, errors.New("KMS_KEY_CIPHERTEXT not set")
	}
	blob, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, errors.Wrap(err, "decode KMS_KEY_CIPHERTEXT")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "aws config")
	}
	out, err := kms.NewFromConfig(awsCfg).Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return nil, errors.Wrap(err, "kms decrypt")
	}
	return out.Plaintext, nil
}
