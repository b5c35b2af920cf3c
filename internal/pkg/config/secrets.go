// internal/pkg/config/secrets.go
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// FiscalKeySecret names the fiscal signing key in every secret source.
const FiscalKeySecret = "FISCAL_SIGNING_KEY"

// ErrSecretNotFound is returned when a source has no value for a key.
var ErrSecretNotFound = errors.New("secret not found")

// SecretSource resolves a named secret.
type SecretSource interface {
	Secret(ctx context.Context, key string) (string, error)
}

// SecretValueAPI is the part of the Secrets Manager client AWSSecrets calls.
type SecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// EnvSecrets reads secrets from the process environment.
type EnvSecrets struct{}

func (EnvSecrets) Secret(_ context.Context, key string) (string, error) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s not set in environment", ErrSecretNotFound, key)
}

// AWSSecrets reads one JSON secret from Secrets Manager and serves its keys
// from memory until the TTL lapses.
type AWSSecrets struct {
	client SecretValueAPI
	name   string
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	values  map[string]string
	fetched time.Time
}

// NewAWSSecrets builds a source over client for the secret called name.
func NewAWSSecrets(client SecretValueAPI, name string, ttl time.Duration, logger *slog.Logger) *AWSSecrets {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecrets{
		client: client,
		name:   name,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "secrets"), slog.String("secret_name", name)),
	}
}

func (s *AWSSecrets) Secret(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil || time.Since(s.fetched) >= s.ttl {
		values, err := s.fetch(ctx)
		if err != nil {
			return "", err
		}
		s.values, s.fetched = values, time.Now()
	}

	v, ok := s.values[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s not in %s", ErrSecretNotFound, key, s.name)
	}
	return v, nil
}

// Invalidate forces the next lookup to refetch, e.g. after a key rotation.
func (s *AWSSecrets) Invalidate() {
	s.mu.Lock()
	s.values = nil
	s.mu.Unlock()
}

func (s *AWSSecrets) fetch(ctx context.Context) (map[string]string, error) {
	s.logger.InfoContext(ctx, "fetching secret from AWS Secrets Manager")

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(s.name),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: no secret named %s", ErrSecretNotFound, s.name)
		}
		return nil, fmt.Errorf("get secret %s: %w", s.name, err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		raw = out.SecretBinary
	default:
		return nil, fmt.Errorf("secret %s is empty", s.name)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object of strings: %w", s.name, err)
	}
	return values, nil
}

// ChainSecrets asks each source in turn and returns the first value found.
type ChainSecrets []SecretSource

func (c ChainSecrets) Secret(ctx context.Context, key string) (string, error) {
	for _, src := range c {
		v, err := src.Secret(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// NewSecretSource reads the environment, then Secrets Manager when
// AWS_SECRET_NAME is set.
func NewSecretSource(ctx context.Context, cfg *Config, logger *slog.Logger) (SecretSource, error) {
	if cfg.AWS.SecretName == "" {
		return EnvSecrets{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := secretsmanager.NewFromConfig(awsCfg)
	return ChainSecrets{EnvSecrets{}, NewAWSSecrets(client, cfg.AWS.SecretName, 0, logger)}, nil
}

// ResolveFiscalKey returns the configured fiscal key, falling back to src.
func ResolveFiscalKey(ctx context.Context, cfg *Config, src SecretSource) (string, error) {
	if cfg.Ledger.FiscalKey != "" {
		return cfg.Ledger.FiscalKey, nil
	}
	if src == nil {
		return "", fmt.Errorf("%w: fiscal signing key", ErrMissingRequiredConfig)
	}

	key, err := src.Secret(ctx, FiscalKeySecret)
	switch {
	case errors.Is(err, ErrSecretNotFound):
		return "", fmt.Errorf("%w: fiscal signing key: %v", ErrMissingRequiredConfig, err)
	case err != nil:
		return "", fmt.Errorf("failed to resolve fiscal key: %w", err)
	}
	return key, nil
}
