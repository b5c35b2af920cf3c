// internal/pkg/config/validators.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// configValidator checks the `validate` tags on Config. Decimals are
// compared as floats.
func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
			d, ok := field.Interface().(decimal.Decimal)
			if !ok {
				return nil
			}
			f, _ := d.Float64()
			return f
		}, decimal.Decimal{})
	})
	return validate
}

// Validate checks the configuration, adding the production rules when
// APP_ENV is production.
func (c *Config) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return describe(fieldErrs[0])
		}
		return err
	}
	if c.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

// describe turns the first failed tag into an operator-facing message.
func describe(fe validator.FieldError) error {
	if fe.Tag() == "required" {
		return fmt.Errorf("%w: %s", ErrMissingRequiredConfig, fe.Namespace())
	}

	switch strings.TrimPrefix(fe.StructNamespace(), "Config.") {
	case "Storage.Backend":
		return fmt.Errorf("unknown storage backend %q", fe.Value())
	case "Storage.LockBackend":
		return fmt.Errorf("unknown lock backend %q", fe.Value())
	case "Storage.BlobBackend":
		return fmt.Errorf("unknown blob backend %q", fe.Value())
	case "Ledger.VATRate":
		return errors.New("vat rate must be in [0, 1)")
	case "Ledger.LockTTL":
		return errors.New("ledger lock ttl must be positive")
	case "Database.MaxConnections":
		return errors.New("database max_connections must be >= min_connections")
	case "Redis.PoolSize":
		return errors.New("redis pool_size must be positive")
	case "Security.RateLimitRequests":
		return errors.New("rate_limit_requests must be positive")
	case "AWS.S3Encryption":
		return fmt.Errorf("unknown S3 encryption %q", fe.Value())
	case "Server.TLSCertFile", "Server.TLSKeyFile":
		return errors.New("TLS cert and key files must be provided when TLS is enabled")
	}
	return fmt.Errorf("invalid %s: fails %q", fe.Namespace(), fe.Tag())
}

func (c *Config) validateProduction() error {
	v := configValidator()

	switch {
	case strings.HasPrefix(c.Database.Password, "MISSING_"):
		return fmt.Errorf("%w: database password", ErrMissingRequiredConfig)
	// The fiscal key may come from Secrets Manager instead.
	case c.Ledger.FiscalKey == "" && c.AWS.SecretName == "":
		return fmt.Errorf("%w: fiscal signing key or AWS secret name", ErrMissingRequiredConfig)
	case c.Database.SSLMode == "disable":
		return errors.New("database SSL must be enabled in production")
	case !c.Security.SecureHeaders:
		return errors.New("secure headers must be enabled in production")
	case len(c.Security.AllowedOrigins) == 0:
		return errors.New("allowed origins must be configured in production")
	case v.Var(c.Security.AllowedOrigins, "dive,ne=*") != nil:
		return errors.New("wildcard origin (*) not allowed in production")
	case c.Storage.Backend == BackendMemory:
		return errors.New("memory storage cannot be used in production")
	case c.Ledger.FiscalKey == defaultFiscalKey("development"):
		return errors.New("default fiscal key cannot be used in production")
	case v.Var(c.Ledger.FiscalKey, "omitempty,min=32") != nil:
		return errors.New("fiscal signing key must be at least 32 characters")
	case c.Security.IdempotencyTTL <= 0:
		return errors.New("idempotency ttl must be positive")
	}
	return nil
}
