// internal/adapters/fiscal/signer.go
package fiscal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// SignatureLength is the number of characters printed on the receipt.
const SignatureLength = 16

// ErrNoKey is returned when the signer has no key to sign with.
var ErrNoKey = errors.New("fiscal signing key is not configured")

// HMACSigner produces a short alphanumeric signature from an HMAC-SHA256 of
// the sale amount, time and reference.
type HMACSigner struct {
	key    []byte
	logger *slog.Logger
}

var _ ports.FiscalSigner = (*HMACSigner)(nil)

// NewHMACSigner creates a signer keyed with key.
func NewHMACSigner(key string, logger *slog.Logger) *HMACSigner {
	return &HMACSigner{
		key:    []byte(key),
		logger: logger.With(slog.String("component", "fiscal_signer")),
	}
}

// GenerateSignature signs amount, timestamp and referenceID. The same inputs
// always yield the same signature.
func (s *HMACSigner) GenerateSignature(ctx context.Context, amount decimal.Decimal, timestamp time.Time, referenceID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.key) == 0 {
		return "", ErrNoKey
	}

	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s|%s|%s", amount.StringFixed(2), timestamp.UTC().Format(time.RFC3339Nano), referenceID)
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(mac.Sum(nil))
	sig := strings.ToUpper(encoded[:SignatureLength])

	s.logger.DebugContext(ctx, "fiscal signature generated", slog.String("reference_id", referenceID))
	return sig, nil
}

// Verify reports whether sig was produced for the given inputs.
func (s *HMACSigner) Verify(ctx context.Context, sig string, amount decimal.Decimal, timestamp time.Time, referenceID string) bool {
	expected, err := s.GenerateSignature(ctx, amount, timestamp, referenceID)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(sig))
}
