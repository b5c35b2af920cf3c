package fiscal_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/storefront-ledger/internal/adapters/fiscal"
	"github.com/ammerola/storefront-ledger/test/helpers"
)

func TestHMACSigner_GenerateSignature(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	amount := decimal.RequireFromString("118.00")
	signer := fiscal.NewHMACSigner("a-test-key-that-is-long-enough-for-hmac", helpers.TestLogger())

	t.Run("is_deterministic", func(t *testing.T) {
		first, err := signer.GenerateSignature(ctx, amount, at, "POS-1")
		require.NoError(t, err)
		second, err := signer.GenerateSignature(ctx, amount, at, "POS-1")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, first, fiscal.SignatureLength)
		assert.Regexp(t, `^[A-Z2-7]+$`, first)
	})

	t.Run("changes_with_inputs", func(t *testing.T) {
		base, err := signer.GenerateSignature(ctx, amount, at, "POS-1")
		require.NoError(t, err)

		otherRef, err := signer.GenerateSignature(ctx, amount, at, "POS-2")
		require.NoError(t, err)
		otherAmount, err := signer.GenerateSignature(ctx, decimal.RequireFromString("118.01"), at, "POS-1")
		require.NoError(t, err)

		assert.NotEqual(t, base, otherRef)
		assert.NotEqual(t, base, otherAmount)
	})

	t.Run("trailing_zeros_do_not_change_signature", func(t *testing.T) {
		a, err := signer.GenerateSignature(ctx, decimal.RequireFromString("118"), at, "POS-1")
		require.NoError(t, err)
		b, err := signer.GenerateSignature(ctx, decimal.RequireFromString("118.00"), at, "POS-1")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("fails_without_key", func(t *testing.T) {
		empty := fiscal.NewHMACSigner("", helpers.TestLogger())
		_, err := empty.GenerateSignature(ctx, amount, at, "POS-1")
		assert.ErrorIs(t, err, fiscal.ErrNoKey)
	})

	t.Run("fails_on_cancelled_context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := signer.GenerateSignature(cancelled, amount, at, "POS-1")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHMACSigner_Verify(t *testing.T) {
	ctx := context.Background()
	at := time.Now()
	amount := decimal.NewFromInt(50)
	signer := fiscal.NewHMACSigner("a-test-key-that-is-long-enough-for-hmac", helpers.TestLogger())

	sig, err := signer.GenerateSignature(ctx, amount, at, "POS-9")
	require.NoError(t, err)

	assert.True(t, signer.Verify(ctx, sig, amount, at, "POS-9"))
	assert.False(t, signer.Verify(ctx, sig, amount, at, "POS-10"))

	other := fiscal.NewHMACSigner("a-different-key-that-is-also-long-enough", helpers.TestLogger())
	assert.False(t, other.Verify(ctx, sig, amount, at, "POS-9"))
}
