package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

func TestCheckoutSignature(t *testing.T) {
	signer := NewSigner("test_integrity_secret", "")

	sig, err := signer.CheckoutSignature("FAC-90001-17", 15000, "COP")
	require.NoError(t, err)
	assert.Equal(t, "5ed9cc7211c616fadc9a77a2da114d4cd432e66815578af3cc9d834e26bd546a", sig)

	sig, err = signer.CheckoutSignatureWithRedirect("FAC-90001-17", 15000, "COP", "https://portal.example.com/pagos")
	require.NoError(t, err)
	assert.Equal(t, "cccd153ba5c4e07d5c69ed7b6e149761c7b39bf91341da3f4f148241a469bc0c", sig)
}

func TestCheckoutSignatureRequiresSecret(t *testing.T) {
	signer := NewSigner("", "whatever")
	_, err := signer.CheckoutSignature("FAC-1", 100, "COP")
	assert.ErrorIs(t, err, shared.ErrConfigMissing)
	_, err = signer.CheckoutSignatureWithRedirect("FAC-1", 100, "COP", "https://x")
	assert.ErrorIs(t, err, shared.ErrConfigMissing)
}

func TestEventChecksum(t *testing.T) {
	signer := NewSigner("", "test_event_secret")

	sum, err := signer.EventChecksum("tx-123", "APPROVED", 1500000, 1700000000)
	require.NoError(t, err)
	assert.Equal(t, "694c0f8bb469edf5b3e1db63ca0781951edb47b889e861926d33e70606ba731b", sum)
}

func TestVerifyEvent(t *testing.T) {
	signer := NewSigner("", "test_event_secret")

	sum, err := signer.EventChecksum("tx-123", "APPROVED", 1500000, 1700000000)
	require.NoError(t, err)
	assert.NoError(t, signer.VerifyEvent("tx-123", "APPROVED", 1500000, 1700000000, sum))

	err = signer.VerifyEvent("tx-123", "APPROVED", 1500000, 1700000000, "deadbeef")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	// A tampered status must not verify against the original checksum.
	err = signer.VerifyEvent("tx-123", "DECLINED", 1500000, 1700000000, sum)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestVerifyEventRequiresSecret(t *testing.T) {
	signer := NewSigner("secret", "")
	err := signer.VerifyEvent("tx-123", "APPROVED", 1500000, 1700000000, "abc")
	assert.ErrorIs(t, err, shared.ErrConfigMissing)
}

func TestInvoiceReference(t *testing.T) {
	cases := map[string]string{
		"FAC-90001-1715000":  "90001",
		"FAC-90001":          "90001",
		"90001":              "90001",
		"PAGO-ABC-123-extra": "ABC",
	}
	for ref, want := range cases {
		tx := Transaction{Reference: ref}
		assert.Equal(t, want, tx.InvoiceReference(), "reference %q", ref)
	}
}

func TestAmount(t *testing.T) {
	tx := Transaction{AmountInCents: 1500025}
	assert.InDelta(t, 15000.25, tx.Amount(), 1e-9)
}
