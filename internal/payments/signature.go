package payments

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// Signer computes and validates the gateway's integrity signatures. The
// checkout and event formats are distinct and not interchangeable.
type Signer struct {
	integritySecret string
	eventSecret     string
}

// NewSigner constructs a Signer. Either secret may be empty; the
// corresponding operations then fail with ErrConfigMissing instead of ever
// hashing with an empty secret.
func NewSigner(integritySecret, eventSecret string) *Signer {
	return &Signer{integritySecret: integritySecret, eventSecret: eventSecret}
}

// CheckoutSignature signs a checkout-initiation request:
// sha256(reference + amountInCents + currency + secret), hex encoded.
func (s *Signer) CheckoutSignature(reference string, amountInCents int64, currency string) (string, error) {
	if s.integritySecret == "" {
		return "", fmt.Errorf("%w: integrity secret not set", shared.ErrConfigMissing)
	}
	payload := reference + strconv.FormatInt(amountInCents, 10) + currency + s.integritySecret
	return hexSHA256(payload), nil
}

// CheckoutSignatureWithRedirect signs the redirect-URL checkout variant,
// inserting the redirect URL between currency and secret.
func (s *Signer) CheckoutSignatureWithRedirect(reference string, amountInCents int64, currency, redirectURL string) (string, error) {
	if s.integritySecret == "" {
		return "", fmt.Errorf("%w: integrity secret not set", shared.ErrConfigMissing)
	}
	payload := reference + strconv.FormatInt(amountInCents, 10) + currency + redirectURL + s.integritySecret
	return hexSHA256(payload), nil
}

// EventChecksum computes the expected webhook event checksum:
// sha256(transactionId + status + amountInCents + timestamp + eventSecret).
func (s *Signer) EventChecksum(transactionID, status string, amountInCents, timestamp int64) (string, error) {
	if s.eventSecret == "" {
		return "", fmt.Errorf("%w: event secret not set", shared.ErrConfigMissing)
	}
	payload := transactionID + status +
		strconv.FormatInt(amountInCents, 10) +
		strconv.FormatInt(timestamp, 10) +
		s.eventSecret
	return hexSHA256(payload), nil
}

// VerifyEvent validates an inbound event checksum in constant time.
// A mismatch yields ErrUnauthorized; the event must be discarded with no
// side effects.
func (s *Signer) VerifyEvent(transactionID, status string, amountInCents, timestamp int64, checksum string) error {
	expected, err := s.EventChecksum(transactionID, status, amountInCents, timestamp)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(checksum)) != 1 {
		return fmt.Errorf("%w: event checksum mismatch", shared.ErrUnauthorized)
	}
	return nil
}

func hexSHA256(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
