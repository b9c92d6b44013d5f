// Package payments records approved gateway transactions exactly once,
// cross-referencing the accounts-receivable knowledge base for verified
// customer identity.
package payments

import (
	"encoding/json"
	"strings"
	"time"
)

// ConfirmationSource identifies how a transaction reached the reconciler.
type ConfirmationSource string

const (
	SourceWebhook  ConfirmationSource = "webhook"
	SourceRedirect ConfirmationSource = "redirect"
)

// ReconcileStatus is the outcome of one reconcile call.
type ReconcileStatus string

const (
	// StatusCreated means a new payment record was persisted.
	StatusCreated ReconcileStatus = "CREATED"
	// StatusUpdated means an existing webhook-recorded payment gained its
	// redirect-supplied option and motive.
	StatusUpdated ReconcileStatus = "UPDATED"
	// StatusDuplicated means the transaction was already recorded; no write
	// happened.
	StatusDuplicated ReconcileStatus = "DUPLICATED"
	// StatusNotApproved means the gateway status was not APPROVED; nothing
	// is persisted.
	StatusNotApproved ReconcileStatus = "NOT_APPROVED"
)

// GatewayStatusApproved is the only gateway status that persists a payment.
const GatewayStatusApproved = "APPROVED"

// PlaceholderOption marks webhook-recorded payments whose payment option is
// pending a redirect confirmation.
const PlaceholderOption = "webhook"

// CustomerData is the gateway's view of the payer.
type CustomerData struct {
	LegalID  string `json:"legal_id"`
	FullName string `json:"full_name"`
}

// Transaction is the subset of the gateway transaction object the portal
// reads. Raw retains the verbatim payload for audit.
type Transaction struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Reference     string          `json:"reference"`
	AmountInCents int64           `json:"amount_in_cents"`
	CustomerData  CustomerData    `json:"customer_data"`
	CreatedAt     time.Time       `json:"created_at"`
	Raw           json.RawMessage `json:"-"`
}

// InvoiceReference derives the ledger join key from the gateway reference:
// the component after the first separator, else the whole reference.
func (t *Transaction) InvoiceReference() string {
	parts := strings.SplitN(t.Reference, "-", 3)
	if len(parts) > 1 {
		return parts[1]
	}
	return t.Reference
}

// Amount converts the gateway's minor units to the currency major unit.
func (t *Transaction) Amount() float64 {
	return float64(t.AmountInCents) / 100
}

// Record is one reconciled approved transaction.
type Record struct {
	ID                    int64              `json:"-"`
	TransactionID         string             `json:"transaccion_id"`
	InvoiceReference      string             `json:"referencia_factura"`
	Amount                float64            `json:"monto"`
	ClientTaxID           string             `json:"nit_cliente"`
	ClientName            string             `json:"nombre_cliente"`
	PaidAt                time.Time          `json:"fecha_pago"`
	ConfirmedVia          ConfirmationSource `json:"confirmado_via"`
	VerifiedAgainstLedger bool               `json:"datos_verificados_bd"`
	PaymentOption         string             `json:"medio_pago,omitempty"`
	PaymentMotive         string             `json:"motivo_pago,omitempty"`
	SyncedExternally      bool               `json:"sincronizado_app_externa"`
	RawGatewayPayload     json.RawMessage    `json:"-"`
	CreatedAt             time.Time          `json:"-"`
}

// Result reports a reconcile outcome to the caller.
type Result struct {
	Status ReconcileStatus
	// GatewayStatus carries the original status for NOT_APPROVED outcomes.
	GatewayStatus string
	Record        *Record
}
