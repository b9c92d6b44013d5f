package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// Store defines persistence for reconciled payments.
type Store interface {
	FindByTransactionID(ctx context.Context, transactionID string) (*Record, error)
	// InsertIfAbsent persists the record unless its transaction id already
	// exists, reporting whether a row was written. The uniqueness guarantee
	// lives in the database, not in a prior lookup.
	InsertIfAbsent(ctx context.Context, rec *Record) (bool, error)
	UpdateOptions(ctx context.Context, transactionID, option, motive string) error
	ListByPaidDate(ctx context.Context, day time.Time) ([]Record, error)
	MarkSynced(ctx context.Context, transactionID string) error
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL payment store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const paymentColumns = `id, transaction_id, invoice_reference, amount, client_tax_id, client_name,
	paid_at, confirmed_via, verified_ledger, payment_option, payment_motive,
	synced_externally, raw_payload, created_at`

// FindByTransactionID returns the recorded payment for a gateway id.
func (s *PGStore) FindByTransactionID(ctx context.Context, transactionID string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM payments WHERE transaction_id = $1", paymentColumns),
		transactionID,
	)
	rec, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("payments: find by transaction id: %w", err)
	}
	return rec, nil
}

// InsertIfAbsent writes the record, treating a transaction-id conflict as
// "already recorded" rather than an error.
func (s *PGStore) InsertIfAbsent(ctx context.Context, rec *Record) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO payments (
			transaction_id, invoice_reference, amount, client_tax_id, client_name,
			paid_at, confirmed_via, verified_ledger, payment_option, payment_motive,
			synced_externally, raw_payload
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (transaction_id) DO NOTHING`,
		rec.TransactionID, rec.InvoiceReference, rec.Amount, rec.ClientTaxID, rec.ClientName,
		rec.PaidAt, string(rec.ConfirmedVia), rec.VerifiedAgainstLedger,
		rec.PaymentOption, rec.PaymentMotive, rec.SyncedExternally, []byte(rec.RawGatewayPayload),
	)
	if err != nil {
		return false, fmt.Errorf("payments: insert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateOptions upgrades the payment option and motive for a transaction.
func (s *PGStore) UpdateOptions(ctx context.Context, transactionID, option, motive string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE payments SET payment_option = $2, payment_motive = $3 WHERE transaction_id = $1",
		transactionID, option, motive,
	)
	if err != nil {
		return fmt.Errorf("payments: update options: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListByPaidDate returns payments whose paid-at timestamp falls within the
// given UTC calendar day.
func (s *PGStore) ListByPaidDate(ctx context.Context, day time.Time) ([]Record, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM payments WHERE paid_at >= $1 AND paid_at < $2 ORDER BY paid_at", paymentColumns),
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("payments: list by paid date: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payments: scan: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// MarkSynced flags a payment as delivered to the external ERP.
func (s *PGStore) MarkSynced(ctx context.Context, transactionID string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE payments SET synced_externally = TRUE WHERE transaction_id = $1",
		transactionID,
	)
	if err != nil {
		return fmt.Errorf("payments: mark synced: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*Record, error) {
	var rec Record
	var confirmedVia string
	var raw []byte
	err := row.Scan(
		&rec.ID, &rec.TransactionID, &rec.InvoiceReference, &rec.Amount,
		&rec.ClientTaxID, &rec.ClientName, &rec.PaidAt, &confirmedVia,
		&rec.VerifiedAgainstLedger, &rec.PaymentOption, &rec.PaymentMotive,
		&rec.SyncedExternally, &raw, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ConfirmedVia = ConfirmationSource(confirmedVia)
	rec.RawGatewayPayload = raw
	return &rec, nil
}

var _ Store = (*PGStore)(nil)
