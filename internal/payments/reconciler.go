package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cartera-portal/cartera-portal/internal/ledger"
	"github.com/cartera-portal/cartera-portal/internal/observability"
	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// LedgerFinder resolves the authoritative customer identity for an invoice.
type LedgerFinder interface {
	FindByDocumento(ctx context.Context, documento string) (*ledger.Record, error)
}

// TaskEnqueuer hands a recorded payment to the background sync queue.
type TaskEnqueuer interface {
	EnqueuePaymentSync(ctx context.Context, transactionID string) error
}

// Reconciler turns confirmed gateway transactions into at-most-one payment
// record each, regardless of how many times and through which channel the
// same transaction is confirmed.
type Reconciler struct {
	store    Store
	ledger   LedgerFinder
	enqueuer TaskEnqueuer
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewReconciler wires the reconciler. enqueuer may be nil when background
// sync is disabled.
func NewReconciler(store Store, finder LedgerFinder, enqueuer TaskEnqueuer, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		store:    store,
		ledger:   finder,
		enqueuer: enqueuer,
		logger:   logger,
		metrics:  metrics,
	}
}

// Reconcile processes one confirmed transaction. Webhook and redirect
// confirmations run through this same path; only the source marker and the
// option/motive fields differ.
func (r *Reconciler) Reconcile(ctx context.Context, tx *Transaction, source ConfirmationSource, option, motive string) (Result, error) {
	if tx.Status != GatewayStatusApproved {
		r.logger.Info("payment not approved, skipping",
			slog.String("transaction_id", tx.ID),
			slog.String("status", tx.Status),
		)
		r.metrics.CountReconciliation(string(StatusNotApproved))
		return Result{Status: StatusNotApproved, GatewayStatus: tx.Status}, nil
	}

	existing, err := r.store.FindByTransactionID(ctx, tx.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Result{}, err
	}
	if existing != nil {
		return r.reconcileExisting(ctx, existing, option, motive)
	}

	rec := r.buildRecord(ctx, tx, source, option, motive)
	inserted, err := r.store.InsertIfAbsent(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		// Lost the race to a concurrent confirmation. Whoever won holds the
		// authoritative row.
		stored, err := r.store.FindByTransactionID(ctx, tx.ID)
		if err != nil {
			return Result{}, err
		}
		r.metrics.CountReconciliation(string(StatusDuplicated))
		return Result{Status: StatusDuplicated, Record: stored}, nil
	}

	r.logger.Info("payment recorded",
		slog.String("transaction_id", tx.ID),
		slog.String("invoice", rec.InvoiceReference),
		slog.String("source", string(source)),
		slog.Bool("ledger_verified", rec.VerifiedAgainstLedger),
	)
	r.metrics.CountReconciliation(string(StatusCreated))
	r.enqueueSync(ctx, tx.ID)
	return Result{Status: StatusCreated, Record: rec}, nil
}

// reconcileExisting upgrades a placeholder option left by a webhook
// confirmation once the redirect arrives with the real option and motive.
func (r *Reconciler) reconcileExisting(ctx context.Context, existing *Record, option, motive string) (Result, error) {
	if existing.PaymentOption == PlaceholderOption && option != "" && option != PlaceholderOption {
		if err := r.store.UpdateOptions(ctx, existing.TransactionID, option, motive); err != nil {
			return Result{}, err
		}
		existing.PaymentOption = option
		existing.PaymentMotive = motive
		r.logger.Info("payment options upgraded",
			slog.String("transaction_id", existing.TransactionID),
			slog.String("option", option),
		)
		r.metrics.CountReconciliation(string(StatusUpdated))
		return Result{Status: StatusUpdated, Record: existing}, nil
	}
	r.metrics.CountReconciliation(string(StatusDuplicated))
	return Result{Status: StatusDuplicated, Record: existing}, nil
}

func (r *Reconciler) buildRecord(ctx context.Context, tx *Transaction, source ConfirmationSource, option, motive string) *Record {
	taxID, name, verified := r.resolveIdentity(ctx, tx)
	if option == "" {
		option = PlaceholderOption
	}
	return &Record{
		TransactionID:         tx.ID,
		InvoiceReference:      tx.InvoiceReference(),
		Amount:                tx.Amount(),
		ClientTaxID:           taxID,
		ClientName:            name,
		PaidAt:                tx.CreatedAt,
		ConfirmedVia:          source,
		VerifiedAgainstLedger: verified,
		PaymentOption:         option,
		PaymentMotive:         motive,
		RawGatewayPayload:     tx.Raw,
	}
}

// resolveIdentity prefers the ledger row matching the invoice over whatever
// the payer typed into the gateway checkout.
func (r *Reconciler) resolveIdentity(ctx context.Context, tx *Transaction) (taxID, name string, verified bool) {
	taxID = strings.TrimSpace(tx.CustomerData.LegalID)
	name = strings.TrimSpace(tx.CustomerData.FullName)

	invoice := tx.InvoiceReference()
	if invoice == "" {
		return taxID, name, false
	}
	row, err := r.ledger.FindByDocumento(ctx, invoice)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			r.logger.Warn("ledger identity lookup failed",
				slog.String("invoice", invoice),
				slog.String("error", err.Error()),
			)
		}
		return taxID, name, false
	}
	if nit := strings.TrimSpace(row.Cliente); nit != "" {
		taxID = nit
	}
	if n := strings.TrimSpace(row.NombreCliente); n != "" {
		name = n
	}
	return taxID, name, true
}

func (r *Reconciler) enqueueSync(ctx context.Context, transactionID string) {
	if r.enqueuer == nil {
		return
	}
	if err := r.enqueuer.EnqueuePaymentSync(ctx, transactionID); err != nil {
		r.logger.Warn("payment sync enqueue failed",
			slog.String("transaction_id", transactionID),
			slog.String("error", err.Error()),
		)
	}
}
