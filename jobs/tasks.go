// Package jobs runs the portal's background work on Asynq: pushing recorded
// payments to the external ERP so collections staff see them without waiting
// for the nightly batch.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cartera-portal/cartera-portal/internal/payments"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePaymentSync pushes one recorded payment to the external ERP.
	TaskTypePaymentSync = "payments:sync"
)

// PaymentSyncPayload identifies the payment to push.
type PaymentSyncPayload struct {
	TransactionID string `json:"transaction_id"`
}

// NewPaymentSyncTask constructs an Asynq task for a recorded payment.
func NewPaymentSyncTask(transactionID string) (*asynq.Task, error) {
	data, err := json.Marshal(PaymentSyncPayload{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePaymentSync, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Syncer delivers recorded payments to the external ERP endpoint.
type Syncer struct {
	store      payments.Store
	syncURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSyncer constructs a Syncer. syncURL empty disables delivery; tasks then
// complete as no-ops.
func NewSyncer(store payments.Store, syncURL string, httpClient *http.Client, logger *slog.Logger) *Syncer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Syncer{store: store, syncURL: syncURL, httpClient: httpClient, logger: logger}
}

// HandlePaymentSync processes TaskTypePaymentSync tasks. Delivery failures
// return an error so Asynq retries with backoff.
func (s *Syncer) HandlePaymentSync(ctx context.Context, t *asynq.Task) error {
	var payload PaymentSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if s.syncURL == "" {
		s.logger.Debug("payment sync disabled", slog.String("transaction_id", payload.TransactionID))
		return nil
	}

	rec, err := s.store.FindByTransactionID(ctx, payload.TransactionID)
	if err != nil {
		return fmt.Errorf("jobs: load payment %s: %w", payload.TransactionID, err)
	}
	if rec.SyncedExternally {
		return nil
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return asynq.SkipRetry
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.syncURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("jobs: build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jobs: deliver payment %s: %w", payload.TransactionID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jobs: external app returned %d for %s", resp.StatusCode, payload.TransactionID)
	}

	if err := s.store.MarkSynced(ctx, payload.TransactionID); err != nil {
		return err
	}
	s.logger.Info("payment synced", slog.String("transaction_id", payload.TransactionID))
	return nil
}
