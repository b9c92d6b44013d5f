package jobs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartera-portal/cartera-portal/internal/payments"
	"github.com/cartera-portal/cartera-portal/internal/shared"
)

type stubStore struct {
	rec    *payments.Record
	synced []string
}

func (s *stubStore) FindByTransactionID(ctx context.Context, transactionID string) (*payments.Record, error) {
	if s.rec == nil || s.rec.TransactionID != transactionID {
		return nil, shared.ErrNotFound
	}
	return s.rec, nil
}

func (s *stubStore) InsertIfAbsent(ctx context.Context, rec *payments.Record) (bool, error) {
	return false, nil
}

func (s *stubStore) UpdateOptions(ctx context.Context, transactionID, option, motive string) error {
	return nil
}

func (s *stubStore) ListByPaidDate(ctx context.Context, day time.Time) ([]payments.Record, error) {
	return nil, nil
}

func (s *stubStore) MarkSynced(ctx context.Context, transactionID string) error {
	s.synced = append(s.synced, transactionID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paymentTask(t *testing.T, transactionID string) *asynq.Task {
	t.Helper()
	task, err := NewPaymentSyncTask(transactionID)
	require.NoError(t, err)
	return task
}

func TestHandlePaymentSyncDelivers(t *testing.T) {
	var received int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &stubStore{rec: &payments.Record{TransactionID: "tx-1", InvoiceReference: "90001", Amount: 100}}
	syncer := NewSyncer(store, srv.URL, srv.Client(), testLogger())

	err := syncer.HandlePaymentSync(context.Background(), paymentTask(t, "tx-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, received)
	assert.Equal(t, []string{"tx-1"}, store.synced)
}

func TestHandlePaymentSyncRetriesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := &stubStore{rec: &payments.Record{TransactionID: "tx-1"}}
	syncer := NewSyncer(store, srv.URL, srv.Client(), testLogger())

	err := syncer.HandlePaymentSync(context.Background(), paymentTask(t, "tx-1"))
	assert.Error(t, err, "non-2xx responses surface so asynq retries")
	assert.Empty(t, store.synced)
}

func TestHandlePaymentSyncAlreadySynced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no delivery expected")
	}))
	defer srv.Close()

	store := &stubStore{rec: &payments.Record{TransactionID: "tx-1", SyncedExternally: true}}
	syncer := NewSyncer(store, srv.URL, srv.Client(), testLogger())

	err := syncer.HandlePaymentSync(context.Background(), paymentTask(t, "tx-1"))
	require.NoError(t, err)
	assert.Empty(t, store.synced)
}

func TestHandlePaymentSyncDisabled(t *testing.T) {
	store := &stubStore{rec: &payments.Record{TransactionID: "tx-1"}}
	syncer := NewSyncer(store, "", nil, testLogger())

	err := syncer.HandlePaymentSync(context.Background(), paymentTask(t, "tx-1"))
	require.NoError(t, err)
	assert.Empty(t, store.synced)
}

func TestHandlePaymentSyncBadPayload(t *testing.T) {
	syncer := NewSyncer(&stubStore{}, "http://unused", nil, testLogger())
	err := syncer.HandlePaymentSync(context.Background(), asynq.NewTask(TaskTypePaymentSync, []byte("{broken")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
