package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

func newTestRouter(t *testing.T, store Store, signer *Signer, principal *shared.Principal) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reconciler := NewReconciler(store, &fakeLedger{}, nil, logger, nil)
	handler := NewHandler(logger, reconciler, store, nil, signer, "pub_test_key", "COP")

	r := chi.NewRouter()
	if principal != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), principal)))
			})
		})
	}
	r.Route("/pagos", handler.MountRoutes)
	return r
}

func webhookBody(t *testing.T, signer *Signer, id, status string, amountInCents, timestamp int64, eventType string) []byte {
	t.Helper()
	checksum, err := signer.EventChecksum(id, status, amountInCents, timestamp)
	require.NoError(t, err)
	body := map[string]any{
		"type": eventType,
		"data": map[string]any{
			"id":              id,
			"status":          status,
			"reference":       "FAC-90001-17",
			"amount_in_cents": amountInCents,
			"customer_data":   map[string]string{"legal_id": "111", "full_name": "Pagador"},
			"created_at":      time.Date(2024, time.May, 2, 15, 0, 0, 0, time.UTC).Format(time.RFC3339),
		},
		"timestamp": timestamp,
		"signature": map[string]string{"checksum": checksum},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func TestWebhookRecordsApproved(t *testing.T) {
	store := newFakeStore()
	signer := NewSigner("", "test_event_secret")
	router := newTestRouter(t, store, signer, nil)

	body := webhookBody(t, signer, "tx-123", GatewayStatusApproved, 1500000, 1700000000, "transaction.updated")
	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi-webhook", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stored, ok := store.byTransaction["tx-123"]
	require.True(t, ok)
	assert.Equal(t, "90001", stored.InvoiceReference)
	assert.Equal(t, SourceWebhook, stored.ConfirmedVia)
	assert.Equal(t, PlaceholderOption, stored.PaymentOption)
	assert.NotEmpty(t, stored.RawGatewayPayload, "verbatim payload is retained")
}

func TestWebhookAcceptsGatewayEnvelope(t *testing.T) {
	store := newFakeStore()
	signer := NewSigner("", "test_event_secret")
	router := newTestRouter(t, store, signer, nil)

	// Literal body in the shape the gateway actually delivers: type at the
	// top level, the transaction object directly under data.
	checksum, err := signer.EventChecksum("tx-55", GatewayStatusApproved, 250000, 1700000000)
	require.NoError(t, err)
	body := fmt.Sprintf(`{
		"type": "transaction.updated",
		"data": {"id":"tx-55","status":"APPROVED","reference":"FAC-70010-3","amount_in_cents":250000},
		"timestamp": 1700000000,
		"signature": {"checksum": %q}
	}`, checksum)

	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi-webhook", bytes.NewReader([]byte(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stored, ok := store.byTransaction["tx-55"]
	require.True(t, ok)
	assert.Equal(t, "70010", stored.InvoiceReference)
}

func TestWebhookDiscardsBadSignature(t *testing.T) {
	store := newFakeStore()
	signer := NewSigner("", "test_event_secret")
	router := newTestRouter(t, store, signer, nil)

	body := webhookBody(t, signer, "tx-123", GatewayStatusApproved, 1500000, 1700000000, "transaction.updated")
	tampered := bytes.Replace(body, []byte("1500000"), []byte("9900000"), 1)
	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi-webhook", bytes.NewReader(tampered))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, store.byTransaction, "tampered events leave no trace")
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	store := newFakeStore()
	signer := NewSigner("", "test_event_secret")
	router := newTestRouter(t, store, signer, nil)

	body := webhookBody(t, signer, "tx-123", GatewayStatusApproved, 1500000, 1700000000, "nequi_token.updated")
	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi-webhook", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, store.byTransaction)
}

func TestWebhookRejectsIncompleteEvent(t *testing.T) {
	store := newFakeStore()
	signer := NewSigner("", "test_event_secret")
	router := newTestRouter(t, store, signer, nil)

	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi-webhook",
		bytes.NewReader([]byte(`{"type":"transaction.updated","data":{"id":"tx-1"}}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookSkipsNotApproved(t *testing.T) {
	store := newFakeStore()
	signer := NewSigner("", "test_event_secret")
	router := newTestRouter(t, store, signer, nil)

	body := webhookBody(t, signer, "tx-9", "DECLINED", 1500000, 1700000000, "transaction.updated")
	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi-webhook", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), string(StatusNotApproved))
	assert.Empty(t, store.byTransaction)
}

func TestStatusEndpoint(t *testing.T) {
	store := newFakeStore()
	store.byTransaction["tx-123"] = &Record{TransactionID: "tx-123", InvoiceReference: "90001", PaidAt: time.Now().UTC()}
	signer := NewSigner("", "s")
	principal := &shared.Principal{UserID: 1, Role: shared.RoleCliente, ClientIDs: []string{"800123456"}}
	router := newTestRouter(t, store, signer, principal)

	req := httptest.NewRequest(http.MethodGet, "/pagos/estado/tx-123", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "REGISTRADO")

	req = httptest.NewRequest(http.MethodGet, "/pagos/estado/tx-missing", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "PENDIENTE")
}

func TestStatusRequiresAuth(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), NewSigner("", "s"), nil)
	req := httptest.NewRequest(http.MethodGet, "/pagos/estado/tx-123", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCheckoutSignatureEndpoint(t *testing.T) {
	signer := NewSigner("test_integrity_secret", "")
	router := newTestRouter(t, newFakeStore(), signer, nil)

	body := []byte(`{"referencia":"FAC-90001-17","monto_en_centavos":15000}`)
	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi/signature", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "5ed9cc7211c616fadc9a77a2da114d4cd432e66815578af3cc9d834e26bd546a", resp["firma"])
	assert.Equal(t, "pub_test_key", resp["llave_publica"])
	assert.Equal(t, "COP", resp["moneda"])
}

func TestCheckoutSignatureValidation(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), NewSigner("secret", ""), nil)

	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi/signature", bytes.NewReader([]byte(`{"referencia":""}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckoutSignatureMissingSecret(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), NewSigner("", ""), nil)

	body := []byte(`{"referencia":"FAC-1","monto_en_centavos":100}`)
	req := httptest.NewRequest(http.MethodPost, "/pagos/wompi/signature", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestDailyReportEndpoint(t *testing.T) {
	store := newFakeStore()
	day := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	store.byTransaction["tx-1"] = &Record{TransactionID: "tx-1", InvoiceReference: "90001", Amount: 100, PaidAt: day}
	admin := &shared.Principal{UserID: 1, Role: shared.RoleAdmin}
	router := newTestRouter(t, store, NewSigner("", "s"), admin)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/pagos/reporte-excel?fecha=%s", day.Format("2006-01-02")), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "pagos_2024-05-02.xlsx")
	assert.NotEmpty(t, rr.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, "/pagos/reporte-excel?fecha=1999-01-01", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code, "no payments that day")
}

func TestGatewayConfigEndpoint(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), NewSigner("", "s"), nil)

	req := httptest.NewRequest(http.MethodGet, "/pagos/wompi/config", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pub_test_key")
}
