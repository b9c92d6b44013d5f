package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/cartera-portal/cartera-portal/internal/platform/httpx"
	"github.com/cartera-portal/cartera-portal/internal/shared"
)

const maxWebhookBody = 1 << 20

var validate = validator.New()

// Handler exposes the payment endpoints.
type Handler struct {
	logger     *slog.Logger
	reconciler *Reconciler
	store      Store
	gateway    *GatewayClient
	signer     *Signer
	publicKey  string
	currency   string
	reports    singleflight.Group
}

// NewHandler wires the payment HTTP surface. currency defaults to COP when
// empty.
func NewHandler(logger *slog.Logger, reconciler *Reconciler, store Store, gateway *GatewayClient, signer *Signer, publicKey, currency string) *Handler {
	if currency == "" {
		currency = "COP"
	}
	return &Handler{
		logger:     logger,
		reconciler: reconciler,
		store:      store,
		gateway:    gateway,
		signer:     signer,
		publicKey:  publicKey,
		currency:   currency,
	}
}

// MountRoutes registers the payment routes on the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/wompi-webhook", h.webhook)
	r.Get("/wompi/config", h.gatewayConfig)
	r.Post("/wompi/signature", h.checkoutSignature)

	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAuth)
		r.Post("/confirmacion", h.confirm)
		r.Get("/estado/{transactionID}", h.status)
	})
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAuth, httpx.RequireAdmin)
		r.Get("/reporte-excel", h.dailyReport)
	})
}

type confirmRequest struct {
	ID        string `json:"id" validate:"required"`
	MedioPago string `json:"medio_pago"`
	Motivo    string `json:"motivo"`
}

// confirm handles the browser redirect after checkout: the transaction is
// re-fetched from the gateway so the client can never assert its own status.
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Cuerpo inválido", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Datos incompletos", "se requiere el id de la transacción")
		return
	}

	tx, err := h.gateway.GetTransaction(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Transacción no encontrada", req.ID)
			return
		}
		h.logger.Error("gateway lookup failed", slog.String("transaction_id", req.ID), slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusBadGateway, "Error consultando la pasarela", "intente de nuevo")
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), tx, SourceRedirect, req.MedioPago, req.Motivo)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, confirmResponse(result))
}

func confirmResponse(result Result) map[string]any {
	resp := map[string]any{"resultado": string(result.Status)}
	if result.Status == StatusNotApproved {
		resp["estado_pasarela"] = result.GatewayStatus
		return resp
	}
	if result.Record != nil {
		resp["pago"] = result.Record
	}
	return resp
}

type webhookEvent struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Signature struct {
		Checksum string `json:"checksum"`
	} `json:"signature"`
}

// webhook handles gateway event notifications. Anything that fails signature
// verification is discarded with 401; internal failures return 5xx so the
// gateway retries the delivery.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Cuerpo ilegible", err.Error())
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Evento inválido", err.Error())
		return
	}

	var tx Transaction
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &tx); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Transacción inválida", err.Error())
			return
		}
	}
	if tx.ID == "" || tx.Status == "" || event.Signature.Checksum == "" || event.Timestamp == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Evento incompleto", "faltan campos requeridos")
		return
	}

	if err := h.signer.VerifyEvent(tx.ID, tx.Status, tx.AmountInCents, event.Timestamp, event.Signature.Checksum); err != nil {
		if errors.Is(err, shared.ErrUnauthorized) {
			h.logger.Warn("webhook signature mismatch", slog.String("transaction_id", tx.ID))
			httpx.Problem(w, http.StatusUnauthorized, "Firma inválida", "el evento fue descartado")
			return
		}
		httpx.RespondError(w, err)
		return
	}

	// Other event types are acknowledged without side effects so the gateway
	// stops retrying them.
	if event.Type != "transaction.updated" {
		httpx.JSON(w, http.StatusOK, map[string]string{"mensaje": "Evento ignorado"})
		return
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Raw = event.Data

	result, err := h.reconciler.Reconcile(r.Context(), &tx, SourceWebhook, "", "")
	if err != nil {
		h.logger.Error("webhook reconcile failed", slog.String("transaction_id", tx.ID), slog.String("error", err.Error()))
		httpx.Problem(w, http.StatusInternalServerError, "Error procesando el evento", "reintente la entrega")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"resultado": string(result.Status)})
}

// status reports whether a transaction has been recorded. A missing record
// means the webhook or redirect has not landed yet.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	rec, err := h.store.FindByTransactionID(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.JSON(w, http.StatusNotFound, map[string]string{"estado": "PENDIENTE"})
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"estado": "REGISTRADO", "pago": rec})
}

func (h *Handler) dailyReport(w http.ResponseWriter, r *http.Request) {
	fecha := r.URL.Query().Get("fecha")
	day := time.Now().UTC()
	if fecha != "" {
		parsed, err := time.Parse("2006-01-02", fecha)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Fecha inválida", "use el formato AAAA-MM-DD")
			return
		}
		day = parsed
	}

	// Concurrent requests for the same day share one report build.
	key := day.Format("2006-01-02")
	result, err, _ := h.reports.Do(key, func() (any, error) {
		return DailyReport(r.Context(), h.store, day)
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.XLSX(w, fmt.Sprintf("pagos_%s.xlsx", key), result.([]byte))
}

type signatureRequest struct {
	Referencia      string `json:"referencia" validate:"required"`
	MontoEnCentavos int64  `json:"monto_en_centavos" validate:"required,gt=0"`
	Moneda          string `json:"moneda"`
	RedirectURL     string `json:"redirect_url"`
}

// checkoutSignature issues the integrity signature the frontend embeds in
// the gateway checkout widget.
func (h *Handler) checkoutSignature(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Cuerpo inválido", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Datos incompletos", "se requieren referencia y monto en centavos")
		return
	}
	currency := req.Moneda
	if currency == "" {
		currency = h.currency
	}

	var signature string
	var err error
	if req.RedirectURL != "" {
		signature, err = h.signer.CheckoutSignatureWithRedirect(req.Referencia, req.MontoEnCentavos, currency, req.RedirectURL)
	} else {
		signature, err = h.signer.CheckoutSignature(req.Referencia, req.MontoEnCentavos, currency)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"firma":         signature,
		"llave_publica": h.publicKey,
		"moneda":        currency,
	})
}

func (h *Handler) gatewayConfig(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		httpx.RespondError(w, fmt.Errorf("%w: gateway public key not set", shared.ErrConfigMissing))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{
		"llave_publica": h.publicKey,
		"moneda":        h.currency,
	})
}
