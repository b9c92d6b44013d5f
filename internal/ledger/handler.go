package ledger

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cartera-portal/cartera-portal/internal/platform/httpx"
	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// Handler wires HTTP endpoints for knowledge-base operations.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	uploadMaxBytes int64
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, uploadMaxBytes int64) *Handler {
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = 50 << 20
	}
	return &Handler{logger: logger, service: service, uploadMaxBytes: uploadMaxBytes}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAuth)
		r.Get("/ver_dashboard", h.dashboard)
		r.Get("/clientes_unicos", h.uniqueClients)
		r.Get("/clientes_paginados", h.paginatedClients)
		r.Post("/descargar_filtrado", h.downloadFiltered)
		r.Get("/ver_cupo_cartera", h.creditLimits)
	})
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAuth, httpx.RequireAdmin)
		r.Post("/subir", h.uploadLedger)
		r.Post("/subir_cupo_cartera", h.uploadCreditLimits)
	})
}

func (h *Handler) uploadLedger(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.service.IngestLedger)
}

func (h *Handler) uploadCreditLimits(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.service.IngestCreditLimits)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request, ingest func(context.Context, io.Reader, string) (int, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxBytes)
	if err := r.ParseMultipartForm(h.uploadMaxBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form expected")
		return
	}
	file, header, err := r.FormFile("archivo")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field 'archivo' missing")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	total, err := ingest(r.Context(), file, header.Filename)
	if err != nil {
		h.logger.Error("spreadsheet upload failed",
			slog.String("filename", header.Filename),
			slog.Any("error", err),
		)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"mensaje":         "Procesado",
		"total_registros": total,
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	records, err := h.service.Dashboard(r.Context(), p)
	if err != nil {
		h.logger.Error("dashboard query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total": len(records),
		"datos": records,
	})
}

func (h *Handler) uniqueClients(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	refs, err := h.service.UniqueClients(r.Context(), p)
	if err != nil {
		h.logger.Error("unique clients query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if refs == nil {
		refs = []ClientRef{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total":    len(refs),
		"clientes": refs,
	})
}

func (h *Handler) paginatedClients(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	refs, pagination, err := h.service.PaginatedClients(r.Context(), p, page, limit)
	if err != nil {
		h.logger.Error("paginated clients query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if refs == nil {
		refs = []ClientRef{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"clientes":    refs,
		"total":       pagination.Total,
		"currentPage": pagination.Page,
		"hasNextPage": pagination.HasNextPage,
		"hasPrevPage": pagination.HasPrevPage,
	})
}

func (h *Handler) downloadFiltered(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	var req ExportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	body, err := h.service.ExportFiltered(r.Context(), p, req)
	if err != nil {
		h.logger.Warn("filtered export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.XLSX(w, "cartera_filtrada.xlsx", body)
}

func (h *Handler) creditLimits(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	records, err := h.service.CreditLimits(r.Context(), p)
	if err != nil {
		h.logger.Error("credit limits query", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if records == nil {
		records = []CreditLimitRecord{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total": len(records),
		"datos": records,
	})
}
