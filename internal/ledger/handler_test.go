package ledger

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

func newLedgerRouter(repo Repository, principal *shared.Principal) http.Handler {
	handler := NewHandler(testLogger(), newTestService(repo), 0)
	r := chi.NewRouter()
	if principal != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), principal)))
			})
		})
	}
	r.Route("/excel", handler.MountRoutes)
	return r
}

func multipartUpload(t *testing.T, filename string, content io.Reader) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("archivo", filename)
	require.NoError(t, err)
	_, err = io.Copy(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	repo := &fakeRepo{}
	admin := &shared.Principal{UserID: 1, Role: shared.RoleAdmin}
	router := newLedgerRouter(repo, admin)

	sheet := buildSheet(t, 0,
		[]string{"Cliente", "Documento", "Saldo"},
		[][]any{{"800123456", "90001", "100,50"}},
	)
	body, contentType := multipartUpload(t, "cartera.xlsx", sheet)

	req := httptest.NewRequest(http.MethodPost, "/excel/subir", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Mensaje        string `json:"mensaje"`
		TotalRegistros int    `json:"total_registros"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Procesado", resp.Mensaje)
	assert.Equal(t, 1, resp.TotalRegistros)
	assert.Len(t, repo.records, 1)
}

func TestUploadRejectsNonAdmin(t *testing.T) {
	seller := &shared.Principal{UserID: 2, Role: shared.RoleVendedor, SellerNames: []string{"MARIA"}}
	router := newLedgerRouter(&fakeRepo{}, seller)

	sheet := buildSheet(t, 0, []string{"Cliente"}, [][]any{{"800123456"}})
	body, contentType := multipartUpload(t, "cartera.xlsx", sheet)

	req := httptest.NewRequest(http.MethodPost, "/excel/subir", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestUploadBadExtension(t *testing.T) {
	admin := &shared.Principal{UserID: 1, Role: shared.RoleAdmin}
	router := newLedgerRouter(&fakeRepo{}, admin)

	body, contentType := multipartUpload(t, "cartera.csv", bytes.NewReader([]byte("a;b;c")))
	req := httptest.NewRequest(http.MethodPost, "/excel/subir", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardEndpoint(t *testing.T) {
	repo := &fakeRepo{records: []Record{
		{Cliente: "800123456", NombreVendedor: "MARIA LOPEZ"},
		{Cliente: "900555111", NombreVendedor: "PEDRO RUIZ"},
	}}
	seller := &shared.Principal{UserID: 2, Role: shared.RoleVendedor, SellerNames: []string{"maria"}}
	router := newLedgerRouter(repo, seller)

	req := httptest.NewRequest(http.MethodGet, "/excel/ver_dashboard", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Total int      `json:"total"`
		Datos []Record `json:"datos"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Datos, 1)
	assert.Equal(t, "800123456", resp.Datos[0].Cliente)
}

func TestDashboardRequiresAuth(t *testing.T) {
	router := newLedgerRouter(&fakeRepo{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/excel/ver_dashboard", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDownloadFilteredEndpoint(t *testing.T) {
	repo := &fakeRepo{records: []Record{{Cliente: "800123456", Documento: "90001"}}}
	admin := &shared.Principal{UserID: 1, Role: shared.RoleAdmin}
	router := newLedgerRouter(repo, admin)

	req := httptest.NewRequest(http.MethodPost, "/excel/descargar_filtrado", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "cartera_filtrada.xlsx")
	assert.NotEmpty(t, rr.Body.Bytes())
}

func TestPaginatedClientsEndpoint(t *testing.T) {
	repo := &fakeRepo{records: []Record{
		{Cliente: "800123456", NombreCliente: "Acme"},
		{Cliente: "900555111", NombreCliente: "Beta"},
	}}
	admin := &shared.Principal{UserID: 1, Role: shared.RoleAdmin}
	router := newLedgerRouter(repo, admin)

	req := httptest.NewRequest(http.MethodGet, "/excel/clientes_paginados?page=1&limit=1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Clientes    []ClientRef `json:"clientes"`
		Total       int         `json:"total"`
		CurrentPage int         `json:"currentPage"`
		HasNextPage bool        `json:"hasNextPage"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.CurrentPage)
	assert.True(t, resp.HasNextPage)
	require.Len(t, resp.Clientes, 1)
}
