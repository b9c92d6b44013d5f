package ledger

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

func TestBuildWorkbook(t *testing.T) {
	records := []Record{
		{
			Cliente:         "800123456",
			NombreCliente:   "Acme",
			NombreVendedor:  "MARIA LOPEZ",
			Documento:       "90001",
			FechaExpedicion: DateCell(time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC)),
			FechaVencim:     RawCell("SIN FECHA"),
			Saldo:           1500.25,
			Extra:           map[string]string{"Observaciones": "al dia"},
		},
	}

	body, err := BuildWorkbook("Base_Conocimiento", records)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	require.Equal(t, "Base_Conocimiento", f.GetSheetName(0))

	rows, err := f.GetRows("Base_Conocimiento")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	header := rows[0]
	assert.Equal(t, ColCliente, header[0])
	assert.Contains(t, header, "Observaciones", "extra columns ride along")

	row := rows[1]
	assert.Equal(t, "800123456", row[0])
	assert.Equal(t, "15-03-2023", row[8], "decoded dates are formatted dd-mm-yyyy")
	assert.Equal(t, "SIN FECHA", row[9], "undecoded cells keep their text")
}

func TestExportFiltered(t *testing.T) {
	repo := &fakeRepo{records: []Record{
		{Cliente: "800123456", NombreVendedor: "MARIA LOPEZ", Documento: "90001"},
		{Cliente: "900555111", NombreVendedor: "PEDRO RUIZ", Documento: "90002"},
	}}
	svc := newTestService(repo)

	t.Run("admin gets a workbook", func(t *testing.T) {
		body, err := svc.ExportFiltered(context.Background(), &shared.Principal{Role: shared.RoleAdmin}, ExportRequest{})
		require.NoError(t, err)
		assert.NotEmpty(t, body)
	})

	t.Run("caller without assignments is rejected", func(t *testing.T) {
		_, err := svc.ExportFiltered(context.Background(), &shared.Principal{Role: shared.RoleVendedor}, ExportRequest{})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("no matches is not found", func(t *testing.T) {
		_, err := svc.ExportFiltered(context.Background(), &shared.Principal{
			Role: shared.RoleCliente, ClientIDs: []string{"111111111"},
		}, ExportRequest{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestIntersectFold(t *testing.T) {
	authorized := []string{"MARIA LOPEZ", "PEDRO RUIZ"}
	assert.Equal(t, []string{"MARIA LOPEZ"}, intersectFold([]string{" maria lopez "}, authorized))
	assert.Nil(t, intersectFold(nil, authorized))
	assert.Empty(t, intersectFold([]string{"OTRA"}, authorized))
}
