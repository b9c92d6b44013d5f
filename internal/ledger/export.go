package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// ExportRequest carries the dashboard's download filters.
type ExportRequest struct {
	VendedoresSeleccionados []string `json:"vendedoresSeleccionados"`
	Busqueda                string   `json:"busqueda"`
	MostrarNotasCredito     bool     `json:"mostrarNotasCredito"`
	ColumnaSeleccionada     string   `json:"columnaSeleccionada"`
}

// exportColumns is the fixed column order of the downloaded sheet.
var exportColumns = []string{
	ColCliente, ColNombreCliente, ColCentroCostos, ColNombreZona, ColNombreCiudad,
	ColNombreVendedor, ColTipoDocumento, ColDocumento, ColFechaExpedicion, ColFechaVencim,
	ColDiasVencidos, ColDeuda, ColPagado, ColVenc91, ColVenc6190, ColVenc3160,
	ColVenc030, ColPorVencer, ColSaldo,
}

// ExportFiltered renders the caller's scoped, filtered records as an xlsx
// workbook. Returns ErrNotFound when the filters match nothing.
func (s *Service) ExportFiltered(ctx context.Context, p *shared.Principal, req ExportRequest) ([]byte, error) {
	scope := ScopeFor(p)
	if scope.IsEmpty() {
		return nil, fmt.Errorf("%w: no records assigned to caller", shared.ErrForbidden)
	}

	filters := Filters{
		Busqueda:         req.Busqueda,
		SoloNotasCredito: req.MostrarNotasCredito,
		ColumnaNoCero:    req.ColumnaSeleccionada,
	}
	switch {
	case scope.IsAdmin():
		filters.Vendedores = req.VendedoresSeleccionados
	case len(scope.SellerNames()) > 0:
		// A seller may narrow the export to a subset of their own names,
		// never widen it.
		filters.Vendedores = intersectFold(req.VendedoresSeleccionados, scope.SellerNames())
	}

	records, err := s.repo.Query(ctx, scope, filters)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records match the filters", shared.ErrNotFound)
	}
	return BuildWorkbook("Base_Conocimiento", records)
}

// BuildWorkbook renders records into an xlsx sheet. Decoded dates are
// formatted dd-mm-yyyy; undecoded date cells keep their original text.
func BuildWorkbook(sheetName string, records []Record) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("ledger: rename sheet: %w", err)
	}

	extraCols := collectExtraColumns(records)
	header := make([]any, 0, len(exportColumns)+len(extraCols))
	for _, col := range append(append([]string{}, exportColumns...), extraCols...) {
		header = append(header, col)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("ledger: write header: %w", err)
	}

	for i, rec := range records {
		row := []any{
			rec.Cliente, rec.NombreCliente, rec.CentroCostos, rec.NombreZona, rec.NombreCiudad,
			rec.NombreVendedor, rec.TipoDocumento, rec.Documento,
			rec.FechaExpedicion.String(), rec.FechaVencim.String(),
			rec.DiasVencidos, rec.Deuda, rec.Pagado, rec.Venc91, rec.Venc61a90, rec.Venc31a60,
			rec.Venc0a30, rec.PorVencer, rec.Saldo,
		}
		for _, col := range extraCols {
			row = append(row, rec.Extra[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("ledger: cell name: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("ledger: write row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("ledger: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func collectExtraColumns(records []Record) []string {
	seen := map[string]struct{}{}
	for _, rec := range records {
		for col := range rec.Extra {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func intersectFold(selected, authorized []string) []string {
	if len(selected) == 0 {
		return nil
	}
	var out []string
	for _, sel := range selected {
		for _, auth := range authorized {
			if strings.EqualFold(strings.TrimSpace(sel), strings.TrimSpace(auth)) {
				out = append(out, auth)
				break
			}
		}
	}
	return out
}
