package payments

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// DailyReport renders every payment received on the given UTC day as an xlsx
// workbook. Returns ErrNotFound when no payments landed that day.
func DailyReport(ctx context.Context, store Store, day time.Time) ([]byte, error) {
	records, err := store.ListByPaidDate(ctx, day)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no payments on %s", shared.ErrNotFound, day.Format("2006-01-02"))
	}
	return buildReport(records)
}

var reportHeader = []any{
	"Transaccion", "Referencia Factura", "Monto", "NIT Cliente", "Nombre Cliente",
	"Fecha Pago", "Confirmado Via", "Verificado BD", "Medio de Pago", "Motivo",
}

func buildReport(records []Record) ([]byte, error) {
	const sheetName = "Pagos"
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("payments: rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &reportHeader); err != nil {
		return nil, fmt.Errorf("payments: write header: %w", err)
	}

	for i, rec := range records {
		verified := "NO"
		if rec.VerifiedAgainstLedger {
			verified = "SI"
		}
		row := []any{
			rec.TransactionID, rec.InvoiceReference, rec.Amount,
			rec.ClientTaxID, rec.ClientName,
			rec.PaidAt.UTC().Format("02-01-2006 15:04"),
			string(rec.ConfirmedVia), verified,
			rec.PaymentOption, rec.PaymentMotive,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("payments: cell name: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("payments: write row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("payments: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
