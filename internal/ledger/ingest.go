package ledger

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// ParseSheet reads the first worksheet of an xlsx stream into raw rows keyed
// by the header row. headerOffset rows are skipped before the header (the
// credit-limit sheet carries a four-row banner). Raw cell values are
// preserved so date serials reach the normalizer undamaged.
func ParseSheet(r io.Reader, headerOffset int) ([]map[string]any, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read workbook: %v", shared.ErrValidation, err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", shared.ErrValidation)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("ledger: read rows: %w", err)
	}
	if len(rows) <= headerOffset {
		return nil, fmt.Errorf("%w: sheet is empty", shared.ErrValidation)
	}

	headers := rows[headerOffset]
	out := make([]map[string]any, 0, len(rows)-headerOffset-1)
	for _, row := range rows[headerOffset+1:] {
		raw := make(map[string]any, len(headers))
		empty := true
		for i, header := range headers {
			header = strings.TrimSpace(header)
			if header == "" {
				continue
			}
			var val string
			if i < len(row) {
				val = row[i]
			}
			if strings.TrimSpace(val) != "" {
				empty = false
			}
			raw[header] = val
		}
		if empty {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

// hasIdentity reports whether a raw row carries a client or document field.
// Rows lacking both are excluded from ingestion.
func hasIdentity(raw map[string]any) bool {
	for rawKey, val := range raw {
		key := NormalizeKey(rawKey)
		if key != ColCliente && key != ColDocumento {
			continue
		}
		if strings.TrimSpace(stringValue(val)) != "" {
			return true
		}
	}
	return false
}
