package ledger

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// aliasTable maps folded spreadsheet headers to canonical column names.
// Folding strips case, diacritics, whitespace and underscores, so
// "Nombre Cliente", "NOMBRE_CLIENTE" and "nombrecliente" all land on the
// same entry.
var aliasTable = map[string]string{
	"cliente":          ColCliente,
	"nombrecliente":    ColNombreCliente,
	"centrocostos":     ColCentroCostos,
	"nombrezona":       ColNombreZona,
	"nombreciudad":     ColNombreCiudad,
	"nombrevendedor":   ColNombreVendedor,
	"tdcto":            ColTipoDocumento,
	"documento":        ColDocumento,
	"fexpedic":         ColFechaExpedicion,
	"fvencim":          ColFechaVencim,
	"diasvc":           ColDiasVencidos,
	"deuda":            ColDeuda,
	"pagado":           ColPagado,
	"venc91":           ColVenc91,
	"venc6190":         ColVenc6190,
	"venc3160":         ColVenc3160,
	"venc030":          ColVenc030,
	"porvenc":          ColPorVencer,
	"saldo":            ColSaldo,
	"nota":             ColNota,
	"direccioncliente": ColDireccion,
	"cupocredito":      ColCupoCredito,
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldHeader lowercases, strips diacritics and removes whitespace and
// underscores from a raw header.
func foldHeader(key string) string {
	stripped, _, err := transform.String(foldTransformer, key)
	if err != nil {
		stripped = key
	}
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(stripped)) {
		if unicode.IsSpace(r) || r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeKey resolves a raw header against the alias table. Unknown headers
// pass through unchanged.
func NormalizeKey(key string) string {
	if key == "" {
		return key
	}
	if canonical, ok := aliasTable[foldHeader(key)]; ok {
		return canonical
	}
	return key
}

func isNumericKey(key string) bool {
	switch key {
	case ColDeuda, ColPagado, ColSaldo, ColPorVencer,
		ColVenc030, ColVenc3160, ColVenc6190, ColVenc91,
		ColCupoCredito, ColDiasVencidos:
		return true
	}
	return false
}

func isDateKey(key string) bool {
	return key == ColFechaExpedicion || key == ColFechaVencim
}

var (
	numberPrefixRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	serialStringRe = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	dmyDateRe      = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})$`)
	nonDigitRe     = regexp.MustCompile(`\D`)
)

// CleanNumber coerces a spreadsheet cell to a float using Spanish-locale
// conventions. It is total: parse failures yield 0, never NaN or an error.
func CleanNumber(val any) float64 {
	switch v := val.(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}

	s := strings.TrimSpace(stringValue(val))
	if s == "" {
		return 0
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		// Spanish format: 1.000,50
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case hasComma:
		parts := strings.Split(s, ",")
		if len(parts) > 2 {
			s = strings.ReplaceAll(s, ",", "")
		} else if len(parts[1]) <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasDot:
		parts := strings.Split(s, ".")
		if len(parts) > 2 || len(parts[1]) > 2 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	clean := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			clean = append(clean, r)
		}
	}

	n, err := strconv.ParseFloat(string(clean), 64)
	if err != nil {
		// Salvage a leading numeric prefix the way spreadsheet tools do.
		prefix := numberPrefixRe.FindString(string(clean))
		if prefix == "" {
			return 0
		}
		n, err = strconv.ParseFloat(prefix, 64)
		if err != nil {
			return 0
		}
	}
	return n
}

const excelEpochOffset = 25569 // days between 1899-12-30 and 1970-01-01

// SerialToDate converts a spreadsheet serial number in the plausible range
// [25000, 75000] to a UTC-midnight date. Values outside the range yield false.
func SerialToDate(serial float64) (time.Time, bool) {
	if serial < 25000 || serial > 75000 {
		return time.Time{}, false
	}
	ms := int64(math.Round((serial - excelEpochOffset) * 86400 * 1000))
	t := time.UnixMilli(ms).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// DateToSerial is the inverse of SerialToDate for round-trip checks and
// export formatting.
func DateToSerial(t time.Time) float64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return float64(midnight.Unix())/86400 + excelEpochOffset
}

// coerceDate decodes a date cell. Anything unrecognized keeps the original
// value: the knowledge base never loses data on a bad cell.
func coerceDate(val any) CellValue {
	switch v := val.(type) {
	case time.Time:
		// Re-stamp to UTC midnight, dropping time-of-day and zone.
		return DateCell(time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC))
	case float64:
		if d, ok := SerialToDate(v); ok {
			return DateCell(d)
		}
		return RawCell(stringValue(v))
	case int:
		if d, ok := SerialToDate(float64(v)); ok {
			return DateCell(d)
		}
		return RawCell(stringValue(v))
	}

	s := strings.TrimSpace(stringValue(val))
	if serialStringRe.MatchString(s) {
		if serial, err := strconv.ParseFloat(s, 64); err == nil {
			if d, ok := SerialToDate(serial); ok {
				return DateCell(d)
			}
		}
		return RawCell(s)
	}
	if m := dmyDateRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			if year < 70 {
				year += 2000
			} else {
				year += 1900
			}
		}
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return DateCell(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC))
		}
	}
	return RawCell(s)
}

// Normalize converts one raw spreadsheet row into a canonical Record. It is a
// pure function of its input.
func Normalize(raw map[string]any) Record {
	rec := Record{}
	for rawKey, val := range raw {
		key := NormalizeKey(rawKey)

		if isDateKey(key) {
			cell := coerceDate(val)
			if key == ColFechaExpedicion {
				rec.FechaExpedicion = cell
			} else {
				rec.FechaVencim = cell
			}
			continue
		}

		if isNumericKey(key) {
			n := CleanNumber(val)
			switch key {
			case ColDeuda:
				rec.Deuda = n
			case ColPagado:
				rec.Pagado = n
			case ColSaldo:
				rec.Saldo = n
			case ColPorVencer:
				rec.PorVencer = n
			case ColVenc030:
				rec.Venc0a30 = n
			case ColVenc3160:
				rec.Venc31a60 = n
			case ColVenc6190:
				rec.Venc61a90 = n
			case ColVenc91:
				rec.Venc91 = n
			case ColCupoCredito:
				rec.CupoCredito = n
			case ColDiasVencidos:
				rec.DiasVencidos = n
			}
			continue
		}

		s := strings.TrimSpace(stringValue(val))
		switch key {
		case ColCliente:
			rec.Cliente = s
			digits := nonDigitRe.ReplaceAllString(s, "")
			rec.ClienteBusqueda = digits
			if len(digits) > 9 {
				digits = digits[:9]
			}
			rec.ClienteCore = digits
		case ColNombreCliente:
			rec.NombreCliente = s
		case ColNombreVendedor:
			rec.NombreVendedor = s
		case ColNombreZona:
			rec.NombreZona = s
		case ColNombreCiudad:
			rec.NombreCiudad = s
		case ColCentroCostos:
			rec.CentroCostos = s
		case ColTipoDocumento:
			rec.TipoDocumento = s
		case ColDocumento:
			rec.Documento = s
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[key] = s
		}
	}
	return rec
}

// stringValue renders an arbitrary cell value for string fields.
func stringValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	}
	return ""
}
