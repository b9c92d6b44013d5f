// Package ledger holds the portal's accounts-receivable knowledge base:
// spreadsheet ingestion, row normalization and the role-scoped query surface.
package ledger

import (
	"encoding/json"
	"time"
)

// Canonical column names, matching the uploaded cartera spreadsheet.
const (
	ColCliente         = "Cliente"
	ColNombreCliente   = "Nombre_Cliente"
	ColCentroCostos    = "Centro_Costos"
	ColNombreZona      = "Nombre_Zona"
	ColNombreCiudad    = "Nombre_Ciudad"
	ColNombreVendedor  = "Nombre_Vendedor"
	ColTipoDocumento   = "T_Dcto"
	ColDocumento       = "Documento"
	ColFechaExpedicion = "F_Expedic"
	ColFechaVencim     = "F_Vencim"
	ColDiasVencidos    = "DiasVc"
	ColDeuda           = "Deuda"
	ColPagado          = "Pagado"
	ColVenc91          = "Venc_91"
	ColVenc6190        = "Venc_61_90"
	ColVenc3160        = "Venc_31_60"
	ColVenc030         = "Venc_0_30"
	ColPorVencer       = "Por_Venc"
	ColSaldo           = "Saldo"
	ColNota            = "Nota"
	ColDireccion       = "Direccion_Cliente"
	ColCupoCredito     = "CUPO_CREDITO"
)

// CellValue is a date cell that either decoded to a calendar day or kept the
// original spreadsheet value. Unparsed values are preserved, never dropped.
type CellValue struct {
	Date *time.Time
	Raw  string
}

// DateCell wraps a decoded UTC-midnight date.
func DateCell(t time.Time) CellValue {
	return CellValue{Date: &t}
}

// RawCell wraps an undecoded original value.
func RawCell(raw string) CellValue {
	return CellValue{Raw: raw}
}

// IsDate reports whether the cell decoded to a calendar day.
func (c CellValue) IsDate() bool {
	return c.Date != nil
}

// String renders the cell as dd-mm-yyyy for decoded dates, else the raw value.
func (c CellValue) String() string {
	if c.Date != nil {
		return c.Date.Format("02-01-2006")
	}
	return c.Raw
}

// MarshalJSON emits an ISO date for decoded values, matching what the
// dashboard frontend has always consumed, and the raw value otherwise.
func (c CellValue) MarshalJSON() ([]byte, error) {
	if c.Date != nil {
		return json.Marshal(c.Date.Format(time.RFC3339))
	}
	return json.Marshal(c.Raw)
}

// UnmarshalJSON accepts either an RFC3339 date or an arbitrary raw value.
func (c *CellValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		c.Date = &t
		c.Raw = ""
		return nil
	}
	c.Date = nil
	c.Raw = s
	return nil
}

// Record is one normalized row of the uploaded knowledge base.
type Record struct {
	Cliente         string    `json:"Cliente"`
	NombreCliente   string    `json:"Nombre_Cliente"`
	NombreVendedor  string    `json:"Nombre_Vendedor"`
	NombreZona      string    `json:"Nombre_Zona"`
	NombreCiudad    string    `json:"Nombre_Ciudad"`
	CentroCostos    string    `json:"Centro_Costos"`
	TipoDocumento   string    `json:"T_Dcto"`
	Documento       string    `json:"Documento"`
	FechaExpedicion CellValue `json:"F_Expedic"`
	FechaVencim     CellValue `json:"F_Vencim"`
	DiasVencidos    float64   `json:"DiasVc"`
	Deuda           float64   `json:"Deuda"`
	Pagado          float64   `json:"Pagado"`
	Saldo           float64   `json:"Saldo"`
	PorVencer       float64   `json:"Por_Venc"`
	Venc0a30        float64   `json:"Venc_0_30"`
	Venc31a60       float64   `json:"Venc_31_60"`
	Venc61a90       float64   `json:"Venc_61_90"`
	Venc91          float64   `json:"Venc_91"`
	CupoCredito     float64   `json:"CUPO_CREDITO"`

	// Derived search keys, always recomputed from Cliente.
	ClienteBusqueda string `json:"Cliente_Busqueda"`
	ClienteCore     string `json:"Cliente_Core"`

	// Headers outside the alias table pass through unchanged.
	Extra map[string]string `json:"-"`
}

// ClientRef is a distinct (tax id, display name) pair for client pickers.
type ClientRef struct {
	NIT    string `json:"nit"`
	Nombre string `json:"nombre"`
}

// CreditLimitRecord is one loosely-typed row of the credit-limit sheet.
// Original headers are preserved; only the client column is extracted for
// scope filtering.
type CreditLimitRecord struct {
	ClienteProveedor string            `json:"Mt_Cliente_Proveedor"`
	Fields           map[string]string `json:"-"`
}

// MarshalJSON flattens the preserved fields into the top-level object.
func (r CreditLimitRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.ClienteProveedor != "" {
		out["Mt_Cliente_Proveedor"] = r.ClienteProveedor
	}
	return json.Marshal(out)
}
