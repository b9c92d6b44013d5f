package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartera-portal/cartera-portal/internal/platform/db"
	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// Filters narrows a scoped ledger query. All fields are optional.
type Filters struct {
	// Vendedores restricts to records whose seller name matches any entry
	// (case-insensitive substring). Ignored outside admin/seller flows.
	Vendedores []string
	// Busqueda matches against the client id, case-insensitive substring.
	Busqueda string
	// SoloNotasCredito keeps only credit notes (T_Dcto = NC).
	SoloNotasCredito bool
	// ColumnaNoCero keeps records where the named monetary column is nonzero.
	ColumnaNoCero string
	Limit         int
	Offset        int
}

// Repository defines persistence for the knowledge base and credit limits.
type Repository interface {
	DeleteAll(ctx context.Context) error
	InsertBatch(ctx context.Context, records []Record) error
	FindByDocumento(ctx context.Context, documento string) (*Record, error)
	Query(ctx context.Context, scope Scope, f Filters) ([]Record, error)
	CountScope(ctx context.Context, scope Scope) (int, error)
	DistinctClients(ctx context.Context, scope Scope, limit, offset int) ([]ClientRef, int, error)

	ReplaceCreditLimits(ctx context.Context, records []CreditLimitRecord) error
	CreditLimits(ctx context.Context, scope Scope, limit int) ([]CreditLimitRecord, error)
}

// numericColumns maps exposed filter names to SQL columns. Requests naming
// anything else are rejected rather than interpolated.
var numericColumns = map[string]string{
	ColDeuda:        "deuda",
	ColPagado:       "pagado",
	ColSaldo:        "saldo",
	ColPorVencer:    "por_venc",
	ColVenc030:      "venc_0_30",
	ColVenc3160:     "venc_31_60",
	ColVenc6190:     "venc_61_90",
	ColVenc91:       "venc_91",
	ColCupoCredito:  "cupo_credito",
	ColDiasVencidos: "dias_vc",
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const recordColumns = `cliente, nombre_cliente, nombre_vendedor, nombre_zona, nombre_ciudad,
	centro_costos, t_dcto, documento, f_expedic, f_expedic_raw, f_vencim, f_vencim_raw,
	dias_vc, deuda, pagado, saldo, por_venc, venc_0_30, venc_31_60, venc_61_90, venc_91,
	cupo_credito, cliente_busqueda, cliente_core, extra`

// DeleteAll removes every knowledge-base record ahead of a reload.
func (r *PGRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM ledger_records"); err != nil {
		return fmt.Errorf("ledger: delete all: %w", err)
	}
	return nil
}

// InsertBatch bulk-inserts one ingestion chunk.
func (r *PGRepository) InsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := fmt.Sprintf(`INSERT INTO ledger_records (%s) VALUES
		($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
		recordColumns)
	for _, rec := range records {
		extra, err := json.Marshal(rec.Extra)
		if err != nil {
			return fmt.Errorf("ledger: marshal extra fields: %w", err)
		}
		batch.Queue(query,
			rec.Cliente, rec.NombreCliente, rec.NombreVendedor, rec.NombreZona, rec.NombreCiudad,
			rec.CentroCostos, rec.TipoDocumento, rec.Documento,
			rec.FechaExpedicion.Date, rec.FechaExpedicion.Raw,
			rec.FechaVencim.Date, rec.FechaVencim.Raw,
			rec.DiasVencidos, rec.Deuda, rec.Pagado, rec.Saldo, rec.PorVencer,
			rec.Venc0a30, rec.Venc31a60, rec.Venc61a90, rec.Venc91,
			rec.CupoCredito, rec.ClienteBusqueda, rec.ClienteCore, extra,
		)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("ledger: insert batch: %w", err)
		}
	}
	return nil
}

// FindByDocumento returns the record matching an invoice document number.
func (r *PGRepository) FindByDocumento(ctx context.Context, documento string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM ledger_records WHERE documento = $1 LIMIT 1", recordColumns)
	rows, err := r.pool.Query(ctx, query, documento)
	if err != nil {
		return nil, fmt.Errorf("ledger: find by documento: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("ledger: find by documento: %w", err)
		}
		return nil, shared.ErrNotFound
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Query returns scoped, filtered records.
func (r *PGRepository) Query(ctx context.Context, scope Scope, f Filters) ([]Record, error) {
	if scope.IsEmpty() {
		return nil, nil
	}

	condition, args := scope.Predicate(1)
	conditions := []string{condition}
	argPos := len(args) + 1

	if len(f.Vendedores) > 0 {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM unnest($%d::text[]) AS v(name) WHERE nombre_vendedor ILIKE '%%' || v.name || '%%')",
			argPos,
		))
		args = append(args, f.Vendedores)
		argPos++
	}
	if f.Busqueda != "" {
		conditions = append(conditions, fmt.Sprintf("cliente ILIKE '%%' || $%d || '%%'", argPos))
		args = append(args, f.Busqueda)
		argPos++
	}
	if f.SoloNotasCredito {
		conditions = append(conditions, "t_dcto ILIKE 'NC'")
	}
	if f.ColumnaNoCero != "" {
		col, ok := numericColumns[f.ColumnaNoCero]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", shared.ErrValidation, f.ColumnaNoCero)
		}
		conditions = append(conditions, col+" <> 0")
	}

	query := fmt.Sprintf("SELECT %s FROM ledger_records WHERE %s ORDER BY cliente, documento",
		recordColumns, strings.Join(conditions, " AND "))
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountScope counts records visible to the scope.
func (r *PGRepository) CountScope(ctx context.Context, scope Scope) (int, error) {
	if scope.IsEmpty() {
		return 0, nil
	}
	condition, args := scope.Predicate(1)
	var total int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_records WHERE "+condition, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ledger: count scope: %w", err)
	}
	return total, nil
}

// DistinctClients returns distinct (nit, nombre) pairs visible to the scope,
// with the total distinct count for pagination. limit <= 0 disables paging.
func (r *PGRepository) DistinctClients(ctx context.Context, scope Scope, limit, offset int) ([]ClientRef, int, error) {
	if scope.IsEmpty() {
		return nil, 0, nil
	}
	condition, args := scope.Predicate(1)

	var total int
	countQuery := "SELECT COUNT(DISTINCT cliente) FROM ledger_records WHERE " + condition
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ledger: count distinct clients: %w", err)
	}

	query := `SELECT DISTINCT ON (cliente) cliente, COALESCE(NULLIF(nombre_cliente, ''), cliente)
		FROM ledger_records WHERE ` + condition + ` ORDER BY cliente`
	argPos := len(args) + 1
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: distinct clients: %w", err)
	}
	defer rows.Close()

	var out []ClientRef
	for rows.Next() {
		var ref ClientRef
		if err := rows.Scan(&ref.NIT, &ref.Nombre); err != nil {
			return nil, 0, fmt.Errorf("ledger: scan client ref: %w", err)
		}
		out = append(out, ref)
	}
	return out, total, rows.Err()
}

// ReplaceCreditLimits swaps the credit-limit dataset in one transaction; the
// set is small enough that readers never see a half-replaced state.
func (r *PGRepository) ReplaceCreditLimits(ctx context.Context, records []CreditLimitRecord) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM credit_limits"); err != nil {
			return fmt.Errorf("ledger: delete credit limits: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, rec := range records {
			fields, err := json.Marshal(rec.Fields)
			if err != nil {
				return fmt.Errorf("ledger: marshal credit limit fields: %w", err)
			}
			batch.Queue("INSERT INTO credit_limits (cliente_proveedor, fields) VALUES ($1, $2)",
				rec.ClienteProveedor, fields)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range records {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("ledger: insert credit limits: %w", err)
			}
		}
		return nil
	})
}

// CreditLimits returns credit-limit rows; client scopes filter on the
// Mt_Cliente_Proveedor column by substring match.
func (r *PGRepository) CreditLimits(ctx context.Context, scope Scope, limit int) ([]CreditLimitRecord, error) {
	query := "SELECT cliente_proveedor, fields FROM credit_limits"
	var args []any
	if !scope.IsAdmin() {
		if scope.IsEmpty() {
			return nil, nil
		}
		// Seller scopes see everything here, matching the original
		// behaviour of the cupo dataset.
		if len(scope.clientIDs) > 0 {
			query += ` WHERE EXISTS (SELECT 1 FROM unnest($1::text[]) AS v(nit)
				WHERE cliente_proveedor ILIKE '%' || v.nit || '%')`
			args = append(args, scope.clientIDs)
		}
	}
	query += " ORDER BY cliente_proveedor"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: credit limits: %w", err)
	}
	defer rows.Close()

	var out []CreditLimitRecord
	for rows.Next() {
		var rec CreditLimitRecord
		var fields []byte
		if err := rows.Scan(&rec.ClienteProveedor, &fields); err != nil {
			return nil, fmt.Errorf("ledger: scan credit limit: %w", err)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &rec.Fields); err != nil {
				return nil, fmt.Errorf("ledger: decode credit limit fields: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows pgx.Rows) (Record, error) {
	var rec Record
	var fExpedic, fVencim *time.Time
	var fExpedicRaw, fVencimRaw string
	var extra []byte
	err := rows.Scan(
		&rec.Cliente, &rec.NombreCliente, &rec.NombreVendedor, &rec.NombreZona, &rec.NombreCiudad,
		&rec.CentroCostos, &rec.TipoDocumento, &rec.Documento,
		&fExpedic, &fExpedicRaw, &fVencim, &fVencimRaw,
		&rec.DiasVencidos, &rec.Deuda, &rec.Pagado, &rec.Saldo, &rec.PorVencer,
		&rec.Venc0a30, &rec.Venc31a60, &rec.Venc61a90, &rec.Venc91,
		&rec.CupoCredito, &rec.ClienteBusqueda, &rec.ClienteCore, &extra,
	)
	if err != nil {
		return Record{}, fmt.Errorf("ledger: scan record: %w", err)
	}
	rec.FechaExpedicion = cellFromColumns(fExpedic, fExpedicRaw)
	rec.FechaVencim = cellFromColumns(fVencim, fVencimRaw)
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return Record{}, fmt.Errorf("ledger: decode extra fields: %w", err)
		}
	}
	return rec, nil
}

func cellFromColumns(date *time.Time, raw string) CellValue {
	if date != nil {
		d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		return DateCell(d)
	}
	return RawCell(raw)
}

var _ Repository = (*PGRepository)(nil)
