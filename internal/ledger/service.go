package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cartera-portal/cartera-portal/internal/observability"
	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// ingestBatchSize bounds memory during bulk reloads.
const ingestBatchSize = 1000

// Service orchestrates ingestion and scoped reads over the knowledge base.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService builds a Service instance.
func NewService(repo Repository, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, logger: logger, metrics: metrics}
}

func validateExtension(filename string) error {
	if strings.ToLower(filepath.Ext(filename)) != ".xlsx" {
		return fmt.Errorf("%w: unsupported file extension %q, expected .xlsx", shared.ErrValidation, filepath.Ext(filename))
	}
	return nil
}

// IngestLedger replaces the whole knowledge base with the uploaded sheet.
// The reload is delete-all then batched inserts; a reader overlapping the
// reload may observe a partially-replaced collection. Rows without a client
// or document identity are skipped.
func (s *Service) IngestLedger(ctx context.Context, upload io.Reader, filename string) (int, error) {
	if err := validateExtension(filename); err != nil {
		return 0, err
	}
	rawRows, err := ParseSheet(upload, 0)
	if err != nil {
		return 0, err
	}

	if err := s.repo.DeleteAll(ctx); err != nil {
		return 0, err
	}

	total := 0
	batch := make([]Record, 0, ingestBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.InsertBatch(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	skipped := 0
	for _, raw := range rawRows {
		if !hasIdentity(raw) {
			skipped++
			continue
		}
		batch = append(batch, Normalize(raw))
		if len(batch) >= ingestBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	s.metrics.CountIngestedRows(total)
	s.logger.Info("ledger reloaded",
		slog.Int("rows", total),
		slog.Int("skipped", skipped),
	)
	return total, nil
}

// IngestCreditLimits replaces the credit-limit dataset. The sheet's header
// sits after a four-row banner; headers are preserved as uploaded.
func (s *Service) IngestCreditLimits(ctx context.Context, upload io.Reader, filename string) (int, error) {
	if err := validateExtension(filename); err != nil {
		return 0, err
	}
	rawRows, err := ParseSheet(upload, 4)
	if err != nil {
		return 0, err
	}

	records := make([]CreditLimitRecord, 0, len(rawRows))
	for _, raw := range rawRows {
		rec := CreditLimitRecord{Fields: make(map[string]string, len(raw))}
		for key, val := range raw {
			str := strings.TrimSpace(stringValue(val))
			rec.Fields[key] = str
			if foldHeader(key) == "mtclienteproveedor" {
				rec.ClienteProveedor = str
			}
		}
		records = append(records, rec)
	}

	if err := s.repo.ReplaceCreditLimits(ctx, records); err != nil {
		return 0, err
	}
	s.logger.Info("credit limits reloaded", slog.Int("rows", len(records)))
	return len(records), nil
}

// Dashboard returns every record visible to the caller.
func (s *Service) Dashboard(ctx context.Context, p *shared.Principal) ([]Record, error) {
	return s.repo.Query(ctx, ScopeFor(p), Filters{})
}

// UniqueClients returns the distinct clients visible to the caller.
func (s *Service) UniqueClients(ctx context.Context, p *shared.Principal) ([]ClientRef, error) {
	refs, _, err := s.repo.DistinctClients(ctx, ScopeFor(p), 0, 0)
	return refs, err
}

// PaginatedClients returns one page of distinct clients plus pagination
// metadata.
func (s *Service) PaginatedClients(ctx context.Context, p *shared.Principal, page, limit int) ([]ClientRef, shared.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	refs, total, err := s.repo.DistinctClients(ctx, ScopeFor(p), limit, (page-1)*limit)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return refs, shared.NewPagination(page, limit, total), nil
}

// CreditLimits returns the credit-limit dataset visible to the caller,
// capped at 1000 rows.
func (s *Service) CreditLimits(ctx context.Context, p *shared.Principal) ([]CreditLimitRecord, error) {
	return s.repo.CreditLimits(ctx, ScopeFor(p), 1000)
}

// FindByDocumento looks up a single invoice by document number.
func (s *Service) FindByDocumento(ctx context.Context, documento string) (*Record, error) {
	return s.repo.FindByDocumento(ctx, documento)
}
