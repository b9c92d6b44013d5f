package ledger

import (
	"fmt"
	"strings"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

type scopeKind int

const (
	scopeAdmin scopeKind = iota
	scopeSeller
	scopeClient
)

// Scope is the tagged authorization variant a query runs under: Admin sees
// everything, Seller is restricted to case-insensitive matches on associated
// seller names, Client to exact membership in associated client tax ids.
type Scope struct {
	kind        scopeKind
	sellerNames []string
	clientIDs   []string
}

// AdminScope grants unrestricted access.
func AdminScope() Scope {
	return Scope{kind: scopeAdmin}
}

// SellerScope restricts to records whose seller name matches one of names.
func SellerScope(names []string) Scope {
	return Scope{kind: scopeSeller, sellerNames: names}
}

// ClientScope restricts to records whose client id is in ids.
func ClientScope(ids []string) Scope {
	trimmed := make([]string, 0, len(ids))
	for _, id := range ids {
		if t := strings.TrimSpace(id); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return Scope{kind: scopeClient, clientIDs: trimmed}
}

// ScopeFor maps an authenticated principal to its query scope.
func ScopeFor(p *shared.Principal) Scope {
	switch {
	case p == nil:
		return ClientScope(nil)
	case p.Role == shared.RoleAdmin:
		return AdminScope()
	case p.Role == shared.RoleVendedor:
		return SellerScope(p.SellerNames)
	default:
		return ClientScope(p.ClientIDs)
	}
}

// IsAdmin reports whether the scope is unrestricted.
func (s Scope) IsAdmin() bool {
	return s.kind == scopeAdmin
}

// IsEmpty reports whether the scope can never match any record.
func (s Scope) IsEmpty() bool {
	switch s.kind {
	case scopeSeller:
		return len(s.sellerNames) == 0
	case scopeClient:
		return len(s.clientIDs) == 0
	}
	return false
}

// SellerNames returns the associated seller names for seller scopes.
func (s Scope) SellerNames() []string {
	return s.sellerNames
}

// Predicate renders the scope as a SQL condition. Placeholders start at
// argPos; the returned args line up with them. Admin yields TRUE with no args.
func (s Scope) Predicate(argPos int) (string, []any) {
	switch s.kind {
	case scopeSeller:
		if len(s.sellerNames) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM unnest($%d::text[]) AS v(name) WHERE nombre_vendedor ILIKE '%%' || v.name || '%%')",
			argPos,
		), []any{s.sellerNames}
	case scopeClient:
		if len(s.clientIDs) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("cliente = ANY($%d::text[])", argPos), []any{s.clientIDs}
	default:
		return "TRUE", nil
	}
}

// Allows evaluates the scope against an in-memory record, mirroring
// Predicate for code paths that filter outside SQL.
func (s Scope) Allows(rec Record) bool {
	switch s.kind {
	case scopeSeller:
		seller := strings.ToLower(rec.NombreVendedor)
		for _, name := range s.sellerNames {
			if name != "" && strings.Contains(seller, strings.ToLower(name)) {
				return true
			}
		}
		return false
	case scopeClient:
		for _, id := range s.clientIDs {
			if rec.Cliente == id {
				return true
			}
		}
		return false
	default:
		return true
	}
}
