package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

func TestScopeFor(t *testing.T) {
	assert.True(t, ScopeFor(&shared.Principal{Role: shared.RoleAdmin}).IsAdmin())
	assert.True(t, ScopeFor(nil).IsEmpty(), "no principal sees nothing")

	seller := ScopeFor(&shared.Principal{Role: shared.RoleVendedor, SellerNames: []string{"MARIA"}})
	assert.False(t, seller.IsAdmin())
	assert.False(t, seller.IsEmpty())

	bare := ScopeFor(&shared.Principal{Role: shared.RoleVendedor})
	assert.True(t, bare.IsEmpty(), "seller with no associations sees nothing")

	client := ScopeFor(&shared.Principal{Role: shared.RoleCliente, ClientIDs: []string{"800123456"}})
	assert.False(t, client.IsEmpty())
}

func TestScopePredicate(t *testing.T) {
	cond, args := AdminScope().Predicate(1)
	assert.Equal(t, "TRUE", cond)
	assert.Empty(t, args)

	cond, args = SellerScope([]string{"MARIA"}).Predicate(1)
	assert.Contains(t, cond, "nombre_vendedor ILIKE")
	assert.Contains(t, cond, "$1")
	require.Len(t, args, 1)
	assert.Equal(t, []string{"MARIA"}, args[0])

	cond, args = ClientScope([]string{"800123456", " 900555111 "}).Predicate(3)
	assert.Equal(t, "cliente = ANY($3::text[])", cond)
	require.Len(t, args, 1)
	assert.Equal(t, []string{"800123456", "900555111"}, args[0], "ids are trimmed")

	cond, args = SellerScope(nil).Predicate(1)
	assert.Equal(t, "FALSE", cond)
	assert.Empty(t, args)
}

func TestScopeAllows(t *testing.T) {
	rec := Record{Cliente: "800123456", NombreVendedor: "MARIA LOPEZ"}

	assert.True(t, AdminScope().Allows(rec))
	assert.True(t, SellerScope([]string{"maria"}).Allows(rec), "match is case-insensitive substring")
	assert.False(t, SellerScope([]string{"PEDRO"}).Allows(rec))
	assert.False(t, SellerScope([]string{""}).Allows(rec), "empty name never matches")
	assert.True(t, ClientScope([]string{"800123456"}).Allows(rec))
	assert.False(t, ClientScope([]string{"999"}).Allows(rec))
}
