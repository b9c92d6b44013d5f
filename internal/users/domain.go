// Package users manages portal accounts: registration, credentials, roles
// and the seller/client associations that scope ledger visibility.
package users

import (
	"time"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// User is a portal account.
type User struct {
	ID           int64       `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"nombre"`
	PasswordHash string      `json:"-"`
	Role         shared.Role `json:"rol"`
	// SellerNames lists the ledger seller names a vendedor account may see.
	SellerNames []string `json:"vendedores_asociados,omitempty"`
	// ClientIDs lists the client NITs a cliente account may see.
	ClientIDs []string  `json:"clientes_asociados,omitempty"`
	CreatedAt time.Time `json:"creado_en"`
	UpdatedAt time.Time `json:"-"`
}

// Principal projects the account into the request-scoped identity.
func (u *User) Principal() *shared.Principal {
	return &shared.Principal{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		SellerNames: u.SellerNames,
		ClientIDs:   u.ClientIDs,
	}
}

// ValidRole reports whether the role is one the portal knows.
func ValidRole(role shared.Role) bool {
	switch role {
	case shared.RoleAdmin, shared.RoleVendedor, shared.RoleCliente:
		return true
	}
	return false
}
