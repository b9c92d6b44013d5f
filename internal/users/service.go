package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// Service handles account business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// NewAccount carries the fields needed to create an account.
type NewAccount struct {
	Email       string
	Name        string
	Password    string
	Role        shared.Role
	SellerNames []string
	ClientIDs   []string
}

// Register creates a self-service account. Self-registered accounts are
// always clientes with no scope; association grants come from admins.
func (s *Service) Register(ctx context.Context, acct NewAccount) (*User, error) {
	acct.Role = shared.RoleCliente
	acct.SellerNames = nil
	acct.ClientIDs = nil
	return s.create(ctx, acct)
}

// Create creates an account with any role. Admin only, enforced at the route.
func (s *Service) Create(ctx context.Context, acct NewAccount) (*User, error) {
	if acct.Role == "" {
		acct.Role = shared.RoleCliente
	}
	return s.create(ctx, acct)
}

func (s *Service) create(ctx context.Context, acct NewAccount) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(acct.Email))
	if email == "" || strings.TrimSpace(acct.Name) == "" {
		return nil, fmt.Errorf("%w: email y nombre son requeridos", shared.ErrValidation)
	}
	if len(acct.Password) < 8 {
		return nil, fmt.Errorf("%w: la contraseña requiere al menos 8 caracteres", shared.ErrValidation)
	}
	if !ValidRole(acct.Role) {
		return nil, fmt.Errorf("%w: rol desconocido %q", shared.ErrValidation, acct.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(acct.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	u := &User{
		Email:        email,
		Name:         strings.TrimSpace(acct.Name),
		PasswordHash: string(hash),
		Role:         acct.Role,
		SellerNames:  trimAll(acct.SellerNames),
		ClientIDs:    trimAll(acct.ClientIDs),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user created",
		slog.Int64("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, nil
}

// Authenticate validates email/password credentials. Failures never reveal
// whether the account exists.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// UpdatePermissions replaces an account's role and scoping lists.
func (s *Service) UpdatePermissions(ctx context.Context, id int64, role shared.Role, sellerNames, clientIDs []string) (*User, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: rol desconocido %q", shared.ErrValidation, role)
	}
	if err := s.repo.UpdateAssociations(ctx, id, role, trimAll(sellerNames), trimAll(clientIDs)); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// Delete removes an account. An admin cannot delete itself.
func (s *Service) Delete(ctx context.Context, callerID, id int64) error {
	if callerID == id {
		return fmt.Errorf("%w: no puede eliminar su propia cuenta", shared.ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
