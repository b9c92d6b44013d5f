package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// Repository defines persistence for portal accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]User, error)
	UpdateAssociations(ctx context.Context, id int64, role shared.Role, sellerNames, clientIDs []string) error
	Delete(ctx context.Context, id int64) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL user repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, name, password_hash, role, seller_names, client_ids, created_at, updated_at`

// Create inserts a new account. ErrDuplicate when the email is taken.
func (r *PGRepository) Create(ctx context.Context, u *User) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role, seller_names, client_ids)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		u.Email, u.Name, u.PasswordHash, string(u.Role), u.SellerNames, u.ClientIDs,
	)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: email already registered", shared.ErrDuplicate)
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

// FindByEmail returns the account for an email, ErrNotFound otherwise.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM users WHERE lower(email) = lower($1)", userColumns),
		email,
	)
	return scanUser(row)
}

// FindByID returns the account for an id, ErrNotFound otherwise.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns),
		id,
	)
	return scanUser(row)
}

// List returns every account ordered by creation.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM users ORDER BY created_at", userColumns),
	)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateAssociations replaces the role and scoping lists of an account.
func (r *PGRepository) UpdateAssociations(ctx context.Context, id int64, role shared.Role, sellerNames, clientIDs []string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET role = $2, seller_names = $3, client_ids = $4, updated_at = now()
		WHERE id = $1`,
		id, string(role), sellerNames, clientIDs,
	)
	if err != nil {
		return fmt.Errorf("users: update associations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an account.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role,
		&u.SellerNames, &u.ClientIDs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	u.Role = shared.Role(role)
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
