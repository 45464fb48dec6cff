package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VasantLong/cgms2025/internal/model"
)

// UserRepository handles operator account data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves a user by serial number.
func (r *UserRepository) GetByID(ctx context.Context, sn int) (*model.User, error) {
	u := &model.User{}
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT sn, username, password_hash, role, created_at FROM sys_user WHERE sn = $1`, sn,
	).Scan(&u.SN, &u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	u.Role = model.Role(role)
	return u, nil
}

// GetByUsername retrieves a user by login name.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT sn, username, password_hash, role, created_at FROM sys_user WHERE username = $1`, username,
	).Scan(&u.SN, &u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	u.Role = model.Role(role)
	return u, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sys_user (username, password_hash, role) VALUES ($1, $2, $3) RETURNING sn, created_at`,
		u.Username, u.PasswordHash, string(u.Role),
	).Scan(&u.SN, &u.CreatedAt)
	return mapError(err)
}
