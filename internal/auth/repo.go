package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forecourt-io/forecourt/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	RecordLogin(ctx context.Context, userID int64, at time.Time, ip, ua string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email together with their station scope.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	var role string
	err := r.pool.QueryRow(ctx, `SELECT id, email, full_name, password_hash, role, is_active, created_at, updated_at
FROM users WHERE email = $1`, email).Scan(
		&user.ID, &user.Email, &user.FullName, &user.PasswordHash, &role,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	user.Role = shared.Role(role)

	rows, err := r.pool.Query(ctx, `SELECT station_id FROM user_stations WHERE user_id = $1 ORDER BY station_id`, user.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var stationID int64
		if err := rows.Scan(&stationID); err != nil {
			return nil, err
		}
		user.Stations = append(user.Stations, stationID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &user, nil
}

// RecordLogin keeps a login trail alongside the Redis session.
func (r *PGRepository) RecordLogin(ctx context.Context, userID int64, at time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO login_events (user_id, logged_in_at, ip, ua) VALUES ($1, $2, $3, $4)`,
		userID, at.UTC(), ip, ua)
	return err
}

var _ Repository = (*PGRepository)(nil)
