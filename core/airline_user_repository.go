package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Airline account status values; only StatusEnabled accounts can log in or authenticate.
const (
	AirlineStatusEnabled  = 1
	AirlineStatusDisabled = 2
)

// AirlineUserRecord is an airline customer account row.
type AirlineUserRecord struct {
	ID           int64
	Email        string
	DisplayName  string
	CusID        string
	PasswordHash string
	TokenKey     string
	StatusID     int
	CreatedAt    time.Time
}

// AirlineUserRepository defines persistence operations for airline accounts.
type AirlineUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*AirlineUserRecord, error)
	Create(ctx context.Context, rec AirlineUserRecord) (int64, error)
	SetTokenKey(ctx context.Context, email, tokenKey string) error
}

type PgAirlineUserRepository struct {
	db *pgxpool.Pool
}

func NewPgAirlineUserRepository(db *pgxpool.Pool) *PgAirlineUserRepository {
	return &PgAirlineUserRepository{db: db}
}

func (r *PgAirlineUserRepository) FindByEmail(ctx context.Context, email string) (*AirlineUserRecord, error) {
	const q = `
SELECT id, user_email, display_name, cus_id, password_hash, COALESCE(token_key, ''), status_id, created_at
FROM airline_users
WHERE user_email=$1`
	var u AirlineUserRecord
	err := r.db.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.CusID, &u.PasswordHash, &u.TokenKey, &u.StatusID, &u.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &u, nil
}

func (r *PgAirlineUserRepository) Create(ctx context.Context, rec AirlineUserRecord) (int64, error) {
	if rec.StatusID == 0 {
		rec.StatusID = AirlineStatusEnabled
	}
	const q = `
INSERT INTO airline_users (user_email, display_name, cus_id, password_hash, token_key, status_id)
VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)
RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, rec.Email, rec.DisplayName, rec.CusID, rec.PasswordHash, rec.TokenKey, rec.StatusID).Scan(&id); err != nil {
		return 0, mapNoRows(err)
	}
	return id, nil
}

func (r *PgAirlineUserRepository) SetTokenKey(ctx context.Context, email, tokenKey string) error {
	tag, err := r.db.Exec(ctx, `UPDATE airline_users SET token_key=$1 WHERE user_email=$2`, tokenKey, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
