package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StaffUserRecord is a staff account row.
type StaffUserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	TokenKey     string
	Active       bool
	CreatedAt    time.Time
}

// StaffUserListItem is the listing projection (no secrets).
type StaffUserListItem struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// StaffUserRepository defines persistence operations for staff accounts.
type StaffUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*StaffUserRecord, error)
	Create(ctx context.Context, username, passwordHash, role, tokenKey string) (int64, error)
	HasAdmin(ctx context.Context) (bool, error)
	IsActive(ctx context.Context, username string) (bool, error)
	List(ctx context.Context, page, perPage int) ([]StaffUserListItem, int, error)
	SetTokenKey(ctx context.Context, username, tokenKey string) error
}

type PgStaffUserRepository struct {
	db *pgxpool.Pool
}

func NewPgStaffUserRepository(db *pgxpool.Pool) *PgStaffUserRepository {
	return &PgStaffUserRepository{db: db}
}

func (r *PgStaffUserRepository) FindByUsername(ctx context.Context, username string) (*StaffUserRecord, error) {
	const q = `SELECT id, username, password_hash, role, COALESCE(token_key, ''), active, created_at FROM staff_users WHERE username=$1`
	var u StaffUserRecord
	if err := r.db.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.TokenKey, &u.Active, &u.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &u, nil
}

func (r *PgStaffUserRepository) Create(ctx context.Context, username, passwordHash, role, tokenKey string) (int64, error) {
	const q = `INSERT INTO staff_users (username, password_hash, role, token_key) VALUES ($1,$2,$3,NULLIF($4,'')) RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, username, passwordHash, role, tokenKey).Scan(&id); err != nil {
		return 0, mapNoRows(err)
	}
	return id, nil
}

func (r *PgStaffUserRepository) HasAdmin(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM staff_users WHERE role='admin' LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsActive reports whether username is listed in the active-user view.
func (r *PgStaffUserRepository) IsActive(ctx context.Context, username string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM vm_useractive WHERE username=$1)`
	var ok bool
	if err := r.db.QueryRow(ctx, q, username).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// List returns paginated staff users without password hash or token.
func (r *PgStaffUserRepository) List(ctx context.Context, page, perPage int) ([]StaffUserListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM staff_users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, username, role, active, created_at FROM staff_users ORDER BY username LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]StaffUserListItem, 0, perPage)
	for rows.Next() {
		var u StaffUserListItem
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

func (r *PgStaffUserRepository) SetTokenKey(ctx context.Context, username, tokenKey string) error {
	tag, err := r.db.Exec(ctx, `UPDATE staff_users SET token_key=$1 WHERE username=$2`, tokenKey, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
