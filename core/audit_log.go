package core

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one row of system_logs.
type AuditEntry struct {
	ID         int64     `json:"slid"`
	Actor      string    `json:"actor"`
	Realm      Realm     `json:"realm"`
	Action     string    `json:"action"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreateDate time.Time `json:"createdate"`
}

// AuditLog records who changed what. Record never fails the caller's request.
type AuditLog interface {
	Record(ctx context.Context, e AuditEntry)
	List(ctx context.Context, page, perPage int) ([]AuditEntry, int, error)
}

type PgAuditLog struct {
	db *pgxpool.Pool
}

func NewPgAuditLog(db *pgxpool.Pool) *PgAuditLog {
	return &PgAuditLog{db: db}
}

func (l *PgAuditLog) Record(ctx context.Context, e AuditEntry) {
	const q = `INSERT INTO system_logs (actor, realm, action, entity, entity_id, detail) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := l.db.Exec(ctx, q, e.Actor, string(e.Realm), e.Action, e.Entity, e.EntityID, e.Detail); err != nil {
		log.Printf("audit: failed to record %s %s/%s by %s: %v", e.Action, e.Entity, e.EntityID, e.Actor, err)
	}
}

func (l *PgAuditLog) List(ctx context.Context, page, perPage int) ([]AuditEntry, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	var total int
	if err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM system_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := l.db.Query(ctx, `
SELECT slid, actor, realm, action, entity, entity_id, detail, createdate
FROM system_logs
ORDER BY createdate DESC, slid DESC
LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]AuditEntry, 0, perPage)
	for rows.Next() {
		var e AuditEntry
		var realm string
		if err := rows.Scan(&e.ID, &e.Actor, &realm, &e.Action, &e.Entity, &e.EntityID, &e.Detail, &e.CreateDate); err != nil {
			return nil, 0, err
		}
		e.Realm = Realm(realm)
		items = append(items, e)
	}
	return items, total, rows.Err()
}
