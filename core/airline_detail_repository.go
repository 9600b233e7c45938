package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AirlineDetail links an airline customer id to a group.
type AirlineDetail struct {
	ID         int64     `json:"aldid"`
	GroupID    int64     `json:"galid"`
	GroupCode  string    `json:"group_code"`
	GroupName  string    `json:"group_name"`
	CusID      string    `json:"cusid"`
	CreateBy   string    `json:"createby"`
	CreateDate time.Time `json:"createdate"`
}

// AirlineDetailFilter narrows AirlineDetailRepository.List.
type AirlineDetailFilter struct {
	Search string // customer id or group code
	Dates  DateRange
}

type AirlineDetailRepository interface {
	List(ctx context.Context, f AirlineDetailFilter, page, perPage int) ([]AirlineDetail, int, error)
	Get(ctx context.Context, id int64) (*AirlineDetail, error)
	Create(ctx context.Context, groupID int64, cusID, actor string) (*AirlineDetail, error)
	Update(ctx context.Context, id, groupID int64, cusID, actor string) (*AirlineDetail, error)
	Deactivate(ctx context.Context, id int64, actor string) error
}

type PgAirlineDetailRepository struct {
	db *pgxpool.Pool
}

func NewPgAirlineDetailRepository(db *pgxpool.Pool) *PgAirlineDetailRepository {
	return &PgAirlineDetailRepository{db: db}
}

const airlineDetailSelect = `
SELECT d.aldid, d.galid, g.code, g.groupname, d.cusid, d.createby, d.createdate
FROM airlinedetails d
JOIN groupairline g ON g.galid = d.galid`

const airlineDetailWhere = `
WHERE d.active='Y'
  AND ($1 = '' OR d.cusid ILIKE '%' || $1 || '%' OR g.code ILIKE '%' || $1 || '%')
  AND ($2::timestamptz IS NULL OR d.createdate >= $2)
  AND ($3::timestamptz IS NULL OR d.createdate < $3)`

func (r *PgAirlineDetailRepository) List(ctx context.Context, f AirlineDetailFilter, page, perPage int) ([]AirlineDetail, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	search := strings.TrimSpace(f.Search)
	var total int
	countQ := `SELECT COUNT(*) FROM airlinedetails d JOIN groupairline g ON g.galid = d.galid` + airlineDetailWhere
	if err := r.db.QueryRow(ctx, countQ, search, f.Dates.From, f.Dates.Until).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, airlineDetailSelect+airlineDetailWhere+`
ORDER BY d.createdate DESC, d.aldid DESC
LIMIT $4 OFFSET $5`, search, f.Dates.From, f.Dates.Until, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]AirlineDetail, 0, perPage)
	for rows.Next() {
		var d AirlineDetail
		if err := rows.Scan(&d.ID, &d.GroupID, &d.GroupCode, &d.GroupName, &d.CusID, &d.CreateBy, &d.CreateDate); err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *PgAirlineDetailRepository) Get(ctx context.Context, id int64) (*AirlineDetail, error) {
	var d AirlineDetail
	err := r.db.QueryRow(ctx, airlineDetailSelect+` WHERE d.aldid=$1 AND d.active='Y'`, id).
		Scan(&d.ID, &d.GroupID, &d.GroupCode, &d.GroupName, &d.CusID, &d.CreateBy, &d.CreateDate)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &d, nil
}

// Create returns ErrDuplicate if the customer is already an active member of the group.
func (r *PgAirlineDetailRepository) Create(ctx context.Context, groupID int64, cusID, actor string) (*AirlineDetail, error) {
	cusID = strings.TrimSpace(cusID)
	if err := r.checkDuplicate(ctx, groupID, cusID, 0); err != nil {
		return nil, err
	}
	var id int64
	const q = `INSERT INTO airlinedetails (galid, cusid, createby) VALUES ($1,$2,$3) RETURNING aldid`
	if err := r.db.QueryRow(ctx, q, groupID, cusID, actor).Scan(&id); err != nil {
		return nil, mapNoRows(err)
	}
	return r.Get(ctx, id)
}

func (r *PgAirlineDetailRepository) Update(ctx context.Context, id, groupID int64, cusID, actor string) (*AirlineDetail, error) {
	cusID = strings.TrimSpace(cusID)
	if err := r.checkDuplicate(ctx, groupID, cusID, id); err != nil {
		return nil, err
	}
	const q = `UPDATE airlinedetails SET galid=$1, cusid=$2, updateby=$3, updatedate=now() WHERE aldid=$4 AND active='Y'`
	tag, err := r.db.Exec(ctx, q, groupID, cusID, actor, id)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *PgAirlineDetailRepository) Deactivate(ctx context.Context, id int64, actor string) error {
	tag, err := r.db.Exec(ctx, `UPDATE airlinedetails SET active='N', updateby=$1, updatedate=now() WHERE aldid=$2 AND active='Y'`, actor, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgAirlineDetailRepository) checkDuplicate(ctx context.Context, groupID int64, cusID string, excludeID int64) error {
	const q = `SELECT EXISTS (SELECT 1 FROM airlinedetails WHERE active='Y' AND galid=$1 AND cusid=$2 AND aldid <> $3)`
	var dup bool
	if err := r.db.QueryRow(ctx, q, groupID, cusID, excludeID).Scan(&dup); err != nil {
		return err
	}
	if dup {
		return ErrDuplicate
	}
	return nil
}
