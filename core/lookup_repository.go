package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LookupTable describes one code/name reference table. All identifiers are fixed here;
// nothing from a request is ever interpolated into the SQL built from it.
type LookupTable struct {
	Kind    string // route segment
	Table   string
	IDCol   string
	NameCol string
	Label   string
}

var (
	TicketCategories     = LookupTable{Kind: "ticket-categories", Table: "ticketcategory", IDCol: "tcid", NameCol: "categoryname", Label: "ticket category"}
	Priorities           = LookupTable{Kind: "priorities", Table: "priority", IDCol: "ptid", NameCol: "priority", Label: "priority"}
	GroupAirlines        = LookupTable{Kind: "group-airlines", Table: "groupairline", IDCol: "galid", NameCol: "groupname", Label: "group airline"}
	AnnouncementStatuses = LookupTable{Kind: "announcement-statuses", Table: "announcementstatus", IDCol: "astid", NameCol: "statusname", Label: "announcement status"}
	TargetAudiences      = LookupTable{Kind: "target-audiences", Table: "targetaudience", IDCol: "tgadid", NameCol: "audience", Label: "target audience"}
)

// LookupTables lists every reference table exposed over HTTP.
var LookupTables = []LookupTable{TicketCategories, Priorities, GroupAirlines, AnnouncementStatuses, TargetAudiences}

func (t LookupTable) columns() string {
	return fmt.Sprintf("%s, code, %s, createby, createdate", t.IDCol, t.NameCol)
}

func (t LookupTable) countQuery() string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE active='Y' AND ($1 = '' OR code ILIKE '%%' || $1 || '%%' OR %s ILIKE '%%' || $1 || '%%')`,
		t.Table, t.NameCol)
}

func (t LookupTable) listQuery() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE active='Y' AND ($1 = '' OR code ILIKE '%%' || $1 || '%%' OR %s ILIKE '%%' || $1 || '%%') ORDER BY code LIMIT $2 OFFSET $3`,
		t.columns(), t.Table, t.NameCol)
}

func (t LookupTable) getQuery() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s=$1 AND active='Y'`, t.columns(), t.Table, t.IDCol)
}

func (t LookupTable) byCodeQuery() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE lower(code)=lower($1) AND active='Y' ORDER BY %s LIMIT 1`, t.columns(), t.Table, t.IDCol)
}

// duplicateQuery matches active rows sharing the code or the name, excluding row $3.
func (t LookupTable) duplicateQuery() string {
	return fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE active='Y' AND %s <> $3 AND (lower(code)=lower($1) OR lower(%s)=lower($2)))`,
		t.Table, t.IDCol, t.NameCol)
}

func (t LookupTable) insertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (code, %s, createby) VALUES ($1,$2,$3) RETURNING %s`, t.Table, t.NameCol, t.columns())
}

func (t LookupTable) updateQuery() string {
	return fmt.Sprintf(`UPDATE %s SET code=$1, %s=$2, updateby=$3, updatedate=now() WHERE %s=$4 AND active='Y' RETURNING %s`,
		t.Table, t.NameCol, t.IDCol, t.columns())
}

func (t LookupTable) deactivateQuery() string {
	return fmt.Sprintf(`UPDATE %s SET active='N', updateby=$1, updatedate=now() WHERE %s=$2 AND active='Y'`, t.Table, t.IDCol)
}

// LookupItem is one reference-table row.
type LookupItem struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	CreateBy   string    `json:"createby"`
	CreateDate time.Time `json:"createdate"`
}

// LookupRepository persists any LookupTable.
type LookupRepository interface {
	List(ctx context.Context, t LookupTable, search string, page, perPage int) ([]LookupItem, int, error)
	Get(ctx context.Context, t LookupTable, id int64) (*LookupItem, error)
	FindByCode(ctx context.Context, t LookupTable, code string) (*LookupItem, error)
	Create(ctx context.Context, t LookupTable, code, name, actor string) (*LookupItem, error)
	Update(ctx context.Context, t LookupTable, id int64, code, name, actor string) (*LookupItem, error)
	Deactivate(ctx context.Context, t LookupTable, id int64, actor string) error
}

type PgLookupRepository struct {
	db *pgxpool.Pool
}

func NewPgLookupRepository(db *pgxpool.Pool) *PgLookupRepository {
	return &PgLookupRepository{db: db}
}

func (r *PgLookupRepository) List(ctx context.Context, t LookupTable, search string, page, perPage int) ([]LookupItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	search = strings.TrimSpace(search)
	var total int
	if err := r.db.QueryRow(ctx, t.countQuery(), search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, t.listQuery(), search, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]LookupItem, 0, perPage)
	for rows.Next() {
		var it LookupItem
		if err := rows.Scan(&it.ID, &it.Code, &it.Name, &it.CreateBy, &it.CreateDate); err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *PgLookupRepository) Get(ctx context.Context, t LookupTable, id int64) (*LookupItem, error) {
	var it LookupItem
	if err := r.db.QueryRow(ctx, t.getQuery(), id).Scan(&it.ID, &it.Code, &it.Name, &it.CreateBy, &it.CreateDate); err != nil {
		return nil, mapNoRows(err)
	}
	return &it, nil
}

func (r *PgLookupRepository) FindByCode(ctx context.Context, t LookupTable, code string) (*LookupItem, error) {
	var it LookupItem
	if err := r.db.QueryRow(ctx, t.byCodeQuery(), strings.TrimSpace(code)).Scan(&it.ID, &it.Code, &it.Name, &it.CreateBy, &it.CreateDate); err != nil {
		return nil, mapNoRows(err)
	}
	return &it, nil
}

// Create returns ErrDuplicate when an active row already uses the code or the name.
func (r *PgLookupRepository) Create(ctx context.Context, t LookupTable, code, name, actor string) (*LookupItem, error) {
	code, name = strings.TrimSpace(code), strings.TrimSpace(name)
	if err := r.checkDuplicate(ctx, t, code, name, 0); err != nil {
		return nil, err
	}
	var it LookupItem
	if err := r.db.QueryRow(ctx, t.insertQuery(), code, name, actor).Scan(&it.ID, &it.Code, &it.Name, &it.CreateBy, &it.CreateDate); err != nil {
		return nil, mapNoRows(err)
	}
	return &it, nil
}

func (r *PgLookupRepository) Update(ctx context.Context, t LookupTable, id int64, code, name, actor string) (*LookupItem, error) {
	code, name = strings.TrimSpace(code), strings.TrimSpace(name)
	if err := r.checkDuplicate(ctx, t, code, name, id); err != nil {
		return nil, err
	}
	var it LookupItem
	if err := r.db.QueryRow(ctx, t.updateQuery(), code, name, actor, id).Scan(&it.ID, &it.Code, &it.Name, &it.CreateBy, &it.CreateDate); err != nil {
		return nil, mapNoRows(err)
	}
	return &it, nil
}

func (r *PgLookupRepository) Deactivate(ctx context.Context, t LookupTable, id int64, actor string) error {
	tag, err := r.db.Exec(ctx, t.deactivateQuery(), actor, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgLookupRepository) checkDuplicate(ctx context.Context, t LookupTable, code, name string, excludeID int64) error {
	var dup bool
	if err := r.db.QueryRow(ctx, t.duplicateQuery(), code, name, excludeID).Scan(&dup); err != nil {
		return err
	}
	if dup {
		return ErrDuplicate
	}
	return nil
}

// lookupTableByKind resolves a route segment to its table.
func lookupTableByKind(kind string) (LookupTable, bool) {
	for _, t := range LookupTables {
		if t.Kind == kind {
			return t, true
		}
	}
	return LookupTable{}, false
}
