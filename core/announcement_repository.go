package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Target audience ids, fixed by the initial migration.
const (
	AudienceAll      = 1
	AudienceCustomer = 2
	AudienceGroup    = 3
)

// Read receipt states.
const (
	ReceiptNotRead = "Not Read"
	ReceiptRead    = "Read"
)

type Announcement struct {
	ID           int64      `json:"aicmid"`
	Title        string     `json:"titleName"`
	Reason       string     `json:"reasonText"`
	StatusID     int64      `json:"astid"`
	StatusName   string     `json:"statusname"`
	AudienceID   int64      `json:"tgadid"`
	AudienceName string     `json:"audience"`
	CusID        *string    `json:"cus_id,omitempty"`
	GroupID      *int64     `json:"group_id,omitempty"`
	StartDate    *time.Time `json:"startdate,omitempty"`
	EndDate      *time.Time `json:"enddate,omitempty"`
	ScheduleDate *time.Time `json:"scheduledate,omitempty"`
	ScheduleHour *string    `json:"schedulehour,omitempty"`
	AttachFile   *string    `json:"attachfile,omitempty"`
	Active       bool       `json:"active"`
	CreateBy     string     `json:"createby"`
	CreateDate   time.Time  `json:"createdate"`
}

type AnnouncementInput struct {
	Title        string
	Reason       string
	StatusID     int64
	AudienceID   int64
	CusID        string
	GroupID      int64
	StartDate    *time.Time
	EndDate      *time.Time
	ScheduleDate *time.Time
	ScheduleHour string
	AttachFile   string
}

// Validate checks the audience-specific fields.
func (in AnnouncementInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.New("titleName is required")
	}
	if in.StatusID <= 0 {
		return errors.New("astid is required")
	}
	switch in.AudienceID {
	case AudienceAll:
	case AudienceCustomer:
		if strings.TrimSpace(in.CusID) == "" {
			return errors.New("cus_id is required for a customer announcement")
		}
	case AudienceGroup:
		if in.GroupID <= 0 {
			return errors.New("group_id is required for a group announcement")
		}
	default:
		return errors.New("tgadid must be 1 (all), 2 (customer) or 3 (group)")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return errors.New("enddate is before startdate")
	}
	return nil
}

type AnnouncementFilter struct {
	Search   string
	StatusID int64
	Dates    DateRange
}

// AnnouncementReceipt is an announcement as seen by one airline user.
type AnnouncementReceipt struct {
	Announcement
	ReadStatus string     `json:"readstatus"`
	ReadDate   *time.Time `json:"readdate,omitempty"`
}

// AudienceMember is one recipient of an announcement.
type AudienceMember struct {
	Email      string     `json:"user_email"`
	ReadStatus string     `json:"readstatus"`
	ReadDate   *time.Time `json:"readdate,omitempty"`
}

type AnnouncementRepository interface {
	Create(ctx context.Context, in AnnouncementInput, actor string) (*Announcement, error)
	List(ctx context.Context, f AnnouncementFilter, page, perPage int) ([]Announcement, int, error)
	Get(ctx context.Context, id int64) (*Announcement, error)
	Update(ctx context.Context, id int64, in AnnouncementInput, actor string) (*Announcement, error)
	SetStatus(ctx context.Context, id, statusID int64, active bool, actor string) (*Announcement, error)
	Deactivate(ctx context.Context, id int64, actor string) error
	Audience(ctx context.Context, id int64) ([]AudienceMember, error)
	// FanOut creates missing "Not Read" receipts for every current recipient and returns how many were added.
	FanOut(ctx context.Context, id int64) (int64, error)
	ListForUser(ctx context.Context, email string, unreadOnly bool, page, perPage int) ([]AnnouncementReceipt, int, error)
	GetForUser(ctx context.Context, id int64, email string) (*AnnouncementReceipt, error)
	MarkRead(ctx context.Context, id int64, email string) error
	AttachmentVisibleTo(ctx context.Context, key, email string) (bool, error)
}

type PgAnnouncementRepository struct {
	db *pgxpool.Pool
}

func NewPgAnnouncementRepository(db *pgxpool.Pool) *PgAnnouncementRepository {
	return &PgAnnouncementRepository{db: db}
}

const announcementColumns = `
a.aicmid, a.titlename, a.reasontext, a.astid, s.statusname, a.tgadid, ta.audience,
a.cus_id, a.group_id, a.startdate, a.enddate, a.scheduledate, a.schedulehour, a.attachfile,
a.active = 'Y', a.createby, a.createdate`

const announcementFrom = `
FROM announcementdetails a
JOIN announcementstatus s ON s.astid = a.astid
JOIN targetaudience ta ON ta.tgadid = a.tgadid`

func announcementDest(a *Announcement) []any {
	return []any{&a.ID, &a.Title, &a.Reason, &a.StatusID, &a.StatusName, &a.AudienceID, &a.AudienceName,
		&a.CusID, &a.GroupID, &a.StartDate, &a.EndDate, &a.ScheduleDate, &a.ScheduleHour, &a.AttachFile,
		&a.Active, &a.CreateBy, &a.CreateDate}
}

func (r *PgAnnouncementRepository) Create(ctx context.Context, in AnnouncementInput, actor string) (*Announcement, error) {
	const q = `
INSERT INTO announcementdetails
    (titlename, reasontext, astid, tgadid, cus_id, group_id, startdate, enddate, scheduledate, schedulehour, attachfile, createby)
VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,0),$7,$8,$9,NULLIF($10,''),NULLIF($11,''),$12)
RETURNING aicmid`
	in = in.normalized()
	var id int64
	err := r.db.QueryRow(ctx, q, in.Title, in.Reason, in.StatusID, in.AudienceID, in.CusID, in.GroupID,
		in.StartDate, in.EndDate, in.ScheduleDate, in.ScheduleHour, in.AttachFile, actor).Scan(&id)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return r.Get(ctx, id)
}

// normalized trims text and drops the target fields that do not apply to the audience.
func (in AnnouncementInput) normalized() AnnouncementInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Reason = strings.TrimSpace(in.Reason)
	in.CusID = strings.TrimSpace(in.CusID)
	in.ScheduleHour = strings.TrimSpace(in.ScheduleHour)
	switch in.AudienceID {
	case AudienceAll:
		in.CusID, in.GroupID = "", 0
	case AudienceCustomer:
		in.GroupID = 0
	case AudienceGroup:
		in.CusID = ""
	}
	return in
}

func (r *PgAnnouncementRepository) List(ctx context.Context, f AnnouncementFilter, page, perPage int) ([]Announcement, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const where = `
WHERE a.active = 'Y'
  AND ($1 = '' OR a.titlename ILIKE '%' || $1 || '%' OR a.reasontext ILIKE '%' || $1 || '%')
  AND ($2::bigint = 0 OR a.astid = $2)
  AND ($3::timestamptz IS NULL OR a.createdate >= $3)
  AND ($4::timestamptz IS NULL OR a.createdate < $4)`
	args := []any{strings.TrimSpace(f.Search), f.StatusID, f.Dates.From, f.Dates.Until}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM announcementdetails a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+announcementColumns+announcementFrom+where+`
ORDER BY a.createdate DESC, a.aicmid DESC
LIMIT $5 OFFSET $6`, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Announcement, 0, perPage)
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(announcementDest(&a)...); err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *PgAnnouncementRepository) Get(ctx context.Context, id int64) (*Announcement, error) {
	var a Announcement
	if err := r.db.QueryRow(ctx, `SELECT `+announcementColumns+announcementFrom+` WHERE a.aicmid=$1`, id).Scan(announcementDest(&a)...); err != nil {
		return nil, mapNoRows(err)
	}
	return &a, nil
}

func (r *PgAnnouncementRepository) Update(ctx context.Context, id int64, in AnnouncementInput, actor string) (*Announcement, error) {
	const q = `
UPDATE announcementdetails
SET titlename=$1, reasontext=$2, astid=$3, tgadid=$4, cus_id=NULLIF($5,''), group_id=NULLIF($6,0),
    startdate=$7, enddate=$8, scheduledate=$9, schedulehour=NULLIF($10,''),
    attachfile=COALESCE(NULLIF($11,''), attachfile), updateby=$12, updatedate=now()
WHERE aicmid=$13 AND active='Y'`
	in = in.normalized()
	tag, err := r.db.Exec(ctx, q, in.Title, in.Reason, in.StatusID, in.AudienceID, in.CusID, in.GroupID,
		in.StartDate, in.EndDate, in.ScheduleDate, in.ScheduleHour, in.AttachFile, actor, id)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *PgAnnouncementRepository) SetStatus(ctx context.Context, id, statusID int64, active bool, actor string) (*Announcement, error) {
	flag := "Y"
	if !active {
		flag = "N"
	}
	const q = `UPDATE announcementdetails SET astid=$1, active=$2, updateby=$3, updatedate=now() WHERE aicmid=$4`
	tag, err := r.db.Exec(ctx, q, statusID, flag, actor, id)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *PgAnnouncementRepository) Deactivate(ctx context.Context, id int64, actor string) error {
	tag, err := r.db.Exec(ctx, `UPDATE announcementdetails SET active='N', updateby=$1, updatedate=now() WHERE aicmid=$2 AND active='Y'`, actor, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgAnnouncementRepository) Audience(ctx context.Context, id int64) ([]AudienceMember, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
SELECT user_email, readstatus, readdate
FROM announcementsread
WHERE aicmid=$1
ORDER BY user_email`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []AudienceMember{}
	for rows.Next() {
		var m AudienceMember
		if err := rows.Scan(&m.Email, &m.ReadStatus, &m.ReadDate); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *PgAnnouncementRepository) FanOut(ctx context.Context, id int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		audience int64
		cusID    *string
		groupID  *int64
		active   bool
	)
	err = tx.QueryRow(ctx, `SELECT tgadid, cus_id, group_id, active='Y' FROM announcementdetails WHERE aicmid=$1`, id).
		Scan(&audience, &cusID, &groupID, &active)
	if err != nil {
		return 0, mapNoRows(err)
	}
	if !active {
		return 0, nil
	}

	var tag pgconn.CommandTag
	switch audience {
	case AudienceAll:
		tag, err = tx.Exec(ctx, `
INSERT INTO announcementsread (aicmid, user_email)
SELECT $1, user_email FROM airline_users WHERE status_id = 1
ON CONFLICT (aicmid, user_email) DO NOTHING`, id)
	case AudienceCustomer:
		tag, err = tx.Exec(ctx, `
INSERT INTO announcementsread (aicmid, user_email)
SELECT $1, user_email FROM airline_users WHERE status_id = 1 AND cus_id = $2
ON CONFLICT (aicmid, user_email) DO NOTHING`, id, cusID)
	case AudienceGroup:
		tag, err = tx.Exec(ctx, `
INSERT INTO announcementsread (aicmid, user_email)
SELECT $1, u.user_email
FROM airline_users u
JOIN airlinedetails d ON d.cusid = u.cus_id AND d.active = 'Y'
WHERE u.status_id = 1 AND d.galid = $2
ON CONFLICT (aicmid, user_email) DO NOTHING`, id, groupID)
	default:
		return 0, errors.New("announcement has an unknown target audience")
	}
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const receiptColumns = announcementColumns + `, r.readstatus, r.readdate`

const receiptFrom = announcementFrom + `
JOIN announcementsread r ON r.aicmid = a.aicmid`

func receiptDest(rc *AnnouncementReceipt) []any {
	return append(announcementDest(&rc.Announcement), &rc.ReadStatus, &rc.ReadDate)
}

func (r *PgAnnouncementRepository) ListForUser(ctx context.Context, email string, unreadOnly bool, page, perPage int) ([]AnnouncementReceipt, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const where = `
WHERE r.user_email = $1 AND a.active = 'Y'
  AND (NOT $2 OR r.readstatus = 'Not Read')
  AND (a.startdate IS NULL OR a.startdate <= CURRENT_DATE)
  AND (a.enddate IS NULL OR a.enddate >= CURRENT_DATE)`
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+receiptFrom+where, email, unreadOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+receiptColumns+receiptFrom+where+`
ORDER BY a.createdate DESC, a.aicmid DESC
LIMIT $3 OFFSET $4`, email, unreadOnly, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]AnnouncementReceipt, 0, perPage)
	for rows.Next() {
		var rc AnnouncementReceipt
		if err := rows.Scan(receiptDest(&rc)...); err != nil {
			return nil, 0, err
		}
		items = append(items, rc)
	}
	return items, total, rows.Err()
}

// GetForUser only returns announcements the user has a receipt for.
func (r *PgAnnouncementRepository) GetForUser(ctx context.Context, id int64, email string) (*AnnouncementReceipt, error) {
	var rc AnnouncementReceipt
	err := r.db.QueryRow(ctx, `SELECT `+receiptColumns+receiptFrom+` WHERE a.aicmid=$1 AND r.user_email=$2 AND a.active='Y'`, id, email).
		Scan(receiptDest(&rc)...)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &rc, nil
}

// MarkRead is idempotent; the first read date is kept.
func (r *PgAnnouncementRepository) MarkRead(ctx context.Context, id int64, email string) error {
	tag, err := r.db.Exec(ctx, `
UPDATE announcementsread
SET readstatus=$1, readdate=COALESCE(readdate, now())
WHERE aicmid=$2 AND user_email=$3`, ReceiptRead, id, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachmentVisibleTo reports whether key is attached to an active announcement the user has a receipt for.
func (r *PgAnnouncementRepository) AttachmentVisibleTo(ctx context.Context, key, email string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM announcementdetails a
  JOIN announcementsread r ON r.aicmid = a.aicmid
  WHERE a.attachfile = $1 AND r.user_email = $2 AND a.active = 'Y'
)`, key, email).Scan(&ok)
	return ok, err
}
