package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ticket lifecycle: Open -> Assigned -> Closed. Closed tickets are read-only.
const (
	TicketOpen     = "Open"
	TicketAssigned = "Assigned"
	TicketClosed   = "Closed"
)

type Ticket struct {
	ID           int64      `json:"tkid"`
	Code         string     `json:"ticket_code"`
	Subject      string     `json:"subject"`
	Email        string     `json:"email"`
	CategoryID   int64      `json:"tcid"`
	CategoryName string     `json:"categoryname"`
	PriorityID   int64      `json:"ptid"`
	PriorityName string     `json:"priority"`
	Descriptions string     `json:"descriptions"`
	AttachFile   *string    `json:"attachfile,omitempty"`
	Status       string     `json:"ticketstatus"`
	Assignee     *string    `json:"assignee,omitempty"`
	CreateBy     string     `json:"createby"`
	CreateDate   time.Time  `json:"createdate"`
	UpdateDate   time.Time  `json:"updatedate"`
	CloseDate    *time.Time `json:"closedate,omitempty"`
	CloseReason  *string    `json:"closereason,omitempty"`
}

type TicketInput struct {
	Subject      string
	Email        string
	CategoryID   int64
	PriorityID   int64
	Descriptions string
	AttachFile   string
}

type TicketFilter struct {
	Search     string // ticket code, subject or email
	Status     string
	CategoryID int64
	Dates      DateRange
}

type TicketNote struct {
	ID         int64     `json:"tnid"`
	TicketID   int64     `json:"tkid"`
	Note       string    `json:"note"`
	AttachFile *string   `json:"attachfile,omitempty"`
	CreateBy   string    `json:"createby"`
	CreateDate time.Time `json:"createdate"`
}

type TicketRepository interface {
	Create(ctx context.Context, in TicketInput, actor string) (*Ticket, error)
	List(ctx context.Context, f TicketFilter, page, perPage int) ([]Ticket, int, error)
	Get(ctx context.Context, id int64) (*Ticket, error)
	Reassign(ctx context.Context, id int64, assignee, actor string) (*Ticket, error)
	Close(ctx context.Context, id int64, reason, actor string) (*Ticket, error)
	ListNotes(ctx context.Context, id int64) ([]TicketNote, error)
	AddNote(ctx context.Context, id int64, note, attachFile, actor string) (*TicketNote, error)
}

type PgTicketRepository struct {
	db *pgxpool.Pool
}

func NewPgTicketRepository(db *pgxpool.Pool) *PgTicketRepository {
	return &PgTicketRepository{db: db}
}

const ticketSelect = `
SELECT t.tkid, t.ticket_code, t.subject, t.email, t.tcid, c.categoryname, t.ptid, p.priority,
       t.descriptions, t.attachfile, t.ticketstatus, t.assignee, t.createby, t.createdate,
       t.updatedate, t.closedate, t.closereason
FROM ticketdetails t
JOIN ticketcategory c ON c.tcid = t.tcid
JOIN priority p ON p.ptid = t.ptid`

const ticketWhere = `
WHERE ($1 = '' OR t.ticket_code ILIKE '%' || $1 || '%' OR t.subject ILIKE '%' || $1 || '%' OR t.email ILIKE '%' || $1 || '%')
  AND ($2 = '' OR t.ticketstatus = $2)
  AND ($3::bigint = 0 OR t.tcid = $3)
  AND ($4::timestamptz IS NULL OR t.createdate >= $4)
  AND ($5::timestamptz IS NULL OR t.createdate < $5)`

func scanTicket(row pgx.Row) (*Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.Code, &t.Subject, &t.Email, &t.CategoryID, &t.CategoryName, &t.PriorityID, &t.PriorityName,
		&t.Descriptions, &t.AttachFile, &t.Status, &t.Assignee, &t.CreateBy, &t.CreateDate,
		&t.UpdateDate, &t.CloseDate, &t.CloseReason)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PgTicketRepository) Create(ctx context.Context, in TicketInput, actor string) (*Ticket, error) {
	const q = `
INSERT INTO ticketdetails (ticket_code, subject, email, tcid, ptid, descriptions, attachfile, createby)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8)
RETURNING tkid`
	var id int64
	err := r.db.QueryRow(ctx, q, NewTicketCode(), strings.TrimSpace(in.Subject), strings.TrimSpace(in.Email),
		in.CategoryID, in.PriorityID, in.Descriptions, in.AttachFile, actor).Scan(&id)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return r.Get(ctx, id)
}

func (r *PgTicketRepository) List(ctx context.Context, f TicketFilter, page, perPage int) ([]Ticket, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	search := strings.TrimSpace(f.Search)
	args := []any{search, f.Status, f.CategoryID, f.Dates.From, f.Dates.Until}

	var total int
	countQ := `SELECT COUNT(*) FROM ticketdetails t` + ticketWhere
	if err := r.db.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, ticketSelect+ticketWhere+`
ORDER BY t.createdate DESC, t.tkid DESC
LIMIT $6 OFFSET $7`, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Ticket, 0, perPage)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *t)
	}
	return items, total, rows.Err()
}

func (r *PgTicketRepository) Get(ctx context.Context, id int64) (*Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, ticketSelect+` WHERE t.tkid=$1`, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return t, nil
}

// Reassign hands an open or assigned ticket to another active staff user.
func (r *PgTicketRepository) Reassign(ctx context.Context, id int64, assignee, actor string) (*Ticket, error) {
	assignee = strings.TrimSpace(assignee)
	err := r.withOpenTicket(ctx, id, func(tx pgx.Tx) error {
		var active bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vm_useractive WHERE username=$1)`, assignee).Scan(&active); err != nil {
			return err
		}
		if !active {
			return ErrInvalidAssignee
		}
		_, err := tx.Exec(ctx, `UPDATE ticketdetails SET assignee=$1, ticketstatus=$2, updatedate=now() WHERE tkid=$3`,
			assignee, TicketAssigned, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *PgTicketRepository) Close(ctx context.Context, id int64, reason, actor string) (*Ticket, error) {
	err := r.withOpenTicket(ctx, id, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
UPDATE ticketdetails
SET ticketstatus=$1, closereason=NULLIF($2,''), closedate=now(), updatedate=now()
WHERE tkid=$3`, TicketClosed, strings.TrimSpace(reason), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *PgTicketRepository) ListNotes(ctx context.Context, id int64) ([]TicketNote, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticketdetails WHERE tkid=$1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	rows, err := r.db.Query(ctx, `
SELECT tnid, tkid, note, attachfile, createby, createdate
FROM ticket_notes
WHERE tkid=$1
ORDER BY createdate, tnid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := []TicketNote{}
	for rows.Next() {
		var n TicketNote
		if err := rows.Scan(&n.ID, &n.TicketID, &n.Note, &n.AttachFile, &n.CreateBy, &n.CreateDate); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *PgTicketRepository) AddNote(ctx context.Context, id int64, note, attachFile, actor string) (*TicketNote, error) {
	var n TicketNote
	err := r.withOpenTicket(ctx, id, func(tx pgx.Tx) error {
		const q = `
INSERT INTO ticket_notes (tkid, note, attachfile, createby)
VALUES ($1,$2,NULLIF($3,''),$4)
RETURNING tnid, tkid, note, attachfile, createby, createdate`
		if err := tx.QueryRow(ctx, q, id, strings.TrimSpace(note), attachFile, actor).
			Scan(&n.ID, &n.TicketID, &n.Note, &n.AttachFile, &n.CreateBy, &n.CreateDate); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE ticketdetails SET updatedate=now() WHERE tkid=$1`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// withOpenTicket locks the ticket row and runs fn unless the ticket is missing or closed.
func (r *PgTicketRepository) withOpenTicket(ctx context.Context, id int64, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	if err := tx.QueryRow(ctx, `SELECT ticketstatus FROM ticketdetails WHERE tkid=$1 FOR UPDATE`, id).Scan(&status); err != nil {
		return mapNoRows(err)
	}
	if status == TicketClosed {
		return ErrTicketClosed
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
