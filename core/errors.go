package core

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")
	ErrTicketClosed = errors.New("ticket is closed")
	// ErrInvalidAssignee is returned when a ticket is reassigned to someone who is not an active staff user.
	ErrInvalidAssignee = errors.New("assignee is not an active staff user")
	// ErrInvalidReference is returned when a foreign key points at a missing row.
	ErrInvalidReference = errors.New("referenced record does not exist")
)

// mapNoRows turns pgx.ErrNoRows into ErrNotFound and constraint violations into their sentinels.
func mapNoRows(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrDuplicate
	case isForeignKeyViolation(err):
		return ErrInvalidReference
	default:
		return err
	}
}
