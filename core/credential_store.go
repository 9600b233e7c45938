package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrUnknownRealm is wrapped in a StoreError when a caller passes a realm with no lookup query.
var ErrUnknownRealm = errors.New("unknown realm")

// StoreError reports that the credential storage could not be reached or queried.
// It is never a statement about the credentials themselves.
type StoreError struct {
	Realm Realm
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("credential store (%s): %v", e.Realm, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// CredentialStore resolves the stored token key for an identity within a realm.
// found=false means no usable credential: unknown identity, disabled account, or empty token.
type CredentialStore interface {
	LookupToken(ctx context.Context, identity string, realm Realm) (token string, found bool, err error)
}

// tokenQuerier is the subset of pgxpool.Pool used by PgCredentialStore.
type tokenQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Staff accounts come from the active-user view; airline accounts must be enabled (status_id = 1).
// ORDER BY id keeps the result deterministic if a unique constraint was ever missing.
var realmTokenQueries = map[Realm]string{
	RealmStaff:   `SELECT token_key FROM vm_useractive WHERE username = $1 ORDER BY id LIMIT 1`,
	RealmAirline: `SELECT token_key FROM airline_users WHERE user_email = $1 AND status_id = 1 ORDER BY id LIMIT 1`,
}

// PgCredentialStore implements CredentialStore with one parameterized query per realm.
type PgCredentialStore struct {
	db tokenQuerier
}

func NewPgCredentialStore(db tokenQuerier) *PgCredentialStore {
	return &PgCredentialStore{db: db}
}

func (s *PgCredentialStore) LookupToken(ctx context.Context, identity string, realm Realm) (string, bool, error) {
	if strings.TrimSpace(identity) == "" {
		return "", false, nil
	}
	q, ok := realmTokenQueries[realm]
	if !ok {
		return "", false, &StoreError{Realm: realm, Err: ErrUnknownRealm}
	}

	var token *string
	if err := s.db.QueryRow(ctx, q, identity).Scan(&token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, &StoreError{Realm: realm, Err: err}
	}
	if token == nil || *token == "" {
		return "", false, nil
	}
	return *token, true, nil
}
