package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCredential struct {
	token   string
	enabled bool
}

// memoryCredentialStore is an in-memory CredentialStore that counts lookups.
type memoryCredentialStore struct {
	mu      sync.Mutex
	records map[Realm]map[string]memoryCredential
	lookups int
	err     error
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{records: map[Realm]map[string]memoryCredential{}}
}

func (s *memoryCredentialStore) put(realm Realm, identity, token string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records[realm] == nil {
		s.records[realm] = map[string]memoryCredential{}
	}
	s.records[realm][identity] = memoryCredential{token: token, enabled: enabled}
}

func (s *memoryCredentialStore) LookupToken(_ context.Context, identity string, realm Realm) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return "", false, &StoreError{Realm: realm, Err: s.err}
	}
	rec, ok := s.records[realm][identity]
	if !ok || !rec.enabled || rec.token == "" {
		return "", false, nil
	}
	return rec.token, true, nil
}

func (s *memoryCredentialStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

type fakeTokenRow struct {
	token *string
	err   error
}

func (r fakeTokenRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(**string)) = r.token
	return nil
}

type fakeTokenQuerier struct {
	rows     map[string]fakeTokenRow
	calls    int
	lastSQL  string
	lastArgs []any
}

func (q *fakeTokenQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.calls++
	q.lastSQL = sql
	q.lastArgs = args
	if row, ok := q.rows[args[0].(string)]; ok {
		return row
	}
	return fakeTokenRow{err: pgx.ErrNoRows}
}

func strPtr(s string) *string { return &s }

func TestPgCredentialStore_LookupToken(t *testing.T) {
	q := &fakeTokenQuerier{rows: map[string]fakeTokenRow{
		"agent7":    {token: strPtr("abc123")},
		"nulltoken": {token: nil},
		"blank":     {token: strPtr("")},
	}}
	store := NewPgCredentialStore(q)
	ctx := context.Background()

	token, found, err := store.LookupToken(ctx, "agent7", RealmStaff)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc123", token)
	assert.Contains(t, q.lastSQL, "vm_useractive")
	assert.Equal(t, []any{"agent7"}, q.lastArgs)

	for _, id := range []string{"ghost", "nulltoken", "blank"} {
		_, found, err := store.LookupToken(ctx, id, RealmStaff)
		require.NoError(t, err, id)
		assert.False(t, found, id)
	}
}

func TestPgCredentialStore_AirlineQueryRequiresEnabledStatus(t *testing.T) {
	q := &fakeTokenQuerier{rows: map[string]fakeTokenRow{}}
	store := NewPgCredentialStore(q)

	_, found, err := store.LookupToken(context.Background(), "flyer@air.com", RealmAirline)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Contains(t, q.lastSQL, "airline_users")
	assert.Contains(t, q.lastSQL, "status_id = 1")
	assert.True(t, strings.Contains(q.lastSQL, "$1"), "identity must be a bound parameter")
}

func TestPgCredentialStore_EmptyIdentitySkipsQuery(t *testing.T) {
	q := &fakeTokenQuerier{}
	store := NewPgCredentialStore(q)

	for _, id := range []string{"", "   "} {
		_, found, err := store.LookupToken(context.Background(), id, RealmStaff)
		require.NoError(t, err)
		assert.False(t, found)
	}
	assert.Zero(t, q.calls)
}

func TestPgCredentialStore_FaultsBecomeStoreError(t *testing.T) {
	connErr := errors.New("connection refused")
	q := &fakeTokenQuerier{rows: map[string]fakeTokenRow{"agent7": {err: connErr}}}
	store := NewPgCredentialStore(q)

	_, found, err := store.LookupToken(context.Background(), "agent7", RealmStaff)
	assert.False(t, found)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, RealmStaff, storeErr.Realm)
	assert.ErrorIs(t, err, connErr)
}

func TestPgCredentialStore_UnknownRealm(t *testing.T) {
	q := &fakeTokenQuerier{}
	store := NewPgCredentialStore(q)

	_, _, err := store.LookupToken(context.Background(), "agent7", Realm("partner"))
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, ErrUnknownRealm)
	assert.Zero(t, q.calls)
}

func TestParseRealm(t *testing.T) {
	r, err := ParseRealm("Staff")
	require.NoError(t, err)
	assert.Equal(t, RealmStaff, r)

	r, err = ParseRealm(" airline ")
	require.NoError(t, err)
	assert.Equal(t, RealmAirline, r)

	_, err = ParseRealm("admin")
	assert.ErrorIs(t, err, ErrUnknownRealm)
}
