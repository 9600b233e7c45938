package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const seedYAML = `
ticket_categories:
  - {code: " BAG ", name: Baggage}
  - {code: REF, name: Refund}
priorities:
  - {code: P1, name: Urgent}
staff_users:
  - {username: agent7, password: s3cret}
  - {username: lead, password: s3cret, role: admin}
airline_users:
  - {email: ops@air.com, password: pw, cus_id: C001, name: Ops}
`

func TestParseSeedBundle(t *testing.T) {
	b, err := ParseSeedBundle([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, b.TicketCategories, 2)
	assert.Equal(t, "BAG", b.TicketCategories[0].Code)
	assert.Equal(t, "staff", b.StaffUsers[0].Role)
	assert.Equal(t, "admin", b.StaffUsers[1].Role)
	assert.Equal(t, "C001", b.AirlineUsers[0].CusID)
}

func TestParseSeedBundle_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"empty", "  \n", "seed file is empty"},
		{"unknown section", "tickets: []\n", "invalid seed yaml"},
		{"missing name", "priorities: [{code: P1}]\n", "priorities[0]: code and name are required"},
		{"duplicate code", "priorities: [{code: P1, name: a}, {code: p1, name: b}]\n", `duplicate code "p1"`},
		{"staff without password", "staff_users: [{username: a}]\n", "staff_users[0]"},
		{"airline without cus_id", "airline_users: [{email: a@b.c, password: x}]\n", "airline_users[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSeedBundle([]byte(tc.doc))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestSeeder_ApplyIsRepeatable(t *testing.T) {
	b, err := ParseSeedBundle([]byte(seedYAML))
	require.NoError(t, err)

	lookups, staff, airline := newFakeLookupRepo(), newFakeStaffRepo(), newFakeAirlineUserRepo()
	_, err = lookups.Create(context.Background(), TicketCategories, "REF", "Refunds", "migration")
	require.NoError(t, err)
	seeder := Seeder{Lookups: lookups, Staff: staff, Airline: airline, Cost: bcrypt.MinCost}

	rep, err := seeder.Apply(context.Background(), b, "ticketctl")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{TicketCategories.Kind: 1, Priorities.Kind: 1, "staff_users": 2, "airline_users": 1}, rep.Created)
	assert.Equal(t, map[string]int{TicketCategories.Kind: 1}, rep.Skipped)

	u, err := staff.FindByUsername(context.Background(), "agent7")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")))
	assert.Empty(t, u.TokenKey)

	rep, err = seeder.Apply(context.Background(), b, "ticketctl")
	require.NoError(t, err)
	assert.Empty(t, rep.Created)
	assert.Equal(t, 2, rep.Skipped[TicketCategories.Kind])
	assert.Equal(t, 2, rep.Skipped["staff_users"])
	assert.Equal(t, 1, rep.Skipped["airline_users"])
}
