package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const maxSeedSize = 1 << 20

// SeedBundle is the YAML document accepted by `ticketctl seed`.
//
//	ticket_categories:     [{code: BAG, name: Baggage}]
//	priorities:            [{code: P1, name: Urgent}]
//	group_airlines:        [{code: STAR, name: Star Alliance}]
//	announcement_statuses: [{code: PUB, name: Published}]
//	target_audiences:      [{code: ALL, name: All airline customers}]
//	staff_users:           [{username: agent7, password: s3cret, role: staff}]
//	airline_users:         [{email: ops@air.example, password: s3cret, cus_id: C001, name: Ops}]
type SeedBundle struct {
	TicketCategories     []SeedLookup      `yaml:"ticket_categories"`
	Priorities           []SeedLookup      `yaml:"priorities"`
	GroupAirlines        []SeedLookup      `yaml:"group_airlines"`
	AnnouncementStatuses []SeedLookup      `yaml:"announcement_statuses"`
	TargetAudiences      []SeedLookup      `yaml:"target_audiences"`
	StaffUsers           []SeedStaffUser   `yaml:"staff_users"`
	AirlineUsers         []SeedAirlineUser `yaml:"airline_users"`
}

type SeedLookup struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type SeedStaffUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type SeedAirlineUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	CusID    string `yaml:"cus_id"`
	Name     string `yaml:"name"`
}

// SeedSections lists report keys in the order Apply processes them.
var SeedSections = []string{
	TicketCategories.Kind, Priorities.Kind, GroupAirlines.Kind, AnnouncementStatuses.Kind, TargetAudiences.Kind,
	"staff_users", "airline_users",
}

// SeedReport counts what Apply did per section.
type SeedReport struct {
	Created map[string]int `json:"created"`
	Skipped map[string]int `json:"skipped"`
}

// lookupSections pairs bundle sections with their tables in insertion order.
func (b SeedBundle) lookupSections() []struct {
	table LookupTable
	rows  []SeedLookup
} {
	return []struct {
		table LookupTable
		rows  []SeedLookup
	}{
		{TicketCategories, b.TicketCategories},
		{Priorities, b.Priorities},
		{GroupAirlines, b.GroupAirlines},
		{AnnouncementStatuses, b.AnnouncementStatuses},
		{TargetAudiences, b.TargetAudiences},
	}
}

// ParseSeedBundle decodes and validates a seed document. Unknown keys are rejected.
func ParseSeedBundle(data []byte) (SeedBundle, error) {
	var b SeedBundle
	if len(bytes.TrimSpace(data)) == 0 {
		return b, errors.New("seed file is empty")
	}
	if len(data) > maxSeedSize {
		return b, fmt.Errorf("seed file exceeds %d bytes", maxSeedSize)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return b, fmt.Errorf("invalid seed yaml: %w", err)
	}

	for _, s := range b.lookupSections() {
		seen := map[string]struct{}{}
		for i := range s.rows {
			row := &s.rows[i]
			row.Code, row.Name = strings.TrimSpace(row.Code), strings.TrimSpace(row.Name)
			if row.Code == "" || row.Name == "" {
				return b, fmt.Errorf("%s[%d]: code and name are required", s.table.Kind, i)
			}
			key := strings.ToLower(row.Code)
			if _, dup := seen[key]; dup {
				return b, fmt.Errorf("%s[%d]: duplicate code %q", s.table.Kind, i, row.Code)
			}
			seen[key] = struct{}{}
		}
	}
	for i := range b.StaffUsers {
		u := &b.StaffUsers[i]
		u.Username = strings.TrimSpace(u.Username)
		if u.Username == "" || u.Password == "" {
			return b, fmt.Errorf("staff_users[%d]: username and password are required", i)
		}
		if u.Role == "" {
			u.Role = "staff"
		}
	}
	for i := range b.AirlineUsers {
		u := &b.AirlineUsers[i]
		u.Email = strings.TrimSpace(u.Email)
		u.CusID = strings.TrimSpace(u.CusID)
		if u.Email == "" || u.Password == "" || u.CusID == "" {
			return b, fmt.Errorf("airline_users[%d]: email, password and cus_id are required", i)
		}
	}
	return b, nil
}

// Seeder writes a SeedBundle, skipping rows whose code or identity already exists.
type Seeder struct {
	Lookups LookupRepository
	Staff   StaffUserRepository
	Airline AirlineUserRepository
	// bcrypt cost; zero means bcrypt.DefaultCost
	Cost int
}

func (s Seeder) Apply(ctx context.Context, b SeedBundle, actor string) (SeedReport, error) {
	rep := SeedReport{Created: map[string]int{}, Skipped: map[string]int{}}

	for _, sec := range b.lookupSections() {
		for _, row := range sec.rows {
			_, err := s.Lookups.FindByCode(ctx, sec.table, row.Code)
			switch {
			case err == nil:
				rep.Skipped[sec.table.Kind]++
				continue
			case !errors.Is(err, ErrNotFound):
				return rep, err
			}
			if _, err := s.Lookups.Create(ctx, sec.table, row.Code, row.Name, actor); err != nil {
				if errors.Is(err, ErrDuplicate) {
					rep.Skipped[sec.table.Kind]++
					continue
				}
				return rep, fmt.Errorf("%s %s: %w", sec.table.Kind, row.Code, err)
			}
			rep.Created[sec.table.Kind]++
		}
	}

	for _, u := range b.StaffUsers {
		hash, err := s.hash(u.Password)
		if err != nil {
			return rep, err
		}
		if _, err := s.Staff.Create(ctx, u.Username, hash, u.Role, ""); err != nil {
			if errors.Is(err, ErrDuplicate) {
				rep.Skipped["staff_users"]++
				continue
			}
			return rep, fmt.Errorf("staff user %s: %w", u.Username, err)
		}
		rep.Created["staff_users"]++
	}

	for _, u := range b.AirlineUsers {
		hash, err := s.hash(u.Password)
		if err != nil {
			return rep, err
		}
		_, err = s.Airline.Create(ctx, AirlineUserRecord{Email: u.Email, DisplayName: u.Name, CusID: u.CusID, PasswordHash: hash})
		if err != nil {
			if errors.Is(err, ErrDuplicate) {
				rep.Skipped["airline_users"]++
				continue
			}
			return rep, fmt.Errorf("airline user %s: %w", u.Email, err)
		}
		rep.Created["airline_users"]++
	}
	return rep, nil
}

func (s Seeder) hash(password string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}
