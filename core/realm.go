package core

import (
	"fmt"
	"strings"
)

// Realm names the population of accounts a route authenticates against.
// A route's realm is fixed when the route is registered; clients never choose it.
type Realm string

const (
	RealmStaff   Realm = "staff"
	RealmAirline Realm = "airline"
)

// ParseRealm accepts "staff" or "airline" in any case.
func ParseRealm(s string) (Realm, error) {
	switch Realm(strings.ToLower(strings.TrimSpace(s))) {
	case RealmStaff:
		return RealmStaff, nil
	case RealmAirline:
		return RealmAirline, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRealm, s)
}

func (r Realm) String() string { return string(r) }
