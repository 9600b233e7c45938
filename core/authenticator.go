package core

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log"
	"strings"
)

// ErrMissingCredentials is returned when the identity or the presented token is empty.
var ErrMissingCredentials = errors.New("missing identity or token key")

// Outcome is the result of a credential check. The zero value denies.
type Outcome int

const (
	Deny Outcome = iota
	Allow
)

// DenyReason is kept for server-side logs only; clients see one generic denial.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonNotFound
	ReasonMismatch
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonMismatch:
		return "mismatch"
	default:
		return "none"
	}
}

// Decision is the authenticator's verdict for one request.
type Decision struct {
	Outcome Outcome
	Reason  DenyReason
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

// Authenticator decides whether a presented (identity, token) pair is valid for a realm.
type Authenticator interface {
	Authenticate(ctx context.Context, identity string, realm Realm, presentedToken string) (Decision, error)
}

// TokenAuthenticator checks presented token keys against a CredentialStore.
// It holds no per-request state and may be shared across goroutines.
type TokenAuthenticator struct {
	store CredentialStore
}

func NewTokenAuthenticator(store CredentialStore) *TokenAuthenticator {
	return &TokenAuthenticator{store: store}
}

// Authenticate returns ErrMissingCredentials without touching the store when either input is empty,
// and a *StoreError when the lookup itself fails. A storage fault is never turned into a deny.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, identity string, realm Realm, presentedToken string) (Decision, error) {
	if strings.TrimSpace(identity) == "" || presentedToken == "" {
		return Decision{Outcome: Deny, Reason: ReasonNotFound}, ErrMissingCredentials
	}

	stored, found, err := a.store.LookupToken(ctx, identity, realm)
	if err != nil {
		return Decision{}, err
	}
	if !found {
		return a.deny(identity, realm, ReasonNotFound), nil
	}
	if !tokensEqual(presentedToken, stored) {
		return a.deny(identity, realm, ReasonMismatch), nil
	}
	return Decision{Outcome: Allow}, nil
}

func (a *TokenAuthenticator) deny(identity string, realm Realm, reason DenyReason) Decision {
	log.Printf("auth: deny realm=%s identity=%q reason=%s", realm, identity, reason)
	return Decision{Outcome: Deny, Reason: reason}
}

// tokensEqual compares fixed-size digests so neither the length of the stored token
// nor the position of the first differing byte affects timing.
func tokensEqual(presented, stored string) bool {
	p := sha256.Sum256([]byte(presented))
	s := sha256.Sum256([]byte(stored))
	return subtle.ConstantTimeCompare(p[:], s[:]) == 1
}
