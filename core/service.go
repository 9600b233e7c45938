package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// RepositoryLoginService verifies bcrypt passwords for both realms and hands out the stored token key.
type RepositoryLoginService struct {
	staff   StaffUserRepository
	airline AirlineUserRepository
}

// dummyPasswordHash stands in for the missing or disabled account's hash, so every failed
// login pays one bcrypt comparison at the cost real accounts are hashed with.
var dummyPasswordHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("ticketaps-no-such-account"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("dummy password hash: %v", err))
	}
	return h
})

func NewRepositoryLoginService(staff StaffUserRepository, airline AirlineUserRepository) *RepositoryLoginService {
	dummyPasswordHash()
	return &RepositoryLoginService{staff: staff, airline: airline}
}

// Login returns ErrInvalidCredentials for unknown identities, wrong passwords and disabled accounts alike,
// in about the same time. An account without a token key gets one issued here.
func (s *RepositoryLoginService) Login(ctx context.Context, realm Realm, identity, password string) (Account, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		acct Account
		hash string
	)
	switch realm {
	case RealmStaff:
		u, err := s.staff.FindByUsername(ctx, identity)
		if errors.Is(err, ErrNotFound) {
			return Account{}, rejectLogin(password)
		}
		if err != nil {
			return Account{}, err
		}
		if !u.Active {
			return Account{}, rejectLogin(password)
		}
		hash = u.PasswordHash
		acct = Account{Identity: u.Username, Realm: realm, DisplayName: u.Username, Role: u.Role, TokenKey: u.TokenKey, CreatedAt: u.CreatedAt}
	case RealmAirline:
		u, err := s.airline.FindByEmail(ctx, identity)
		if errors.Is(err, ErrNotFound) {
			return Account{}, rejectLogin(password)
		}
		if err != nil {
			return Account{}, err
		}
		if u.StatusID != AirlineStatusEnabled {
			return Account{}, rejectLogin(password)
		}
		hash = u.PasswordHash
		acct = Account{Identity: u.Email, Realm: realm, DisplayName: u.DisplayName, TokenKey: u.TokenKey, CreatedAt: u.CreatedAt}
	default:
		return Account{}, fmt.Errorf("login: %w", ErrUnknownRealm)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Account{}, ErrInvalidCredentials
	}

	if acct.TokenKey == "" {
		token, err := s.RotateToken(ctx, realm, acct.Identity)
		if err != nil {
			return Account{}, err
		}
		acct.TokenKey = token
	}
	return acct, nil
}

// RotateToken stores a fresh token key for identity; the previous key stops working immediately.
func (s *RepositoryLoginService) RotateToken(ctx context.Context, realm Realm, identity string) (string, error) {
	token, err := NewTokenKey()
	if err != nil {
		return "", err
	}
	switch realm {
	case RealmStaff:
		err = s.staff.SetTokenKey(ctx, identity, token)
	case RealmAirline:
		err = s.airline.SetTokenKey(ctx, identity, token)
	default:
		err = ErrUnknownRealm
	}
	if err != nil {
		return "", fmt.Errorf("rotate token %s/%s: %w", realm, identity, err)
	}
	return token, nil
}

func rejectLogin(password string) error {
	_ = bcrypt.CompareHashAndPassword(dummyPasswordHash(), []byte(password))
	return ErrInvalidCredentials
}
