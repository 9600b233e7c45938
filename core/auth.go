package core

import (
	"context"
	"errors"
	"time"
)

// Account is the result of a successful password login.
type Account struct {
	Identity    string
	Realm       Realm
	DisplayName string
	Role        string
	TokenKey    string
	CreatedAt   time.Time
}

var (
	// ErrInvalidCredentials is returned when identity/password is wrong or the account is disabled.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// LoginService exchanges a password for the account's token key.
type LoginService interface {
	Login(ctx context.Context, realm Realm, identity, password string) (Account, error)
}

// TokenRotator replaces the stored token key of an account.
type TokenRotator interface {
	RotateToken(ctx context.Context, realm Realm, identity string) (string, error)
}
