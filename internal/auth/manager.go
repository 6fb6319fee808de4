package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fathima-sithara/student-management/internal/identity"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrLockedOut          = errors.New("auth: account is locked out")
	ErrUserNotFound       = errors.New("auth: user not found")
)

// Store is the slice of the identity store the manager needs. Satisfied by
// *identity.UserStore.
type Store interface {
	Create(ctx context.Context, u *identity.User) error
	Update(ctx context.Context, u *identity.User) error
	FindByID(ctx context.Context, id string) (*identity.User, error)
	FindByName(ctx context.Context, username string) (*identity.User, error)
	SetPasswordHash(u *identity.User, hash string) error
	SetSecurityStamp(u *identity.User, stamp string) error
	SetEmailConfirmed(u *identity.User, confirmed bool) error
	SetLockoutEnd(u *identity.User, end *time.Time) error
	IncrementAccessFailed(u *identity.User) (int, error)
	ResetAccessFailed(u *identity.User) error
}

// UserManager orchestrates registration and credential checks on top of the
// identity store: it hashes passwords, rolls security stamps, and keeps the
// lockout counters, then persists the batched field changes with one Update.
type UserManager struct {
	store            Store
	bcryptCost       int
	lockoutThreshold int
	lockoutWindow    time.Duration
}

func NewUserManager(store Store, bcryptCost, lockoutThreshold int, lockoutWindow time.Duration) *UserManager {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserManager{
		store:            store,
		bcryptCost:       bcryptCost,
		lockoutThreshold: lockoutThreshold,
		lockoutWindow:    lockoutWindow,
	}
}

// RegisterParams carries the profile fields collected at sign-up.
type RegisterParams struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	City      string
}

// Register creates a user with a hashed password and a fresh security stamp.
// Duplicate usernames surface as identity.ErrDuplicateUser.
func (m *UserManager) Register(ctx context.Context, p RegisterParams) (*identity.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), m.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := identity.NewUser(p.Username)
	u.Email = p.Email
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.City = p.City
	u.LockoutEnabled = true

	if err := m.store.SetPasswordHash(u, string(hash)); err != nil {
		return nil, err
	}
	if err := m.store.SetSecurityStamp(u, uuid.NewString()); err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies the password for the named user and applies lockout
// accounting: failures increment the counter and lock the account once the
// threshold is crossed; success resets the counter.
func (m *UserManager) Authenticate(ctx context.Context, username, password string) (*identity.User, error) {
	u, err := m.store.FindByName(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}

	if u.LockoutEnabled && u.LockoutEnd != nil && u.LockoutEnd.After(time.Now().UTC()) {
		return nil, ErrLockedOut
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		count, ferr := m.store.IncrementAccessFailed(u)
		if ferr != nil {
			return nil, ferr
		}
		if u.LockoutEnabled && count >= m.lockoutThreshold {
			end := time.Now().UTC().Add(m.lockoutWindow)
			if ferr := m.store.SetLockoutEnd(u, &end); ferr != nil {
				return nil, ferr
			}
		}
		if ferr := m.store.Update(ctx, u); ferr != nil {
			return nil, ferr
		}
		return nil, ErrInvalidCredentials
	}

	if u.AccessFailedCount > 0 || u.LockoutEnd != nil {
		if err := m.store.ResetAccessFailed(u); err != nil {
			return nil, err
		}
		if err := m.store.SetLockoutEnd(u, nil); err != nil {
			return nil, err
		}
		if err := m.store.Update(ctx, u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// ChangePassword re-verifies the current password, then stores a new hash
// and rolls the security stamp.
func (m *UserManager) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := m.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), m.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := m.store.SetPasswordHash(u, string(hash)); err != nil {
		return err
	}
	if err := m.store.SetSecurityStamp(u, uuid.NewString()); err != nil {
		return err
	}
	return m.store.Update(ctx, u)
}

// ConfirmEmail flips the email confirmation flag and persists.
func (m *UserManager) ConfirmEmail(ctx context.Context, userID string) error {
	u, err := m.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if err := m.store.SetEmailConfirmed(u, true); err != nil {
		return err
	}
	return m.store.Update(ctx, u)
}
