package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/student-management/internal/identity"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// SignInManager turns a successful credential check into a signed access
// token. Token lifetime and signing are the whole of its job; persistence
// stays behind the user manager.
type SignInManager struct {
	users  *UserManager
	secret []byte
	ttl    time.Duration
}

func NewSignInManager(users *UserManager, secret string, ttl time.Duration) *SignInManager {
	return &SignInManager{users: users, secret: []byte(secret), ttl: ttl}
}

// PasswordSignIn authenticates and issues a token carrying the user id,
// username, and role names.
func (s *SignInManager) PasswordSignIn(ctx context.Context, username, password string) (string, *identity.User, error) {
	u, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return "", nil, err
	}

	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.Name)
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      u.ID,
		"username": u.Username,
		"roles":    roles,
		"iat":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// VerifyToken parses and validates an access token, returning its claims.
func VerifyToken(tokenStr, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
