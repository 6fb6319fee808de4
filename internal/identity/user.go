package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Claim is a (type, value) attribute attached to a user, or embedded in a
// role, and used for authorization checks.
type Claim struct {
	Type  string `bson:"type" json:"type"`
	Value string `bson:"value" json:"value"`
}

// Equal reports whether two claims carry the same type and value.
func (c Claim) Equal(other Claim) bool {
	return c.Type == other.Type && c.Value == other.Value
}

// UserLogin links a user account to an external login provider.
type UserLogin struct {
	Provider    string `bson:"provider" json:"provider"`
	ProviderKey string `bson:"provider_key" json:"provider_key"`
}

// Equal compares provider and key case-sensitively.
func (l UserLogin) Equal(other UserLogin) bool {
	return l.Provider == other.Provider && l.ProviderKey == other.ProviderKey
}

// User is the identity document persisted in the user collection. Roles are
// embedded snapshots of role documents, not references; they are kept in sync
// by the store on role mutation.
type User struct {
	ID                 string      `bson:"_id,omitempty" json:"id"`
	Username           string      `bson:"username" json:"username"`
	NormalizedUsername string      `bson:"normalized_username" json:"-"`
	Email              string      `bson:"email,omitempty" json:"email,omitempty"`
	NormalizedEmail    string      `bson:"normalized_email,omitempty" json:"-"`
	PasswordHash       string      `bson:"password_hash,omitempty" json:"-"`
	SecurityStamp      string      `bson:"security_stamp,omitempty" json:"-"`
	Phone              string      `bson:"phone,omitempty" json:"phone,omitempty"`
	EmailConfirmed     bool        `bson:"email_confirmed" json:"email_confirmed"`
	PhoneConfirmed     bool        `bson:"phone_confirmed" json:"phone_confirmed"`
	TwoFactorEnabled   bool        `bson:"two_factor_enabled" json:"two_factor_enabled"`
	LockoutEnd         *time.Time  `bson:"lockout_end,omitempty" json:"-"`
	LockoutEnabled     bool        `bson:"lockout_enabled" json:"-"`
	AccessFailedCount  int         `bson:"access_failed_count" json:"-"`
	FirstName          string      `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName           string      `bson:"last_name,omitempty" json:"last_name,omitempty"`
	City               string      `bson:"city,omitempty" json:"city,omitempty"`
	CreatedAt          time.Time   `bson:"created_at" json:"created_at"`
	LastEditedAt       time.Time   `bson:"last_edited_at" json:"last_edited_at"`
	Logins             []UserLogin `bson:"logins" json:"-"`
	Roles              []Role      `bson:"roles" json:"roles"`
	Claims             []Claim     `bson:"claims" json:"-"`
}

// NewUser returns a user with a generated id.
func NewUser(username string) *User {
	return &User{
		ID:       uuid.NewString(),
		Username: username,
	}
}

// AllClaims is the union of the user's direct claims and the claims inherited
// from embedded roles.
func (u *User) AllClaims() []Claim {
	all := make([]Claim, 0, len(u.Claims))
	all = append(all, u.Claims...)
	for _, r := range u.Roles {
		all = append(all, r.Claims...)
	}
	return all
}

// HasClaim reports whether the claim is present in AllClaims.
func (u *User) HasClaim(c Claim) bool {
	for _, uc := range u.AllClaims() {
		if uc.Equal(c) {
			return true
		}
	}
	return false
}

// Normalize produces the canonical case/whitespace-insensitive form used for
// uniqueness comparisons. Blank input is returned unchanged.
func Normalize(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	return strings.ToLower(strings.TrimSpace(s))
}
