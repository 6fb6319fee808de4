package identity

import "github.com/google/uuid"

// Role is a role document. Copies of it are embedded on users that hold the
// role; Equal compares ids, not names, so a renamed role still matches its
// embedded snapshots.
type Role struct {
	ID             string  `bson:"_id,omitempty" json:"id"`
	Name           string  `bson:"name" json:"name"`
	NormalizedName string  `bson:"normalized_name" json:"-"`
	Claims         []Claim `bson:"claims" json:"claims,omitempty"`
}

// NewRole returns a role with a generated id.
func NewRole(name string) *Role {
	return &Role{
		ID:   uuid.NewString(),
		Name: name,
	}
}

// Equal reports whether both roles refer to the same role document.
func (r Role) Equal(other Role) bool {
	return r.ID == other.ID
}
