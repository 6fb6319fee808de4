package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserStore is the persistence adapter for users. It is the only component
// that writes user documents; managers above it never touch the collections
// directly.
//
// Scalar setters (password hash, security stamp, confirmation flags, lockout
// fields, ...) mutate the in-memory user only. Callers batch changes and then
// persist with Update. Sub-document mutations (logins, roles, claims) persist
// a targeted array write first and apply the in-memory change only when that
// write succeeds.
type UserStore struct {
	db       *Context
	disposed bool
}

// NewUserStore builds a store over the given database context.
func NewUserStore(db *Context) (*UserStore, error) {
	if db == nil {
		return nil, ErrNilArgument
	}
	return &UserStore{db: db}, nil
}

// Dispose marks the store unusable. One-way; there is nothing to release.
func (s *UserStore) Dispose() {
	s.disposed = true
}

func (s *UserStore) checkState(u *User) error {
	if s.disposed {
		return ErrStoreDisposed
	}
	if u == nil {
		return ErrNilArgument
	}
	return nil
}

// Create inserts the user after verifying no other user holds the same
// normalized username. A concurrent insert losing the race against the
// unique index is reported as the same duplicate error.
func (s *UserStore) Create(ctx context.Context, u *User) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	exists, err := s.detailsAlreadyExist(ctx, u)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, u.Username)
	}

	s.configureDefaults(u)
	u.CreatedAt = time.Now().UTC()

	col, err := s.db.Users(ctx)
	if err != nil {
		return err
	}
	if _, err := col.InsertOne(ctx, u); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, u.Username)
		}
		return err
	}
	return nil
}

// Update re-runs the duplicate check (a rename onto a colliding name fails)
// and replaces the full document by id with upsert semantics.
func (s *UserStore) Update(ctx context.Context, u *User) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	exists, err := s.detailsAlreadyExist(ctx, u)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, u.Username)
	}

	s.configureDefaults(u)

	col, err := s.db.Users(ctx)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := col.ReplaceOne(ctx, bson.M{"_id": u.ID}, u, opts); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, u.Username)
		}
		return err
	}
	return nil
}

// Delete removes the user document. Deleting an absent id is not an error.
func (s *UserStore) Delete(ctx context.Context, u *User) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	col, err := s.db.Users(ctx)
	if err != nil {
		return err
	}
	_, err = col.DeleteOne(ctx, bson.M{"_id": u.ID})
	return err
}

// FindByID returns the user with the given id, or nil when absent. More than
// one match means the uniqueness invariant was violated upstream and is
// surfaced as ErrMultipleMatches.
func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	if id == "" {
		return nil, nil
	}
	col, err := s.db.Users(ctx)
	if err != nil {
		return nil, err
	}

	cur, err := col.Find(ctx, bson.M{"_id": id}, options.Find().SetLimit(2))
	if err != nil {
		return nil, err
	}
	var matches []User
	if err := cur.All(ctx, &matches); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: id %s", ErrMultipleMatches, id)
	}
}

// FindByName looks a user up by normalized username; nil when absent.
func (s *UserStore) FindByName(ctx context.Context, username string) (*User, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	if Normalize(username) == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{"normalized_username": Normalize(username)})
}

// FindByEmail looks a user up by normalized email; nil when absent.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	if Normalize(email) == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{"normalized_email": Normalize(email)})
}

// AddLogin attaches an external login. Any existing login for the same
// provider is removed first, so a user holds at most one key per provider.
func (s *UserStore) AddLogin(ctx context.Context, u *User, login UserLogin) error {
	if err := s.checkState(u); err != nil {
		return err
	}

	if err := s.updateDetails(ctx, u.ID, bson.M{
		"$pull": bson.M{"logins": bson.M{"provider": login.Provider}},
	}); err != nil {
		return err
	}
	if err := s.updateDetails(ctx, u.ID, bson.M{
		"$push": bson.M{"logins": login},
	}); err != nil {
		return err
	}

	kept := u.Logins[:0]
	for _, l := range u.Logins {
		if l.Provider != login.Provider {
			kept = append(kept, l)
		}
	}
	u.Logins = append(kept, login)
	return nil
}

// RemoveLogin detaches the login matching provider and key case-sensitively.
// No write is issued when the user does not hold it.
func (s *UserStore) RemoveLogin(ctx context.Context, u *User, login UserLogin) error {
	if err := s.checkState(u); err != nil {
		return err
	}

	found := false
	for _, l := range u.Logins {
		if l.Equal(login) {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	if err := s.updateDetails(ctx, u.ID, bson.M{
		"$pull": bson.M{"logins": bson.M{
			"provider":     login.Provider,
			"provider_key": login.ProviderKey,
		}},
	}); err != nil {
		return err
	}

	kept := u.Logins[:0]
	for _, l := range u.Logins {
		if !l.Equal(login) {
			kept = append(kept, l)
		}
	}
	u.Logins = kept
	return nil
}

// Logins lists the user's external logins.
func (s *UserStore) Logins(u *User) ([]UserLogin, error) {
	if err := s.checkState(u); err != nil {
		return nil, err
	}
	out := make([]UserLogin, len(u.Logins))
	copy(out, u.Logins)
	return out, nil
}

// FindByLogin returns the user holding the (provider, key) pair, matched
// case-insensitively; nil when absent.
func (s *UserStore) FindByLogin(ctx context.Context, provider, providerKey string) (*User, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	filter := bson.M{"logins": bson.M{"$elemMatch": bson.M{
		"provider":     caseInsensitiveExact(provider),
		"provider_key": caseInsensitiveExact(providerKey),
	}}}
	return s.findOne(ctx, filter)
}

// AddToRole embeds a snapshot of the named role on the user. The role must
// already exist; adding a role the user already holds is a no-op with no
// write.
func (s *UserStore) AddToRole(ctx context.Context, u *User, roleName string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	if Normalize(roleName) == "" {
		return fmt.Errorf("%w: role name", ErrNilArgument)
	}

	role, err := s.findRole(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
	}

	for _, r := range u.Roles {
		if r.ID == role.ID {
			return nil
		}
	}

	if err := s.updateDetails(ctx, u.ID, bson.M{
		"$push": bson.M{"roles": role},
	}); err != nil {
		return err
	}
	u.Roles = append(u.Roles, *role)
	return nil
}

// RemoveFromRole removes the embedded role matching the name. When the user
// carries no matching snapshot the role document is re-fetched by name and
// removed by id, covering snapshots that predate a role rename.
func (s *UserStore) RemoveFromRole(ctx context.Context, u *User, roleName string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	if Normalize(roleName) == "" {
		return fmt.Errorf("%w: role name", ErrNilArgument)
	}

	norm := Normalize(roleName)
	matched := false
	for _, r := range u.Roles {
		if r.NormalizedName == norm {
			matched = true
			break
		}
	}

	if matched {
		if err := s.updateDetails(ctx, u.ID, bson.M{
			"$pull": bson.M{"roles": bson.M{"normalized_name": norm}},
		}); err != nil {
			return err
		}
		kept := u.Roles[:0]
		for _, r := range u.Roles {
			if r.NormalizedName != norm {
				kept = append(kept, r)
			}
		}
		u.Roles = kept
		return nil
	}

	role, err := s.findRole(ctx, roleName)
	if err != nil || role == nil {
		return err
	}
	if err := s.updateDetails(ctx, u.ID, bson.M{
		"$pull": bson.M{"roles": bson.M{"_id": role.ID}},
	}); err != nil {
		return err
	}
	kept := u.Roles[:0]
	for _, r := range u.Roles {
		if r.ID != role.ID {
			kept = append(kept, r)
		}
	}
	u.Roles = kept
	return nil
}

// RoleNames lists the names of the user's embedded roles.
func (s *UserStore) RoleNames(u *User) ([]string, error) {
	if err := s.checkState(u); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names, nil
}

// IsInRole checks membership against the embedded snapshots by normalized
// name.
func (s *UserStore) IsInRole(u *User, roleName string) (bool, error) {
	if err := s.checkState(u); err != nil {
		return false, err
	}
	norm := Normalize(roleName)
	for _, r := range u.Roles {
		if r.NormalizedName == norm {
			return true, nil
		}
	}
	return false, nil
}

// UsersInRole returns all users carrying an embedded role with the name.
func (s *UserStore) UsersInRole(ctx context.Context, roleName string) ([]*User, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	if Normalize(roleName) == "" {
		return nil, fmt.Errorf("%w: role name", ErrNilArgument)
	}
	filter := bson.M{"roles": bson.M{"$elemMatch": bson.M{
		"normalized_name": Normalize(roleName),
	}}}
	return s.findMany(ctx, filter)
}

// Claims returns the union of the user's direct claims and the claims of
// its embedded roles.
func (s *UserStore) Claims(u *User) ([]Claim, error) {
	if err := s.checkState(u); err != nil {
		return nil, err
	}
	return u.AllClaims(), nil
}

// AddClaims appends the claims not already held directly, by (type, value).
// No write is issued when every claim is already present.
func (s *UserStore) AddClaims(ctx context.Context, u *User, claims []Claim) error {
	if err := s.checkState(u); err != nil {
		return err
	}

	var fresh []Claim
	for _, c := range claims {
		held := false
		for _, uc := range u.Claims {
			if uc.Equal(c) {
				held = true
				break
			}
		}
		if !held {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := s.updateDetails(ctx, u.ID, bson.M{
		"$push": bson.M{"claims": bson.M{"$each": fresh}},
	}); err != nil {
		return err
	}
	u.Claims = append(u.Claims, fresh...)
	return nil
}

// ReplaceClaim rewrites every direct claim matching old with the type and
// value of the replacement. Absent matches are a no-op.
func (s *UserStore) ReplaceClaim(ctx context.Context, u *User, old, replacement Claim) error {
	if err := s.checkState(u); err != nil {
		return err
	}

	matched := false
	rewritten := make([]Claim, len(u.Claims))
	for i, c := range u.Claims {
		if c.Equal(old) {
			matched = true
			rewritten[i] = replacement
		} else {
			rewritten[i] = c
		}
	}
	if !matched {
		return nil
	}

	if err := s.updateDetails(ctx, u.ID, bson.M{
		"$set": bson.M{"claims": rewritten},
	}); err != nil {
		return err
	}
	u.Claims = rewritten
	return nil
}

// RemoveClaims deletes every direct claim matching any of the given
// (type, value) pairs. No write is issued when nothing matches.
func (s *UserStore) RemoveClaims(ctx context.Context, u *User, claims []Claim) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	if len(u.Claims) == 0 || len(claims) == 0 {
		return nil
	}

	var doomed []Claim
	for _, uc := range u.Claims {
		for _, c := range claims {
			if uc.Equal(c) {
				doomed = append(doomed, uc)
				break
			}
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	if err := s.updateDetails(ctx, u.ID, bson.M{
		"$pullAll": bson.M{"claims": doomed},
	}); err != nil {
		return err
	}

	kept := u.Claims[:0]
	for _, uc := range u.Claims {
		drop := false
		for _, c := range claims {
			if uc.Equal(c) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, uc)
		}
	}
	u.Claims = kept
	return nil
}

// UsersForClaim returns every user holding the claim either directly or via
// an embedded role.
func (s *UserStore) UsersForClaim(ctx context.Context, c Claim) ([]*User, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	match := bson.M{"$elemMatch": bson.M{"type": c.Type, "value": c.Value}}
	filter := bson.M{"$or": bson.A{
		bson.M{"claims": match},
		bson.M{"roles.claims": match},
	}}
	return s.findMany(ctx, filter)
}

// ---- scalar field access -------------------------------------------------
//
// These mutate the in-memory user and return immediately; nothing is
// persisted until the caller issues Update.

func (s *UserStore) SetUsername(u *User, username string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.Username = username
	return nil
}

func (s *UserStore) NormalizedUsername(u *User) (string, error) {
	if err := s.checkState(u); err != nil {
		return "", err
	}
	if u.NormalizedUsername != "" {
		return u.NormalizedUsername, nil
	}
	return Normalize(u.Username), nil
}

func (s *UserStore) SetNormalizedUsername(u *User, username string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.NormalizedUsername = Normalize(username)
	return nil
}

func (s *UserStore) SetEmail(u *User, email string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.Email = email
	return nil
}

func (s *UserStore) NormalizedEmail(u *User) (string, error) {
	if err := s.checkState(u); err != nil {
		return "", err
	}
	if u.NormalizedEmail != "" {
		return u.NormalizedEmail, nil
	}
	return Normalize(u.Email), nil
}

func (s *UserStore) SetNormalizedEmail(u *User, email string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.NormalizedEmail = Normalize(email)
	return nil
}

func (s *UserStore) SetEmailConfirmed(u *User, confirmed bool) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.EmailConfirmed = confirmed
	return nil
}

func (s *UserStore) SetPhone(u *User, phone string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.Phone = phone
	return nil
}

func (s *UserStore) SetPhoneConfirmed(u *User, confirmed bool) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.PhoneConfirmed = confirmed
	return nil
}

func (s *UserStore) SetTwoFactorEnabled(u *User, enabled bool) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.TwoFactorEnabled = enabled
	return nil
}

func (s *UserStore) SetPasswordHash(u *User, hash string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (s *UserStore) PasswordHash(u *User) (string, error) {
	if err := s.checkState(u); err != nil {
		return "", err
	}
	return u.PasswordHash, nil
}

func (s *UserStore) HasPassword(u *User) (bool, error) {
	if err := s.checkState(u); err != nil {
		return false, err
	}
	return u.PasswordHash != "", nil
}

func (s *UserStore) SetSecurityStamp(u *User, stamp string) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.SecurityStamp = stamp
	return nil
}

func (s *UserStore) SecurityStamp(u *User) (string, error) {
	if err := s.checkState(u); err != nil {
		return "", err
	}
	return u.SecurityStamp, nil
}

func (s *UserStore) SetLockoutEnd(u *User, end *time.Time) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.LockoutEnd = end
	return nil
}

func (s *UserStore) LockoutEnd(u *User) (*time.Time, error) {
	if err := s.checkState(u); err != nil {
		return nil, err
	}
	return u.LockoutEnd, nil
}

func (s *UserStore) SetLockoutEnabled(u *User, enabled bool) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.LockoutEnabled = enabled
	return nil
}

// IncrementAccessFailed bumps the in-memory failed-access counter and
// returns the new value.
func (s *UserStore) IncrementAccessFailed(u *User) (int, error) {
	if err := s.checkState(u); err != nil {
		return 0, err
	}
	u.AccessFailedCount++
	return u.AccessFailedCount, nil
}

func (s *UserStore) ResetAccessFailed(u *User) error {
	if err := s.checkState(u); err != nil {
		return err
	}
	u.AccessFailedCount = 0
	return nil
}

// ---- helpers -------------------------------------------------------------

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	col, err := s.db.Users(ctx)
	if err != nil {
		return nil, err
	}
	var u User
	err = col.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) findMany(ctx context.Context, filter bson.M) ([]*User, error) {
	col, err := s.db.Users(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var users []*User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserStore) findRole(ctx context.Context, roleName string) (*Role, error) {
	col, err := s.db.Roles(ctx)
	if err != nil {
		return nil, err
	}
	var r Role
	err = col.FindOne(ctx, bson.M{"normalized_name": Normalize(roleName)}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// updateDetails issues a targeted update against the user document and
// stamps last_edited_at in the same write.
func (s *UserStore) updateDetails(ctx context.Context, id string, update bson.M) error {
	set, ok := update["$set"].(bson.M)
	if !ok {
		set = bson.M{}
		update["$set"] = set
	}
	set["last_edited_at"] = time.Now().UTC()

	col, err := s.db.Users(ctx)
	if err != nil {
		return err
	}
	_, err = col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// detailsAlreadyExist reports whether another user (different id) holds the
// same normalized username.
func (s *UserStore) detailsAlreadyExist(ctx context.Context, u *User) (bool, error) {
	s.configureDefaults(u)

	col, err := s.db.Users(ctx)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"normalized_username": u.NormalizedUsername,
		"_id":                 bson.M{"$ne": u.ID},
	}
	err = col.FindOne(ctx, filter).Decode(&User{})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// configureDefaults fills the generated id, normalized username/email, and
// the last-edited stamp.
func (s *UserStore) configureDefaults(u *User) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	norm := Normalize(u.Username)
	if u.NormalizedUsername == "" || u.NormalizedUsername != norm {
		u.NormalizedUsername = norm
	}
	normEmail := Normalize(u.Email)
	if u.NormalizedEmail == "" || u.NormalizedEmail != normEmail {
		u.NormalizedEmail = normEmail
	}
	u.LastEditedAt = time.Now().UTC()
}

func caseInsensitiveExact(s string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(s) + "$", Options: "i"}
}

func isDuplicateKey(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
