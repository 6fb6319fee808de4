package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RoleStore is the persistence adapter for role documents. Role renames only
// touch the role collection; embedded snapshots on users keep the old name
// until membership is re-written, which is the deliberate denormalization
// tradeoff of the data model.
type RoleStore struct {
	db       *Context
	disposed bool
}

// NewRoleStore builds a store over the given database context.
func NewRoleStore(db *Context) (*RoleStore, error) {
	if db == nil {
		return nil, ErrNilArgument
	}
	return &RoleStore{db: db}, nil
}

// Dispose marks the store unusable.
func (s *RoleStore) Dispose() {
	s.disposed = true
}

func (s *RoleStore) checkState(r *Role) error {
	if s.disposed {
		return ErrStoreDisposed
	}
	if r == nil {
		return ErrNilArgument
	}
	return nil
}

// Create inserts the role after verifying no other role holds the same
// normalized name.
func (s *RoleStore) Create(ctx context.Context, r *Role) error {
	if err := s.checkState(r); err != nil {
		return err
	}
	exists, err := s.nameAlreadyExists(ctx, r)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRole, r.Name)
	}

	s.configureDefaults(r)

	col, err := s.db.Roles(ctx)
	if err != nil {
		return err
	}
	if _, err := col.InsertOne(ctx, r); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, r.Name)
		}
		return err
	}
	return nil
}

// Update re-checks name uniqueness and replaces the document by id with
// upsert semantics. Embedded copies on users are not rewritten.
func (s *RoleStore) Update(ctx context.Context, r *Role) error {
	if err := s.checkState(r); err != nil {
		return err
	}
	exists, err := s.nameAlreadyExists(ctx, r)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRole, r.Name)
	}

	s.configureDefaults(r)

	col, err := s.db.Roles(ctx)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := col.ReplaceOne(ctx, bson.M{"_id": r.ID}, r, opts); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, r.Name)
		}
		return err
	}
	return nil
}

// Delete removes the role document. Absent ids are not an error.
func (s *RoleStore) Delete(ctx context.Context, r *Role) error {
	if err := s.checkState(r); err != nil {
		return err
	}
	col, err := s.db.Roles(ctx)
	if err != nil {
		return err
	}
	_, err = col.DeleteOne(ctx, bson.M{"_id": r.ID})
	return err
}

// FindByID returns the role with the given id, or nil when absent.
func (s *RoleStore) FindByID(ctx context.Context, id string) (*Role, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	if id == "" {
		return nil, nil
	}
	col, err := s.db.Roles(ctx)
	if err != nil {
		return nil, err
	}
	var r Role
	err = col.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FindByName looks a role up by normalized name; nil when absent.
func (s *RoleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	if Normalize(name) == "" {
		return nil, nil
	}
	col, err := s.db.Roles(ctx)
	if err != nil {
		return nil, err
	}
	var r Role
	err = col.FindOne(ctx, bson.M{"normalized_name": Normalize(name)}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns all roles.
func (s *RoleStore) List(ctx context.Context) ([]*Role, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	col, err := s.db.Roles(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var roles []*Role
	if err := cur.All(ctx, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *RoleStore) nameAlreadyExists(ctx context.Context, r *Role) (bool, error) {
	s.configureDefaults(r)

	col, err := s.db.Roles(ctx)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"normalized_name": r.NormalizedName,
		"_id":             bson.M{"$ne": r.ID},
	}
	err = col.FindOne(ctx, filter).Decode(&Role{})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RoleStore) configureDefaults(r *Role) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	norm := Normalize(r.Name)
	if r.NormalizedName == "" || r.NormalizedName != norm {
		r.NormalizedName = norm
	}
}
