package identity

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ContextConfig names the two identity collections and controls whether
// supporting indexes are created on first access.
type ContextConfig struct {
	UserCollection string
	RoleCollection string
	EnsureIndexes  bool
}

// Context resolves the user and role collections. Collection handles and
// index creation are resolved once and cached; configuration changes after
// first access have no effect. Dropping a collection resets its index guard
// so test tooling can recreate it.
type Context struct {
	db  *mongo.Database
	cfg ContextConfig

	mu              sync.Mutex
	userCol         *mongo.Collection
	roleCol         *mongo.Collection
	userIndexesDone bool
	roleIndexesDone bool
}

// NewContext wraps a connected database. Empty collection names fall back to
// "users" and "roles".
func NewContext(db *mongo.Database, cfg ContextConfig) *Context {
	if cfg.UserCollection == "" {
		cfg.UserCollection = "users"
	}
	if cfg.RoleCollection == "" {
		cfg.RoleCollection = "roles"
	}
	return &Context{db: db, cfg: cfg}
}

// Users returns the user collection, creating it and its indexes on first
// access when EnsureIndexes is set.
func (c *Context) Users(ctx context.Context) (*mongo.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userCol != nil {
		return c.userCol, nil
	}
	if c.db == nil {
		return nil, errors.New("identity: database is not configured")
	}
	if c.cfg.EnsureIndexes && !c.userIndexesDone {
		if err := c.ensureUserIndexes(ctx); err != nil {
			return nil, err
		}
		c.userIndexesDone = true
	}
	c.userCol = c.db.Collection(c.cfg.UserCollection)
	return c.userCol, nil
}

// Roles returns the role collection, creating it and its indexes on first
// access when EnsureIndexes is set.
func (c *Context) Roles(ctx context.Context) (*mongo.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.roleCol != nil {
		return c.roleCol, nil
	}
	if c.db == nil {
		return nil, errors.New("identity: database is not configured")
	}
	if c.cfg.EnsureIndexes && !c.roleIndexesDone {
		if err := c.ensureRoleIndexes(ctx); err != nil {
			return nil, err
		}
		c.roleIndexesDone = true
	}
	c.roleCol = c.db.Collection(c.cfg.RoleCollection)
	return c.roleCol, nil
}

// DropUserCollection permanently deletes the user collection, including all
// indexes and data, and resets the index guard. Test/reset tooling only.
func (c *Context) DropUserCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.Collection(c.cfg.UserCollection).Drop(ctx); err != nil {
		return err
	}
	c.userCol = nil
	c.userIndexesDone = false
	return nil
}

// DropRoleCollection permanently deletes the role collection, including all
// indexes and data, and resets the index guard. Test/reset tooling only.
func (c *Context) DropRoleCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.Collection(c.cfg.RoleCollection).Drop(ctx); err != nil {
		return err
	}
	c.roleCol = nil
	c.roleIndexesDone = false
	return nil
}

func (c *Context) ensureUserIndexes(ctx context.Context) error {
	if err := c.createCollectionIfAbsent(ctx, c.cfg.UserCollection); err != nil {
		return err
	}

	col := c.db.Collection(c.cfg.UserCollection)
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "normalized_username", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "normalized_email", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "roles.normalized_name", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "logins.provider", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "claims.type", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "roles.claims.type", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})
	return err
}

func (c *Context) ensureRoleIndexes(ctx context.Context) error {
	if err := c.createCollectionIfAbsent(ctx, c.cfg.RoleCollection); err != nil {
		return err
	}

	col := c.db.Collection(c.cfg.RoleCollection)
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "normalized_name", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	return err
}

func (c *Context) createCollectionIfAbsent(ctx context.Context, name string) error {
	names, err := c.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return nil
	}
	return c.db.CreateCollection(ctx, name)
}
