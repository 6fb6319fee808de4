package identity_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/student-management/internal/identity"
)

// Store-level tests run against a real MongoDB when MONGO_TEST_URI is set
// (e.g. mongodb://localhost:27017). Each test gets a throwaway database.

func newTestStores(t *testing.T) (context.Context, *identity.UserStore, *identity.RoleStore) {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set; skipping store tests")
	}

	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("identity_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	dbCtx := identity.NewContext(db, identity.ContextConfig{EnsureIndexes: true})
	users, err := identity.NewUserStore(dbCtx)
	require.NoError(t, err)
	roles, err := identity.NewRoleStore(dbCtx)
	require.NoError(t, err)
	return ctx, users, roles
}

func TestCreate_DuplicateNormalizedUsernameFails(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	first := identity.NewUser("alice")
	require.NoError(t, store.Create(ctx, first))

	// Different case and trailing whitespace still collide.
	second := identity.NewUser("Alice ")
	err := store.Create(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrDuplicateUser)
}

func TestCreate_ThenFindByIDRoundTrips(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	u := identity.NewUser("alice")
	u.Email = "Alice@X.com"
	u.Phone = "+15551234"
	u.FirstName = "Alice"
	u.City = "Springfield"
	u.Claims = []identity.Claim{{Type: "permission", Value: "read"}}
	require.NoError(t, store.Create(ctx, u))

	got, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "alice", got.NormalizedUsername)
	assert.Equal(t, "Alice@X.com", got.Email)
	assert.Equal(t, "alice@x.com", got.NormalizedEmail)
	assert.Equal(t, "+15551234", got.Phone)
	assert.Equal(t, "Springfield", got.City)
	assert.Equal(t, u.Claims, got.Claims)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestFindByID_AbsentReturnsNilNotError(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	got, err := store.FindByID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdate_RenameKeepsNormalizedLookup(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	u := identity.NewUser("alice")
	u.Email = "alice@x.com"
	require.NoError(t, store.Create(ctx, u))

	// Rename with different case and trailing whitespace; normalization must
	// keep the same canonical lookup key.
	u.Username = "ALICE "
	require.NoError(t, store.Update(ctx, u))

	got, err := store.FindByName(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "ALICE ", got.Username)

	// A second user colliding on the normalized name is still rejected.
	dup := identity.NewUser("Alice")
	err = store.Create(ctx, dup)
	assert.ErrorIs(t, err, identity.ErrDuplicateUser)
}

func TestUpdate_RenamingOntoExistingUserFails(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	a := identity.NewUser("alice")
	b := identity.NewUser("bob")
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	b.Username = "Alice"
	err := store.Update(ctx, b)
	assert.ErrorIs(t, err, identity.ErrDuplicateUser)
}

func TestDelete_AbsentIDIsNoError(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	u := identity.NewUser("ghost")
	assert.NoError(t, store.Delete(ctx, u))
}

func TestAddToRole_RequiresExistingRole(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	u := identity.NewUser("alice")
	require.NoError(t, store.Create(ctx, u))

	err := store.AddToRole(ctx, u, "ghost-role")
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrRoleNotFound)
	assert.Empty(t, u.Roles, "failed grant must leave the role list unchanged")
}

func TestAddToRole_IsIdempotent(t *testing.T) {
	ctx, store, roles := newTestStores(t)

	require.NoError(t, roles.Create(ctx, identity.NewRole("Admin")))

	u := identity.NewUser("alice")
	require.NoError(t, store.Create(ctx, u))

	require.NoError(t, store.AddToRole(ctx, u, "Admin"))
	afterFirst, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)

	// Second grant is a no-op with no write: the persisted document keeps
	// the single entry and the last-edited stamp does not move.
	require.NoError(t, store.AddToRole(ctx, u, "Admin"))
	afterSecond, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)

	require.Len(t, afterSecond.Roles, 1)
	assert.Equal(t, "admin", afterSecond.Roles[0].NormalizedName)
	assert.Equal(t, afterFirst.LastEditedAt, afterSecond.LastEditedAt)

	member, err := store.IsInRole(u, "ADMIN")
	require.NoError(t, err)
	assert.True(t, member)
}

func TestRemoveFromRole_MatchesNormalizedName(t *testing.T) {
	ctx, store, roles := newTestStores(t)

	require.NoError(t, roles.Create(ctx, identity.NewRole("Teacher")))

	u := identity.NewUser("alice")
	require.NoError(t, store.Create(ctx, u))
	require.NoError(t, store.AddToRole(ctx, u, "teacher"))

	require.NoError(t, store.RemoveFromRole(ctx, u, "TEACHER"))
	assert.Empty(t, u.Roles)

	got, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Roles)
}

func TestUsersInRole_FindsEmbeddedMembers(t *testing.T) {
	ctx, store, roles := newTestStores(t)

	require.NoError(t, roles.Create(ctx, identity.NewRole("Student")))

	a := identity.NewUser("alice")
	b := identity.NewUser("bob")
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))
	require.NoError(t, store.AddToRole(ctx, a, "Student"))

	members, err := store.UsersInRole(ctx, "student")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, a.ID, members[0].ID)
}

func TestAddLogin_ReplacesSameProvider(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	u := identity.NewUser("alice")
	require.NoError(t, store.Create(ctx, u))

	require.NoError(t, store.AddLogin(ctx, u, identity.UserLogin{Provider: "google", ProviderKey: "old-key"}))
	require.NoError(t, store.AddLogin(ctx, u, identity.UserLogin{Provider: "google", ProviderKey: "new-key"}))
	require.NoError(t, store.AddLogin(ctx, u, identity.UserLogin{Provider: "github", ProviderKey: "gh-key"}))

	got, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Logins, 2)

	var googleKeys []string
	for _, l := range got.Logins {
		if l.Provider == "google" {
			googleKeys = append(googleKeys, l.ProviderKey)
		}
	}
	assert.Equal(t, []string{"new-key"}, googleKeys)
}

func TestFindByLogin_IsCaseInsensitive(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	u := identity.NewUser("alice")
	require.NoError(t, store.Create(ctx, u))
	require.NoError(t, store.AddLogin(ctx, u, identity.UserLogin{Provider: "Google", ProviderKey: "Key-123"}))

	got, err := store.FindByLogin(ctx, "google", "key-123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	missing, err := store.FindByLogin(ctx, "google", "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAddClaims_SetSemantics(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	u := identity.NewUser("alice")
	require.NoError(t, store.Create(ctx, u))

	read := identity.Claim{Type: "permission", Value: "read"}
	write := identity.Claim{Type: "permission", Value: "write"}

	require.NoError(t, store.AddClaims(ctx, u, []identity.Claim{read}))
	afterFirst, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)

	// Re-adding an existing claim is a no-op with no write.
	require.NoError(t, store.AddClaims(ctx, u, []identity.Claim{read}))
	afterSecond, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, afterSecond.Claims, 1)
	assert.Equal(t, afterFirst.LastEditedAt, afterSecond.LastEditedAt)

	require.NoError(t, store.AddClaims(ctx, u, []identity.Claim{read, write}))
	afterThird, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, afterThird.Claims, 2)
}

func TestRemoveClaims_RemovesMatchesLeavesRest(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	read := identity.Claim{Type: "permission", Value: "read"}
	write := identity.Claim{Type: "permission", Value: "write"}

	u := identity.NewUser("alice")
	u.Claims = []identity.Claim{read, write}
	require.NoError(t, store.Create(ctx, u))

	require.NoError(t, store.RemoveClaims(ctx, u, []identity.Claim{read}))
	got, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Claims, 1)
	assert.Equal(t, write, got.Claims[0])

	// Removing an absent claim is a no-op with no write.
	require.NoError(t, store.RemoveClaims(ctx, u, []identity.Claim{read}))
	after, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, got.LastEditedAt, after.LastEditedAt)
}

func TestReplaceClaim_RewritesMatchingEntries(t *testing.T) {
	ctx, store, _ := newTestStores(t)

	old := identity.Claim{Type: "permission", Value: "read"}
	repl := identity.Claim{Type: "permission", Value: "read-write"}

	u := identity.NewUser("alice")
	u.Claims = []identity.Claim{old}
	require.NoError(t, store.Create(ctx, u))

	require.NoError(t, store.ReplaceClaim(ctx, u, old, repl))
	got, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, got.Claims, 1)
	assert.Equal(t, repl, got.Claims[0])
}

func TestUsersForClaim_SearchesRoleInheritedClaims(t *testing.T) {
	ctx, store, roles := newTestStores(t)

	grade := identity.Claim{Type: "permission", Value: "grade"}
	teacher := identity.NewRole("Teacher")
	teacher.Claims = []identity.Claim{grade}
	require.NoError(t, roles.Create(ctx, teacher))

	direct := identity.NewUser("alice")
	direct.Claims = []identity.Claim{grade}
	require.NoError(t, store.Create(ctx, direct))

	inherited := identity.NewUser("bob")
	require.NoError(t, store.Create(ctx, inherited))
	require.NoError(t, store.AddToRole(ctx, inherited, "teacher"))

	unrelated := identity.NewUser("carol")
	require.NoError(t, store.Create(ctx, unrelated))

	found, err := store.UsersForClaim(ctx, grade)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, f := range found {
		ids[f.ID] = true
	}
	assert.Len(t, found, 2)
	assert.True(t, ids[direct.ID])
	assert.True(t, ids[inherited.ID])
}

func TestRoleStore_DuplicateNormalizedNameFails(t *testing.T) {
	ctx, _, roles := newTestStores(t)

	require.NoError(t, roles.Create(ctx, identity.NewRole("Admin")))
	err := roles.Create(ctx, identity.NewRole("admin "))
	assert.ErrorIs(t, err, identity.ErrDuplicateRole)
}

func TestSubFieldUpdates_StampLastEdited(t *testing.T) {
	ctx, store, roles := newTestStores(t)

	require.NoError(t, roles.Create(ctx, identity.NewRole("Admin")))
	u := identity.NewUser("alice")
	require.NoError(t, store.Create(ctx, u))

	before, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.AddToRole(ctx, u, "Admin"))

	after, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, after.LastEditedAt.After(before.LastEditedAt))
}

// Disposal needs no database: the flag is checked before any collection
// access.

func TestDisposedStore_RejectsAllOperations(t *testing.T) {
	dbCtx := identity.NewContext(nil, identity.ContextConfig{})
	store, err := identity.NewUserStore(dbCtx)
	require.NoError(t, err)

	store.Dispose()
	ctx := context.Background()
	u := identity.NewUser("alice")

	assert.ErrorIs(t, store.Create(ctx, u), identity.ErrStoreDisposed)
	assert.ErrorIs(t, store.Update(ctx, u), identity.ErrStoreDisposed)
	assert.ErrorIs(t, store.Delete(ctx, u), identity.ErrStoreDisposed)

	_, err = store.FindByID(ctx, "x")
	assert.ErrorIs(t, err, identity.ErrStoreDisposed)
	_, err = store.FindByName(ctx, "alice")
	assert.ErrorIs(t, err, identity.ErrStoreDisposed)
	_, err = store.FindByLogin(ctx, "google", "key")
	assert.ErrorIs(t, err, identity.ErrStoreDisposed)

	assert.ErrorIs(t, store.SetPasswordHash(u, "h"), identity.ErrStoreDisposed)
	assert.ErrorIs(t, store.SetSecurityStamp(u, "s"), identity.ErrStoreDisposed)
	_, err = store.IncrementAccessFailed(u)
	assert.ErrorIs(t, err, identity.ErrStoreDisposed)
}

func TestStore_NilUserIsValidationError(t *testing.T) {
	dbCtx := identity.NewContext(nil, identity.ContextConfig{})
	store, err := identity.NewUserStore(dbCtx)
	require.NoError(t, err)

	assert.ErrorIs(t, store.Create(context.Background(), nil), identity.ErrNilArgument)
	assert.ErrorIs(t, store.SetPasswordHash(nil, "h"), identity.ErrNilArgument)
	_, err = store.Claims(nil)
	assert.ErrorIs(t, err, identity.ErrNilArgument)
}
