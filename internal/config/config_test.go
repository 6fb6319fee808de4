package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/student-management/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
mongodb:
  uri: mongodb://localhost:27017
  database: student_management
auth:
  jwt_secret: test-secret
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "users", cfg.Mongo.UserCollection)
	assert.Equal(t, "roles", cfg.Mongo.RoleCollection)
	assert.Equal(t, "schools", cfg.Mongo.SchoolCollection)
	assert.Equal(t, 5, cfg.Auth.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 15*time.Minute, cfg.LockoutWindow)
	assert.Equal(t, time.Minute, cfg.LoginWindow)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9090
  shutdown_seconds: 5
mongodb:
  uri: mongodb://localhost:27017
  database: student_management
  user_collection: accounts
auth:
  jwt_secret: test-secret
  access_ttl_minutes: 5
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "accounts", cfg.Mongo.UserCollection)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{
			name: "missing mongodb uri",
			contents: `
mongodb:
  database: student_management
auth:
  jwt_secret: test-secret
`,
			wantErr: "mongodb.uri is required",
		},
		{
			name: "missing database",
			contents: `
mongodb:
  uri: mongodb://localhost:27017
auth:
  jwt_secret: test-secret
`,
			wantErr: "mongodb.database is required",
		},
		{
			name: "missing jwt secret",
			contents: `
mongodb:
  uri: mongodb://localhost:27017
  database: student_management
`,
			wantErr: "auth.jwt_secret is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.contents))
			require.Error(t, err)
			assert.EqualError(t, err, tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
