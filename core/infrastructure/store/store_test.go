package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/fanout/core/domain"
)

var sample = []domain.ProfileSummary{
	{Name: "pg", Kind: domain.BackendPostgres, Host: "db", Port: 5432, Database: "app", User: "u", PasswordEnv: "PG_PASSWORD"},
	{Name: "local", Kind: domain.BackendSQLite, Database: "/data/local.db", Options: map[string]string{"_pragma": "busy_timeout(5000)"}},
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "connections.yaml")
	s := NewFileStore(path)
	ctx := context.Background()

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	withState := append([]domain.ProfileSummary(nil), sample...)
	withState[0].State = domain.StateFailed
	withState[0].LastError = "refused"
	require.NoError(t, s.Save(ctx, withState))

	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, loaded, "runtime state is not persisted")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "refused")
	assert.Contains(t, string(data), "password_env: PG_PASSWORD")
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connections: [unterminated"), 0600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	url := os.Getenv("FANOUT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FANOUT_TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	s, err := NewRedisStore(ctx, url)
	require.NoError(t, err)
	s.key = "fanout:test:connections"
	t.Cleanup(func() {
		s.client.Del(context.Background(), s.key)
		s.Close()
	})

	require.NoError(t, s.Save(ctx, sample))
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, loaded)

	require.NoError(t, s.Save(ctx, sample[1:]))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample[1:], loaded)
}
