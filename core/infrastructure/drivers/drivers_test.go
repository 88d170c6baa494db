package drivers

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/shared/testutil"
)

func TestNewSet(t *testing.T) {
	set := NewSet()
	for _, kind := range []domain.BackendKind{domain.BackendPostgres, domain.BackendMySQL, domain.BackendSQLite} {
		d, ok := set[kind]
		require.True(t, ok, "missing driver for %s", kind)
		assert.Equal(t, kind, d.Kind())
	}
	_, ok := set["oracle"]
	assert.False(t, ok)
}

func TestSQLite_ExecuteAndDescribe(t *testing.T) {
	path := testutil.NewSQLiteFile(t, "users",
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, score REAL)`,
		`INSERT INTO users (id, name, score) VALUES (1, 'alice', 1.5), (2, 'bob', NULL)`,
	)
	ctx := context.Background()

	h, err := NewSQLite().Connect(ctx, domain.DialParameters{Database: path}, interfaces.PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.Ping(ctx))

	res, err := h.Execute(ctx, "SELECT id, name, score FROM users ORDER BY id")
	require.NoError(t, err)
	require.Len(t, res.Columns, 3)
	assert.Equal(t, "id", res.Columns[0].Name)
	assert.Equal(t, "INTEGER", strings.ToUpper(res.Columns[0].DatabaseType))
	assert.Equal(t, "name", res.Columns[1].Name)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(1), res.Rows[0][0])
	assert.Equal(t, "alice", res.Rows[0][1])
	assert.Equal(t, 1.5, res.Rows[0][2])
	assert.Nil(t, res.Rows[1][2])

	tables, err := h.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	users, ok := tables.Lookup("users")
	require.True(t, ok)
	require.Len(t, users.Columns, 3)
	assert.Equal(t, domain.Column{Name: "id", Type: "INTEGER", Nullable: false}, users.Columns[0])
	assert.Equal(t, domain.Column{Name: "name", Type: "TEXT", Nullable: false}, users.Columns[1])
	assert.Equal(t, domain.Column{Name: "score", Type: "REAL", Nullable: true}, users.Columns[2])
}

func TestSQLite_EmptyResultKeepsColumns(t *testing.T) {
	path := testutil.NewSQLiteFile(t, "empty", `CREATE TABLE t (a INTEGER, b TEXT)`)
	ctx := context.Background()

	h, err := NewSQLite().Connect(ctx, domain.DialParameters{Database: path}, interfaces.PoolOptions{})
	require.NoError(t, err)
	defer h.Close()

	res, err := h.Execute(ctx, "SELECT a, b FROM t")
	require.NoError(t, err)
	assert.Len(t, res.Columns, 2)
	assert.Empty(t, res.Rows)
}

func TestSQLite_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := NewSQLite().Connect(ctx, domain.DialParameters{Database: filepath.Join(t.TempDir(), "nope.db")}, interfaces.PoolOptions{})
		require.Error(t, err)
	})

	t.Run("bad statement", func(t *testing.T) {
		path := testutil.NewSQLiteFile(t, "bad")
		h, err := NewSQLite().Connect(ctx, domain.DialParameters{Database: path}, interfaces.PoolOptions{})
		require.NoError(t, err)
		defer h.Close()

		_, err = h.Execute(ctx, "SELECT * FROM missing_table")
		assert.Error(t, err)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		path := testutil.NewSQLiteFile(t, "close")
		h, err := NewSQLite().Connect(ctx, domain.DialParameters{Database: path}, interfaces.PoolOptions{})
		require.NoError(t, err)
		assert.NoError(t, h.Close())
		assert.NoError(t, h.Close())
	})
}

func TestPostgresConnString(t *testing.T) {
	params := domain.DialParameters{
		Host:     "db",
		Database: "app",
		User:     "u",
		Password: "secret",
		Options:  map[string]string{"sslmode": "disable", "schema": "sales"},
	}
	assert.Equal(t, "postgres://u:secret@db:5432/app?sslmode=disable", postgresConnString(params))

	params = domain.DialParameters{Database: "app", Port: 6543}
	assert.Equal(t, "postgres://localhost:6543/app", postgresConnString(params))
}

func TestMySQLDSN(t *testing.T) {
	t.Setenv("FANOUT_TEST_MYSQL_PASSWORD", "pw")
	dsn := mysqlDSN(domain.DialParameters{
		Host:        "db.example",
		Database:    "app",
		User:        "root",
		PasswordEnv: "FANOUT_TEST_MYSQL_PASSWORD",
	})

	assert.True(t, strings.HasPrefix(dsn, "root:pw@tcp(db.example:3306)/app"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
}

func paramsFromURL(t *testing.T, raw string, defaultPort int) domain.DialParameters {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	password, _ := u.User.Password()
	params := domain.DialParameters{
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		User:     u.User.Username(),
		Password: password,
		Port:     defaultPort,
		Options:  map[string]string{},
	}
	for key, values := range u.Query() {
		params.Options[key] = values[0]
	}
	return params
}

func TestPostgres_Integration(t *testing.T) {
	raw := os.Getenv("FANOUT_TEST_POSTGRES_URL")
	if raw == "" {
		t.Skip("FANOUT_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	h, err := NewPostgres().Connect(ctx, paramsFromURL(t, raw, 5432), interfaces.PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Ping(ctx))
	res, err := h.Execute(ctx, "SELECT 1::int8 AS one, 'x'::text AS label")
	require.NoError(t, err)
	assert.Equal(t, "int8", res.Columns[0].DatabaseType)
	assert.Equal(t, int64(1), res.Rows[0][0])

	_, err = h.Describe(ctx)
	assert.NoError(t, err)
}

func TestMySQL_Integration(t *testing.T) {
	raw := os.Getenv("FANOUT_TEST_MYSQL_URL")
	if raw == "" {
		t.Skip("FANOUT_TEST_MYSQL_URL not set")
	}
	ctx := context.Background()

	h, err := NewMySQL().Connect(ctx, paramsFromURL(t, raw, 3306), interfaces.PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Ping(ctx))
	res, err := h.Execute(ctx, "SELECT 1 AS one")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	_, err = h.Describe(ctx)
	assert.NoError(t, err)
}
