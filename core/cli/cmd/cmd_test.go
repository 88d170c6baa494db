package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/shared/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_EndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FANOUT_PROFILES_PATH", filepath.Join(t.TempDir(), "connections.yaml"))

	east := testutil.NewSQLiteFile(t, "east",
		"CREATE TABLE users (id INTEGER, name TEXT)",
		"INSERT INTO users VALUES (1, 'ann'), (2, 'bob')",
	)
	west := testutil.NewSQLiteFile(t, "west",
		"CREATE TABLE users (id INTEGER, name TEXT, email TEXT)",
		"INSERT INTO users VALUES (2, 'bea', 'b@w')",
	)

	out, err := run(t, "connections", "add", "east", "--kind", "sqlite", "--database", east, "--validate=true")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Registered 'east' (sqlite, validated)")

	out, err = run(t, "connections", "add", "west", "--kind", "sqlite", "--database", west, "--validate=false")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Registered 'west' (sqlite, registered)")

	_, err = run(t, "connections", "add", "west", "--kind", "sqlite", "--database", west, "--validate=false")
	assert.Error(t, err, "duplicate names are rejected")

	out, err = run(t, "connections", "list", "--output", "json")
	require.NoError(t, err)
	var list []domain.ProfileSummary
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "east", list[0].Name)
	assert.Equal(t, "west", list[1].Name)

	out, err = run(t, "query", "SELECT * FROM users ORDER BY id", "-c", "east,west", "--merge", "union", "--key", "", "-o", "table")
	require.NoError(t, err, out)
	assert.Contains(t, out, "_source_db")
	assert.Contains(t, out, "3 row(s) merged by union from 2 connection(s)")
	assert.Contains(t, out, "NULL")

	out, err = run(t, "query", "SELECT id, name FROM users", "-c", "", "--merge", "join", "--key", "id", "-o", "json")
	require.NoError(t, err, out)
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []any{"id", "name_east", "name_west"}, resp["columns"])

	_, err = run(t, "query", "SELECT 1", "-c", "", "--merge", "join", "--key", "", "-o", "table")
	assert.Error(t, err, "join needs a key")

	out, err = run(t, "compare", "-c", "", "-o", "table")
	require.NoError(t, err, out)
	assert.Contains(t, out, "email")
	assert.Contains(t, out, "missing in east")

	out, err = run(t, "connections", "remove", "west")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 'west'")

	_, err = run(t, "connections", "validate", "west")
	assert.Error(t, err)
}

func TestCLI_RejectsUnknownOutput(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FANOUT_PROFILES_PATH", filepath.Join(t.TempDir(), "connections.yaml"))

	_, err := run(t, "connections", "list", "--output", "xml")
	assert.Error(t, err)
	output = "table"
}

func TestWriteRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRows(&buf, []string{"id", "note"}, [][]any{{int64(1), nil}, {int64(2), "a\tb"}, {int64(3), true}}, 2))

	out := buf.String()
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "a b")
	assert.Contains(t, out, "... 1 more row(s)")
	assert.NotContains(t, out, "true")
}

func TestSplitNames(t *testing.T) {
	assert.Nil(t, splitNames(""))
	assert.Equal(t, []string{"a", "b"}, splitNames(" a, ,b "))
}
