package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
)

const memoryDatabase = ":memory:"

// SQLite implements interfaces.Driver for file-based SQLite databases.
// The profile's Database parameter is the file path.
type SQLite struct{}

// NewSQLite creates the SQLite driver
func NewSQLite() *SQLite {
	return &SQLite{}
}

func (d *SQLite) Kind() domain.BackendKind {
	return domain.BackendSQLite
}

// Connect opens the database file. A missing file is an error rather than
// an implicit create.
func (d *SQLite) Connect(ctx context.Context, params domain.DialParameters, pool interfaces.PoolOptions) (interfaces.Handle, error) {
	log := logging.New("driver:sqlite")
	log.Debugf("Opening SQLite database %s", params.Database)

	path := params.Database
	if path != memoryDatabase && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(params))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return newSQLHandle(db, "driver:sqlite", pool, describeSQLite), nil
}

func sqliteDSN(params domain.DialParameters) string {
	if len(params.Options) == 0 {
		return params.Database
	}
	query := url.Values{}
	for key, value := range params.Options {
		query.Set(key, value)
	}
	sep := "?"
	if strings.Contains(params.Database, "?") {
		sep = "&"
	}
	return params.Database + sep + query.Encode()
}

func describeSQLite(ctx context.Context, db *sql.DB) (domain.TableList, error) {
	names, err := sqliteTableNames(ctx, db)
	if err != nil {
		return nil, err
	}

	tables := make(domain.TableList, 0, len(names))
	for _, name := range names {
		table, err := sqliteTableInfo(ctx, db, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func sqliteTableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func sqliteTableInfo(ctx context.Context, db *sql.DB, name string) (domain.Table, error) {
	quoted := `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoted+")")
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to describe table '%s': %w", name, err)
	}
	defer rows.Close()

	table := domain.Table{Name: name, Columns: []domain.Column{}}
	for rows.Next() {
		var (
			cid, notNull, pk int
			column, typ      string
			defaultValue     sql.NullString
		)
		if err := rows.Scan(&cid, &column, &typ, &notNull, &defaultValue, &pk); err != nil {
			return domain.Table{}, fmt.Errorf("failed to scan column of '%s': %w", name, err)
		}
		table.Columns = append(table.Columns, domain.Column{Name: column, Type: typ, Nullable: notNull == 0 && pk == 0})
	}
	return table, rows.Err()
}
