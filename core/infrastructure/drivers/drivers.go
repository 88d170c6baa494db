// Package drivers implements the backend capability interface for the
// supported database kinds.
package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
)

// Set maps each backend kind to the driver that serves it.
type Set map[domain.BackendKind]interfaces.Driver

// NewSet returns the drivers for every supported backend.
func NewSet() Set {
	return Set{
		domain.BackendPostgres: NewPostgres(),
		domain.BackendMySQL:    NewMySQL(),
		domain.BackendSQLite:   NewSQLite(),
	}
}

type describeFunc func(ctx context.Context, db *sql.DB) (domain.TableList, error)

// sqlHandle is a Handle backed by a database/sql pool. MySQL and SQLite
// share it and differ only in how they describe their schema.
type sqlHandle struct {
	db       *sql.DB
	tag      string
	describe describeFunc
	closeMu  sync.Once
	closeErr error
}

func newSQLHandle(db *sql.DB, tag string, pool interfaces.PoolOptions, describe describeFunc) *sqlHandle {
	if pool.MaxConns > 0 {
		db.SetMaxOpenConns(pool.MaxConns)
		db.SetMaxIdleConns(pool.MaxConns)
	}
	return &sqlHandle{db: db, tag: tag, describe: describe}
}

func (h *sqlHandle) Ping(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (h *sqlHandle) Execute(ctx context.Context, statement string) (*domain.RawResult, error) {
	rows, err := h.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func (h *sqlHandle) Describe(ctx context.Context) (domain.TableList, error) {
	return h.describe(ctx, h.db)
}

func (h *sqlHandle) Close() error {
	h.closeMu.Do(func() {
		log := logging.New(h.tag)
		log.Debugf("Closing connection pool")
		h.closeErr = h.db.Close()
		if h.closeErr != nil {
			log.Errorf("Error closing connection pool: %v", h.closeErr)
		}
	})
	return h.closeErr
}

// scanRows reads every row into driver-native values along with each
// column's database type name.
func scanRows(rows *sql.Rows) (*domain.RawResult, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &domain.RawResult{
		Columns: make([]domain.RawColumn, len(types)),
		Rows:    [][]any{},
	}
	for i, ct := range types {
		result.Columns[i] = domain.RawColumn{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(types))
		valuePtrs := make([]any, len(types))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// collectColumns groups (table, column, type, nullable) rows ordered by table
// and ordinal position into a TableList.
func collectColumns(rows *sql.Rows) (domain.TableList, error) {
	tables := domain.TableList{}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column description: %w", err)
		}
		tables = appendColumn(tables, table, domain.Column{
			Name:     column,
			Type:     dataType,
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column descriptions: %w", err)
	}
	return tables, nil
}

func appendColumn(tables domain.TableList, table string, col domain.Column) domain.TableList {
	if n := len(tables); n > 0 && tables[n-1].Name == table {
		tables[n-1].Columns = append(tables[n-1].Columns, col)
		return tables
	}
	return append(tables, domain.Table{Name: table, Columns: []domain.Column{col}})
}
