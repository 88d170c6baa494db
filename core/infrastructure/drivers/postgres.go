package drivers

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
)

// schemaOption selects the schema Describe reports. It is consumed here and
// never forwarded to the server.
const schemaOption = "schema"

// Postgres implements interfaces.Driver for PostgreSQL using pgx/v5
type Postgres struct{}

// NewPostgres creates the PostgreSQL driver
func NewPostgres() *Postgres {
	return &Postgres{}
}

func (d *Postgres) Kind() domain.BackendKind {
	return domain.BackendPostgres
}

// Connect builds a pgx pool. The pool dials lazily, so reachability is only
// proven by Ping.
func (d *Postgres) Connect(ctx context.Context, params domain.DialParameters, pool interfaces.PoolOptions) (interfaces.Handle, error) {
	log := logging.New("driver:postgres")
	log.Debugf("Opening PostgreSQL connection pool (pgx/v5)")

	config, err := pgxpool.ParseConfig(postgresConnString(params))
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection parameters: %w", err)
	}
	if pool.MaxConns > 0 {
		config.MaxConns = int32(pool.MaxConns)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}

	schema := params.Options[schemaOption]
	if schema == "" {
		schema = "public"
	}
	return &postgresHandle{pool: p, schema: schema}, nil
}

func postgresConnString(params domain.DialParameters) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(params.HostOrDefault(), strconv.Itoa(params.PortOr(domain.BackendPostgres.DefaultPort()))),
		Path:   "/" + params.Database,
	}
	if params.User != "" {
		if pw := params.ResolvedPassword(); pw != "" {
			u.User = url.UserPassword(params.User, pw)
		} else {
			u.User = url.User(params.User)
		}
	}

	query := url.Values{}
	for key, value := range params.Options {
		if key == schemaOption {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

type postgresHandle struct {
	pool   *pgxpool.Pool
	schema string
}

func (h *postgresHandle) Ping(ctx context.Context) error {
	if err := h.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres database: %w", err)
	}
	return nil
}

func (h *postgresHandle) Execute(ctx context.Context, statement string) (*domain.RawResult, error) {
	rows, err := h.pool.Query(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	result := &domain.RawResult{
		Columns: make([]domain.RawColumn, len(fieldDescriptions)),
		Rows:    [][]any{},
	}
	typeMap := rows.Conn().TypeMap()
	for i, fd := range fieldDescriptions {
		col := domain.RawColumn{Name: fd.Name}
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			col.DatabaseType = t.Name
		}
		result.Columns[i] = col
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to get row values: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

const postgresDescribeQuery = `SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

func (h *postgresHandle) Describe(ctx context.Context) (domain.TableList, error) {
	rows, err := h.pool.Query(ctx, postgresDescribeQuery, h.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to describe schema '%s': %w", h.schema, err)
	}
	defer rows.Close()

	tables := domain.TableList{}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column description: %w", err)
		}
		tables = appendColumn(tables, table, domain.Column{Name: column, Type: dataType, Nullable: nullable == "YES"})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column descriptions: %w", err)
	}
	return tables, nil
}

// Close closes the connection pool
func (h *postgresHandle) Close() error {
	if h.pool != nil {
		log := logging.New("driver:postgres")
		log.Debugf("Closing PostgreSQL connection pool")
		h.pool.Close()
	}
	return nil
}
