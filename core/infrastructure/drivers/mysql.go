package drivers

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
)

// MySQL implements interfaces.Driver for MySQL and MariaDB
type MySQL struct{}

// NewMySQL creates the MySQL driver
func NewMySQL() *MySQL {
	return &MySQL{}
}

func (d *MySQL) Kind() domain.BackendKind {
	return domain.BackendMySQL
}

func (d *MySQL) Connect(ctx context.Context, params domain.DialParameters, pool interfaces.PoolOptions) (interfaces.Handle, error) {
	log := logging.New("driver:mysql")
	log.Debugf("Opening MySQL connection pool")

	db, err := sql.Open("mysql", mysqlDSN(params))
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	return newSQLHandle(db, "driver:mysql", pool, describeMySQL), nil
}

// mysqlDSN renders dial parameters in the driver's DSN format. Options are
// passed through as DSN parameters so driver settings such as tls or
// charset are honoured.
func mysqlDSN(params domain.DialParameters) string {
	cfg := mysql.NewConfig()
	cfg.User = params.User
	cfg.Passwd = params.ResolvedPassword()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(params.HostOrDefault(), strconv.Itoa(params.PortOr(domain.BackendMySQL.DefaultPort())))
	cfg.DBName = params.Database
	cfg.ParseTime = true
	if len(params.Options) > 0 {
		cfg.Params = make(map[string]string, len(params.Options))
		for key, value := range params.Options {
			cfg.Params[key] = value
		}
	}
	return cfg.FormatDSN()
}

const mysqlDescribeQuery = `SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE()
ORDER BY TABLE_NAME, ORDINAL_POSITION`

func describeMySQL(ctx context.Context, db *sql.DB) (domain.TableList, error) {
	rows, err := db.QueryContext(ctx, mysqlDescribeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to describe schema: %w", err)
	}
	defer rows.Close()
	return collectColumns(rows)
}
