package replay

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/caseforge/caseforge/internal/apispec"
	"github.com/caseforge/caseforge/internal/infra/logger"
)

// DBClient holds the named database connections an environment profile
// declares, for use by case scripts.
type DBClient struct {
	pools map[string]*sql.DB
}

// NewDBClient opens a pool per configured database. Only MySQL is
// supported; other types are rejected up front.
func NewDBClient(configs []apispec.DatabaseConfig) (*DBClient, error) {
	client := &DBClient{pools: map[string]*sql.DB{}}
	for _, cfg := range configs {
		if cfg.Type != "mysql" {
			client.Close()
			return nil, fmt.Errorf("database %q: unsupported type %q", cfg.Name, cfg.Type)
		}
		dsn, err := mysqlDSN(cfg.Config)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("database %q: %w", cfg.Name, err)
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("database %q: %w", cfg.Name, err)
		}
		client.pools[cfg.Name] = db
		logger.Debug("registered database connection", logger.String("name", cfg.Name))
	}
	return client, nil
}

func mysqlDSN(cfg map[string]any) (string, error) {
	host, _ := cfg["host"].(string)
	if host == "" {
		return "", fmt.Errorf("missing host")
	}
	port := 3306
	if p, ok := toInt(cfg["port"]); ok && p > 0 {
		port = p
	}
	user, _ := cfg["user"].(string)
	password, _ := cfg["password"].(string)
	database, _ := cfg["database"].(string)
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", user, password, host, port, database), nil
}

// Query runs a SQL statement against the named connection and returns
// the rows as maps keyed by column name.
func (c *DBClient) Query(name, query string) ([]map[string]any, error) {
	db, ok := c.pools[name]
	if !ok {
		return nil, fmt.Errorf("unknown database connection %q", name)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query database %q: %w", name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close releases every pool. Safe on a nil client.
func (c *DBClient) Close() {
	if c == nil {
		return
	}
	for name, db := range c.pools {
		if err := db.Close(); err != nil {
			logger.Warn("closing database connection", logger.String("name", name), logger.Err(err))
		}
	}
}
