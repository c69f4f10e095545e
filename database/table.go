package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// DefaultBatchSize is the number of rows BulkInsert writes per statement batch
// when TableConfig.BatchSize is not set.
const DefaultBatchSize = 100

var (
	// validIdentifierPattern matches an unquoted table name, optionally
	// schema-qualified.
	validIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	validColumnPattern     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// TableConfig describes the table a cache's entries are stored in.
type TableConfig struct {
	TableNamePrefix string `yaml:"table_prefix"`
	CacheName       string `yaml:"cache"`

	IDColumnName        string `yaml:"id_column"`
	IDColumnType        string `yaml:"id_column_type"`
	DataColumnName      string `yaml:"data_column"`
	DataColumnType      string `yaml:"data_column_type"`
	TimestampColumnName string `yaml:"timestamp_column"`
	TimestampColumnType string `yaml:"timestamp_column_type"`

	// BatchSize bounds the rows per batch in BulkInsert.
	BatchSize int `yaml:"batch_size"`

	// CreateTableOnStart creates the table in Start if it does not exist.
	CreateTableOnStart bool `yaml:"create_table_on_start"`
	// DropTableOnExit drops the table in Stop.
	DropTableOnExit bool `yaml:"drop_table_on_exit"`

	// DatabaseType overrides dialect detection when set.
	DatabaseType string `yaml:"database_type"`
}

// DefaultTableConfig returns column settings that work on PostgreSQL.
func DefaultTableConfig(prefix, cacheName string) TableConfig {
	return TableConfig{
		TableNamePrefix:     prefix,
		CacheName:           cacheName,
		IDColumnName:        "id",
		IDColumnType:        "VARCHAR(255)",
		DataColumnName:      "datum",
		DataColumnType:      "BYTEA",
		TimestampColumnName: "expires_at",
		TimestampColumnType: "BIGINT",
		BatchSize:           DefaultBatchSize,
		CreateTableOnStart:  true,
	}
}

// TableName returns `<prefix>_<cache name>` with dots in the cache name
// replaced by underscores.
func (c TableConfig) TableName() string {
	return c.TableNamePrefix + "_" + strings.ReplaceAll(c.CacheName, ".", "_")
}

// Validate reports every missing or malformed setting at once.
func (c TableConfig) Validate() error {
	var result *multierror.Error

	for _, f := range []struct{ value, name string }{
		{c.IDColumnName, "id column name"},
		{c.IDColumnType, "id column type"},
		{c.TableNamePrefix, "table name prefix"},
		{c.CacheName, "cache name"},
		{c.DataColumnName, "data column name"},
		{c.DataColumnType, "data column type"},
		{c.TimestampColumnName, "timestamp column name"},
		{c.TimestampColumnType, "timestamp column type"},
	} {
		if strings.TrimSpace(f.value) == "" {
			result = multierror.Append(result, fmt.Errorf("%s is required", f.name))
		}
	}

	if c.TableNamePrefix != "" && c.CacheName != "" && !validIdentifierPattern.MatchString(c.TableName()) {
		result = multierror.Append(result, fmt.Errorf("table name %q is not a valid identifier", c.TableName()))
	}
	for _, col := range []string{c.IDColumnName, c.DataColumnName, c.TimestampColumnName} {
		if col != "" && !validColumnPattern.MatchString(col) {
			result = multierror.Append(result, fmt.Errorf("column name %q is not a valid identifier", col))
		}
	}
	if c.BatchSize < 0 {
		result = multierror.Append(result, errors.New("batch size must not be negative"))
	}

	return result.ErrorOrNil()
}

// statements holds every SQL string a Table runs, built once.
type statements struct {
	createTable       string
	dropTable         string
	insertRow         string
	updateRow         string
	selectRow         string
	deleteRow         string
	loadAllRows       string
	loadNonExpired    string
	deleteAllRows     string
	selectExpiredRows string
	deleteExpiredRows string
	loadSomeRows      string // Holds a %d verb when the dialect cannot bind the limit

	// tableExists checks the current schema; tableExistsInSchema takes the
	// schema as its first argument and is empty when the dialect has no schemas.
	tableExists         string
	tableExistsInSchema string
}

// Table stores the entries of one cache. All SQL is generated at construction
// and never changes afterwards.
type Table struct {
	db     DBTX
	cfg    TableConfig
	name   string
	dbType DatabaseType
	sql    statements
	logger *slog.Logger
}

// NewTable validates cfg and prepares the SQL for dbType.
func NewTable(db DBTX, cfg TableConfig, dbType DatabaseType, logger *slog.Logger) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table config: %w", err)
	}
	if _, err := ParseDatabaseType(string(dbType)); err != nil {
		return nil, err
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if limit := dbType.maxBatchRows(); limit > 0 && cfg.BatchSize > limit {
		logger.Warn("batch size exceeds the bind parameter limit of the database, lowering it",
			"batch_size", cfg.BatchSize,
			"max_batch_size", limit,
			"database_type", dbType)
		cfg.BatchSize = limit
	}

	var t = &Table{
		db:     db,
		cfg:    cfg,
		name:   cfg.TableName(),
		dbType: dbType,
		logger: logger,
	}
	t.sql = t.buildStatements()
	return t, nil
}

// OpenTable detects the dialect of db, honouring cfg.DatabaseType, and returns
// a Table bound to it.
func OpenTable(ctx context.Context, db *sql.DB, cfg TableConfig, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table config: %w", err)
	}

	var dbType, err = DetectDatabaseType(ctx, db, cfg.DatabaseType, logger)
	if err != nil {
		return nil, err
	}
	return NewTable(db, cfg, dbType, logger)
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// DatabaseType returns the dialect the SQL was generated for.
func (t *Table) DatabaseType() DatabaseType { return t.dbType }

func (t *Table) buildStatements() statements {
	var (
		c    = t.cfg
		name = t.name
		p    = t.dbType.placeholder

		// every row query returns columns in scanRow order
		columns = fmt.Sprintf("%s, %s, %s", c.IDColumnName, c.DataColumnName, c.TimestampColumnName)
	)

	var loadSome string
	switch t.dbType {
	case SQLServer:
		loadSome = fmt.Sprintf("SELECT TOP (%s) %s FROM %s", p(1), columns, name)
	case Access:
		loadSome = fmt.Sprintf("SELECT TOP %%d %s FROM %s", columns, name)
	case Oracle, DB2, Derby:
		loadSome = fmt.Sprintf("SELECT %s FROM %s FETCH FIRST %s ROWS ONLY", columns, name, p(1))
	case Informix, Interbase, Firebird:
		loadSome = fmt.Sprintf("SELECT FIRST %%d %s FROM %s", columns, name)
	default:
		// the MySQL-style LIMIT clause
		loadSome = fmt.Sprintf("SELECT %s FROM %s LIMIT %s", columns, name, p(1))
	}

	return statements{
		createTable: fmt.Sprintf("CREATE TABLE %s (%s %s NOT NULL, %s %s, %s %s, PRIMARY KEY (%s))",
			name, c.IDColumnName, c.IDColumnType, c.DataColumnName, c.DataColumnType,
			c.TimestampColumnName, c.TimestampColumnType, c.IDColumnName),
		dropTable: fmt.Sprintf("DROP TABLE %s", name),
		insertRow: fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
			name, c.DataColumnName, c.TimestampColumnName, c.IDColumnName, p(1), p(2), p(3)),
		updateRow: fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s = %s",
			name, c.DataColumnName, p(1), c.TimestampColumnName, p(2), c.IDColumnName, p(3)),
		selectRow:   fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", columns, name, c.IDColumnName, p(1)),
		deleteRow:   fmt.Sprintf("DELETE FROM %s WHERE %s = %s", name, c.IDColumnName, p(1)),
		loadAllRows: fmt.Sprintf("SELECT %s FROM %s", columns, name),
		loadNonExpired: fmt.Sprintf("SELECT %s FROM %s WHERE %s > %s OR %s <= 0",
			columns, name, c.TimestampColumnName, p(1), c.TimestampColumnName),
		deleteAllRows: fmt.Sprintf("DELETE FROM %s", name),
		selectExpiredRows: fmt.Sprintf("SELECT %s FROM %s WHERE %s < %s AND %s > 0",
			columns, name, c.TimestampColumnName, p(1), c.TimestampColumnName),
		deleteExpiredRows: fmt.Sprintf("DELETE FROM %s WHERE %s < %s AND %s > 0",
			name, c.TimestampColumnName, p(1), c.TimestampColumnName),
		loadSomeRows:        loadSome,
		tableExists:         existsSQL(t.dbType, false),
		tableExistsInSchema: existsSQL(t.dbType, true),
	}
}
