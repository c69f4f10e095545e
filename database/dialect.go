package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DatabaseType identifies the SQL dialect of the backing database.
type DatabaseType string

const (
	MySQL     DatabaseType = "MYSQL"
	Postgres  DatabaseType = "POSTGRES"
	Derby     DatabaseType = "DERBY"
	HSQL      DatabaseType = "HSQL"
	H2        DatabaseType = "H2"
	SQLite    DatabaseType = "SQLITE"
	DB2       DatabaseType = "DB2"
	Informix  DatabaseType = "INFORMIX"
	Interbase DatabaseType = "INTERBASE"
	Firebird  DatabaseType = "FIREBIRD"
	SQLServer DatabaseType = "SQL_SERVER"
	Access    DatabaseType = "ACCESS"
	Oracle    DatabaseType = "ORACLE"
)

// DatabaseTypes lists every supported dialect.
var DatabaseTypes = []DatabaseType{
	MySQL, Postgres, Derby, HSQL, H2, SQLite, DB2, Informix, Interbase, Firebird, SQLServer, Access, Oracle,
}

// ErrUnknownDatabaseType is returned when the dialect can neither be parsed
// nor detected.
var ErrUnknownDatabaseType = errors.New("unable to determine database type")

// dialectHints is checked in order; the first substring found in a lower-cased
// product or driver name wins.
var dialectHints = []struct {
	substr string
	dbType DatabaseType
}{
	{"mysql", MySQL},
	{"postgres", Postgres},
	{"derby", Derby},
	{"hsql", HSQL},
	{"hypersonic", HSQL},
	{"h2", H2},
	{"sqlite", SQLite},
	{"db2", DB2},
	{"informix", Informix},
	{"interbase", Interbase},
	{"firebird", Firebird},
	{"sqlserver", SQLServer},
	{"microsoft", SQLServer},
	{"access", Access},
	{"oracle", Oracle},
}

// driverTypes maps Go driver type names to dialects whose package names give
// no hint.
var driverTypes = map[string]DatabaseType{
	"*pq.Driver":           Postgres,
	"*stdlib.Driver":       Postgres,
	"*mssql.Driver":        SQLServer,
	"*godror.drv":          Oracle,
	"*go_ora.OracleDriver": Oracle,
}

// ParseDatabaseType parses a manually configured dialect name. Matching is
// case-insensitive and accepts dashes for underscores.
func ParseDatabaseType(name string) (DatabaseType, error) {
	var normalized = DatabaseType(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_"))
	for _, t := range DatabaseTypes {
		if t == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w %q: supported types are %v", ErrUnknownDatabaseType, name, DatabaseTypes)
}

// GuessDatabaseType classifies a product or driver name. ok is false when no
// dialect matches.
func GuessDatabaseType(name string) (DatabaseType, bool) {
	if t, found := driverTypes[name]; found {
		return t, true
	}

	var lower = strings.ToLower(name)
	for _, hint := range dialectHints {
		if strings.Contains(lower, hint.substr) {
			return hint.dbType, true
		}
	}
	return "", false
}

// productNameQueries are tried in order to read the server's product name.
var productNameQueries = []string{
	"SELECT version()",
	"SELECT @@version",
}

// DetectDatabaseType determines the dialect of db. A non-empty override always
// wins. Otherwise the server's product name is classified, then the driver's
// type name. If neither matches, the caller must configure the type manually.
func DetectDatabaseType(ctx context.Context, db *sql.DB, override string, logger *slog.Logger) (DatabaseType, error) {
	if override != "" {
		return ParseDatabaseType(override)
	}

	for _, query := range productNameQueries {
		var product string
		if err := db.QueryRowContext(ctx, query).Scan(&product); err != nil {
			logger.Debug("unable to read database product name", "query", query, "error", err)
			continue
		}
		if product == "" {
			continue
		}
		if t, ok := GuessDatabaseType(product); ok {
			logger.Info("guessed database type from product name; set database_type if this is incorrect",
				"database_type", t,
				"product", product)
			return t, nil
		}
	}

	logger.Info("unable to detect database type from product name, guessing from driver name")

	var driverName = fmt.Sprintf("%T", db.Driver())
	if t, ok := GuessDatabaseType(driverName); ok {
		logger.Info("guessed database type from driver name; set database_type if this is incorrect",
			"database_type", t,
			"driver", driverName)
		return t, nil
	}

	return "", fmt.Errorf("%w from driver %s or connection metadata: configure it manually, supported types are %v",
		ErrUnknownDatabaseType, driverName, DatabaseTypes)
}

// placeholder returns the bind parameter for the n-th (1-based) argument.
func (t DatabaseType) placeholder(n int) string {
	switch t {
	case Postgres:
		return fmt.Sprintf("$%d", n)
	case Oracle:
		return fmt.Sprintf(":%d", n)
	case SQLServer:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

// foldIdentifier applies the case the dialect stores unquoted identifiers in.
func (t DatabaseType) foldIdentifier(s string) string {
	switch t {
	case Postgres, Informix:
		return strings.ToLower(s)
	case Oracle, DB2, Derby, H2, HSQL, Firebird, Interbase:
		return strings.ToUpper(s)
	default:
		return s
	}
}

// multiRowInsert reports whether INSERT accepts several VALUES tuples.
func (t DatabaseType) multiRowInsert() bool {
	switch t {
	case Postgres, MySQL, SQLite, SQLServer, H2, HSQL, DB2, Derby:
		return true
	default:
		return false
	}
}

// literalLimit reports whether the row limit of LoadSome must be written into
// the statement instead of bound as a parameter.
func (t DatabaseType) literalLimit() bool {
	switch t {
	case Access, Informix, Interbase, Firebird:
		return true
	default:
		return false
	}
}

// maxBatchRows is the largest multi-row insert whose three parameters per row
// stay within the dialect's bind parameter limit. Zero means unbounded.
func (t DatabaseType) maxBatchRows() int {
	var maxParams int
	switch t {
	case Postgres, MySQL:
		maxParams = 65535
	case SQLServer:
		maxParams = 2099
	case SQLite:
		maxParams = 999
	case H2, HSQL, DB2, Derby:
		maxParams = 32767
	default:
		return 0
	}
	return maxParams / 3
}
