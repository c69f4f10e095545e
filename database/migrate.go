package database

import (
	"context"
	"fmt"
	"strings"
)

// existsSQL returns the catalog query that counts tables named by its last
// argument. With inSchema the first argument names the schema; dialects
// without schemas return "" for that variant.
func existsSQL(dbType DatabaseType, inSchema bool) string {
	var p = dbType.placeholder

	switch dbType {
	case Postgres:
		if inSchema {
			return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2"
		}
		return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	case MySQL:
		if inSchema {
			return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?"
		}
		return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	case SQLServer:
		if inSchema {
			return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = @p1 AND table_name = @p2"
		}
		return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = SCHEMA_NAME() AND table_name = @p1"
	case Oracle:
		if inSchema {
			return "SELECT COUNT(*) FROM all_tables WHERE owner = :1 AND table_name = :2"
		}
		return "SELECT COUNT(*) FROM user_tables WHERE table_name = :1"
	case DB2:
		if inSchema {
			return "SELECT COUNT(*) FROM syscat.tables WHERE tabschema = ? AND tabname = ?"
		}
		return "SELECT COUNT(*) FROM syscat.tables WHERE tabschema = CURRENT SCHEMA AND tabname = ?"
	case Derby:
		const base = "SELECT COUNT(*) FROM sys.systables t JOIN sys.sysschemas s ON t.schemaid = s.schemaid"
		if inSchema {
			return base + " WHERE s.schemaname = ? AND t.tablename = ?"
		}
		return base + " WHERE s.schemaname = CURRENT SCHEMA AND t.tablename = ?"
	case SQLite:
		if inSchema {
			return ""
		}
		return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	case Firebird, Interbase:
		if inSchema {
			return ""
		}
		return "SELECT COUNT(*) FROM rdb$relations WHERE rdb$relation_name = ?"
	case Informix:
		if inSchema {
			return "SELECT COUNT(*) FROM systables WHERE owner = ? AND tabname = ?"
		}
		return "SELECT COUNT(*) FROM systables WHERE tabname = ?"
	default:
		if inSchema {
			return fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = %s AND table_name = %s", p(1), p(2))
		}
		return fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_name = %s", p(1))
	}
}

// splitTableName splits a schema-qualified name on its first dot.
func splitTableName(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// Exists reports whether the table is present in the database catalog.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	var (
		schema, table = splitTableName(t.name)
		query         = t.sql.tableExists
		args          = []interface{}{t.dbType.foldIdentifier(table)}
	)
	if schema != "" && t.sql.tableExistsInSchema != "" {
		query = t.sql.tableExistsInSchema
		args = []interface{}{t.dbType.foldIdentifier(schema), t.dbType.foldIdentifier(table)}
	}

	var count int
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check if table %s exists: %w", t.name, err)
	}
	return count > 0, nil
}

// Create creates the table.
func (t *Table) Create(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, t.sql.createTable); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.name, err)
	}
	t.logger.Info("created table", "table", t.name)
	return nil
}

// Drop removes every row and then the table itself.
func (t *Table) Drop(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, t.sql.deleteAllRows); err != nil {
		return fmt.Errorf("failed to clear table %s: %w", t.name, err)
	}
	if _, err := t.db.ExecContext(ctx, t.sql.dropTable); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", t.name, err)
	}
	t.logger.Info("dropped table", "table", t.name)
	return nil
}

// Start creates the table when CreateTableOnStart is set and it is missing.
func (t *Table) Start(ctx context.Context) error {
	if !t.cfg.CreateTableOnStart {
		return nil
	}

	exists, err := t.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		t.logger.Debug("table already exists", "table", t.name)
		return nil
	}
	return t.Create(ctx)
}

// Stop drops the table when DropTableOnExit is set.
func (t *Table) Stop(ctx context.Context) error {
	if !t.cfg.DropTableOnExit {
		return nil
	}

	exists, err := t.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return t.Drop(ctx)
}
