package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// txBeginner is implemented by *sql.DB.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(s scanner) (Row, error) {
	var (
		row       Row
		expiresAt sql.NullInt64
	)
	if err := s.Scan(&row.ID, &row.Data, &expiresAt); err != nil {
		return Row{}, err
	}

	row.ExpiresAt = -1
	if expiresAt.Valid {
		row.ExpiresAt = expiresAt.Int64
	}
	return row, nil
}

func (t *Table) queryRows(ctx context.Context, op, query string, args ...interface{}) ([]Row, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return result, nil
}

// Insert adds a row. It fails if the id is already stored.
func (t *Table) Insert(ctx context.Context, row Row) error {
	if _, err := t.db.ExecContext(ctx, t.sql.insertRow, row.Data, row.ExpiresAt, row.ID); err != nil {
		return fmt.Errorf("failed to insert row %s: %w", row.ID, err)
	}
	return nil
}

// Update overwrites the data and expiry of a stored row. It reports false when
// no row has the id.
func (t *Table) Update(ctx context.Context, row Row) (bool, error) {
	res, err := t.db.ExecContext(ctx, t.sql.updateRow, row.Data, row.ExpiresAt, row.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update row %s: %w", row.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Upsert updates the row, inserting it when no row has the id.
func (t *Table) Upsert(ctx context.Context, row Row) error {
	updated, err := t.Update(ctx, row)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}
	return t.Insert(ctx, row)
}

// Select returns the row stored under id, or nil if there is none.
func (t *Table) Select(ctx context.Context, id string) (*Row, error) {
	row, err := scanRow(t.db.QueryRowContext(ctx, t.sql.selectRow, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select row %s: %w", id, err)
	}
	return &row, nil
}

// Delete removes the row stored under id. It reports false when there was none.
func (t *Table) Delete(ctx context.Context, id string) (bool, error) {
	res, err := t.db.ExecContext(ctx, t.sql.deleteRow, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete row %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// LoadAll returns every stored row, expired or not.
func (t *Table) LoadAll(ctx context.Context) ([]Row, error) {
	return t.queryRows(ctx, "load rows", t.sql.loadAllRows)
}

// LoadNonExpired returns the rows still valid at now (unix milliseconds),
// including rows that never expire.
func (t *Table) LoadNonExpired(ctx context.Context, now int64) ([]Row, error) {
	return t.queryRows(ctx, "load non-expired rows", t.sql.loadNonExpired, now)
}

// LoadSome returns at most limit rows in no particular order.
func (t *Table) LoadSome(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, nil
	}
	var query, args = t.loadSomeQuery(limit)
	return t.queryRows(ctx, "load rows", query, args...)
}

func (t *Table) loadSomeQuery(limit int) (string, []interface{}) {
	if t.dbType.literalLimit() {
		return fmt.Sprintf(t.sql.loadSomeRows, limit), nil
	}
	return t.sql.loadSomeRows, []interface{}{limit}
}

// DeleteAll removes every row and returns how many were removed.
func (t *Table) DeleteAll(ctx context.Context) (int64, error) {
	res, err := t.db.ExecContext(ctx, t.sql.deleteAllRows)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// SelectExpired returns the rows that expired before now (unix milliseconds).
func (t *Table) SelectExpired(ctx context.Context, now int64) ([]Row, error) {
	return t.queryRows(ctx, "select expired rows", t.sql.selectExpiredRows, now)
}

// PurgeExpired removes the rows that expired before now and returns how many
// were removed.
func (t *Table) PurgeExpired(ctx context.Context, now int64) (int64, error) {
	res, err := t.db.ExecContext(ctx, t.sql.deleteExpiredRows, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired rows: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		t.logger.Debug("purged expired rows", "table", t.name, "count", n)
	}
	return n, nil
}

// BulkInsert writes rows in batches of BatchSize inside one transaction. When
// the Table is bound to a transaction already, that transaction is used.
func (t *Table) BulkInsert(ctx context.Context, rows []Row) (err error) {
	if len(rows) == 0 {
		return nil
	}

	var db = t.db
	if b, ok := t.db.(txBeginner); ok {
		var tx *sql.Tx
		if tx, err = b.BeginTx(ctx, nil); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
				return
			}
			err = tx.Commit()
		}()
		db = tx
	}

	for start := 0; start < len(rows); start += t.cfg.BatchSize {
		var batch = rows[start:min(start+t.cfg.BatchSize, len(rows))]
		if err := t.insertBatch(ctx, db, batch); err != nil {
			return err
		}
		t.logger.Debug("inserted batch", "table", t.name, "rows", len(batch))
	}
	return nil
}

func (t *Table) insertBatch(ctx context.Context, db DBTX, batch []Row) error {
	if !t.dbType.multiRowInsert() {
		for _, row := range batch {
			if _, err := db.ExecContext(ctx, t.sql.insertRow, row.Data, row.ExpiresAt, row.ID); err != nil {
				return fmt.Errorf("failed to insert row %s: %w", row.ID, err)
			}
		}
		return nil
	}

	var args = make([]interface{}, 0, len(batch)*3)
	for _, row := range batch {
		args = append(args, row.Data, row.ExpiresAt, row.ID)
	}
	if _, err := db.ExecContext(ctx, t.insertValuesSQL(len(batch)), args...); err != nil {
		return fmt.Errorf("failed to insert batch of %d rows: %w", len(batch), err)
	}
	return nil
}

// insertValuesSQL returns an INSERT with n value tuples.
func (t *Table) insertValuesSQL(n int) string {
	var (
		c = t.cfg
		b strings.Builder
	)
	fmt.Fprintf(&b, "INSERT INTO %s (%s, %s, %s) VALUES ", t.name, c.DataColumnName, c.TimestampColumnName, c.IDColumnName)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%s, %s, %s)",
			t.dbType.placeholder(i*3+1), t.dbType.placeholder(i*3+2), t.dbType.placeholder(i*3+3))
	}
	return b.String()
}
