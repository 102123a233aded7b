package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS partitions (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS partition_rows (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	partition TEXT NOT NULL REFERENCES partitions(name),
	cells     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_partition_rows_partition ON partition_rows(partition, seq);
`

// SQLiteStore is a single-file store for local runs. Rows keep insertion order.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReadAll(ctx context.Context, partition string) ([][]string, error) {
	exists, err := s.exists(ctx, partition)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPartitionNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT cells FROM partition_rows WHERE partition = ? ORDER BY seq`, partition)
	if err != nil {
		return nil, fmt.Errorf("query partition %s: %w", partition, err)
	}
	defer rows.Close()

	var table [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		table = append(table, cells)
	}
	return table, rows.Err()
}

func (s *SQLiteStore) AppendRows(ctx context.Context, partition string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	exists, err := s.exists(ctx, partition)
	if err != nil {
		return err
	}
	if !exists {
		return ErrPartitionNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if err := insertRows(ctx, tx, partition, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	logrus.Debugf("Appended %d rows to partition %s", len(rows), partition)
	return nil
}

func (s *SQLiteStore) EnsurePartition(ctx context.Context, partition string, header []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ensure: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO partitions (name) VALUES (?)`, partition)
	if err != nil {
		return fmt.Errorf("create partition %s: %w", partition, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	if err := insertRows(ctx, tx, partition, [][]string{header}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ensure: %w", err)
	}

	logrus.Infof("Created partition %s", partition)
	return nil
}

func (s *SQLiteStore) exists(ctx context.Context, partition string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM partitions WHERE name = ?`, partition).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup partition %s: %w", partition, err)
	}
	return n > 0, nil
}

func insertRows(ctx context.Context, tx *sql.Tx, partition string, rows [][]string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO partition_rows (partition, cells) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, partition, string(raw)); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	return nil
}
