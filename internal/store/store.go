// Package store holds the embedded SQLite database behind the demo
// endpoints.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	apperrors "github.com/darkone23/langnet-web/internal/errors"
)

// Step names reported in DatabaseError.Op.
const (
	OpOpen        = "open"
	OpCreateTable = "create_table"
	OpDelete      = "delete"
	OpInsert      = "insert"
	OpQuery       = "query"
	OpScan        = "scan"
	OpRows        = "rows"
)

// dsnOptions apply to every pooled connection. Writers wait up to five
// seconds for the lock instead of failing with SQLITE_BUSY, and
// transactions take the write lock on BEGIN so a reader never has to
// upgrade mid-transaction.
const dsnOptions = "_pragma=busy_timeout(5000)&_txlock=immediate"

const usersTable = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	name TEXT
);`

// User is one row of the demo users table.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DemoUsers are the rows written by SeedUsers.
var DemoUsers = []User{
	{ID: 1, Name: "Alice"},
	{ID: 2, Name: "Bob"},
	{ID: 3, Name: "Carol"},
}

// DB wraps a SQLite connection pool.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database file at path and makes sure
// the users table exists.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewDatabaseError(OpOpen, "failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, apperrors.NewDatabaseError(OpOpen, "failed to open database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewDatabaseError(OpOpen, "failed to open database", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, apperrors.NewDatabaseError(OpCreateTable, "failed to create users table", err)
	}

	return &DB{db: db, path: path}, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + dsnOptions
	}
	return path + "?" + dsnOptions
}

func createTables(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, usersTable); err != nil {
		return err
	}
	return tx.Commit()
}

// Path returns the database file.
func (d *DB) Path() string {
	return d.path
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// SeedUsers replaces the contents of the users table with DemoUsers in a
// single transaction.
func (d *DB) SeedUsers(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseError(OpDelete, "failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return apperrors.NewDatabaseError(OpDelete, "failed to clear users", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO users (id, name) VALUES (?, ?)`)
	if err != nil {
		return apperrors.NewDatabaseError(OpInsert, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, u := range DemoUsers {
		if _, err := stmt.ExecContext(ctx, u.ID, u.Name); err != nil {
			return apperrors.NewDatabaseError(OpInsert, "failed to insert user", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewDatabaseError(OpInsert, "failed to commit users", err)
	}
	return nil
}

// Users returns every user ordered by id.
func (d *DB) Users(ctx context.Context) ([]User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name FROM users ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewDatabaseError(OpQuery, "failed to query users", err)
	}
	defer rows.Close()

	users := make([]User, 0, len(DemoUsers))
	for rows.Next() {
		var (
			u    User
			name sql.NullString
		)
		if err := rows.Scan(&u.ID, &name); err != nil {
			return nil, apperrors.NewDatabaseError(OpScan, "failed to scan user", err)
		}
		u.Name = name.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError(OpRows, "failed to read users", err)
	}
	return users, nil
}

// ResetDemoUsers opens the database at path, rewrites the demo rows and
// returns them. The connection is closed before returning.
func ResetDemoUsers(ctx context.Context, path string) ([]User, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.SeedUsers(ctx); err != nil {
		return nil, err
	}
	return db.Users(ctx)
}
