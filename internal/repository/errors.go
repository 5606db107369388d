// Package repository defines the persistence contracts of the auth service
// and their database/sql implementations.  The sentinel errors below let
// higher layers distinguish "no such row" and uniqueness conflicts from
// genuine storage failures.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting a user whose email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameTaken is returned when inserting a user whose username is taken.
var ErrUsernameTaken = errors.New("username already taken")

// ErrTokenExists is returned when a user already owns a refresh_tokens row.
// It signals a lost race between two first logins, not a broken invariant.
var ErrTokenExists = errors.New("refresh token row already exists")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY
// constraint in either supported driver.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// violatesColumn reports whether a uniqueness error was raised by the index
// on column.  Only the key part of the message is inspected: MySQL quotes
// the duplicate value before "for key", and that value may itself contain
// the column name.
func violatesColumn(err error, column string) bool {
	return strings.Contains(strings.ToLower(uniqueKey(err)), column)
}

// uniqueKey returns the index or column list named by a uniqueness error,
// e.g. "users.users_username" (MySQL) or "users.username" (SQLite).
func uniqueKey(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		_, key, _ := strings.Cut(me.Message, "for key ")
		return key
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		_, cols, _ := strings.Cut(se.Error(), "constraint failed:")
		return cols
	}
	return ""
}
