// Package repository holds the SQL data access for users, blood types,
// requests, notifications and donations.  The sentinel errors below let
// services and handlers tell failure scenarios apart without looking at
// driver errors.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller attempts an operation on a
	// resource they do not own.  Handlers translate it into HTTP 403.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict signals that a state precondition does not hold, such as
	// accepting a request that is already on hold.
	ErrConflict = errors.New("conflict")

	// ErrDuplicate is returned when a unique key (email, phone) is taken.
	ErrDuplicate = errors.New("duplicate")

	// ErrInvalidToken covers unknown, already used and expired one-time
	// tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// DuplicateError names the field whose unique key was violated.  It
// matches ErrDuplicate with errors.Is.
type DuplicateError struct{ Field string }

func (e *DuplicateError) Error() string { return e.Field + " already exists" }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

const mysqlDupEntry = 1062

// duplicateKey reports whether err is a MySQL duplicate-entry error and,
// if so, which key was hit.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDupEntry {
		return "", false
	}
	// "Duplicate entry 'x' for key 'users.uq_users_email'"
	msg := me.Message
	if i := strings.LastIndex(msg, "key '"); i >= 0 {
		msg = strings.TrimSuffix(msg[i+len("key '"):], "'")
		if j := strings.LastIndex(msg, "."); j >= 0 {
			msg = msg[j+1:]
		}
	}
	return msg, true
}

func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// affected turns a zero-row update into the given error.
func affected(res sql.Result, zero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return zero
	}
	return nil
}
