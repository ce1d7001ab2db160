package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// IsBusy reports whether err comes from sqlite refusing a lock, which
// happens when another process holds the write lock past the busy timeout.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
