// Package store provides the SQLite persistence layer for cdnmirror:
// discovery runs with their asset lists, and the catalog tables read by
// the record walker.
package store

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/cdnmirror/dbopen"
)

// Store is the cdnmirror database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path, applies the pragmas and
// the cdnmirror schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
