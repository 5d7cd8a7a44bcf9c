package database

import (
	"database/sql"
	"errors"
)

var (
	// ErrEventAtCapacity is returned when a join would push the attending
	// count past the event's capacity. The check and the insert run in one
	// transaction, so the count can never be exceeded.
	ErrEventAtCapacity = errors.New("event is at capacity")
	// ErrAlreadyJoined is returned when the user already holds a
	// participation for the event.
	ErrAlreadyJoined = errors.New("already joined event")
)

// PgRepository is a Postgres-backed Repository.
type PgRepository struct {
	conn *sql.DB
}

func NewPgRepository(dsn string) (*PgRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgRepository{conn: db}, nil
}

func (db *PgRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
