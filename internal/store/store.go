// Package store persists application state (auto-download configuration,
// download history) as JSON records in a Badger key-value database.
package store

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
)

// ErrKeyNotFound is returned when a key has never been written.
var ErrKeyNotFound = errors.New("key not found")

// Store is the persistence boundary consumed by the scheduler and the
// download manager. Values cross it as whole structured records; unknown
// or missing fields are handled by the callers' decode targets, never
// propagated as nulls.
type Store interface {
	// Get decodes the record at key into v.
	// Returns ErrKeyNotFound if the key has never been written.
	Get(key string, v interface{}) error

	// Set encodes v and writes it at key, replacing any prior record.
	Set(key string, v interface{}) error

	// Delete removes the record at key. Missing keys are not an error.
	Delete(key string) error

	// Close shuts down the database.
	Close() error
}

// Ensure BadgerStore implements Store interface
var _ Store = (*BadgerStore)(nil)

// BadgerStore implements Store on a Badger database.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog for Badger's logger interface.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.log.Error(f, "args", v)
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn(f, "args", v)
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.log.Info(f, "args", v)
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.log.Debug(f, "args", v)
}

// Open opens (or creates) the store at path.
func Open(path string) (*BadgerStore, error) {
	log := slog.With("component", "store")

	opts := badger.DefaultOptions(path).
		WithLogger(&badgerLogger{log: log}).
		WithValueLogFileSize(1<<26 - 1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	// Reclaim value-log space left over from previous runs.
	err = db.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		db.Close()
		return nil, err
	}

	return &BadgerStore{db: db}, nil
}

// Get decodes the JSON record at key into v.
func (s *BadgerStore) Get(key string, v interface{}) error {
	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, v)
}

// Set writes v as a JSON record at key.
func (s *BadgerStore) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set([]byte(key), raw); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes the record at key.
func (s *BadgerStore) Delete(key string) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Delete([]byte(key)); err != nil {
		return err
	}

	return tx.Commit()
}

// Close shuts down the Badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
