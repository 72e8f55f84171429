// Package kv serves static predicates from BadgerDB-resident tables. It is
// an alternative backend behind the same node-provider registry as the
// SQLite driver: rows live under a per-table key prefix and predicates are
// evaluated over the decoded rows in process, which gives tests and small
// deployments a static-data path with no SQL dependency.
package kv

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/janus-cep/cep"
)

// Store is a Badger-backed collection of static tables keyed by tuple id
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store at path. An empty path opens an
// in-memory store.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the store
func (s *Store) Close() error { return s.db.Close() }

// Insert appends rows to a table. Row arity and value types must match the
// tuple declaration; the store does not re-validate them.
func (s *Store) Insert(tableID int, rows [][]cep.Value) error {
	return s.db.Update(func(txn *badger.Txn) error {
		seq, err := s.nextSeq(txn, tableID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			key := rowKey(tableID, seq)
			seq++
			if err := txn.Set(key, encodeRow(row)); err != nil {
				return fmt.Errorf("writing row: %w", err)
			}
		}
		return nil
	})
}

// Rows scans every row of a table in insertion order
func (s *Store) Rows(tableID int) ([][]cep.Value, error) {
	var rows [][]cep.Value
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tablePrefix(tableID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				row, err := decodeRow(val)
				if err != nil {
					return err
				}
				rows = append(rows, row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// nextSeq finds the first free row sequence by scanning to the table's end
func (s *Store) nextSeq(txn *badger.Txn, tableID int) (uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = tablePrefix(tableID)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	var last []byte
	for it.Rewind(); it.Valid(); it.Next() {
		last = it.Item().KeyCopy(last[:0])
	}
	if last == nil {
		return 0, nil
	}
	prefix := tablePrefix(tableID)
	if len(last) != len(prefix)+8 {
		return 0, fmt.Errorf("malformed row key %x", last)
	}
	return binary.BigEndian.Uint64(last[len(prefix):]) + 1, nil
}

func tablePrefix(tableID int) []byte {
	key := make([]byte, 9)
	key[0] = 't'
	binary.BigEndian.PutUint64(key[1:], uint64(tableID))
	return key
}

func rowKey(tableID int, seq uint64) []byte {
	key := make([]byte, 17)
	key[0] = 't'
	binary.BigEndian.PutUint64(key[1:], uint64(tableID))
	binary.BigEndian.PutUint64(key[9:], seq)
	return key
}
