package repositories

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// update runs fn inside a read-write transaction, retrying on optimistic
// conflicts. Group membership edits and read-status transitions rely on
// this to stay atomic under concurrent writers on the same keys.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	for {
		err := db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

func get(txn *badger.Txn, key []byte, decode func(val []byte) error) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(decode)
}
