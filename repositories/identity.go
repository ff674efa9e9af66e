//go:generate go run go.uber.org/mock/mockgen -source=identity.go -destination=../mocks/mock_identity_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"lanshare/domain"
	"lanshare/errors"
)

type IIdentityRepository interface {
	Ensure(name string) error
	Exists(name string) (bool, error)
	SetOnline(name string, online bool) error
	ListOnline() ([]string, error)
	List() ([]domain.Identity, error)
}

type IdentityRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewIdentityRepository(db *badger.DB, log *slog.Logger) *IdentityRepository {
	return &IdentityRepository{db: db, log: log}
}

func identityKey(name string) []byte {
	return []byte("user:" + name)
}

// Ensure registers name if it is unknown. Known names keep their stored
// state untouched.
func (r *IdentityRepository) Ensure(name string) error {
	if name == "" {
		return errors.ErrInvalidInput
	}
	return update(r.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(identityKey(name)); err == nil {
			return nil
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		encoded, err := json.Marshal(domain.Identity{Name: name})
		if err != nil {
			return err
		}
		return txn.Set(identityKey(name), encoded)
	})
}

func (r *IdentityRepository) Exists(name string) (bool, error) {
	var found bool
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(identityKey(name))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (r *IdentityRepository) SetOnline(name string, online bool) error {
	return update(r.db, func(txn *badger.Txn) error {
		var identity domain.Identity
		err := get(txn, identityKey(name), func(val []byte) error {
			return json.Unmarshal(val, &identity)
		})
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			identity = domain.Identity{Name: name}
		} else if err != nil {
			return err
		}
		identity.Online = online
		encoded, err := json.Marshal(identity)
		if err != nil {
			return err
		}
		return txn.Set(identityKey(name), encoded)
	})
}

func (r *IdentityRepository) ListOnline() ([]string, error) {
	identities, err := r.List()
	if err != nil {
		return nil, err
	}
	var online []string
	for _, identity := range identities {
		if identity.Online {
			online = append(online, identity.Name)
		}
	}
	return online, nil
}

func (r *IdentityRepository) List() ([]domain.Identity, error) {
	var identities []domain.Identity
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("user:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var identity domain.Identity
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &identity)
			}); err != nil {
				return err
			}
			identities = append(identities, identity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i].Name < identities[j].Name })
	return identities, nil
}
