package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

var _ contract.IUserDirectory = (*UserRepository)(nil)

// UserRepository keeps the last display name seen for each authenticated user.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert overwrites the directory entry, empty names are ignored.
func (u *UserRepository) Upsert(user domain.User) error {
	if user.ID == "" {
		return errors.Validation("user id is required")
	}
	if user.Name == "" {
		return nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	err = u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
	if err != nil {
		return errors.StoreUnavailable(err)
	}
	return nil
}

// Names resolves the known display names. Unknown ids are absent from the result.
func (u *UserRepository) Names(ids []domain.UserID) (map[domain.UserID]string, error) {
	names := make(map[domain.UserID]string, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range lo.Uniq(ids) {
			item, err := txn.Get(userKey(id))
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var user domain.User
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &user)
			})
			if err != nil {
				return err
			}
			names[id] = user.Name
		}
		return nil
	})
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	return names, nil
}
