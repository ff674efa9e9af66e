//go:generate go run go.uber.org/mock/mockgen -source=group.go -destination=../mocks/mock_group_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"lanshare/domain"
	"lanshare/errors"
)

// RoomWiper is the hook the group directory uses to cascade message
// deletion inside its own transaction. The message store owns the key
// scheme; the group directory only owns the transactional boundary.
type RoomWiper interface {
	WipeRoomTx(txn *badger.Txn, room domain.RoomToken) error
}

type IGroupRepository interface {
	Create(name, description, icon, creator string, members, admins []string) (domain.Group, error)
	Get(id string) (domain.Group, error)
	Info(id, caller string) (domain.GroupInfo, error)
	ListForIdentity(identity string) ([]domain.Group, error)
	Members(id string) ([]domain.GroupMember, error)
	Member(id, identity string) (domain.GroupMember, error)
	AddMember(id, identity string) error
	RemoveMember(id, identity string) error
	SetAdmin(id, identity string, isAdmin bool) error
	Leave(id, identity string) error
	SetAdminOnly(id string, adminOnly bool) error
	UpdateInfo(id string, name, description, icon *string) error
	SetMembersAndAdmins(id string, members, admins []string) error
	Delete(id string) error
	Mute(id, identity string) error
	Unmute(id, identity string) error
	IsMuted(id, identity string) (bool, error)
}

type GroupRepository struct {
	db       *badger.DB
	messages RoomWiper
	log      *slog.Logger
}

func NewGroupRepository(db *badger.DB, messages RoomWiper, log *slog.Logger) *GroupRepository {
	return &GroupRepository{db: db, messages: messages, log: log}
}

type diskGroup struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	AdminOnly   bool      `json:"admin_only"`
}

type diskMember struct {
	IsAdmin  bool      `json:"is_admin"`
	JoinedAt time.Time `json:"joined_at"`
}

func groupKey(id string) []byte {
	return []byte("group:" + id)
}

func memberKey(groupID, identity string) []byte {
	return []byte("member:" + groupID + ":" + identity)
}

func memberPrefix(groupID string) []byte {
	return []byte("member:" + groupID + ":")
}

func muteKey(groupID, identity string) []byte {
	return []byte("mute:" + groupID + ":" + identity)
}

func mutePrefix(groupID string) []byte {
	return []byte("mute:" + groupID + ":")
}

// Create persists a group and its initial memberships in one
// transaction. The creator is always a member and an admin, whether or
// not the caller listed them.
func (r *GroupRepository) Create(name, description, icon, creator string, members, admins []string) (domain.Group, error) {
	if name == "" || len(members) == 0 {
		return domain.Group{}, fmt.Errorf("%w: name and members required", errors.ErrInvalidInput)
	}
	group := domain.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Icon:        icon,
		CreatedBy:   creator,
		CreatedAt:   time.Now().UTC(),
	}
	memberSet := lo.Uniq(append(append([]string{}, members...), creator))
	adminSet := lo.Uniq(append(append([]string{}, admins...), creator))

	encoded, err := json.Marshal(fromGroup(group))
	if err != nil {
		return domain.Group{}, err
	}
	err = update(r.db, func(txn *badger.Txn) error {
		if err := txn.Set(groupKey(group.ID), encoded); err != nil {
			return err
		}
		for _, m := range memberSet {
			row, err := json.Marshal(diskMember{
				IsAdmin:  lo.Contains(adminSet, m),
				JoinedAt: group.CreatedAt,
			})
			if err != nil {
				return err
			}
			if err := txn.Set(memberKey(group.ID, m), row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Group{}, err
	}
	return group, nil
}

func (r *GroupRepository) Get(id string) (domain.Group, error) {
	var disk diskGroup
	err := r.db.View(func(txn *badger.Txn) error {
		return get(txn, groupKey(id), func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Group{}, errors.ErrGroupNotFound
	}
	if err != nil {
		return domain.Group{}, err
	}
	return toGroup(disk), nil
}

func (r *GroupRepository) Info(id, caller string) (domain.GroupInfo, error) {
	group, err := r.Get(id)
	if err != nil {
		return domain.GroupInfo{}, err
	}
	members, err := r.Members(id)
	if err != nil {
		return domain.GroupInfo{}, err
	}
	muted, err := r.IsMuted(id, caller)
	if err != nil {
		return domain.GroupInfo{}, err
	}
	return domain.GroupInfo{Group: group, Members: members, Muted: muted}, nil
}

// ListForIdentity walks all groups and keeps the ones identity belongs
// to. Group counts on a LAN are small; no secondary index is kept.
func (r *GroupRepository) ListForIdentity(identity string) ([]domain.Group, error) {
	var groups []domain.Group
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("group:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskGroup
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			if _, err := txn.Get(memberKey(disk.ID, identity)); err == nil {
				groups = append(groups, toGroup(disk))
			} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	return groups, err
}

func (r *GroupRepository) Members(id string) ([]domain.GroupMember, error) {
	var members []domain.GroupMember
	err := r.db.View(func(txn *badger.Txn) error {
		return membersTx(txn, id, &members)
	})
	return members, err
}

func membersTx(txn *badger.Txn, id string, members *[]domain.GroupMember) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	prefix := memberPrefix(id)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		identity := string(it.Item().Key()[len(prefix):])
		var disk diskMember
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); err != nil {
			return err
		}
		*members = append(*members, domain.GroupMember{Identity: identity, IsAdmin: disk.IsAdmin, JoinedAt: disk.JoinedAt})
	}
	return nil
}

func (r *GroupRepository) Member(id, identity string) (domain.GroupMember, error) {
	var disk diskMember
	err := r.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(groupKey(id)); stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrGroupNotFound
		} else if err != nil {
			return err
		}
		if err := get(txn, memberKey(id, identity), func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotAMember
		} else if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.GroupMember{}, err
	}
	return domain.GroupMember{Identity: identity, IsAdmin: disk.IsAdmin, JoinedAt: disk.JoinedAt}, nil
}

func (r *GroupRepository) AddMember(id, identity string) error {
	return update(r.db, func(txn *badger.Txn) error {
		if err := requireGroup(txn, id); err != nil {
			return err
		}
		if _, err := txn.Get(memberKey(id, identity)); err == nil {
			return errors.ErrAlreadyMember
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		row, err := json.Marshal(diskMember{JoinedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		return txn.Set(memberKey(id, identity), row)
	})
}

func (r *GroupRepository) RemoveMember(id, identity string) error {
	return update(r.db, func(txn *badger.Txn) error {
		if err := requireGroup(txn, id); err != nil {
			return err
		}
		if _, err := txn.Get(memberKey(id, identity)); stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotAMember
		} else if err != nil {
			return err
		}
		return txn.Delete(memberKey(id, identity))
	})
}

func (r *GroupRepository) SetAdmin(id, identity string, isAdmin bool) error {
	return update(r.db, func(txn *badger.Txn) error {
		if err := requireGroup(txn, id); err != nil {
			return err
		}
		var disk diskMember
		if err := get(txn, memberKey(id, identity), func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotAMember
		} else if err != nil {
			return err
		}
		disk.IsAdmin = isAdmin
		row, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return txn.Set(memberKey(id, identity), row)
	})
}

// Leave removes identity's own membership. The sole remaining admin may
// not leave: another admin must be promoted first. The check and the
// removal run in one transaction so concurrent edits cannot leave the
// group adminless.
func (r *GroupRepository) Leave(id, identity string) error {
	return update(r.db, func(txn *badger.Txn) error {
		if err := requireGroup(txn, id); err != nil {
			return err
		}
		var self diskMember
		if err := get(txn, memberKey(id, identity), func(val []byte) error {
			return json.Unmarshal(val, &self)
		}); stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotAMember
		} else if err != nil {
			return err
		}
		if self.IsAdmin {
			var members []domain.GroupMember
			if err := membersTx(txn, id, &members); err != nil {
				return err
			}
			admins := lo.CountBy(members, func(m domain.GroupMember) bool { return m.IsAdmin })
			if admins == 1 {
				return errors.ErrLastAdmin
			}
		}
		return txn.Delete(memberKey(id, identity))
	})
}

func (r *GroupRepository) SetAdminOnly(id string, adminOnly bool) error {
	return r.mutateGroup(id, func(disk *diskGroup) {
		disk.AdminOnly = adminOnly
	})
}

func (r *GroupRepository) UpdateInfo(id string, name, description, icon *string) error {
	return r.mutateGroup(id, func(disk *diskGroup) {
		if name != nil && *name != "" {
			disk.Name = *name
		}
		if description != nil {
			disk.Description = *description
		}
		if icon != nil && *icon != "" {
			disk.Icon = *icon
		}
	})
}

func (r *GroupRepository) mutateGroup(id string, mutate func(*diskGroup)) error {
	return update(r.db, func(txn *badger.Txn) error {
		var disk diskGroup
		if err := get(txn, groupKey(id), func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrGroupNotFound
		} else if err != nil {
			return err
		}
		mutate(&disk)
		encoded, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return txn.Set(groupKey(id), encoded)
	})
}

// SetMembersAndAdmins replaces the whole membership in one transaction:
// every current membership is removed, then the new set inserted. Used
// by bulk edit flows.
func (r *GroupRepository) SetMembersAndAdmins(id string, members, admins []string) error {
	now := time.Now().UTC()
	return update(r.db, func(txn *badger.Txn) error {
		if err := requireGroup(txn, id); err != nil {
			return err
		}
		var current []domain.GroupMember
		if err := membersTx(txn, id, &current); err != nil {
			return err
		}
		for _, m := range current {
			if err := txn.Delete(memberKey(id, m.Identity)); err != nil {
				return err
			}
		}
		for _, m := range lo.Uniq(members) {
			row, err := json.Marshal(diskMember{IsAdmin: lo.Contains(admins, m), JoinedAt: now})
			if err != nil {
				return err
			}
			if err := txn.Set(memberKey(id, m), row); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete cascades: the group row, all memberships, all mutes, and every
// message addressed to the group's room go in one transaction. Either
// all four deletions commit or none are visible.
func (r *GroupRepository) Delete(id string) error {
	return update(r.db, func(txn *badger.Txn) error {
		if err := requireGroup(txn, id); err != nil {
			return err
		}
		if err := deletePrefix(txn, memberPrefix(id)); err != nil {
			return err
		}
		if err := deletePrefix(txn, mutePrefix(id)); err != nil {
			return err
		}
		if err := r.messages.WipeRoomTx(txn, domain.GroupRoom(id)); err != nil {
			return err
		}
		return txn.Delete(groupKey(id))
	})
}

func (r *GroupRepository) Mute(id, identity string) error {
	return update(r.db, func(txn *badger.Txn) error {
		if err := requireGroup(txn, id); err != nil {
			return err
		}
		return txn.Set(muteKey(id, identity), nil)
	})
}

func (r *GroupRepository) Unmute(id, identity string) error {
	return update(r.db, func(txn *badger.Txn) error {
		if err := requireGroup(txn, id); err != nil {
			return err
		}
		err := txn.Delete(muteKey(id, identity))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (r *GroupRepository) IsMuted(id, identity string) (bool, error) {
	var muted bool
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(muteKey(id, identity))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		muted = true
		return nil
	})
	return muted, err
}

func requireGroup(txn *badger.Txn, id string) error {
	if _, err := txn.Get(groupKey(id)); stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrGroupNotFound
	} else if err != nil {
		return err
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	var doomed [][]byte
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		doomed = append(doomed, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, key := range doomed {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func fromGroup(g domain.Group) diskGroup {
	return diskGroup{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Icon:        g.Icon,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		AdminOnly:   g.AdminOnly,
	}
}

func toGroup(d diskGroup) domain.Group {
	return domain.Group{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
		AdminOnly:   d.AdminOnly,
	}
}
