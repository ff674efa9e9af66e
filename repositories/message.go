//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/dgraph-io/badger/v4"

	"lanshare/domain"
	"lanshare/domain/mimetypes"
	"lanshare/errors"
	"lanshare/security"
)

const defaultHistoryLimit = 50

// HistoryFilter selects one conversation slice: the caller's own traffic
// (Self), one peer conversation (Peer), or one room by exact destination
// match (Room).
type HistoryFilter struct {
	Self bool
	Peer string
	Room domain.RoomToken
}

type IMessageRepository interface {
	Append(sender string, dest domain.Destination, content string, fileRef *domain.FileRef, replyTo *uint64, at time.Time) (domain.Message, error)
	Get(id uint64) (domain.Message, error)
	History(identity string, filter HistoryFilter) ([]domain.Message, error)
	MarkRead(id uint64, reader string) (changed bool, sender string, err error)
	React(id uint64, identity, emoji string) (domain.ReactionMap, error)
	Unreact(id uint64, identity, emoji string) (domain.ReactionMap, error)
	Delete(id uint64) (domain.Message, error)
	CountFileRefs(fileID string) (int, error)
	ByFileRef(fileID string) ([]domain.Message, error)
	DeleteByFileRef(fileID string) ([]uint64, error)
	Hydrate(m domain.Message) domain.HydratedMessage
	Close() error
}

type MessageRepository struct {
	db            *badger.DB
	cipher        *security.Cipher
	seq           *badger.Sequence
	log           *slog.Logger
	limitMessages *int
}

// diskMessage is the persistence-boundary encoding. Content is held as
// ciphertext; everything else is plain.
type diskMessage struct {
	ID          uint64             `json:"id"`
	Sender      string             `json:"sender"`
	Destination string             `json:"destination"`
	Content     string             `json:"content,omitempty"`
	FileRef     *domain.FileRef    `json:"file,omitempty"`
	At          time.Time          `json:"at"`
	Status      string             `json:"status"`
	ReplyTo     *uint64            `json:"reply_to,omitempty"`
	Reactions   domain.ReactionMap `json:"reactions,omitempty"`
}

func NewMessageRepository(db *badger.DB, cipher *security.Cipher, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:msg"), 128)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, cipher: cipher, seq: seq, log: log, limitMessages: limitMessages}, nil
}

func (r *MessageRepository) Close() error {
	return r.seq.Release()
}

// messageKey pads the identifier to 20 digits so lexicographic key order
// equals insertion order, which is the total order used for history.
func messageKey(id uint64) []byte {
	return []byte(fmt.Sprintf("msg:%020d", id))
}

// Append assigns the next identifier, encrypts the content, and persists
// the message. A reply reference must resolve at creation time; dangling
// references are tolerated only after the target is later removed.
func (r *MessageRepository) Append(sender string, dest domain.Destination, content string, fileRef *domain.FileRef, replyTo *uint64, at time.Time) (domain.Message, error) {
	id, err := r.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("next message id: %w", err)
	}
	// Sequence values start at 0; identifiers start at 1.
	id++

	ciphertext, err := r.cipher.Encrypt(content)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encrypt content: %w", err)
	}

	disk := diskMessage{
		ID:          id,
		Sender:      sender,
		Destination: string(dest.Room()),
		Content:     ciphertext,
		FileRef:     fileRef,
		At:          at.UTC(),
		Status:      string(domain.StatusSent),
		ReplyTo:     replyTo,
	}
	encoded, err := json.Marshal(disk)
	if err != nil {
		return domain.Message{}, err
	}

	err = update(r.db, func(txn *badger.Txn) error {
		if replyTo != nil {
			if _, err := txn.Get(messageKey(*replyTo)); stderrors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("reply target %d: %w", *replyTo, errors.ErrMessageNotFound)
			} else if err != nil {
				return err
			}
		}
		return txn.Set(messageKey(id), encoded)
	})
	if err != nil {
		return domain.Message{}, err
	}

	return domain.Message{
		ID:          id,
		Sender:      sender,
		Destination: dest,
		Content:     content,
		FileRef:     fileRef,
		CreatedAt:   disk.At,
		Status:      domain.StatusSent,
		ReplyTo:     replyTo,
		Reactions:   domain.ReactionMap{},
	}, nil
}

func (r *MessageRepository) Get(id uint64) (domain.Message, error) {
	var disk diskMessage
	err := r.db.View(func(txn *badger.Txn) error {
		return get(txn, messageKey(id), func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return r.toMessage(disk), nil
}

// toMessage decrypts the stored row into its domain shape. Decryption
// never fails the call: a bad row surfaces the sentinel string instead.
func (r *MessageRepository) toMessage(disk diskMessage) domain.Message {
	dest, err := domain.ParseDestination(disk.Destination)
	if err != nil {
		r.log.Warn("Stored message has unparseable destination", "id", disk.ID, "destination", disk.Destination)
	}
	reactions := disk.Reactions
	if reactions == nil {
		reactions = domain.ReactionMap{}
	}
	return domain.Message{
		ID:          disk.ID,
		Sender:      disk.Sender,
		Destination: dest,
		Content:     r.cipher.Decrypt(disk.Content),
		FileRef:     disk.FileRef,
		CreatedAt:   disk.At,
		Status:      domain.MessageStatus(disk.Status),
		ReplyTo:     disk.ReplyTo,
		Reactions:   reactions,
	}
}

// History scans newest-first, keeps the rows matching the filter up to
// the configured cap, then reverses so callers render oldest-first.
func (r *MessageRepository) History(identity string, filter HistoryFilter) ([]domain.Message, error) {
	limit := defaultHistoryLimit
	if r.limitMessages != nil {
		limit = *r.limitMessages
	}

	match := func(d diskMessage) bool {
		switch {
		case filter.Room != "":
			return d.Destination == string(filter.Room)
		case filter.Self:
			return d.Sender == identity || d.Destination == identity
		default:
			return (d.Sender == identity && d.Destination == filter.Peer) ||
				(d.Sender == filter.Peer && d.Destination == identity)
		}
	}

	var newest []diskMessage
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte("msg:")
		// Seek past the last possible key, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("99999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(newest) == limit {
				break
			}
			var d diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return err
			}
			if match(d) {
				newest = append(newest, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		messages = append(messages, r.toMessage(newest[i]))
	}
	return messages, nil
}

// MarkRead transitions sent to read, only when reader is an intended
// recipient. The transition is idempotent and never goes backward.
func (r *MessageRepository) MarkRead(id uint64, reader string) (bool, string, error) {
	var changed bool
	var sender string
	err := update(r.db, func(txn *badger.Txn) error {
		var disk diskMessage
		if err := get(txn, messageKey(id), func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); err != nil {
			return err
		}
		sender = disk.Sender
		changed = false
		if disk.Destination != reader {
			return nil
		}
		if disk.Status == string(domain.StatusRead) {
			return nil
		}
		disk.Status = string(domain.StatusRead)
		encoded, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		changed = true
		return txn.Set(messageKey(id), encoded)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, "", errors.ErrMessageNotFound
	}
	if err != nil {
		return false, "", err
	}
	return changed, sender, nil
}

func (r *MessageRepository) React(id uint64, identity, emoji string) (domain.ReactionMap, error) {
	return r.mutateReactions(id, func(reactions domain.ReactionMap) {
		reactions.Add(emoji, identity)
	})
}

func (r *MessageRepository) Unreact(id uint64, identity, emoji string) (domain.ReactionMap, error) {
	return r.mutateReactions(id, func(reactions domain.ReactionMap) {
		reactions.Remove(emoji, identity)
	})
}

func (r *MessageRepository) mutateReactions(id uint64, mutate func(domain.ReactionMap)) (domain.ReactionMap, error) {
	var updated domain.ReactionMap
	err := update(r.db, func(txn *badger.Txn) error {
		var disk diskMessage
		if err := get(txn, messageKey(id), func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); err != nil {
			return err
		}
		if disk.Reactions == nil {
			disk.Reactions = domain.ReactionMap{}
		}
		mutate(disk.Reactions)
		updated = disk.Reactions
		encoded, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(id), encoded)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes one message and returns its last state so the caller
// can release an exclusively owned file reference.
func (r *MessageRepository) Delete(id uint64) (domain.Message, error) {
	var disk diskMessage
	err := update(r.db, func(txn *badger.Txn) error {
		if err := get(txn, messageKey(id), func(val []byte) error {
			return json.Unmarshal(val, &disk)
		}); err != nil {
			return err
		}
		return txn.Delete(messageKey(id))
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return r.toMessage(disk), nil
}

// CountFileRefs reports how many stored messages reference fileID.
func (r *MessageRepository) CountFileRefs(fileID string) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		return r.scan(txn, func(d diskMessage) {
			if d.FileRef != nil && d.FileRef.ID == fileID {
				count++
			}
		})
	})
	return count, err
}

// ByFileRef returns every stored message referencing fileID, so callers
// can decide who owns the file before cascading a removal.
func (r *MessageRepository) ByFileRef(fileID string) ([]domain.Message, error) {
	var refs []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		return r.scan(txn, func(d diskMessage) {
			if d.FileRef != nil && d.FileRef.ID == fileID {
				refs = append(refs, r.toMessage(d))
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// DeleteByFileRef removes every message referencing fileID and returns
// the removed identifiers.
func (r *MessageRepository) DeleteByFileRef(fileID string) ([]uint64, error) {
	var removed []uint64
	err := update(r.db, func(txn *badger.Txn) error {
		removed = removed[:0]
		if err := r.scan(txn, func(d diskMessage) {
			if d.FileRef != nil && d.FileRef.ID == fileID {
				removed = append(removed, d.ID)
			}
		}); err != nil {
			return err
		}
		for _, id := range removed {
			if err := txn.Delete(messageKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// WipeRoomTx deletes every message addressed to room inside an existing
// transaction. The group directory calls this from its own cascade so
// the whole group deletion commits or fails as one unit.
func (r *MessageRepository) WipeRoomTx(txn *badger.Txn, room domain.RoomToken) error {
	var doomed []uint64
	if err := r.scan(txn, func(d diskMessage) {
		if d.Destination == string(room) {
			doomed = append(doomed, d.ID)
		}
	}); err != nil {
		return err
	}
	for _, id := range doomed {
		if err := txn.Delete(messageKey(id)); err != nil {
			return err
		}
	}
	return nil
}

func (r *MessageRepository) scan(txn *badger.Txn, visit func(diskMessage)) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	prefix := []byte("msg:")
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var d diskMessage
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &d)
		}); err != nil {
			return err
		}
		visit(d)
	}
	return nil
}

// Hydrate resolves a message into its delivery payload: reply summary,
// file metadata with a preview kind, and a detected language tag.
func (r *MessageRepository) Hydrate(m domain.Message) domain.HydratedMessage {
	hydrated := domain.HydratedMessage{
		ID:          m.ID,
		Sender:      m.Sender,
		Destination: string(m.Destination.Room()),
		Content:     m.Content,
		At:          m.CreatedAt,
		Status:      m.Status,
		Reactions:   m.Reactions,
	}
	if m.Content != "" && m.Content != security.DecryptFailed {
		info := whatlanggo.Detect(m.Content)
		hydrated.Lang = info.Lang.Iso6391()
	}
	if m.FileRef != nil {
		hydrated.File = &domain.FileInfo{
			StoredName:  m.FileRef.StoredName,
			DisplayName: m.FileRef.DisplayName,
			MediaType:   m.FileRef.MediaType,
			Preview:     string(mimetypes.PreviewKind(m.FileRef.MediaType)),
		}
	}
	if m.ReplyTo != nil {
		// A deleted reply target is absent, not an error.
		if target, err := r.Get(*m.ReplyTo); err == nil {
			hydrated.ReplyTo = &domain.ReplySummary{
				ID:      target.ID,
				Sender:  target.Sender,
				Content: target.Content,
				At:      target.CreatedAt,
			}
		}
	}
	return hydrated
}
