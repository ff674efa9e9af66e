//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/blugelabs/bluge"

	"lanshare/domain"
)

const defaultSearchLimit = 25

type SearchHit struct {
	MessageID uint64    `json:"message_id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

type ISearchRepository interface {
	Index(msg domain.HydratedMessage) error
	Remove(messageID uint64) error
	Search(ctx context.Context, room, query string, limit int) ([]SearchHit, error)
	Close() error
}

// SearchRepository keeps a full text index over delivered messages.
// The index stores plaintext and lives next to the encrypted badger
// store; it is rebuildable and deliberately not the source of truth.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) *SearchRepository {
	return &SearchRepository{writer: writer, log: log}
}

func (r *SearchRepository) Index(msg domain.HydratedMessage) error {
	id := strconv.FormatUint(msg.ID, 10)
	doc := bluge.NewDocument(id).
		AddField(bluge.NewKeywordField("room", msg.Destination).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.Sender).StoreValue()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewDateTimeField("at", msg.At)).
		AddField(bluge.NewStoredOnlyField("at_text", []byte(msg.At.Format(time.RFC3339Nano))))
	return r.writer.Update(doc.ID(), doc)
}

func (r *SearchRepository) Remove(messageID uint64) error {
	id := strconv.FormatUint(messageID, 10)
	return r.writer.Delete(bluge.Identifier(id))
}

// Search matches query against message content, optionally scoped to a
// single room. Results come back best match first.
func (r *SearchRepository) Search(ctx context.Context, room, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	reader, err := r.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	match := bluge.NewMatchQuery(query).SetField("content")
	var q bluge.Query = match
	if room != "" {
		q = bluge.NewBooleanQuery().
			AddMust(match).
			AddMust(bluge.NewTermQuery(room).SetField("room"))
	}

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	for next, err := iter.Next(); next != nil; next, err = iter.Next() {
		if err != nil {
			return nil, err
		}
		var hit SearchHit
		visitErr := next.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID, _ = strconv.ParseUint(string(value), 10, 64)
			case "room":
				hit.Room = string(value)
			case "sender":
				hit.Sender = string(value)
			case "content":
				hit.Content = string(value)
			case "at_text":
				if at, err := time.Parse(time.RFC3339Nano, string(value)); err == nil {
					hit.At = at
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (r *SearchRepository) Close() error {
	return r.writer.Close()
}
