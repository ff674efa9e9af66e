package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"

	"lanshare/domain"
)

func setupSearchRepository(t *testing.T) *SearchRepository {
	t.Helper()
	req := require.New(t)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	repo := NewSearchRepository(writer, slog.Default())
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func hydrated(id uint64, sender, room, content string) domain.HydratedMessage {
	return domain.HydratedMessage{
		ID:          id,
		Sender:      sender,
		Destination: room,
		Content:     content,
		At:          time.Now().UTC(),
		Status:      domain.StatusSent,
	}
}

func TestSearchRepository_IndexAndSearch(t *testing.T) {
	req := require.New(t)
	repo := setupSearchRepository(t)
	ctx := context.Background()

	req.NoError(repo.Index(hydrated(1, "alice", "all", "deploy scheduled for friday")))
	req.NoError(repo.Index(hydrated(2, "bob", "all", "lunch anyone")))

	hits, err := repo.Search(ctx, "", "deploy", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(uint64(1), hits[0].MessageID)
	req.Equal("alice", hits[0].Sender)
	req.Contains(hits[0].Content, "deploy")
}

func TestSearchRepository_RoomScoping(t *testing.T) {
	req := require.New(t)
	repo := setupSearchRepository(t)
	ctx := context.Background()

	req.NoError(repo.Index(hydrated(1, "alice", "all", "release notes")))
	req.NoError(repo.Index(hydrated(2, "alice", "group-g1", "release candidate")))

	hits, err := repo.Search(ctx, "group-g1", "release", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("group-g1", hits[0].Room)
}

func TestSearchRepository_RemoveDropsHits(t *testing.T) {
	req := require.New(t)
	repo := setupSearchRepository(t)
	ctx := context.Background()

	req.NoError(repo.Index(hydrated(7, "bob", "all", "ephemeral message")))
	req.NoError(repo.Remove(7))

	hits, err := repo.Search(ctx, "", "ephemeral", 10)
	req.NoError(err)
	req.Empty(hits)
}

func TestSearchRepository_ReindexUpdatesInPlace(t *testing.T) {
	req := require.New(t)
	repo := setupSearchRepository(t)
	ctx := context.Background()

	req.NoError(repo.Index(hydrated(3, "bob", "all", "draft wording")))
	req.NoError(repo.Index(hydrated(3, "bob", "all", "final wording")))

	hits, err := repo.Search(ctx, "", "wording", 10)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("final wording", hits[0].Content)
}
