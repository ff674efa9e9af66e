package runtime

import (
	"context"
	"crypto/rand"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"lanshare/access"
	"lanshare/domain"
	"lanshare/domain/event"
	"lanshare/repositories"
	"lanshare/runtime/workers"
	"lanshare/security"
)

type captureSink struct {
	events chan event.DomainEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{events: make(chan event.DomainEvent, 16)}
}

func (s *captureSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.events <- e
	return nil
}

func (s *captureSink) next(t *testing.T) event.DomainEvent {
	t.Helper()
	select {
	case e := <-s.events:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func setupEngine(t *testing.T) (*Engine, *repositories.GroupRepository, context.CancelFunc) {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	key := make([]byte, 32)
	_, err = rand.Read(key)
	req.NoError(err)
	cipher, err := security.NewCipher(key)
	req.NoError(err)

	messages, err := repositories.NewMessageRepository(db, cipher, slog.Default(), nil)
	req.NoError(err)
	t.Cleanup(func() { _ = messages.Close() })
	groups := repositories.NewGroupRepository(db, messages, slog.Default())

	log := slog.Default()
	engine := NewEngine(log, workers.NewSupervisor(log), NewRegistry(),
		access.NewEvaluator(groups, log), messages, 4, 100, time.Second, '*')

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = engine.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		engine.Stop()
	})
	return engine, groups, cancel
}

func TestEngine_SendIsPersistedAndDelivered(t *testing.T) {
	req := require.New(t)
	engine, _, _ := setupEngine(t)

	sink := newCaptureSink()
	engine.Registry().Register("c1", sink)
	engine.Registry().Join("c1", domain.PublicRoom)

	// When dispatching a public send
	engine.Dispatch(domain.SendCommand{
		ConnID:      "c1",
		Sender:      "alice",
		Destination: domain.Public(),
		Content:     "hello everyone",
		At:          time.Now().UTC(),
	})

	// Then the subscribed sink receives the hydrated payload
	evt := sink.next(t)
	delivered, ok := evt.(event.MessageDelivered)
	req.True(ok)
	req.Equal("alice", delivered.Payload.Sender)
	req.Equal("hello everyone", delivered.Payload.Content)
	req.Equal([]domain.RoomToken{domain.PublicRoom}, delivered.Targets)
}

func TestEngine_CensoredWordsAreMaskedBeforeDelivery(t *testing.T) {
	req := require.New(t)
	engine, _, _ := setupEngine(t)

	sink := newCaptureSink()
	engine.Registry().Register("c1", sink)
	engine.Registry().Join("c1", domain.PublicRoom)

	engine.Dispatch(domain.SendCommand{
		ConnID:      "c1",
		Sender:      "bob",
		Destination: domain.Public(),
		Content:     "what an idiot",
		At:          time.Now().UTC(),
	})

	delivered, ok := sink.next(t).(event.MessageDelivered)
	req.True(ok)
	req.NotContains(delivered.Payload.Content, "idiot")
	req.Contains(delivered.Payload.Content, "*****")
}

func TestEngine_AdminOnlyGroupRejectsNonAdmin(t *testing.T) {
	req := require.New(t)
	engine, groups, _ := setupEngine(t)

	group, err := groups.Create("locked", "", "", "alice", []string{"bob"}, nil)
	req.NoError(err)
	req.NoError(groups.SetAdminOnly(group.ID, true))

	// Given bob listens on his own personal room
	sink := newCaptureSink()
	engine.Registry().Register("c-bob", sink)
	engine.Registry().Join("c-bob", domain.PersonalRoom("bob"))

	// When bob posts into the admin-only group
	engine.Dispatch(domain.SendCommand{
		ConnID:      "c-bob",
		Sender:      "bob",
		Destination: domain.GroupDestination(group.ID),
		Content:     "can anyone hear me",
		At:          time.Now().UTC(),
	})

	// Then only a rejection scoped to bob comes out
	rejected, ok := sink.next(t).(event.SendRejected)
	req.True(ok)
	req.Equal("bob", rejected.Sender)
	req.Equal("access_denied", rejected.Code)
}

func TestEngine_NonMemberCanPostToOpenGroup(t *testing.T) {
	req := require.New(t)
	engine, groups, _ := setupEngine(t)

	group, err := groups.Create("open-floor", "", "", "alice", []string{"alice"}, nil)
	req.NoError(err)

	// Given alice listens on the group room
	sink := newCaptureSink()
	engine.Registry().Register("c-alice", sink)
	engine.Registry().Join("c-alice", group.Room())

	// When eve, who is not a member, posts to the open group
	engine.Dispatch(domain.SendCommand{
		ConnID:      "c-eve",
		Sender:      "eve",
		Destination: domain.GroupDestination(group.ID),
		Content:     "mind if i join",
		At:          time.Now().UTC(),
	})

	// Then the message is delivered, an open group only has to exist
	delivered, ok := sink.next(t).(event.MessageDelivered)
	req.True(ok)
	req.Equal("eve", delivered.Payload.Sender)
	req.Equal("mind if i join", delivered.Payload.Content)
}

func TestEngine_UnknownGroupRejectsSend(t *testing.T) {
	req := require.New(t)
	engine, _, _ := setupEngine(t)

	sink := newCaptureSink()
	engine.Registry().Register("c-eve", sink)
	engine.Registry().Join("c-eve", domain.PersonalRoom("eve"))

	engine.Dispatch(domain.SendCommand{
		ConnID:      "c-eve",
		Sender:      "eve",
		Destination: domain.GroupDestination("no-such-group"),
		Content:     "anyone here",
		At:          time.Now().UTC(),
	})

	rejected, ok := sink.next(t).(event.SendRejected)
	req.True(ok)
	req.Equal("not_found", rejected.Code)
}

func TestEngine_TypingSkipsOriginatingConn(t *testing.T) {
	req := require.New(t)
	engine, _, _ := setupEngine(t)

	origin := newCaptureSink()
	other := newCaptureSink()
	engine.Registry().Register("c-origin", origin)
	engine.Registry().Register("c-other", other)
	engine.Registry().Join("c-origin", domain.PublicRoom)
	engine.Registry().Join("c-other", domain.PublicRoom)

	engine.Dispatch(domain.TypingCommand{
		ConnID:      "c-origin",
		Sender:      "alice",
		Destination: domain.Public(),
	})

	// Then the other connection sees typing, the origin does not
	typing, ok := other.next(t).(event.Typing)
	req.True(ok)
	req.Equal("alice", typing.From)

	select {
	case e := <-origin.events:
		req.Failf("origin should not receive its own typing", "got %T", e)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestEngine_SameRoomDeliveryPreservesOrder(t *testing.T) {
	req := require.New(t)
	engine, _, _ := setupEngine(t)

	sink := newCaptureSink()
	engine.Registry().Register("c1", sink)
	engine.Registry().Join("c1", domain.PublicRoom)

	contents := []string{"one", "two", "three", "four", "five"}
	for _, c := range contents {
		engine.Dispatch(domain.SendCommand{
			ConnID:      "c1",
			Sender:      "alice",
			Destination: domain.Public(),
			Content:     c,
			At:          time.Now().UTC(),
		})
	}

	// Then deliveries arrive in dispatch order with increasing ids
	var lastID uint64
	for _, expected := range contents {
		delivered, ok := sink.next(t).(event.MessageDelivered)
		req.True(ok)
		req.Equal(expected, delivered.Payload.Content)
		req.Greater(delivered.Payload.ID, lastID)
		lastID = delivered.Payload.ID
	}
}

func TestEngine_PublishReachesPermanentSinks(t *testing.T) {
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	key := make([]byte, 32)
	_, err = rand.Read(key)
	req.NoError(err)
	cipher, err := security.NewCipher(key)
	req.NoError(err)
	messages, err := repositories.NewMessageRepository(db, cipher, slog.Default(), nil)
	req.NoError(err)
	t.Cleanup(func() { _ = messages.Close() })
	groups := repositories.NewGroupRepository(db, messages, slog.Default())

	log := slog.Default()
	engine := NewEngine(log, workers.NewSupervisor(log), NewRegistry(),
		access.NewEvaluator(groups, log), messages, 2, 100, time.Second, '*')

	permanent := newCaptureSink()
	engine.Add(permanent)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = engine.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		engine.Stop()
	})

	engine.Publish(event.PresenceChanged{Online: []string{"alice"}})

	presence, ok := permanent.next(t).(event.PresenceChanged)
	req.True(ok)
	req.Equal([]string{"alice"}, presence.Online)
}
