package test

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"lanshare/access"
	"lanshare/domain"
	"lanshare/domain/event"
	"lanshare/internal"
	"lanshare/mocks"
	"lanshare/repositories"
	"lanshare/runtime"
	"lanshare/runtime/workers"
	"lanshare/security"
	"lanshare/services"
	"lanshare/sink"
)

type captureSink struct {
	events chan event.DomainEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{events: make(chan event.DomainEvent, 64)}
}

func (s *captureSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.events <- e
	return nil
}

// await drains events until match accepts one, skipping the presence and
// group chatter every connection receives on the public room.
func (s *captureSink) await(t *testing.T, timeout time.Duration, match func(event.DomainEvent) bool) event.DomainEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-s.events:
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("Timeout: expected event never arrived")
			return nil
		}
	}
}

func isDelivered(content string) func(event.DomainEvent) bool {
	return func(e event.DomainEvent) bool {
		delivered, ok := e.(event.MessageDelivered)
		return ok && delivered.Payload.Content == content
	}
}

func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	cfg, err := LoadConfig()
	req.NoError(err)

	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)

	key := make([]byte, 32)
	_, err = rand.Read(key)
	req.NoError(err)
	cipher, err := security.NewCipher(key)
	req.NoError(err)

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)

	log := internal.GetLoggerFromString("debug")
	messages, err := repositories.NewMessageRepository(db, cipher, log, &cfg.LimitMessages)
	req.NoError(err)
	identities := repositories.NewIdentityRepository(db, log)
	groups := repositories.NewGroupRepository(db, messages, log)
	searchRepo := repositories.NewSearchRepository(writer, log)

	registry := runtime.NewRegistry()
	evaluator := access.NewEvaluator(groups, log)
	presence := runtime.NewPresence(identities, log)
	engine := runtime.NewEngine(log, workers.NewSupervisor(log), registry, evaluator,
		messages, cfg.Workers, cfg.BufferSize, cfg.SinkTimeout, '*')

	// An audit sink observes every event like the log sink in production
	ctrl := gomock.NewController(t)
	auditSink := mocks.NewMockEventSink(ctrl)
	auditSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	engine.Add(sink.NewSearchSink(searchRepo, log), auditSink)

	engineCtx, cancelEngine := context.WithCancel(ctx)
	go func() { _ = engine.Start(engineCtx) }()

	files := mocks.NewMockFileStore(ctrl)
	chat := services.NewChatService(engine, messages, identities, groups, searchRepo, presence, files, nil, log)
	groupService := services.NewGroupService(groups, evaluator, engine, log)

	// Clean everything at the end of the test
	t.Cleanup(func() {
		cancelEngine()
		engine.Stop()
		_ = searchRepo.Close()
		_ = messages.Close()
		_ = db.Close()
	})

	// Given alice and bob are connected
	alice := newCaptureSink()
	bob := newCaptureSink()
	req.NoError(chat.Connect(ctx, "conn-alice", "alice", alice))
	req.NoError(chat.Connect(ctx, "conn-bob", "bob", bob))
	req.ElementsMatch([]string{"alice", "bob"}, chat.ListOnline())

	// When alice posts to the public room, bob receives it
	req.NoError(chat.Send("conn-alice", "alice", "all", "good morning everyone", nil, nil))
	evt := bob.await(t, cfg.WaitTimeout, isDelivered("good morning everyone"))
	public := evt.(event.MessageDelivered)
	req.Equal("alice", public.Payload.Sender)

	// When bob sends alice a direct message, both their personal rooms see it
	req.NoError(chat.Send("conn-bob", "bob", "alice", "lunch at noon?", nil, nil))
	direct := alice.await(t, cfg.WaitTimeout, isDelivered("lunch at noon?")).(event.MessageDelivered)
	bob.await(t, cfg.WaitTimeout, isDelivered("lunch at noon?"))

	// And alice marking it read notifies bob exactly once
	req.NoError(chat.MarkRead("alice", direct.Payload.ID))
	bob.await(t, cfg.WaitTimeout, func(e event.DomainEvent) bool {
		read, ok := e.(event.ReadConfirmed)
		return ok && read.MessageID == direct.Payload.ID && read.Reader == "alice"
	})
	req.NoError(chat.MarkRead("alice", direct.Payload.ID)) // silently absorbed

	// When alice creates a group with bob, both sessions learn about it
	group, err := groupService.Create("alice", "standup", "daily sync", "", []string{"bob"}, nil)
	req.NoError(err)
	for _, s := range []*captureSink{alice, bob} {
		s.await(t, cfg.WaitTimeout, func(e event.DomainEvent) bool {
			created, ok := e.(event.GroupCreated)
			return ok && created.GroupID == group.ID
		})
	}

	// And their connections subscribe to the group room, like the
	// websocket layer does on GroupCreated
	chat.JoinRoom("conn-alice", group.Room())
	chat.JoinRoom("conn-bob", group.Room())

	req.NoError(chat.Send("conn-alice", "alice", "group-"+group.ID, "standup in five", nil, nil))
	bob.await(t, cfg.WaitTimeout, isDelivered("standup in five"))

	// Then history replays the public room for a late joiner
	history, err := chat.History("bob", repositories.HistoryFilter{Room: domain.PublicRoom})
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("good morning everyone", history[0].Content)

	// And the search sink has indexed the delivered messages
	req.Eventually(func() bool {
		hits, err := searchRepo.Search(ctx, "", "morning", 10)
		return err == nil && len(hits) == 1
	}, cfg.WaitTimeout, 50*time.Millisecond)

	// When bob disconnects, presence shrinks back to alice
	chat.Disconnect(ctx, "conn-bob", "bob")
	req.Equal([]string{"alice"}, chat.ListOnline())
}
