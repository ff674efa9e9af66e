//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"lanshare/contract"
	"lanshare/domain"
	"lanshare/domain/event"
	"lanshare/errors"
	"lanshare/repositories"
	"lanshare/runtime"
)

type IChatService interface {
	Connect(ctx context.Context, connID, identity string, sink contract.EventSink) error
	Disconnect(ctx context.Context, connID, identity string)
	JoinRoom(connID string, room domain.RoomToken)
	LeaveRoom(connID string, room domain.RoomToken)
	Send(connID, sender, destination, content string, fileRef *domain.FileRef, replyTo *uint64) error
	Typing(connID, sender, destination string, stop bool) error
	History(identity string, filter repositories.HistoryFilter) ([]domain.HydratedMessage, error)
	React(identity string, messageID uint64, emoji string) error
	Unreact(identity string, messageID uint64, emoji string) error
	MarkRead(identity string, messageID uint64) error
	DeleteMessage(ctx context.Context, requester string, messageID uint64) error
	DeleteFile(ctx context.Context, requester, fileID string) error
	Search(ctx context.Context, room, query string, limit int) ([]repositories.SearchHit, error)
	ListOnline() []string
	ListIdentities() ([]domain.Identity, error)
}

// ChatService is the operation surface for everything message-shaped.
// It validates input at the boundary, then either dispatches into the
// engine pipeline (sends, typing) or mutates the store directly and
// publishes the resulting event (reactions, read receipts, deletion).
type ChatService struct {
	engine     *runtime.Engine
	messages   repositories.IMessageRepository
	identities repositories.IIdentityRepository
	groups     repositories.IGroupRepository
	search     repositories.ISearchRepository
	presence   contract.IPresence
	files      contract.FileStore
	admins     []string
	log        *slog.Logger
}

func NewChatService(
	engine *runtime.Engine,
	messages repositories.IMessageRepository,
	identities repositories.IIdentityRepository,
	groups repositories.IGroupRepository,
	search repositories.ISearchRepository,
	presence contract.IPresence,
	files contract.FileStore,
	admins []string,
	log *slog.Logger) *ChatService {
	return &ChatService{
		engine:     engine,
		messages:   messages,
		identities: identities,
		groups:     groups,
		search:     search,
		presence:   presence,
		files:      files,
		admins:     admins,
		log:        log,
	}
}

// isPrivileged reports whether identity is a configured operator, who
// may delete any message or file regardless of authorship.
func (s *ChatService) isPrivileged(identity string) bool {
	return lo.Contains(s.admins, identity)
}

// Connect registers a live connection and subscribes it to its personal
// room, the public room, and every group the identity belongs to. The
// updated online list is broadcast to everyone.
func (s *ChatService) Connect(ctx context.Context, connID, identity string, sink contract.EventSink) error {
	if err := s.identities.Ensure(identity); err != nil {
		return err
	}

	registry := s.engine.Registry()
	registry.Register(connID, sink)
	registry.Join(connID, domain.PersonalRoom(identity))
	registry.Join(connID, domain.PublicRoom)

	groups, err := s.groups.ListForIdentity(identity)
	if err != nil {
		return err
	}
	for _, g := range groups {
		registry.Join(connID, g.Room())
	}

	s.presence.MarkOnline(ctx, identity)
	s.engine.Publish(event.PresenceChanged{Online: s.presence.ListOnline()})
	s.log.Info("Connected", "identity", identity, "conn", connID, "groups", len(groups))
	return nil
}

func (s *ChatService) Disconnect(ctx context.Context, connID, identity string) {
	s.engine.Registry().Drop(connID)
	s.presence.MarkOffline(ctx, identity)
	s.engine.Publish(event.PresenceChanged{Online: s.presence.ListOnline()})
	s.log.Info("Disconnected", "identity", identity, "conn", connID)
}

// JoinRoom subscribes a live connection to a room after the fact, used
// when group membership changes while the connection is up.
func (s *ChatService) JoinRoom(connID string, room domain.RoomToken) {
	s.engine.Registry().Join(connID, room)
}

func (s *ChatService) LeaveRoom(connID string, room domain.RoomToken) {
	s.engine.Registry().Leave(connID, room)
}

// Send runs boundary validation and hands the command to the engine.
// Acceptance here only means the command was queued; outcome arrives as
// a delivery or rejection event.
func (s *ChatService) Send(connID, sender, destination, content string, fileRef *domain.FileRef, replyTo *uint64) error {
	if content == "" && fileRef == nil {
		return errors.ErrInvalidInput
	}
	dest, err := domain.ParseDestination(destination)
	if err != nil {
		return err
	}
	s.engine.Dispatch(domain.SendCommand{
		ConnID:      connID,
		Sender:      sender,
		Destination: dest,
		Content:     content,
		FileRef:     fileRef,
		ReplyTo:     replyTo,
		At:          time.Now().UTC(),
	})
	return nil
}

func (s *ChatService) Typing(connID, sender, destination string, stop bool) error {
	dest, err := domain.ParseDestination(destination)
	if err != nil {
		return err
	}
	s.engine.Dispatch(domain.TypingCommand{
		ConnID:      connID,
		Sender:      sender,
		Destination: dest,
		Stop:        stop,
	})
	return nil
}

func (s *ChatService) History(identity string, filter repositories.HistoryFilter) ([]domain.HydratedMessage, error) {
	messages, err := s.messages.History(identity, filter)
	if err != nil {
		return nil, err
	}
	return lo.Map(messages, func(m domain.Message, _ int) domain.HydratedMessage {
		return s.messages.Hydrate(m)
	}), nil
}

func (s *ChatService) React(identity string, messageID uint64, emoji string) error {
	if emoji == "" {
		return errors.ErrInvalidInput
	}
	reactions, err := s.messages.React(messageID, identity, emoji)
	if err != nil {
		return err
	}
	s.engine.Publish(event.ReactionsUpdated{MessageID: messageID, Reactions: reactions})
	return nil
}

func (s *ChatService) Unreact(identity string, messageID uint64, emoji string) error {
	reactions, err := s.messages.Unreact(messageID, identity, emoji)
	if err != nil {
		return err
	}
	s.engine.Publish(event.ReactionsUpdated{MessageID: messageID, Reactions: reactions})
	return nil
}

// MarkRead records the receipt and notifies the original sender, once.
// Re-reads are silently absorbed.
func (s *ChatService) MarkRead(identity string, messageID uint64) error {
	changed, sender, err := s.messages.MarkRead(messageID, identity)
	if err != nil {
		return err
	}
	if changed {
		s.engine.Publish(event.ReadConfirmed{MessageID: messageID, Reader: identity, Sender: sender})
	}
	return nil
}

// DeleteMessage removes a message the requester authored. When the
// message carried the last reference to a stored file, the file is
// removed too. Everyone is told so clients can drop the row.
func (s *ChatService) DeleteMessage(ctx context.Context, requester string, messageID uint64) error {
	msg, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if !msg.CanDelete(requester, s.isPrivileged(requester)) {
		return errors.ErrAccessDenied
	}

	deleted, err := s.messages.Delete(messageID)
	if err != nil {
		return err
	}

	if deleted.FileRef != nil {
		remaining, err := s.messages.CountFileRefs(deleted.FileRef.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.files.Remove(ctx, deleted.FileRef.ID); err != nil {
				s.log.Warn("Failed to remove orphaned file", "file", deleted.FileRef.ID, "error", err)
			}
		}
	}

	s.engine.Publish(event.MessageDeleted{MessageID: messageID})
	return nil
}

// DeleteFile removes a stored file and every message that referenced
// it, the reverse cascade of DeleteMessage. Only an operator or someone
// who could delete each referencing message may trigger it. Clients get
// one deletion event per removed message.
func (s *ChatService) DeleteFile(ctx context.Context, requester, fileID string) error {
	if fileID == "" {
		return errors.ErrInvalidInput
	}
	if !s.isPrivileged(requester) {
		refs, err := s.messages.ByFileRef(fileID)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return errors.ErrAccessDenied
		}
		for _, msg := range refs {
			if !msg.CanDelete(requester, false) {
				return errors.ErrAccessDenied
			}
		}
	}
	removed, err := s.messages.DeleteByFileRef(fileID)
	if err != nil {
		return err
	}
	if err := s.files.Remove(ctx, fileID); err != nil {
		s.log.Warn("Failed to remove file", "file", fileID, "error", err)
	}
	for _, id := range removed {
		s.engine.Publish(event.MessageDeleted{MessageID: id})
	}
	return nil
}

func (s *ChatService) Search(ctx context.Context, room, query string, limit int) ([]repositories.SearchHit, error) {
	if query == "" {
		return nil, errors.ErrInvalidInput
	}
	return s.search.Search(ctx, room, query, limit)
}

func (s *ChatService) ListOnline() []string {
	return s.presence.ListOnline()
}

func (s *ChatService) ListIdentities() ([]domain.Identity, error) {
	return s.identities.List()
}
