package workers

import (
	"context"
	"log/slog"

	"lanshare/access"
	"lanshare/contract"
	"lanshare/domain"
	"lanshare/domain/event"
	"lanshare/errors"
	"lanshare/moderation"
	"lanshare/repositories"
)

var _ contract.Worker = (*PipelineWorker)(nil)

// PipelineWorker consumes one command shard and runs the full send
// pipeline: access check, censoring, persistence, hydration, delivery
// event. Commands for a given room always land on the same shard, so
// delivery order within a room equals persistence order.
type PipelineWorker struct {
	commands  chan domain.Command
	events    chan event.DomainEvent
	evaluator access.IEvaluator
	moderator moderation.Moderator
	messages  repositories.IMessageRepository
	log       *slog.Logger
}

func NewPipelineWorker(
	commands chan domain.Command,
	events chan event.DomainEvent,
	evaluator access.IEvaluator,
	moderator moderation.Moderator,
	messages repositories.IMessageRepository,
	log *slog.Logger) *PipelineWorker {
	return &PipelineWorker{
		commands:  commands,
		events:    events,
		evaluator: evaluator,
		moderator: moderator,
		messages:  messages,
		log:       log,
	}
}

func (w *PipelineWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				w.log.Debug("Command channel is closed")
				return nil
			}
			var evt event.DomainEvent
			switch c := cmd.(type) {
			case domain.SendCommand:
				evt = w.handleSend(c)
			case domain.TypingCommand:
				evt = event.NewTyping(c.Sender, c.Destination.Room(), c.Stop, c.ConnID)
			default:
				w.log.Warn("Unknown command type", "room", cmd.Room())
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case w.events <- evt:
			}
		}
	}
}

// handleSend is all-or-nothing: a refused or failed send persists
// nothing and produces only a rejection scoped to the sender.
func (w *PipelineWorker) handleSend(cmd domain.SendCommand) event.DomainEvent {
	if err := w.evaluator.CanPost(cmd.Sender, cmd.Destination); err != nil {
		w.log.Info("Send refused",
			"sender", cmd.Sender,
			"room", cmd.Destination.Room(),
			"code", errors.Code(err))
		return event.SendRejected{Sender: cmd.Sender, Code: errors.Code(err), Reason: err.Error()}
	}

	content, found := w.moderator.Censor(cmd.Content)
	if len(found) > 0 {
		w.log.Info("Censored message content", "sender", cmd.Sender, "words", len(found))
	}

	msg, err := w.messages.Append(cmd.Sender, cmd.Destination, content, cmd.FileRef, cmd.ReplyTo, cmd.At)
	if err != nil {
		w.log.Error("Failed to persist message", "sender", cmd.Sender, "error", err)
		return event.SendRejected{Sender: cmd.Sender, Code: errors.Code(err), Reason: err.Error()}
	}

	return event.MessageDelivered{
		Payload: w.messages.Hydrate(msg),
		Targets: cmd.Destination.ResolveTargets(cmd.Sender),
	}
}
