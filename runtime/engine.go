package runtime

import (
	"context"
	"embed"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lanshare/access"
	"lanshare/contract"
	"lanshare/domain"
	"lanshare/domain/event"
	"lanshare/moderation"
	"lanshare/repositories"
	"lanshare/runtime/workers"
)

//go:embed censored/*
var censoredFolder embed.FS

const heartbeatInterval = 30 * time.Second

// Engine is the broadcast pipeline. Commands are sharded across
// pipeline workers by room token, so any two commands for the same room
// are handled by the same worker in arrival order. Events from all
// shards merge into one channel drained by the fanout worker, which is
// the single place delivery happens.
type Engine struct {
	mu              sync.Mutex
	log             *slog.Logger
	numWorkers      int
	shards          []chan domain.Command
	events          chan event.DomainEvent
	supervisor      contract.ISupervisor
	registry        *Registry
	evaluator       access.IEvaluator
	messages        repositories.IMessageRepository
	permanentSinks  []contract.EventSink
	sinkTimeout     time.Duration
	charReplacement rune
}

func NewEngine(log *slog.Logger, supervisor *workers.Supervisor,
	registry *Registry, evaluator access.IEvaluator,
	messages repositories.IMessageRepository,
	numWorkers, bufferSize int, sinkTimeout time.Duration, charReplacement rune) *Engine {
	if numWorkers < 1 {
		numWorkers = 1
	}
	shards := make([]chan domain.Command, numWorkers)
	for i := range shards {
		shards[i] = make(chan domain.Command, bufferSize)
	}
	return &Engine{
		log:             log,
		numWorkers:      numWorkers,
		shards:          shards,
		events:          make(chan event.DomainEvent, bufferSize*numWorkers),
		supervisor:      supervisor,
		registry:        registry,
		evaluator:       evaluator,
		messages:        messages,
		sinkTimeout:     sinkTimeout,
		charReplacement: charReplacement,
	}
}

// Add attaches permanent sinks that receive every event regardless of
// room subscriptions. Must be called before Start.
func (e *Engine) Add(sinks ...contract.EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permanentSinks = append(e.permanentSinks, sinks...)
}

func (e *Engine) Registry() *Registry { return e.registry }

// Dispatch routes a command to its room's shard. Never blocks: a full
// shard drops the command with a warning. Senders learn about accepted
// sends through the delivery event, not through Dispatch.
func (e *Engine) Dispatch(cmd domain.Command) {
	shard := e.shards[e.shardFor(cmd.Room())]
	select {
	case shard <- cmd:
	default:
		e.log.Warn(fmt.Sprintf("Command shard full for room %s, dropping command", cmd.Room()))
	}
}

// Publish injects an already-built event into the fanout. Used by the
// service layer for state changes that bypass the send pipeline, like
// reactions and presence updates.
func (e *Engine) Publish(evt event.DomainEvent) {
	select {
	case e.events <- evt:
	default:
		e.log.Warn("Event channel full, dropping event")
	}
}

func (e *Engine) shardFor(room domain.RoomToken) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	return int(h.Sum32()) % e.numWorkers
}

// Start builds the moderation automaton, wires all workers under the
// supervisor, and blocks until the context is cancelled and every
// worker has exited. Heavy preparation happens before the lock.
func (e *Engine) Start(ctx context.Context) error {
	moderator, err := e.prepareModeration("censored")
	if err != nil {
		return err
	}

	e.mu.Lock()
	fanout := workers.NewEventFanout(e.log, e.events, e.registry, e.permanentSinks, e.sinkTimeout)
	e.supervisor.Add(fanout)
	for _, shard := range e.shards {
		e.supervisor.Add(workers.NewPipelineWorker(shard, e.events, e.evaluator, moderator, e.messages, e.log))
	}
	e.supervisor.Add(workers.NewHeartbeatWorker(e.log, heartbeatInterval, e.registry.Stats))
	e.mu.Unlock()

	e.log.Info("Starting engine and all supervised workers", "pipeline_workers", e.numWorkers)
	e.supervisor.Run(ctx)
	return nil
}

func (e *Engine) prepareModeration(path string) (moderation.Moderator, error) {
	loader := NewCensoredLoader(censoredFolder)
	data, err := loader.LoadAll(path)
	if err != nil {
		return moderation.Moderator{}, err
	}
	e.log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	e.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))
	return moderation.NewModerator(data.Words, e.charReplacement)
}

// Stop cancels the supervised context. Start returns once the workers
// have drained.
func (e *Engine) Stop() {
	e.log.Info("Requesting engine shutdown")
	e.supervisor.Stop()
}
