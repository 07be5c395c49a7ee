// Package queue implements the command queue (spec.md §4.4): a per-satellite
// ordered queue of not-yet-dispatched commands, an in-flight map enforcing
// the at-most-one-non-terminal-command-per-satellite invariant, and a
// periodic dispatcher that promotes ready commands to "pending" and
// publishes a dispatch event for the executor to pick up.
//
// Ordering and retry scheduling are grounded on the teacher's
// scheduler.go/retry_queue.go pair: one dsa.PriorityQueue per satellite
// (priority descending via negated keys, FIFO tie-break, starvation boost
// disabled) gives exactly spec.md's "(-priority, inserted_at)" ordering.
package queue

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stellarops/stellarops/internal/domain"
	"github.com/stellarops/stellarops/internal/infra/dsa"
	"github.com/stellarops/stellarops/internal/infra/metrics"
)

// DispatchEvent is published once the dispatcher marks a command pending.
type DispatchEvent struct {
	Command domain.Command
}

// DispatchTopic is the single topic the command executor subscribes to for
// dispatch events, regardless of satellite. "satellite:{sat}:commands"
// additionally carries the dispatch event alone, for WebSocket sessions
// watching one satellite; the executor would have to subscribe to one such
// topic per known satellite, so it gets this one catch-all instead.
const DispatchTopic = "commands:dispatch"

// CommandUpdatesTopic is the global feed of every command status change,
// across all satellites (spec.md §4.12's "commands:updates" WebSocket
// topic). "satellite:{sat}" carries the same events scoped to one
// satellite.
const CommandUpdatesTopic = "commands:updates"

// Config controls the dispatcher's tick interval.
type Config struct {
	Tick time.Duration
}

// DefaultConfig matches spec.md §4.4's "periodic tick (every 5 s)".
func DefaultConfig() Config {
	return Config{Tick: 5 * time.Second}
}

type inFlightEntry struct {
	cmd domain.Command
}

// Queue is the command queue of spec.md §4.4. It implements
// domain.CommandSink so the executor can report dispatch outcomes back
// without depending on the queue's internals.
type Queue struct {
	mu        sync.Mutex
	cfg       Config
	store     domain.Store
	bus       domain.Bus
	perSat    map[string]*dsa.PriorityQueue
	inFlight  map[string]*inFlightEntry
	now       func() time.Time
	logger    *log.Logger
	stopTick  chan struct{}
	tickWG    sync.WaitGroup
}

// New builds a Queue backed by store for durability and bus for broadcast.
func New(store domain.Store, bus domain.Bus, cfg Config) *Queue {
	return &Queue{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		perSat:   make(map[string]*dsa.PriorityQueue),
		inFlight: make(map[string]*inFlightEntry),
		now:      time.Now,
		logger:   log.New(os.Stderr, "[queue] ", log.LstdFlags),
		stopTick: make(chan struct{}),
	}
}

func (q *Queue) satQueue(satelliteID string) *dsa.PriorityQueue {
	pq, ok := q.perSat[satelliteID]
	if !ok {
		pq = dsa.NewPriorityQueue(dsa.DefaultPriorityQueueConfig())
		q.perSat[satelliteID] = pq
	}
	return pq
}

// Enqueue persists a new command as "queued", adds it to its satellite's
// in-memory queue, and broadcasts the creation.
func (q *Queue) Enqueue(ctx context.Context, cmd domain.Command) (domain.Command, error) {
	cmd.Status = domain.CommandQueued
	cmd.InsertedAt = q.now()

	created, err := q.store.InsertCommand(ctx, cmd)
	if err != nil {
		return domain.Command{}, domain.WrapError(domain.KindTransient, "persist command", err)
	}

	q.mu.Lock()
	q.satQueue(created.SatelliteID).Push(dsa.HeapItem{
		Key:         created.ID,
		Priority:    -created.Priority,
		SubmittedAt: created.InsertedAt,
		Value:       created,
	})
	q.mu.Unlock()

	metrics.CommandsEnqueued.WithLabelValues(created.Type).Inc()
	metrics.CommandsInFlight.Inc()
	q.publishCommandUpdate(created.SatelliteID, "command_queued", created)
	return created, nil
}

// Cancel transitions a command to cancelled if it's still queued or
// pending, per spec.md §4.4's cancel table.
func (q *Queue) Cancel(ctx context.Context, commandID string) error {
	cmd, err := q.store.GetCommand(ctx, commandID)
	if err != nil {
		return domain.NewError(domain.KindNotFound, "command not found: "+commandID)
	}

	switch cmd.Status {
	case domain.CommandQueued:
		q.mu.Lock()
		if pq, ok := q.perSat[cmd.SatelliteID]; ok {
			pq.Remove(commandID)
		}
		q.mu.Unlock()
	case domain.CommandPending:
		// still tracked in-flight; removed below once status updates.
	case domain.CommandAcknowledged, domain.CommandExecuting:
		return domain.NewError(domain.KindInvalidStatus, "cannot cancel a command in status "+string(cmd.Status))
	default:
		return domain.NewError(domain.KindNotFound, "command already terminal or unknown: "+commandID)
	}

	if err := q.store.UpdateCommandStatus(ctx, commandID, domain.CommandCancelled, domain.CommandUpdate{}); err != nil {
		return domain.WrapError(domain.KindTransient, "update command status", err)
	}
	q.mu.Lock()
	delete(q.inFlight, commandID)
	q.mu.Unlock()

	cmd.Status = domain.CommandCancelled
	metrics.CommandsInFlight.Dec()
	q.publishCommandUpdate(cmd.SatelliteID, "command_cancelled", cmd)
	return nil
}

// Acknowledge implements domain.CommandSink: pending -> acknowledged.
func (q *Queue) Acknowledge(id string) {
	q.transitionInFlight(id, domain.CommandAcknowledged, domain.CommandUpdate{})
}

// StartExecution implements domain.CommandSink: acknowledged -> executing.
func (q *Queue) StartExecution(id string) {
	now := q.now()
	q.transitionInFlight(id, domain.CommandExecuting, domain.CommandUpdate{StartedAt: &now})
}

// Complete implements domain.CommandSink: executing -> completed, clearing
// in-flight and retry bookkeeping.
func (q *Queue) Complete(id string, result map[string]any) {
	now := q.now()
	q.transitionInFlight(id, domain.CommandCompleted, domain.CommandUpdate{CompletedAt: &now, Result: result})
	q.mu.Lock()
	entry, ok := q.inFlight[id]
	delete(q.inFlight, id)
	q.mu.Unlock()
	if ok {
		metrics.CommandsCompleted.WithLabelValues(entry.cmd.Type).Inc()
		metrics.CommandsInFlight.Dec()
	}
}

// Fail implements domain.CommandSink. If retry_count < domain.MaxCommandRetries
// the command is requeued with an incremented retry count and a
// scheduled_at computed from spec.md's exponential backoff; otherwise it
// is transitioned to permanently failed.
func (q *Queue) Fail(id string, errMsg string) {
	ctx := context.Background()
	cmd, err := q.store.GetCommand(ctx, id)
	if err != nil {
		q.logger.Printf("fail(%s): command not found: %v", id, err)
		return
	}

	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()

	if cmd.RetryCount >= domain.MaxCommandRetries {
		now := q.now()
		_ = q.store.UpdateCommandStatus(ctx, id, domain.CommandFailed, domain.CommandUpdate{CompletedAt: &now, Error: errMsg})
		cmd.Status = domain.CommandFailed
		cmd.Error = errMsg
		metrics.CommandsFailed.WithLabelValues(cmd.Type, errMsg).Inc()
		metrics.CommandsInFlight.Dec()
		q.publishCommandUpdate(cmd.SatelliteID, "command_failed", cmd)
		return
	}

	retryCount := cmd.RetryCount + 1
	scheduledAt := q.now().Add(domain.RetryBackoff(retryCount))
	if err := q.store.UpdateCommandStatus(ctx, id, domain.CommandQueued, domain.CommandUpdate{
		Error:       errMsg,
		RetryCount:  &retryCount,
		ScheduledAt: &scheduledAt,
	}); err != nil {
		q.logger.Printf("fail(%s): requeue persist: %v", id, err)
		return
	}

	cmd.Status = domain.CommandQueued
	cmd.RetryCount = retryCount
	cmd.ScheduledAt = &scheduledAt
	cmd.Error = errMsg

	q.mu.Lock()
	q.satQueue(cmd.SatelliteID).Push(dsa.HeapItem{
		Key:         cmd.ID,
		Priority:    -cmd.Priority,
		SubmittedAt: cmd.InsertedAt,
		Value:       cmd,
	})
	q.mu.Unlock()

	metrics.CommandsRetried.WithLabelValues(cmd.Type).Inc()
	q.publishCommandUpdate(cmd.SatelliteID, "command_retry_scheduled", cmd)
}

func (q *Queue) transitionInFlight(id string, to domain.CommandStatus, fields domain.CommandUpdate) {
	ctx := context.Background()
	q.mu.Lock()
	entry, ok := q.inFlight[id]
	q.mu.Unlock()
	if !ok {
		// Missing id is a silent no-op (spec.md §4.4: "the command may
		// already have timed out").
		return
	}

	if !domain.CanTransition(entry.cmd.Status, to) {
		q.logger.Printf("transition %s: invalid %s -> %s", id, entry.cmd.Status, to)
		return
	}

	if err := q.store.UpdateCommandStatus(ctx, id, to, fields); err != nil {
		q.logger.Printf("transition %s -> %s: persist: %v", id, to, err)
		return
	}

	q.mu.Lock()
	entry.cmd.Status = to
	if fields.StartedAt != nil {
		entry.cmd.StartedAt = fields.StartedAt
	}
	q.mu.Unlock()

	q.publishCommandUpdate(entry.cmd.SatelliteID, "command_status_changed", entry.cmd)
}

// Start launches the dispatcher's periodic tick goroutine.
func (q *Queue) Start(ctx context.Context) {
	q.tickWG.Add(1)
	go func() {
		defer q.tickWG.Done()
		ticker := time.NewTicker(q.cfg.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stopTick:
				return
			case <-ticker.C:
				q.Tick(ctx)
			}
		}
	}()
}

// Stop halts the dispatcher goroutine and waits for it to exit.
func (q *Queue) Stop() {
	close(q.stopTick)
	q.tickWG.Wait()
}

// Tick runs one dispatch step (spec.md §4.4): busy check, ready check,
// promote-to-pending, and the timeout sweep. Exported so callers (and
// tests) can trigger a manual "kick" instead of waiting for the ticker.
func (q *Queue) Tick(ctx context.Context) {
	q.sweepTimeouts(ctx)
	q.dispatchReady(ctx)
}

func (q *Queue) dispatchReady(ctx context.Context) {
	now := q.now()

	q.mu.Lock()
	busy := make(map[string]bool, len(q.inFlight))
	for _, e := range q.inFlight {
		busy[e.cmd.SatelliteID] = true
	}
	var candidates []*dsa.PriorityQueue
	var sats []string
	for sat, pq := range q.perSat {
		if busy[sat] {
			continue
		}
		candidates = append(candidates, pq)
		sats = append(sats, sat)
	}
	q.mu.Unlock()

	for i, pq := range candidates {
		sat := sats[i]
		item, ok := pq.Peek()
		if !ok {
			continue
		}
		cmd := item.Value.(domain.Command)
		if !cmd.Ready(now) {
			continue
		}

		q.mu.Lock()
		pq.Remove(cmd.ID)
		q.mu.Unlock()

		sentAt := now
		if err := q.store.UpdateCommandStatus(ctx, cmd.ID, domain.CommandPending, domain.CommandUpdate{SentAt: &sentAt}); err != nil {
			q.logger.Printf("dispatch %s: persist pending: %v", cmd.ID, err)
			continue
		}
		cmd.Status = domain.CommandPending
		cmd.SentAt = &sentAt

		q.mu.Lock()
		q.inFlight[cmd.ID] = &inFlightEntry{cmd: cmd}
		q.mu.Unlock()

		metrics.DispatchLatency.Observe(sentAt.Sub(cmd.InsertedAt).Seconds())
		q.publish("satellite:"+sat+":commands", "dispatch", DispatchEvent{Command: cmd})
		q.publish(DispatchTopic, "dispatch", DispatchEvent{Command: cmd})
		q.publishCommandUpdate(cmd.SatelliteID, "command_pending", cmd)
	}
}

func (q *Queue) sweepTimeouts(ctx context.Context) {
	now := q.now()

	q.mu.Lock()
	var timedOut []string
	for id, e := range q.inFlight {
		if e.cmd.SentAt != nil && now.Sub(*e.cmd.SentAt) > e.cmd.Timeout() {
			timedOut = append(timedOut, id)
		}
	}
	q.mu.Unlock()

	for _, id := range timedOut {
		q.Fail(id, "timeout")
	}
}

// publishCommandUpdate fans a command status change out on both the
// per-satellite topic and the global commands:updates feed (spec.md §4.12).
func (q *Queue) publishCommandUpdate(satelliteID, kind string, payload any) {
	q.publish("satellite:"+satelliteID, kind, payload)
	q.publish(CommandUpdatesTopic, kind, payload)
}

// publish wraps bus.Publish, tolerating a nil bus for tests that don't
// care about broadcast.
func (q *Queue) publish(topic, kind string, payload any) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(topic, busMessage{Kind: kind, Payload: payload})
}

type busMessage struct {
	Kind    string
	Payload any
}

var _ domain.CommandSink = (*Queue)(nil)
