// Package admission gates the creation of new agents. Agents spawn
// agents recursively, so an unbounded tree would exhaust the host;
// the controller tracks the live population, enforces soft/hard
// ceilings and per-role depth limits, and drains a durable queue of
// pending spawn requests.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethdford/hivemind/internal/config"
	"github.com/sethdford/hivemind/internal/natsbus"
	"github.com/sethdford/hivemind/internal/store"
)

// RolePolicy is the external policy collaborator: per-role recursion
// ceilings and role-pair spawn permissions.
type RolePolicy interface {
	MaxDepthForRole(role string) int
	SpawnAllowed(spawnerRole string, depth int, targetRole string) (bool, string)
}

// WorkerSpec describes the agent the lifecycle collaborator should
// launch. DepthLevel is the child's depth, one below the requester.
type WorkerSpec struct {
	Handle     string
	Role       string
	SwarmID    string
	DepthLevel int
	Task       string
}

type Worker struct {
	ID     string
	Handle string
}

// WorkerManager is the external worker-lifecycle collaborator. A
// returned error is treated as a rejection, not propagated.
type WorkerManager interface {
	SpawnWorker(ctx context.Context, spec WorkerSpec) (*Worker, error)
}

// SpawnQueue is the durable queue collaborator, satisfied by
// *store.Store.
type SpawnQueue interface {
	EnqueueSpawn(it *store.SpawnQueueItem) error
	ReadySpawnItems(max int) ([]store.SpawnQueueItem, error)
	UpdateSpawnStatus(id string, status store.SpawnStatus, resultID string) error
	SpawnQueueStatsFor() (*store.SpawnQueueStats, error)
}

// Decision is the structured answer to a spawn request. Callers can
// always branch on it; the controller never turns policy into errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type liveAgent struct {
	workerID string
	role     string
}

// Controller owns the live-agent counter and handle bookkeeping
// exclusively; collaborators may only inform it via RegisterSpawn and
// UnregisterSpawn.
type Controller struct {
	cfg     config.AdmissionConfig
	policy  RolePolicy
	workers WorkerManager
	queue   SpawnQueue
	events  *natsbus.Client

	mu      sync.Mutex
	count   int
	pids    map[int]bool
	handles map[string]liveAgent
}

// New wires a controller. workers and queue may be nil, in which case
// queueing and processing degrade to logged no-ops; events may be nil
// to disable event publishing.
func New(cfg config.AdmissionConfig, policy RolePolicy, workers WorkerManager, queue SpawnQueue, events *natsbus.Client) *Controller {
	if cfg.SoftLimit == 0 {
		cfg.SoftLimit = 50
	}
	if cfg.HardLimit == 0 {
		cfg.HardLimit = 100
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 3
	}
	if cfg.RootRole == "" {
		cfg.RootRole = "coordinator"
	}
	return &Controller{
		cfg:     cfg,
		policy:  policy,
		workers: workers,
		queue:   queue,
		events:  events,
		pids:    make(map[int]bool),
		handles: make(map[string]liveAgent),
	}
}

// CanSpawn decides whether spawnerRole, currently at currentDepth,
// may create a targetRole agent. Crossing the soft limit approves
// with a warning; the hard limit and depth/role policy reject.
func (c *Controller) CanSpawn(spawnerRole string, currentDepth int, targetRole string) Decision {
	live := c.LiveCount()

	if live >= c.cfg.HardLimit {
		c.events.PublishEvent(natsbus.TopicEventsLimit, natsbus.EventLimitHard, map[string]any{
			"live":  live,
			"limit": c.cfg.HardLimit,
		})
		return Decision{Reason: fmt.Sprintf("hard population limit reached (%d/%d)", live, c.cfg.HardLimit)}
	}

	if currentDepth >= c.cfg.MaxDepth {
		return Decision{Reason: fmt.Sprintf("max spawn depth reached (%d)", c.cfg.MaxDepth)}
	}

	if allowed, reason := c.policy.SpawnAllowed(spawnerRole, currentDepth, targetRole); !allowed {
		return Decision{Reason: reason}
	}

	dec := Decision{Allowed: true}
	if live >= c.cfg.SoftLimit {
		dec.Warning = fmt.Sprintf("soft population limit reached (%d/%d)", live, c.cfg.SoftLimit)
		c.events.PublishEvent(natsbus.TopicEventsLimit, natsbus.EventLimitSoft, map[string]any{
			"live":  live,
			"limit": c.cfg.SoftLimit,
		})
	}
	return dec
}

// RegisterSpawn records a live agent process. The counter and pid set
// move together; re-registering a pid is a no-op for the count.
func (c *Controller) RegisterSpawn(pid int, handle, workerID, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pids[pid] {
		c.pids[pid] = true
		c.count++
	}
	c.handles[handle] = liveAgent{workerID: workerID, role: role}
}

// UnregisterSpawn removes a live agent. The counter floors at zero;
// unknown pids and handles are ignored.
func (c *Controller) UnregisterSpawn(pid int, handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pids[pid] {
		delete(c.pids, pid)
		if c.count > 0 {
			c.count--
		}
	}
	delete(c.handles, handle)
}

func (c *Controller) LiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WorkerID resolves a live agent handle to its engine-assigned id.
func (c *Controller) WorkerID(handle string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.handles[handle]
	return a.workerID, ok
}

func (c *Controller) liveRole(handle string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[handle].role
}

// QueueOpts carries the optional parts of a queued spawn request.
type QueueOpts struct {
	RequesterRole string
	Priority      store.SpawnPriority
	DependsOn     []string
	SwarmID       string
	Context       map[string]string
}

// QueueSpawn validates the request against the target role's own
// depth ceiling and persists it for the processing loop. Without a
// durable queue this is a logged no-op returning an empty id.
func (c *Controller) QueueSpawn(requester, targetRole string, depthLevel int, task string, opts QueueOpts) (string, error) {
	if c.queue == nil {
		slog.Warn("spawn queue not configured, dropping request", "requester", requester, "role", targetRole)
		return "", nil
	}

	if roleMax := c.policy.MaxDepthForRole(targetRole); depthLevel >= roleMax {
		return "", fmt.Errorf("depth %d exceeds role %q ceiling %d", depthLevel, targetRole, roleMax)
	}

	ctx := opts.Context
	if opts.RequesterRole != "" {
		if ctx == nil {
			ctx = make(map[string]string, 1)
		}
		ctx["role"] = opts.RequesterRole
	}

	it := &store.SpawnQueueItem{
		ID:         uuid.New().String(),
		Requester:  requester,
		TargetRole: targetRole,
		DepthLevel: depthLevel,
		Priority:   opts.Priority,
		DependsOn:  opts.DependsOn,
		SwarmID:    opts.SwarmID,
		Task:       task,
		Context:    ctx,
	}
	if err := c.queue.EnqueueSpawn(it); err != nil {
		return "", err
	}

	c.events.PublishEvent(natsbus.TopicEventsSpawn, natsbus.EventSpawnQueued, map[string]any{
		"id":        it.ID,
		"requester": requester,
		"role":      targetRole,
		"depth":     depthLevel,
	})

	slog.Info("spawn request queued", "id", it.ID, "requester", requester, "role", targetRole, "depth", depthLevel)
	return it.ID, nil
}

// ProcessQueue drains ready items up to the remaining hard-limit
// capacity. Each item re-runs admission with its recorded depth; the
// requester's role resolves from stored context, then the live handle
// map, then the configured root role. Children spawn one level deeper
// than the requester. Returns the number spawned this pass.
func (c *Controller) ProcessQueue(ctx context.Context) (int, error) {
	if c.queue == nil || c.workers == nil {
		return 0, nil
	}

	capacity := c.cfg.HardLimit - c.LiveCount()
	if capacity <= 0 {
		return 0, nil
	}

	items, err := c.queue.ReadySpawnItems(capacity)
	if err != nil {
		return 0, fmt.Errorf("fetch ready items: %w", err)
	}

	spawned := 0
	for _, it := range items {
		requesterRole := it.Context["role"]
		if requesterRole == "" {
			requesterRole = c.liveRole(it.Requester)
		}
		if requesterRole == "" {
			requesterRole = c.cfg.RootRole
		}

		dec := c.CanSpawn(requesterRole, it.DepthLevel, it.TargetRole)
		if !dec.Allowed {
			c.reject(it, dec.Reason)
			continue
		}

		spec := WorkerSpec{
			Handle:     fmt.Sprintf("%s-%s", it.TargetRole, it.ID[:8]),
			Role:       it.TargetRole,
			SwarmID:    it.SwarmID,
			DepthLevel: it.DepthLevel + 1,
			Task:       it.Task,
		}
		worker, err := c.workers.SpawnWorker(ctx, spec)
		if err != nil {
			c.reject(it, err.Error())
			continue
		}

		if err := c.queue.UpdateSpawnStatus(it.ID, store.SpawnSpawned, worker.ID); err != nil {
			slog.Error("failed to mark spawn item spawned", "id", it.ID, "error", err)
		}
		c.events.PublishEvent(natsbus.TopicEventsSpawn, natsbus.EventSpawnApproved, map[string]any{
			"id":        it.ID,
			"worker_id": worker.ID,
			"handle":    spec.Handle,
			"role":      it.TargetRole,
			"depth":     spec.DepthLevel,
		})
		if dec.Warning != "" {
			slog.Warn("spawn approved near capacity", "id", it.ID, "warning", dec.Warning)
		}
		spawned++
	}

	return spawned, nil
}

func (c *Controller) reject(it store.SpawnQueueItem, reason string) {
	if err := c.queue.UpdateSpawnStatus(it.ID, store.SpawnRejected, ""); err != nil {
		slog.Error("failed to mark spawn item rejected", "id", it.ID, "error", err)
	}
	c.events.PublishEvent(natsbus.TopicEventsSpawn, natsbus.EventSpawnRejected, map[string]any{
		"id":     it.ID,
		"role":   it.TargetRole,
		"reason": reason,
	})
	slog.Info("spawn request rejected", "id", it.ID, "role", it.TargetRole, "reason", reason)
}

// QueueStats reports aggregate queue counts, or nil without a queue.
func (c *Controller) QueueStats() (*store.SpawnQueueStats, error) {
	if c.queue == nil {
		return nil, nil
	}
	return c.queue.SpawnQueueStatsFor()
}

// Run processes the queue on the configured interval until ctx is
// done. Stopping mid-pass lets the in-flight pass finish.
func (c *Controller) Run(ctx context.Context) {
	if !c.cfg.AutoProcess {
		return
	}

	interval := c.cfg.ProcessInterval
	if interval == 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("admission loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("admission loop stopped")
			return
		case <-ticker.C:
			n, err := c.ProcessQueue(ctx)
			if err != nil {
				slog.Error("queue pass failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("queue pass completed", "spawned", n)
			}
		}
	}
}
