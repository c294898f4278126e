package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type SpawnPriority string

const (
	PriorityLow      SpawnPriority = "low"
	PriorityNormal   SpawnPriority = "normal"
	PriorityHigh     SpawnPriority = "high"
	PriorityCritical SpawnPriority = "critical"
)

type SpawnStatus string

const (
	SpawnPending  SpawnStatus = "pending"
	SpawnSpawned  SpawnStatus = "spawned"
	SpawnRejected SpawnStatus = "rejected"
)

// SpawnQueueItem is a persisted request for a new agent. DepthLevel
// is the requester's recursion depth, not the child's. An item moves
// from pending to exactly one terminal status and is never re-queued.
type SpawnQueueItem struct {
	ID         string            `json:"id"`
	Requester  string            `json:"requester"`
	TargetRole string            `json:"target_role"`
	DepthLevel int               `json:"depth_level"`
	Priority   SpawnPriority     `json:"priority"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	SwarmID    string            `json:"swarm_id,omitempty"`
	Task       string            `json:"task"`
	Context    map[string]string `json:"context,omitempty"`
	Status     SpawnStatus       `json:"status"`
	ResultID   string            `json:"result_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

const spawnColumns = `id, requester, target_role, depth_level, priority, depends_on, swarm_id, task, context, status, result_id, created_at, resolved_at`

func scanSpawnItem(scanner interface {
	Scan(dest ...any) error
}) (*SpawnQueueItem, error) {
	it := &SpawnQueueItem{}
	var dependsOn, swarmID, context, resultID sql.NullString
	err := scanner.Scan(&it.ID, &it.Requester, &it.TargetRole, &it.DepthLevel, &it.Priority,
		&dependsOn, &swarmID, &it.Task, &context, &it.Status, &resultID, &it.CreatedAt, &it.ResolvedAt)
	if err != nil {
		return nil, err
	}
	it.SwarmID = swarmID.String
	it.ResultID = resultID.String
	if dependsOn.Valid && dependsOn.String != "" {
		if err := json.Unmarshal([]byte(dependsOn.String), &it.DependsOn); err != nil {
			return nil, fmt.Errorf("spawn item %s has corrupt depends_on: %w", it.ID, err)
		}
	}
	if context.Valid && context.String != "" {
		if err := json.Unmarshal([]byte(context.String), &it.Context); err != nil {
			return nil, fmt.Errorf("spawn item %s has corrupt context: %w", it.ID, err)
		}
	}
	return it, nil
}

func (s *Store) EnqueueSpawn(it *SpawnQueueItem) error {
	if it.Priority == "" {
		it.Priority = PriorityNormal
	}
	if it.Status == "" {
		it.Status = SpawnPending
	}

	var dependsOn, context any
	if len(it.DependsOn) > 0 {
		data, err := json.Marshal(it.DependsOn)
		if err != nil {
			return fmt.Errorf("marshal depends_on: %w", err)
		}
		dependsOn = string(data)
	}
	if len(it.Context) > 0 {
		data, err := json.Marshal(it.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		context = string(data)
	}

	var swarmID any
	if it.SwarmID != "" {
		swarmID = it.SwarmID
	}

	_, err := s.db.Exec(`
		INSERT INTO spawn_queue (id, requester, target_role, depth_level, priority, depends_on, swarm_id, task, context, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.Requester, it.TargetRole, it.DepthLevel, it.Priority, dependsOn, swarmID, it.Task, context, it.Status)
	if err != nil {
		return fmt.Errorf("enqueue spawn: %w", err)
	}
	return nil
}

func (s *Store) GetSpawnItem(id string) (*SpawnQueueItem, error) {
	row := s.db.QueryRow(`SELECT `+spawnColumns+` FROM spawn_queue WHERE id = ?`, id)
	it, err := scanSpawnItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get spawn item: %w", err)
	}
	return it, nil
}

// ReadySpawnItems returns up to max pending items whose dependencies
// have all reached a terminal status, ordered by priority bucket then
// enqueue time. An item naming an unknown dependency id stays gated.
func (s *Store) ReadySpawnItems(max int) ([]SpawnQueueItem, error) {
	if max <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT ` + spawnColumns + ` FROM spawn_queue
		WHERE status = 'pending'
		ORDER BY CASE priority
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'normal' THEN 2
			ELSE 3
		END, created_at`)
	if err != nil {
		return nil, fmt.Errorf("ready spawn items: %w", err)
	}
	defer rows.Close()

	var pending []SpawnQueueItem
	for rows.Next() {
		it, err := scanSpawnItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spawn item: %w", err)
		}
		pending = append(pending, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var ready []SpawnQueueItem
	for _, it := range pending {
		ok, err := s.dependenciesResolved(it.DependsOn)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ready = append(ready, it)
		if len(ready) == max {
			break
		}
	}
	return ready, nil
}

func (s *Store) dependenciesResolved(deps []string) (bool, error) {
	for _, dep := range deps {
		var status SpawnStatus
		err := s.db.QueryRow(`SELECT status FROM spawn_queue WHERE id = ?`, dep).Scan(&status)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("check dependency %s: %w", dep, err)
		}
		if status == SpawnPending {
			return false, nil
		}
	}
	return true, nil
}

// UpdateSpawnStatus moves a pending item to a terminal status. It is
// a no-op on items that already resolved, so a transition happens at
// most once.
func (s *Store) UpdateSpawnStatus(id string, status SpawnStatus, resultID string) error {
	var result any
	if resultID != "" {
		result = resultID
	}
	_, err := s.db.Exec(`
		UPDATE spawn_queue
		SET status = ?, result_id = ?, resolved_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`, status, result, id)
	if err != nil {
		return fmt.Errorf("update spawn status: %w", err)
	}
	return nil
}

type SpawnQueueStats struct {
	Pending  int `json:"pending"`
	Spawned  int `json:"spawned"`
	Rejected int `json:"rejected"`
}

func (s *Store) SpawnQueueStatsFor() (*SpawnQueueStats, error) {
	stats := &SpawnQueueStats{}
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM spawn_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("spawn queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status SpawnStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan spawn queue stats: %w", err)
		}
		switch status {
		case SpawnPending:
			stats.Pending = count
		case SpawnSpawned:
			stats.Spawned = count
		case SpawnRejected:
			stats.Rejected = count
		}
	}
	return stats, rows.Err()
}
