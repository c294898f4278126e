package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type ResourceType string

const (
	ResourceFile     ResourceType = "file"
	ResourceTask     ResourceType = "task"
	ResourceEndpoint ResourceType = "endpoint"
	ResourceModule   ResourceType = "module"
	ResourceCustom   ResourceType = "custom"
)

type TrailType string

const (
	TrailTouch    TrailType = "touch"
	TrailModify   TrailType = "modify"
	TrailComplete TrailType = "complete"
	TrailError    TrailType = "error"
	TrailWarning  TrailType = "warning"
	TrailSuccess  TrailType = "success"
)

// Trail is a decaying signal an agent left on a shared resource.
// Intensity stays in [0, 10]; once DecayedAt is set the row is
// retired and its intensity is never touched again.
type Trail struct {
	ID           string         `json:"id"`
	SwarmID      string         `json:"swarm_id"`
	ResourceType ResourceType   `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Depositor    string         `json:"depositor"`
	TrailType    TrailType      `json:"trail_type"`
	Intensity    float64        `json:"intensity"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	DecayedAt    *time.Time     `json:"decayed_at,omitempty"`
}

const trailColumns = `id, swarm_id, resource_type, resource_id, depositor, trail_type, intensity, metadata, created_at, decayed_at`

func scanTrail(scanner interface {
	Scan(dest ...any) error
}) (*Trail, error) {
	t := &Trail{}
	var metadata sql.NullString
	err := scanner.Scan(&t.ID, &t.SwarmID, &t.ResourceType, &t.ResourceID, &t.Depositor,
		&t.TrailType, &t.Intensity, &metadata, &t.CreatedAt, &t.DecayedAt)
	if err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("trail %s has corrupt metadata: %w", t.ID, err)
		}
	}
	return t, nil
}

func (s *Store) SaveTrail(t *Trail) error {
	var metadata any
	if len(t.Metadata) > 0 {
		data, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("marshal trail metadata: %w", err)
		}
		metadata = string(data)
	}
	_, err := s.db.Exec(`
		INSERT INTO pheromone_trails (id, swarm_id, resource_type, resource_id, depositor, trail_type, intensity, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SwarmID, t.ResourceType, t.ResourceID, t.Depositor, t.TrailType, t.Intensity, metadata)
	if err != nil {
		return fmt.Errorf("save trail: %w", err)
	}
	return nil
}

func (s *Store) GetTrail(id string) (*Trail, error) {
	row := s.db.QueryRow(`SELECT `+trailColumns+` FROM pheromone_trails WHERE id = ?`, id)
	t, err := scanTrail(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trail: %w", err)
	}
	return t, nil
}

// TrailFilter narrows a trail query. All set fields must match
// (AND semantics). Retired trails are excluded unless IncludeDecayed
// is set.
type TrailFilter struct {
	ResourceType   ResourceType
	ResourceID     string
	TrailType      TrailType
	Depositor      string
	MinIntensity   float64
	IncludeDecayed bool
	Limit          int
}

func (s *Store) QueryTrails(swarmID string, f TrailFilter) ([]Trail, error) {
	query := `SELECT ` + trailColumns + ` FROM pheromone_trails WHERE swarm_id = ?`
	args := []any{swarmID}

	if f.ResourceType != "" {
		query += ` AND resource_type = ?`
		args = append(args, f.ResourceType)
	}
	if f.ResourceID != "" {
		query += ` AND resource_id = ?`
		args = append(args, f.ResourceID)
	}
	if f.TrailType != "" {
		query += ` AND trail_type = ?`
		args = append(args, f.TrailType)
	}
	if f.Depositor != "" {
		query += ` AND depositor = ?`
		args = append(args, f.Depositor)
	}
	if f.MinIntensity > 0 {
		query += ` AND intensity >= ?`
		args = append(args, f.MinIntensity)
	}
	if !f.IncludeDecayed {
		query += ` AND decayed_at IS NULL`
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY intensity DESC, created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trails: %w", err)
	}
	defer rows.Close()

	var trails []Trail
	for rows.Next() {
		t, err := scanTrail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trail: %w", err)
		}
		trails = append(trails, *t)
	}
	return trails, rows.Err()
}

// ActiveTrails returns every non-retired trail, optionally scoped to
// one swarm (empty swarmID means all swarms).
func (s *Store) ActiveTrails(swarmID string) ([]Trail, error) {
	query := `SELECT ` + trailColumns + ` FROM pheromone_trails WHERE decayed_at IS NULL`
	var args []any
	if swarmID != "" {
		query += ` AND swarm_id = ?`
		args = append(args, swarmID)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("active trails: %w", err)
	}
	defer rows.Close()

	var trails []Trail
	for rows.Next() {
		t, err := scanTrail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trail: %w", err)
		}
		trails = append(trails, *t)
	}
	return trails, rows.Err()
}

// IntensityUpdate carries a post-decay intensity for one trail.
type IntensityUpdate struct {
	ID        string
	Intensity float64
}

// ApplyDecay writes a decay pass back in one transaction: survivors
// get their new intensity, retired trails additionally get decayed_at
// stamped. Already-retired rows are never touched.
func (s *Store) ApplyDecay(survivors, retired []IntensityUpdate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin decay tx: %w", err)
	}
	defer tx.Rollback()

	for _, u := range survivors {
		if _, err := tx.Exec(`UPDATE pheromone_trails SET intensity = ? WHERE id = ? AND decayed_at IS NULL`,
			u.Intensity, u.ID); err != nil {
			return fmt.Errorf("update intensity: %w", err)
		}
	}
	for _, u := range retired {
		if _, err := tx.Exec(`UPDATE pheromone_trails SET intensity = ?, decayed_at = CURRENT_TIMESTAMP WHERE id = ? AND decayed_at IS NULL`,
			u.Intensity, u.ID); err != nil {
			return fmt.Errorf("retire trail: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decay tx: %w", err)
	}
	return nil
}

// BoostTrail raises an active trail's intensity, capped at 10.
// A missing or already-retired trail is a no-op returning nil.
func (s *Store) BoostTrail(id string, amount float64) (*Trail, error) {
	res, err := s.db.Exec(`
		UPDATE pheromone_trails SET intensity = MIN(10.0, intensity + ?)
		WHERE id = ? AND decayed_at IS NULL`, amount, id)
	if err != nil {
		return nil, fmt.Errorf("boost trail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("boost trail: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetTrail(id)
}

func (s *Store) PurgeDecayedTrails(swarmID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM pheromone_trails WHERE swarm_id = ? AND decayed_at IS NOT NULL`, swarmID)
	if err != nil {
		return 0, fmt.Errorf("purge trails: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge trails: %w", err)
	}
	return int(n), nil
}

// ResourceActivity aggregates active trails per resource.
type ResourceActivity struct {
	ResourceType   ResourceType `json:"resource_type"`
	ResourceID     string       `json:"resource_id"`
	TotalIntensity float64      `json:"total_intensity"`
	TrailCount     int          `json:"trail_count"`
	Depositors     int          `json:"depositors"`
	LastActivity   time.Time    `json:"last_activity"`
}

func (s *Store) ResourceActivityFor(swarmID string, resourceType ResourceType, limit int) ([]ResourceActivity, error) {
	query := `
		SELECT resource_type, resource_id, SUM(intensity), COUNT(*), COUNT(DISTINCT depositor), MAX(created_at)
		FROM pheromone_trails
		WHERE swarm_id = ? AND decayed_at IS NULL`
	args := []any{swarmID}
	if resourceType != "" {
		query += ` AND resource_type = ?`
		args = append(args, resourceType)
	}
	if limit <= 0 {
		limit = 20
	}
	query += ` GROUP BY resource_type, resource_id ORDER BY SUM(intensity) DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("resource activity: %w", err)
	}
	defer rows.Close()

	var activity []ResourceActivity
	for rows.Next() {
		var a ResourceActivity
		if err := rows.Scan(&a.ResourceType, &a.ResourceID, &a.TotalIntensity, &a.TrailCount, &a.Depositors, &a.LastActivity); err != nil {
			return nil, fmt.Errorf("scan resource activity: %w", err)
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}

// TrailStats summarizes one swarm's trails. Per-type counts cover
// active trails only and are zero-filled for unused types.
type TrailStats struct {
	ActiveCount    int                  `json:"active_count"`
	DecayedCount   int                  `json:"decayed_count"`
	TotalIntensity float64              `json:"total_intensity"`
	ByTrailType    map[TrailType]int    `json:"by_trail_type"`
	ByResourceType map[ResourceType]int `json:"by_resource_type"`
}

func (s *Store) TrailStatsFor(swarmID string) (*TrailStats, error) {
	stats := &TrailStats{
		ByTrailType: map[TrailType]int{
			TrailTouch: 0, TrailModify: 0, TrailComplete: 0,
			TrailError: 0, TrailWarning: 0, TrailSuccess: 0,
		},
		ByResourceType: map[ResourceType]int{
			ResourceFile: 0, ResourceTask: 0, ResourceEndpoint: 0,
			ResourceModule: 0, ResourceCustom: 0,
		},
	}

	var totalIntensity sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN decayed_at IS NULL THEN 1 END),
			COUNT(CASE WHEN decayed_at IS NOT NULL THEN 1 END),
			SUM(CASE WHEN decayed_at IS NULL THEN intensity END)
		FROM pheromone_trails WHERE swarm_id = ?`, swarmID).
		Scan(&stats.ActiveCount, &stats.DecayedCount, &totalIntensity)
	if err != nil {
		return nil, fmt.Errorf("trail stats: %w", err)
	}
	stats.TotalIntensity = totalIntensity.Float64

	rows, err := s.db.Query(`
		SELECT trail_type, resource_type, COUNT(*)
		FROM pheromone_trails
		WHERE swarm_id = ? AND decayed_at IS NULL
		GROUP BY trail_type, resource_type`, swarmID)
	if err != nil {
		return nil, fmt.Errorf("trail stats by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tt TrailType
		var rt ResourceType
		var count int
		if err := rows.Scan(&tt, &rt, &count); err != nil {
			return nil, fmt.Errorf("scan trail stats: %w", err)
		}
		stats.ByTrailType[tt] += count
		stats.ByResourceType[rt] += count
	}
	return stats, rows.Err()
}
