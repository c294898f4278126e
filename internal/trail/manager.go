// Package trail manages the pheromone field: the decaying signals
// agents leave on shared resources. All arithmetic is delegated to
// the accelerator; this package owns persistence, filtering and the
// recurring decay loop.
package trail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethdford/hivemind/internal/accel"
	"github.com/sethdford/hivemind/internal/config"
	"github.com/sethdford/hivemind/internal/natsbus"
	"github.com/sethdford/hivemind/internal/schedule"
	"github.com/sethdford/hivemind/internal/store"
)

// MaxIntensity caps every trail; deposits and boosts saturate here.
const MaxIntensity = 10.0

type Manager struct {
	store  *store.Store
	accel  accel.Accelerator
	events *natsbus.Client
	cfg    config.TrailsConfig
}

// NewManager wires the trail field. events may be nil; all event
// publishing degrades to a no-op.
func NewManager(s *store.Store, acc accel.Accelerator, events *natsbus.Client, cfg config.TrailsConfig) *Manager {
	return &Manager{
		store:  s,
		accel:  acc,
		events: events,
		cfg:    cfg,
	}
}

// DepositOpts carries the optional parts of a deposit. A zero
// Intensity means the default of 1.0.
type DepositOpts struct {
	Intensity float64
	Metadata  map[string]any
}

func (m *Manager) Deposit(swarmID string, resourceType store.ResourceType, resourceID, depositor string, trailType store.TrailType, opts DepositOpts) (*store.Trail, error) {
	if !validResourceType(resourceType) {
		return nil, fmt.Errorf("unknown resource type: %s", resourceType)
	}
	if !validTrailType(trailType) {
		return nil, fmt.Errorf("unknown trail type: %s", trailType)
	}

	intensity := opts.Intensity
	if intensity == 0 {
		intensity = 1.0
	}
	if intensity < 0 {
		return nil, fmt.Errorf("intensity must be non-negative, got %v", intensity)
	}
	if intensity > MaxIntensity {
		intensity = MaxIntensity
	}

	t := &store.Trail{
		ID:           uuid.New().String(),
		SwarmID:      swarmID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Depositor:    depositor,
		TrailType:    trailType,
		Intensity:    intensity,
		Metadata:     opts.Metadata,
	}
	if err := m.store.SaveTrail(t); err != nil {
		return nil, err
	}

	m.events.PublishEvent(natsbus.TopicTrailEvents(swarmID), natsbus.EventTrailDeposited, map[string]any{
		"trail_id":  t.ID,
		"resource":  resourceID,
		"depositor": depositor,
		"intensity": intensity,
	})

	return m.store.GetTrail(t.ID)
}

// Query returns trails matching every set filter, strongest first.
// Unknown swarms simply match nothing.
func (m *Manager) Query(swarmID string, f store.TrailFilter) ([]store.Trail, error) {
	return m.store.QueryTrails(swarmID, f)
}

// ResourceActivity ranks resources by summed active intensity.
func (m *Manager) ResourceActivity(swarmID string, resourceType store.ResourceType, limit int) ([]store.ResourceActivity, error) {
	return m.store.ResourceActivityFor(swarmID, resourceType, limit)
}

// ProcessDecay runs one decay pass: every active trail (scoped to
// swarmID when non-empty) is decayed by the accelerator, and trails
// that fell below the floor are retired at their final intensity.
// Zero rate or floor selects the configured defaults. Concurrent
// passes over the same swarm are not serialized here; callers own
// that.
func (m *Manager) ProcessDecay(swarmID string, rate, floor float64) (considered, retired int, err error) {
	if rate == 0 {
		rate = m.cfg.DecayRate
	}
	if floor == 0 {
		floor = m.cfg.DecayFloor
	}

	trails, err := m.store.ActiveTrails(swarmID)
	if err != nil {
		return 0, 0, err
	}
	if len(trails) == 0 {
		return 0, 0, nil
	}

	batch := make([]accel.TrailState, len(trails))
	for i, t := range trails {
		batch[i] = accel.TrailState{ID: t.ID, Intensity: t.Intensity}
	}

	result := m.accel.Decay(batch, rate, floor)

	survivors := make([]store.IntensityUpdate, len(result.Trails))
	for i, t := range result.Trails {
		survivors[i] = store.IntensityUpdate{ID: t.ID, Intensity: t.Intensity}
	}
	removed := make([]store.IntensityUpdate, len(result.Removed))
	for i, t := range result.Removed {
		removed[i] = store.IntensityUpdate{ID: t.ID, Intensity: t.Intensity}
	}

	if err := m.store.ApplyDecay(survivors, removed); err != nil {
		return 0, 0, err
	}

	scope := swarmID
	if scope == "" {
		scope = "all"
	}
	m.events.PublishEvent(natsbus.TopicTrailEvents(scope), natsbus.EventDecayCompleted, map[string]any{
		"considered": len(trails),
		"retired":    len(removed),
	})

	return len(trails), len(removed), nil
}

// Boost raises an active trail's intensity, saturating at the cap.
// Boosting a retired or missing trail returns nil, nil.
func (m *Manager) Boost(trailID string, amount float64) (*store.Trail, error) {
	if amount < 0 {
		return nil, fmt.Errorf("boost amount must be non-negative, got %v", amount)
	}
	return m.store.BoostTrail(trailID, amount)
}

// PurgeDecayed deletes a swarm's retired trails and reports how many
// rows went away.
func (m *Manager) PurgeDecayed(swarmID string) (int, error) {
	n, err := m.store.PurgeDecayedTrails(swarmID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.events.PublishEvent(natsbus.TopicTrailEvents(swarmID), natsbus.EventTrailsPurged, map[string]any{
			"purged": n,
		})
	}
	return n, nil
}

func (m *Manager) Stats(swarmID string) (*store.TrailStats, error) {
	return m.store.TrailStatsFor(swarmID)
}

// RunDecayLoop applies the configured cadence until ctx is done. The
// loop decays all swarms in one pass per tick.
func (m *Manager) RunDecayLoop(ctx context.Context) {
	cadence, err := schedule.Normalize(m.cfg.DecaySchedule)
	if err != nil {
		slog.Error("invalid decay cadence, loop disabled", "cadence", m.cfg.DecaySchedule, "error", err)
		return
	}

	slog.Info("decay loop started", "cadence", cadence)

	for {
		next := schedule.NextRun(cadence)
		if next == nil {
			slog.Info("decay cadence exhausted, loop stopped")
			return
		}

		select {
		case <-ctx.Done():
			slog.Info("decay loop stopped")
			return
		case <-time.After(time.Until(*next)):
		}

		considered, retired, err := m.ProcessDecay("", 0, 0)
		if err != nil {
			slog.Error("decay pass failed", "error", err)
			continue
		}
		if considered > 0 {
			slog.Info("decay pass completed", "considered", considered, "retired", retired)
		}
	}
}

func validResourceType(rt store.ResourceType) bool {
	switch rt {
	case store.ResourceFile, store.ResourceTask, store.ResourceEndpoint, store.ResourceModule, store.ResourceCustom:
		return true
	}
	return false
}

func validTrailType(tt store.TrailType) bool {
	switch tt {
	case store.TrailTouch, store.TrailModify, store.TrailComplete, store.TrailError, store.TrailWarning, store.TrailSuccess:
		return true
	}
	return false
}
