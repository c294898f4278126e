package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

// TopicTrailEvents carries trail lifecycle events (deposits, decay
// passes, purges) scoped to one swarm.
func TopicTrailEvents(swarmID string) string {
	return fmt.Sprintf("events.trail.%s", swarmID)
}

// TopicWorkerSpawn is where the external launcher listens for spawn
// requests for a given role.
func TopicWorkerSpawn(role string) string {
	return fmt.Sprintf("worker.spawn.%s", role)
}

const (
	TopicEventsAll   = "events.>"
	TopicEventsSpawn = "events.spawn"
	TopicEventsLimit = "events.limit"
	TopicEventsTrail = "events.trail.*"
)

// Event types published on the topics above.
const (
	EventSpawnQueued    = "spawn_queued"
	EventSpawnApproved  = "spawn_approved"
	EventSpawnRejected  = "spawn_rejected"
	EventLimitSoft      = "limit_soft"
	EventLimitHard      = "limit_hard"
	EventTrailDeposited = "trail_deposited"
	EventDecayCompleted = "decay_completed"
	EventTrailsPurged   = "trails_purged"
)
