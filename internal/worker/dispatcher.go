// Package worker bridges the admission controller to whatever
// actually launches agent processes. The engine never execs anything
// itself: a spawn request is published on the bus and an external
// launcher answers with the id of the worker it started.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sethdford/hivemind/internal/admission"
	"github.com/sethdford/hivemind/internal/natsbus"
)

const defaultSpawnTimeout = 30 * time.Second

type Dispatcher struct {
	client  *natsbus.Client
	timeout time.Duration
}

func NewDispatcher(client *natsbus.Client) *Dispatcher {
	return &Dispatcher{client: client, timeout: defaultSpawnTimeout}
}

type spawnRequest struct {
	Handle     string `json:"handle"`
	Role       string `json:"role"`
	SwarmID    string `json:"swarm_id,omitempty"`
	DepthLevel int    `json:"depth_level"`
	Task       string `json:"task"`
}

type spawnReply struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// SpawnWorker publishes the spec on the role's spawn topic and waits
// for a launcher ack. No listening launcher, a launcher error, or an
// ack without an id all fail the spawn.
func (d *Dispatcher) SpawnWorker(ctx context.Context, spec admission.WorkerSpec) (*admission.Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := spawnRequest{
		Handle:     spec.Handle,
		Role:       spec.Role,
		SwarmID:    spec.SwarmID,
		DepthLevel: spec.DepthLevel,
		Task:       spec.Task,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal spawn request: %w", err)
	}

	msg, err := d.client.Request(natsbus.TopicWorkerSpawn(spec.Role), data, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("no launcher answered for role %s: %w", spec.Role, err)
	}

	var reply spawnReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("parse launcher reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("launcher refused %s: %s", spec.Handle, reply.Error)
	}
	if reply.ID == "" {
		return nil, fmt.Errorf("launcher reply for %s carried no worker id", spec.Handle)
	}

	return &admission.Worker{ID: reply.ID, Handle: spec.Handle}, nil
}
