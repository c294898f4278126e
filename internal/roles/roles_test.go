package roles

import (
	"strings"
	"testing"

	"github.com/sethdford/hivemind/internal/config"
)

func testPolicy() *Policy {
	return New(map[string]config.RoleDefinition{
		"coordinator": {MaxDepth: 3, CanSpawn: []string{"*"}},
		"worker":      {MaxDepth: 2, CanSpawn: []string{"worker"}},
		"observer":    {MaxDepth: 1},
	})
}

func TestMaxDepthForRole(t *testing.T) {
	p := testPolicy()

	if got := p.MaxDepthForRole("coordinator"); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := p.MaxDepthForRole("worker"); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := p.MaxDepthForRole("unconfigured"); got != DefaultMaxDepth {
		t.Errorf("expected default %d for unknown role, got %d", DefaultMaxDepth, got)
	}
}

func TestSpawnAllowedWildcard(t *testing.T) {
	p := testPolicy()

	ok, reason := p.SpawnAllowed("coordinator", 0, "worker")
	if !ok {
		t.Errorf("wildcard spawner should be allowed, got %q", reason)
	}
	ok, _ = p.SpawnAllowed("coordinator", 0, "observer")
	if !ok {
		t.Error("wildcard should cover every defined role")
	}
}

func TestSpawnAllowedList(t *testing.T) {
	p := testPolicy()

	if ok, _ := p.SpawnAllowed("worker", 0, "worker"); !ok {
		t.Error("worker should be able to spawn worker")
	}
	ok, reason := p.SpawnAllowed("worker", 0, "coordinator")
	if ok {
		t.Fatal("worker must not spawn coordinator")
	}
	if !strings.Contains(reason, "not permitted") {
		t.Errorf("unexpected reason: %q", reason)
	}

	// No CanSpawn list means no spawning at all
	if ok, _ := p.SpawnAllowed("observer", 0, "worker"); ok {
		t.Error("role without a spawn list must not spawn")
	}
}

func TestSpawnAllowedDepth(t *testing.T) {
	p := testPolicy()

	if ok, _ := p.SpawnAllowed("worker", 1, "worker"); !ok {
		t.Error("depth below the ceiling should pass")
	}
	ok, reason := p.SpawnAllowed("worker", 2, "worker")
	if ok {
		t.Fatal("expected rejection at the spawner's depth ceiling")
	}
	if !strings.Contains(reason, "depth") {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestSpawnAllowedUnknownRoles(t *testing.T) {
	p := testPolicy()

	if ok, reason := p.SpawnAllowed("coordinator", 0, "ghost"); ok || !strings.Contains(reason, "unknown target role") {
		t.Errorf("expected unknown target rejection, got %v %q", ok, reason)
	}
	if ok, reason := p.SpawnAllowed("ghost", 0, "worker"); ok || !strings.Contains(reason, "unknown spawner role") {
		t.Errorf("expected unknown spawner rejection, got %v %q", ok, reason)
	}
}

func TestKnown(t *testing.T) {
	p := testPolicy()

	if !p.Known("coordinator") || p.Known("ghost") {
		t.Error("unexpected role visibility")
	}

	empty := New(nil)
	if empty.Known("coordinator") {
		t.Error("empty policy should know nothing")
	}
}
