// Package accel is the swarm accelerator: a stateless library of the
// aggregate algorithms the engine runs over trails, bids and votes.
// Every operation is a pure function of its inputs. Two backends
// implement the same interface and must be observationally identical;
// callers select one by name and never depend on which is active.
package accel

import "fmt"

// TrailState is the slice of a pheromone trail the decay computation
// needs: identity plus current intensity.
type TrailState struct {
	ID        string
	Intensity float64
}

// DecayResult splits a batch into survivors and trails that fell below
// the removal floor. Removed entries carry their post-decay intensity
// so callers can persist the exact value that crossed the floor.
type DecayResult struct {
	Trails  []TrailState
	Removed []TrailState
}

// Bid is one offer in a task auction. Reputation and amount are
// normalized against the batch maximum; confidence is used as-is and
// is expected to be in [0,1]. EstimatedSeconds is informational and
// does not enter the score.
type Bid struct {
	ID               string
	Bidder           string
	Amount           float64
	Confidence       float64
	Reputation       float64
	EstimatedSeconds int64
}

// AuctionOpts weights the three score components. Weights are
// normalized internally to sum to 1, so only their ratios matter.
// PreferLowerBids inverts the normalized price so cheaper offers
// score higher.
type AuctionOpts struct {
	ReputationWeight float64
	ConfidenceWeight float64
	BidWeight        float64
	PreferLowerBids  bool
}

// ScoredBid is a bid with its composite score and the weighted
// contribution of each component.
type ScoredBid struct {
	Bid
	Score           float64
	ReputationScore float64
	ConfidenceScore float64
	PriceScore      float64
}

// AuctionResult ranks bids by score, descending. Ties keep input
// order (stable sort). An empty auction is a defined degenerate case:
// empty rankings, empty winner id, zero score.
type AuctionResult struct {
	Rankings    []ScoredBid
	WinnerID    string
	WinnerScore float64
}

// Vote is one ballot. Value is either a literal option or, for the
// ranked method, a JSON-encoded ordered list of options.
type Vote struct {
	Voter  string
	Value  string
	Weight float64
}

type ConsensusMethod string

const (
	Majority      ConsensusMethod = "majority"
	Supermajority ConsensusMethod = "supermajority"
	Unanimous     ConsensusMethod = "unanimous"
	Ranked        ConsensusMethod = "ranked"
)

// ConsensusResult reports the tally outcome. Winner is empty unless
// QuorumMet is true, even when a plurality leader exists. TotalVotes
// counts ballots submitted; WeightedTotal sums the weights of counted
// ballots (malformed ranked ballots are skipped). Participation is
// TotalVotes / WeightedTotal, a ratio of a count to a weight; the
// asymmetric definition is part of the contract.
type ConsensusResult struct {
	Winner        string
	Tally         map[string]float64
	QuorumMet     bool
	TotalVotes    int
	WeightedTotal float64
	Participation float64
}

// PayoffResult maps each strategy to the arithmetic mean of its row
// in the payoff matrix (0 for strategies without a row). Dominant is
// the highest-mean strategy; the first one encountered wins ties.
type PayoffResult struct {
	Payoffs  map[string]float64
	Dominant string
}

// Assignment routes one task to one worker with the score that won
// the assignment.
type Assignment struct {
	Task   string
	Worker string
	Score  float64
}

// Accelerator is the engine's pure algorithm surface. Implementations
// must not keep state between calls and must agree with each other on
// every operation for identical inputs.
//
// RouteTasks is intentionally order-dependent on the task sequence:
// each assignment bumps the chosen worker's load before the next task
// is scored. This greedy, load-aware behavior is a defined property,
// not an artifact.
type Accelerator interface {
	Name() string
	Decay(trails []TrailState, rate, floor float64) DecayResult
	EvaluateBids(bids []Bid, opts AuctionOpts) AuctionResult
	TallyVotes(votes []Vote, options []string, method ConsensusMethod) ConsensusResult
	Payoff(strategies []string, matrix map[string][]float64) PayoffResult
	RouteTasks(tasks, workers []string, strengths map[string]float64, alpha float64) []Assignment
}

// New returns the backend with the given name. An empty name selects
// the native backend.
func New(name string) (Accelerator, error) {
	switch name {
	case "", "native":
		return nativeBackend{}, nil
	case "reference":
		return referenceBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown accelerator backend: %s", name)
	}
}

// StrengthKey builds the trail-strength lookup key for a worker/task
// pair used by RouteTasks.
func StrengthKey(worker, task string) string {
	return worker + ":" + task
}

// defaultStrength is assumed for worker/task pairs with no recorded
// trail, so unseen workers still attract assignments.
const defaultStrength = 0.1
