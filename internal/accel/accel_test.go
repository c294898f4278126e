package accel

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

func backends(t *testing.T) []Accelerator {
	t.Helper()
	var accs []Accelerator
	for _, name := range []string{"native", "reference"} {
		a, err := New(name)
		if err != nil {
			t.Fatalf("new %s backend: %v", name, err)
		}
		accs = append(accs, a)
	}
	return accs
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("gpu"); err == nil {
		t.Error("expected error for unknown backend")
	}
	a, err := New("")
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if a.Name() != "native" {
		t.Errorf("expected default backend 'native', got %s", a.Name())
	}
}

func TestDecayScenario(t *testing.T) {
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			trails := []TrailState{{ID: "t1", Intensity: 2.0}}

			// First pass: 2.0 -> 1.0, kept
			res := a.Decay(trails, 0.5, 0.5)
			if len(res.Trails) != 1 || len(res.Removed) != 0 {
				t.Fatalf("pass 1: expected 1 kept 0 removed, got %d/%d", len(res.Trails), len(res.Removed))
			}
			if res.Trails[0].Intensity != 1.0 {
				t.Errorf("pass 1: expected intensity 1.0, got %v", res.Trails[0].Intensity)
			}

			// Second pass: 1.0 -> 0.5, boundary is inclusive so still kept
			res = a.Decay(res.Trails, 0.5, 0.5)
			if len(res.Trails) != 1 {
				t.Fatalf("pass 2: expected trail kept at the floor")
			}
			if res.Trails[0].Intensity != 0.5 {
				t.Errorf("pass 2: expected intensity 0.5, got %v", res.Trails[0].Intensity)
			}

			// Third pass: 0.5 -> 0.25, below the floor and removed
			res = a.Decay(res.Trails, 0.5, 0.5)
			if len(res.Trails) != 0 || len(res.Removed) != 1 {
				t.Fatalf("pass 3: expected 0 kept 1 removed, got %d/%d", len(res.Trails), len(res.Removed))
			}
			if res.Removed[0].Intensity != 0.25 {
				t.Errorf("pass 3: expected final intensity 0.25, got %v", res.Removed[0].Intensity)
			}
		})
	}
}

func TestDecayNeverIncreases(t *testing.T) {
	trails := []TrailState{
		{ID: "a", Intensity: 10.0},
		{ID: "b", Intensity: 3.3},
		{ID: "c", Intensity: 0.02},
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			for _, rate := range []float64{0.01, 0.1, 0.5, 0.99} {
				res := a.Decay(trails, rate, 0.01)
				for i, got := range res.Trails {
					if got.Intensity > trails[i].Intensity {
						t.Errorf("rate %v: intensity rose from %v to %v", rate, trails[i].Intensity, got.Intensity)
					}
				}
			}
		})
	}
}

func TestAuctionPreferLowerBids(t *testing.T) {
	bids := []Bid{
		{ID: "x", Amount: 10, Confidence: 0.9, Reputation: 5},
		{ID: "y", Amount: 5, Confidence: 0.5, Reputation: 10},
	}
	opts := AuctionOpts{ReputationWeight: 1, ConfidenceWeight: 1, BidWeight: 1, PreferLowerBids: true}

	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.EvaluateBids(bids, opts)
			if res.WinnerID != "y" {
				t.Errorf("expected winner 'y', got '%s'", res.WinnerID)
			}
			if len(res.Rankings) != 2 {
				t.Fatalf("expected 2 rankings, got %d", len(res.Rankings))
			}
			// y: reputation 1.0, confidence 0.5, inverted price 0.5 -> 2/3
			want := (1.0 + 0.5 + 0.5) / 3
			if math.Abs(res.WinnerScore-want) > 1e-12 {
				t.Errorf("expected winner score %v, got %v", want, res.WinnerScore)
			}
			// Component contributions sum to the composite
			top := res.Rankings[0]
			sum := top.ReputationScore + top.ConfidenceScore + top.PriceScore
			if math.Abs(sum-top.Score) > 1e-12 {
				t.Errorf("components %v do not sum to score %v", sum, top.Score)
			}
		})
	}
}

func TestAuctionEmptyAndDegenerate(t *testing.T) {
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.EvaluateBids(nil, AuctionOpts{ReputationWeight: 1})
			if res.WinnerID != "" || res.WinnerScore != 0 || len(res.Rankings) != 0 {
				t.Errorf("expected empty degenerate result, got %+v", res)
			}

			// Zero weights: everything scores 0, input order preserved
			res = a.EvaluateBids([]Bid{{ID: "a", Amount: 1}, {ID: "b", Amount: 2}}, AuctionOpts{})
			if res.WinnerID != "a" {
				t.Errorf("expected stable winner 'a' under zero weights, got '%s'", res.WinnerID)
			}
		})
	}
}

func TestAuctionPermutationInvariant(t *testing.T) {
	bids := []Bid{
		{ID: "a", Amount: 3, Confidence: 0.2, Reputation: 1},
		{ID: "b", Amount: 7, Confidence: 0.8, Reputation: 9},
		{ID: "c", Amount: 5, Confidence: 0.6, Reputation: 4},
	}
	perm := []Bid{bids[2], bids[0], bids[1]}
	opts := AuctionOpts{ReputationWeight: 2, ConfidenceWeight: 1, BidWeight: 1}

	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			r1 := a.EvaluateBids(bids, opts)
			r2 := a.EvaluateBids(perm, opts)
			if r1.WinnerID != r2.WinnerID {
				t.Errorf("winner changed under permutation: %s vs %s", r1.WinnerID, r2.WinnerID)
			}
			for i := range r1.Rankings {
				if r1.Rankings[i].ID != r2.Rankings[i].ID {
					t.Errorf("rank %d changed under permutation: %s vs %s", i, r1.Rankings[i].ID, r2.Rankings[i].ID)
				}
			}
		})
	}
}

func TestMajorityVote(t *testing.T) {
	votes := []Vote{
		{Voter: "v1", Value: "A", Weight: 1},
		{Voter: "v2", Value: "A", Weight: 1},
		{Voter: "v3", Value: "B", Weight: 1},
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.TallyVotes(votes, []string{"A", "B"}, Majority)
			if !res.QuorumMet {
				t.Fatal("expected quorum met")
			}
			if res.Winner != "A" {
				t.Errorf("expected winner 'A', got '%s'", res.Winner)
			}
			if res.Participation != 1.0 {
				t.Errorf("expected participation 1.0, got %v", res.Participation)
			}
			if res.Tally["A"] != 2 || res.Tally["B"] != 1 {
				t.Errorf("unexpected tally: %v", res.Tally)
			}
			// Weight conservation for non-ranked methods
			var sum float64
			for _, v := range res.Tally {
				sum += v
			}
			if sum != res.WeightedTotal {
				t.Errorf("tally sum %v != weighted total %v", sum, res.WeightedTotal)
			}
		})
	}
}

func TestWinnerImpliesQuorum(t *testing.T) {
	cases := []struct {
		name    string
		votes   []Vote
		options []string
		method  ConsensusMethod
	}{
		{"three way split", []Vote{
			{Voter: "a", Value: "X", Weight: 1},
			{Voter: "b", Value: "Y", Weight: 1},
			{Voter: "c", Value: "Z", Weight: 1},
		}, []string{"X", "Y", "Z"}, Majority},
		{"supermajority missed", []Vote{
			{Voter: "a", Value: "X", Weight: 1},
			{Voter: "b", Value: "Y", Weight: 1},
		}, []string{"X", "Y", "Z"}, Supermajority},
		{"unanimous missed", []Vote{
			{Voter: "a", Value: "X", Weight: 3},
			{Voter: "b", Value: "Y", Weight: 1},
		}, []string{"X", "Y"}, Unanimous},
		{"no votes", nil, []string{"X", "Y"}, Majority},
	}

	for _, a := range backends(t) {
		for _, tc := range cases {
			t.Run(a.Name()+"/"+tc.name, func(t *testing.T) {
				res := a.TallyVotes(tc.votes, tc.options, tc.method)
				if (res.Winner != "") != res.QuorumMet {
					t.Errorf("winner %q disagrees with quorumMet %v", res.Winner, res.QuorumMet)
				}
				if res.QuorumMet {
					t.Errorf("expected quorum not met, got winner %q", res.Winner)
				}
			})
		}
	}
}

func TestTwoOptionRaceIsDecisive(t *testing.T) {
	// 50/50 on a two-option ballot still resolves under majority.
	votes := []Vote{
		{Voter: "a", Value: "X", Weight: 1},
		{Voter: "b", Value: "Y", Weight: 1},
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.TallyVotes(votes, []string{"X", "Y"}, Majority)
			if !res.QuorumMet {
				t.Fatal("expected two-option race to be decisive")
			}
			if res.Winner != "X" {
				t.Errorf("expected first-listed option to win the tie, got '%s'", res.Winner)
			}
		})
	}
}

func TestSupermajorityBoundary(t *testing.T) {
	votes := []Vote{
		{Voter: "a", Value: "X", Weight: 2},
		{Voter: "b", Value: "Y", Weight: 1},
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.TallyVotes(votes, []string{"X", "Y", "Z"}, Supermajority)
			if !res.QuorumMet || res.Winner != "X" {
				t.Errorf("expected exactly 2/3 to satisfy supermajority, got %+v", res)
			}
		})
	}
}

func TestRankedVoting(t *testing.T) {
	votes := []Vote{
		{Voter: "v1", Value: `["A","B","C"]`, Weight: 1},
		{Voter: "v2", Value: `["B","A"]`, Weight: 2},
		{Voter: "v3", Value: `not json`, Weight: 5}, // skipped
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.TallyVotes(votes, []string{"A", "B", "C"}, Ranked)
			// v1: A=3 B=2 C=1; v2: B=4 A=2
			if res.Tally["A"] != 5 || res.Tally["B"] != 6 || res.Tally["C"] != 1 {
				t.Errorf("unexpected ranked tally: %v", res.Tally)
			}
			if res.WeightedTotal != 3 {
				t.Errorf("malformed ballot counted toward weight: %v", res.WeightedTotal)
			}
			if res.TotalVotes != 3 {
				t.Errorf("expected 3 ballots cast, got %d", res.TotalVotes)
			}
			// Ballot count over weight: 3/3. The asymmetric definition is
			// load-bearing for compatibility, so pin it exactly.
			if res.Participation != 1.0 {
				t.Errorf("expected participation 1.0, got %v", res.Participation)
			}
		})
	}
}

func TestParticipationMixesCountAndWeight(t *testing.T) {
	votes := []Vote{
		{Voter: "a", Value: "X", Weight: 4},
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.TallyVotes(votes, []string{"X", "Y"}, Majority)
			if res.Participation != 0.25 {
				t.Errorf("expected participation 1/4, got %v", res.Participation)
			}
		})
	}
}

func TestPayoff(t *testing.T) {
	matrix := map[string][]float64{
		"cooperate": {3, 0, 3},
		"defect":    {5, 1},
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.Payoff([]string{"cooperate", "defect", "abstain"}, matrix)
			if res.Payoffs["cooperate"] != 2 {
				t.Errorf("expected cooperate mean 2, got %v", res.Payoffs["cooperate"])
			}
			if res.Payoffs["defect"] != 3 {
				t.Errorf("expected defect mean 3, got %v", res.Payoffs["defect"])
			}
			if res.Payoffs["abstain"] != 0 {
				t.Errorf("expected 0 for strategy without a row, got %v", res.Payoffs["abstain"])
			}
			if res.Dominant != "defect" {
				t.Errorf("expected dominant 'defect', got '%s'", res.Dominant)
			}
		})
	}
}

func TestPayoffTieKeepsFirst(t *testing.T) {
	matrix := map[string][]float64{
		"first":  {2, 2},
		"second": {1, 3},
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			res := a.Payoff([]string{"first", "second"}, matrix)
			if res.Dominant != "first" {
				t.Errorf("expected first-encountered strategy to win the tie, got '%s'", res.Dominant)
			}
		})
	}
}

func TestRouteTasksSaturation(t *testing.T) {
	tasks := []string{"t1", "t2", "t3", "t4", "t5"}
	workers := []string{"w1", "w2"}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			got := a.RouteTasks(tasks, workers, nil, 1.0)
			if len(got) != len(tasks) {
				t.Fatalf("expected every task assigned, got %d/%d", len(got), len(tasks))
			}
			for i, as := range got {
				if as.Task != tasks[i] {
					t.Errorf("assignment %d covers %s, want %s", i, as.Task, tasks[i])
				}
			}

			if got := a.RouteTasks(tasks, nil, nil, 1.0); len(got) != 0 {
				t.Errorf("expected no assignments without workers, got %d", len(got))
			}
		})
	}
}

func TestRouteTasksLoadAware(t *testing.T) {
	// Equal trail strengths: assignments alternate as load accrues.
	tasks := []string{"t1", "t2"}
	workers := []string{"w1", "w2"}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			got := a.RouteTasks(tasks, workers, nil, 1.0)
			if got[0].Worker != "w1" || got[1].Worker != "w2" {
				t.Errorf("expected load to spread assignments, got %s then %s", got[0].Worker, got[1].Worker)
			}
		})
	}
}

func TestRouteTasksFollowsTrails(t *testing.T) {
	strengths := map[string]float64{
		StrengthKey("w2", "t1"): 5.0,
	}
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			got := a.RouteTasks([]string{"t1"}, []string{"w1", "w2"}, strengths, 1.0)
			if got[0].Worker != "w2" {
				t.Errorf("expected strong trail to attract the task, got %s", got[0].Worker)
			}
		})
	}
}

// TestBackendsAgree drives both backends over shared fixtures and
// requires identical results for every operation.
func TestBackendsAgree(t *testing.T) {
	native, _ := New("native")
	reference, _ := New("reference")

	trailFixtures := [][]TrailState{
		nil,
		{{ID: "a", Intensity: 2.0}},
		{{ID: "a", Intensity: 9.9}, {ID: "b", Intensity: 0.011}, {ID: "c", Intensity: 0.5}},
	}
	for i, trails := range trailFixtures {
		for _, rate := range []float64{0.1, 0.5} {
			got := native.Decay(trails, rate, 0.01)
			want := reference.Decay(trails, rate, 0.01)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("decay fixture %d rate %v: backends disagree:\nnative:    %+v\nreference: %+v", i, rate, got, want)
			}
		}
	}

	bidFixtures := [][]Bid{
		nil,
		{{ID: "x", Amount: 10, Confidence: 0.9, Reputation: 5}, {ID: "y", Amount: 5, Confidence: 0.5, Reputation: 10}},
		{{ID: "a", Amount: 0, Confidence: 0, Reputation: 0}, {ID: "b", Amount: 0, Confidence: 0, Reputation: 0}},
	}
	optsFixtures := []AuctionOpts{
		{ReputationWeight: 1, ConfidenceWeight: 1, BidWeight: 1, PreferLowerBids: true},
		{ReputationWeight: 2, ConfidenceWeight: 0.5, BidWeight: 1},
		{},
	}
	for i, bids := range bidFixtures {
		for j, opts := range optsFixtures {
			got := native.EvaluateBids(bids, opts)
			want := reference.EvaluateBids(bids, opts)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("auction fixture %d/%d: backends disagree:\nnative:    %+v\nreference: %+v", i, j, got, want)
			}
		}
	}

	voteFixtures := []struct {
		votes   []Vote
		options []string
		method  ConsensusMethod
	}{
		{nil, []string{"A"}, Majority},
		{[]Vote{{Voter: "a", Value: "A", Weight: 1}, {Voter: "b", Value: "B", Weight: 2}}, []string{"A", "B"}, Majority},
		{[]Vote{{Voter: "a", Value: `["A","B"]`, Weight: 1}, {Voter: "b", Value: `bad`, Weight: 9}}, []string{"A", "B"}, Ranked},
		{[]Vote{{Voter: "a", Value: "C", Weight: 1}}, []string{"A", "B"}, Unanimous},
	}
	for i, f := range voteFixtures {
		got := native.TallyVotes(f.votes, f.options, f.method)
		want := reference.TallyVotes(f.votes, f.options, f.method)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("vote fixture %d: backends disagree:\nnative:    %+v\nreference: %+v", i, got, want)
		}
	}

	matrix := map[string][]float64{"s1": {1, 2, 3}, "s2": {2, 2}}
	for i, strategies := range [][]string{nil, {"s1"}, {"s1", "s2", "s3"}} {
		got := native.Payoff(strategies, matrix)
		want := reference.Payoff(strategies, matrix)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("payoff fixture %d: backends disagree:\nnative:    %+v\nreference: %+v", i, got, want)
		}
	}

	strengths := map[string]float64{
		StrengthKey("w1", "t2"): 2.5,
		StrengthKey("w3", "t1"): 0.9,
	}
	routeFixtures := []struct {
		tasks   []string
		workers []string
		alpha   float64
	}{
		{nil, []string{"w1"}, 1},
		{[]string{"t1", "t2", "t3"}, nil, 1},
		{[]string{"t1", "t2", "t3", "t4"}, []string{"w1", "w2", "w3"}, 1},
		{[]string{"t1", "t2"}, []string{"w1", "w2", "w3"}, 2.5},
	}
	for i, f := range routeFixtures {
		got := native.RouteTasks(f.tasks, f.workers, strengths, f.alpha)
		want := reference.RouteTasks(f.tasks, f.workers, strengths, f.alpha)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("route fixture %d: backends disagree:\nnative:    %+v\nreference: %+v", i, got, want)
		}
	}
}

func TestDecayConvergesToRemoval(t *testing.T) {
	for _, a := range backends(t) {
		t.Run(a.Name(), func(t *testing.T) {
			trails := []TrailState{{ID: "t", Intensity: 10.0}}
			for pass := 0; pass < 1000; pass++ {
				res := a.Decay(trails, 0.1, 0.01)
				if len(res.Trails) == 0 {
					if len(res.Removed) != 1 {
						t.Fatal("trail vanished without a removal record")
					}
					return
				}
				trails = res.Trails
			}
			t.Error(fmt.Sprintf("trail never fell below the floor; final intensity %v", trails[0].Intensity))
		})
	}
}
