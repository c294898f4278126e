package accel

import (
	"encoding/json"
	"math"
	"sort"
)

// referenceBackend is the portable backend: a direct transliteration
// of the algorithm definitions, written for readability. It is the
// yardstick the native backend is verified against.
type referenceBackend struct{}

func (referenceBackend) Name() string { return "reference" }

func (referenceBackend) Decay(trails []TrailState, rate, floor float64) DecayResult {
	var out DecayResult
	for _, t := range trails {
		decayed := TrailState{ID: t.ID, Intensity: t.Intensity * (1 - rate)}
		if decayed.Intensity < floor {
			out.Removed = append(out.Removed, decayed)
		} else {
			out.Trails = append(out.Trails, decayed)
		}
	}
	return out
}

func (referenceBackend) EvaluateBids(bids []Bid, opts AuctionOpts) AuctionResult {
	if len(bids) == 0 {
		return AuctionResult{}
	}

	var maxRep, maxAmount float64
	for _, b := range bids {
		if b.Reputation > maxRep {
			maxRep = b.Reputation
		}
		if b.Amount > maxAmount {
			maxAmount = b.Amount
		}
	}

	totalWeight := opts.ReputationWeight + opts.ConfidenceWeight + opts.BidWeight

	scored := make([]ScoredBid, 0, len(bids))
	for _, b := range bids {
		var normRep, normAmount float64
		if maxRep > 0 {
			normRep = b.Reputation / maxRep
		}
		if maxAmount > 0 {
			normAmount = b.Amount / maxAmount
		}
		if opts.PreferLowerBids {
			normAmount = 1 - normAmount
		}

		s := ScoredBid{Bid: b}
		if totalWeight > 0 {
			s.ReputationScore = normRep * opts.ReputationWeight / totalWeight
			s.ConfidenceScore = b.Confidence * opts.ConfidenceWeight / totalWeight
			s.PriceScore = normAmount * opts.BidWeight / totalWeight
			s.Score = s.ReputationScore + s.ConfidenceScore + s.PriceScore
		}
		scored = append(scored, s)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return AuctionResult{
		Rankings:    scored,
		WinnerID:    scored[0].ID,
		WinnerScore: scored[0].Score,
	}
}

func (referenceBackend) TallyVotes(votes []Vote, options []string, method ConsensusMethod) ConsensusResult {
	tally := make(map[string]float64, len(options))
	order := make([]string, 0, len(options))
	for _, opt := range options {
		if _, ok := tally[opt]; !ok {
			tally[opt] = 0
			order = append(order, opt)
		}
	}
	record := func(option string, points float64) {
		if _, ok := tally[option]; !ok {
			order = append(order, option)
		}
		tally[option] += points
	}

	var weightedTotal float64
	for _, v := range votes {
		if method == Ranked {
			var ranking []string
			if err := json.Unmarshal([]byte(v.Value), &ranking); err != nil {
				continue // malformed ballot: skipped, weight not counted
			}
			n := len(ranking)
			for pos, opt := range ranking {
				record(opt, float64(n-pos)*v.Weight)
			}
			weightedTotal += v.Weight
		} else {
			record(v.Value, v.Weight)
			weightedTotal += v.Weight
		}
	}

	var top string
	var topPoints, totalPoints float64
	for i, opt := range order {
		p := tally[opt]
		totalPoints += p
		if i == 0 || p > topPoints {
			top = opt
			topPoints = p
		}
	}

	var share float64
	if totalPoints > 0 {
		share = topPoints / totalPoints
	}
	quorum := totalPoints > 0 && quorumReached(method, share, len(options))

	res := ConsensusResult{
		Tally:         tally,
		QuorumMet:     quorum,
		TotalVotes:    len(votes),
		WeightedTotal: weightedTotal,
	}
	if quorum {
		res.Winner = top
	}
	if weightedTotal > 0 {
		res.Participation = float64(len(votes)) / weightedTotal
	}
	return res
}

func (referenceBackend) Payoff(strategies []string, matrix map[string][]float64) PayoffResult {
	res := PayoffResult{Payoffs: make(map[string]float64, len(strategies))}
	best := math.Inf(-1)
	for _, s := range strategies {
		var mean float64
		if row := matrix[s]; len(row) > 0 {
			var sum float64
			for _, v := range row {
				sum += v
			}
			mean = sum / float64(len(row))
		}
		res.Payoffs[s] = mean
		if mean > best {
			best = mean
			res.Dominant = s
		}
	}
	return res
}

func (referenceBackend) RouteTasks(tasks, workers []string, strengths map[string]float64, alpha float64) []Assignment {
	if len(workers) == 0 {
		return nil
	}

	load := make(map[string]int, len(workers))
	var assignments []Assignment
	for _, task := range tasks {
		var best string
		bestScore := math.Inf(-1)
		for _, w := range workers {
			strength, ok := strengths[StrengthKey(w, task)]
			if !ok {
				strength = defaultStrength
			}
			score := math.Pow(strength, alpha) / float64(1+load[w])
			if score > bestScore {
				best = w
				bestScore = score
			}
		}
		load[best]++
		assignments = append(assignments, Assignment{Task: task, Worker: best, Score: bestScore})
	}
	return assignments
}

// quorumReached applies the per-method winning-share rule. A two-way
// race under majority is decisive at any plurality; unknown methods
// fall back to the majority rule.
func quorumReached(method ConsensusMethod, share float64, optionCount int) bool {
	switch method {
	case Supermajority:
		return share >= 2.0/3.0
	case Unanimous:
		return share >= 1.0
	case Majority, Ranked:
		return share > 0.5 || optionCount <= 2
	default:
		return share > 0.5 || optionCount <= 2
	}
}
