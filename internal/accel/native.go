package accel

import (
	"encoding/json"
	"math"
)

// nativeBackend is the optimized backend. It avoids intermediate maps
// on hot paths, sizes every allocation up front, and ranks with an
// in-place stable insertion sort. Arithmetic is kept in the exact
// same order as the reference backend so both produce identical
// floating-point results.
type nativeBackend struct{}

func (nativeBackend) Name() string { return "native" }

func (nativeBackend) Decay(trails []TrailState, rate, floor float64) DecayResult {
	if len(trails) == 0 {
		return DecayResult{}
	}

	keep := 1 - rate
	survivors := make([]TrailState, 0, len(trails))
	var removed []TrailState
	for i := range trails {
		decayed := TrailState{ID: trails[i].ID, Intensity: trails[i].Intensity * keep}
		if decayed.Intensity < floor {
			removed = append(removed, decayed)
		} else {
			survivors = append(survivors, decayed)
		}
	}

	out := DecayResult{Removed: removed}
	if len(survivors) > 0 {
		out.Trails = survivors
	}
	return out
}

func (nativeBackend) EvaluateBids(bids []Bid, opts AuctionOpts) AuctionResult {
	if len(bids) == 0 {
		return AuctionResult{}
	}

	var maxRep, maxAmount float64
	for i := range bids {
		if bids[i].Reputation > maxRep {
			maxRep = bids[i].Reputation
		}
		if bids[i].Amount > maxAmount {
			maxAmount = bids[i].Amount
		}
	}

	totalWeight := opts.ReputationWeight + opts.ConfidenceWeight + opts.BidWeight

	scored := make([]ScoredBid, len(bids))
	for i := range bids {
		b := bids[i]
		normRep := 0.0
		if maxRep > 0 {
			normRep = b.Reputation / maxRep
		}
		normAmount := 0.0
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
		scored[i] = s
	}

	// Stable insertion sort, descending. Equal scores keep input order.
	for i := 1; i < len(scored); i++ {
		j := i
		for j > 0 && scored[j-1].Score < scored[j].Score {
			scored[j-1], scored[j] = scored[j], scored[j-1]
			j--
		}
	}

	return AuctionResult{
		Rankings:    scored,
		WinnerID:    scored[0].ID,
		WinnerScore: scored[0].Score,
	}
}

func (nativeBackend) TallyVotes(votes []Vote, options []string, method ConsensusMethod) ConsensusResult {
	index := make(map[string]int, len(options)+4)
	order := make([]string, 0, len(options)+4)
	points := make([]float64, 0, len(options)+4)
	slot := func(option string) int {
		if i, ok := index[option]; ok {
			return i
		}
		i := len(order)
		index[option] = i
		order = append(order, option)
		points = append(points, 0)
		return i
	}
	for _, opt := range options {
		slot(opt)
	}

	var weightedTotal float64
	for i := range votes {
		v := votes[i]
		if method == Ranked {
			var ranking []string
			if err := json.Unmarshal([]byte(v.Value), &ranking); err != nil {
				continue // malformed ballot: skipped, weight not counted
			}
			n := len(ranking)
			for pos, opt := range ranking {
				points[slot(opt)] += float64(n-pos) * v.Weight
			}
			weightedTotal += v.Weight
		} else {
			points[slot(v.Value)] += v.Weight
			weightedTotal += v.Weight
		}
	}

	var top string
	var topPoints, totalPoints float64
	for i, opt := range order {
		totalPoints += points[i]
		if i == 0 || points[i] > topPoints {
			top = opt
			topPoints = points[i]
		}
	}

	tally := make(map[string]float64, len(order))
	for i, opt := range order {
		tally[opt] = points[i]
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

func (nativeBackend) Payoff(strategies []string, matrix map[string][]float64) PayoffResult {
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

func (nativeBackend) RouteTasks(tasks, workers []string, strengths map[string]float64, alpha float64) []Assignment {
	if len(workers) == 0 || len(tasks) == 0 {
		return nil
	}

	loads := make([]int, len(workers))
	assignments := make([]Assignment, 0, len(tasks))
	for _, task := range tasks {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, w := range workers {
			strength, ok := strengths[StrengthKey(w, task)]
			if !ok {
				strength = defaultStrength
			}
			score := math.Pow(strength, alpha) / float64(1+loads[i])
			if score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		loads[bestIdx]++
		assignments = append(assignments, Assignment{Task: task, Worker: workers[bestIdx], Score: bestScore})
	}
	return assignments
}
