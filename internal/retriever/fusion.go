package retriever

import "sort"

// DefaultRRFConstant is the k in 1/(k + rank). 60 is the value from the RRF
// paper and works well untouched.
const DefaultRRFConstant = 60

// fusedCandidate is a candidate's fused score across all ranked lists it
// appears in, plus its best individual rank for tie-breaking.
type fusedCandidate struct {
	Key      string
	Score    float64
	BestRank int
}

// fuseRRF applies Reciprocal Rank Fusion across ranked lists of candidate
// keys. A candidate absent from a list simply contributes nothing from that
// list. Ordering is score descending, then best (lowest) individual rank,
// then key, so the output is fully deterministic.
func fuseRRF(lists [][]string, k float64) []fusedCandidate {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]*fusedCandidate)
	for _, list := range lists {
		for i, key := range list {
			rank := i + 1 // 1-based
			cand, ok := scores[key]
			if !ok {
				cand = &fusedCandidate{Key: key, BestRank: rank}
				scores[key] = cand
			}
			cand.Score += 1.0 / (k + float64(rank))
			if rank < cand.BestRank {
				cand.BestRank = rank
			}
		}
	}

	fused := make([]fusedCandidate, 0, len(scores))
	for _, cand := range scores {
		fused = append(fused, *cand)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].BestRank != fused[j].BestRank {
			return fused[i].BestRank < fused[j].BestRank
		}
		return fused[i].Key < fused[j].Key
	})

	return fused
}
