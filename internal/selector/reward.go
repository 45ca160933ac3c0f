package selector

import (
	"fmt"
	"sort"

	"github.com/zzenonn/zstream/internal/estimator"
)

// RewardFunc estimates the probability of collecting at least d usable
// fragments from a set of servers with the given success scores.
type RewardFunc func(scores []float64, d int) float64

const (
	OrderStatisticRewardName = "order-statistic"
	BinomialRewardName       = "binomial"
)

// ParseReward maps a configuration name to a RewardFunc. The empty name
// selects the order-statistic reward.
func ParseReward(name string) (RewardFunc, error) {
	switch name {
	case "", OrderStatisticRewardName:
		return OrderStatisticReward, nil
	case BinomialRewardName:
		return BinomialReward, nil
	default:
		return nil, fmt.Errorf("unsupported reward function: %q", name)
	}
}

// OrderStatisticReward is the d-th largest score, a cheap pessimistic stand-in
// for the success probability. It is 0 for fewer than d servers.
func OrderStatisticReward(scores []float64, d int) float64 {
	if d < 1 || len(scores) < d {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	return sorted[d-1]
}

// BinomialReward is the exact probability that at least d of the servers
// succeed when each succeeds independently with probability equal to its
// score (a Poisson-binomial tail).
func BinomialReward(scores []float64, d int) float64 {
	if d < 1 || len(scores) < d {
		return 0
	}

	// dist[j] = P(exactly j successes so far)
	dist := make([]float64, len(scores)+1)
	dist[0] = 1
	for i, p := range scores {
		p = estimator.Clamp(p)
		for j := i + 1; j >= 1; j-- {
			dist[j] = dist[j]*(1-p) + dist[j-1]*p
		}
		dist[0] *= 1 - p
	}

	var tail float64
	for j := d; j < len(dist); j++ {
		tail += dist[j]
	}
	return estimator.Clamp(tail)
}
