// Package selector chooses, for each retrieval round, the set of servers to
// fetch fragments from.
//
// Two policies share the estimator package for their learned state:
//
//   - LatencySelector (L-EMS) always picks the D servers with the highest
//     upper-confidence score and learns from normalized fetch latency.
//   - DeadlineSelector (D-EMS) starts from the same top D and keeps adding
//     servers while the marginal gain in success probability, weighted by V,
//     outweighs a virtual backlog that tracks how far the average selection
//     size has run above the budget H. It learns from deadline hits.
package selector

import (
	"fmt"
	"sort"
	"time"

	"github.com/zzenonn/zstream/internal/estimator"
	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// Policy names a selection strategy.
type Policy string

const (
	LatencyPolicy  Policy = "latency"
	DeadlinePolicy Policy = "deadline"
)

// ServerSource provides the current server universe. It may change between
// rounds.
type ServerSource interface {
	ListServers() []string
}

// Selector is the capability the retrieval path needs from a policy.
type Selector interface {
	// Select returns the servers to query in the given round, best first,
	// drawn from the selector's ServerSource.
	Select(round uint64) ([]string, error)

	// SelectFrom is Select over an explicit candidate set, typically the
	// servers holding fragments of one chunk.
	SelectFrom(round uint64, candidates []string) ([]string, error)

	// Observe feeds back the per-server outcomes of a round. Servers in
	// selected but absent from outcomes are left untouched.
	Observe(selected []string, outcomes map[string]float64)

	// Outcome converts a finished fetch into the value Observe expects.
	Outcome(elapsed, deadline time.Duration, err error) float64

	Policy() Policy
}

// BacklogHolder is implemented by policies that carry a virtual queue.
type BacklogHolder interface {
	Backlog() float64
	SetBacklog(q float64)
}

// Params configures New.
type Params struct {
	Fragments int     // D
	Threshold float64 // H, deadline policy only
	Weight    float64 // V, deadline policy only
	Reward    RewardFunc
}

// New builds the selector for policy.
func New(policy Policy, source ServerSource, est *estimator.Estimator, p Params) (Selector, error) {
	switch policy {
	case LatencyPolicy:
		return NewLatencySelector(source, est, p.Fragments)
	case DeadlinePolicy:
		return NewDeadlineSelector(source, est, p)
	default:
		return nil, fmt.Errorf("unsupported selection policy: %q", policy)
	}
}

// Candidate is a server with its score for the current round.
type Candidate struct {
	Server string
	Score  float64
}

// rank orders servers by descending score, breaking ties by server id so that
// selection is reproducible. Duplicate server ids are collapsed.
func rank(servers []string, scores map[string]float64) []Candidate {
	seen := make(map[string]struct{}, len(servers))
	ranked := make([]Candidate, 0, len(servers))
	for _, s := range servers {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		ranked = append(ranked, Candidate{Server: s, Score: scores[s]})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Server < ranked[j].Server
	})
	return ranked
}

func uniqueServers(servers []string) []string {
	seen := make(map[string]struct{}, len(servers))
	out := servers[:0:0]
	for _, s := range servers {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func checkUniverse(servers []string, fragments int) error {
	if len(servers) < fragments {
		return fmt.Errorf("%w: have %d, need %d", zerrors.ErrInsufficientServers, len(servers), fragments)
	}
	return nil
}

func names(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Server
	}
	return out
}

// StaticServers is a fixed server universe.
type StaticServers []string

func (s StaticServers) ListServers() []string {
	return append([]string(nil), s...)
}
