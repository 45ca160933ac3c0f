package selector

import (
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zstream/internal/estimator"
	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// deadlineConfidence is the exploration coefficient of the deadline policy.
const deadlineConfidence = 2

// DeadlineSelector picks at least D servers per round and regulates extra
// redundancy with a virtual queue.
type DeadlineSelector struct {
	source    ServerSource
	estimator *estimator.Estimator
	fragments int
	threshold float64
	weight    float64
	reward    RewardFunc

	mu      sync.Mutex
	backlog float64
}

// NewDeadlineSelector creates a queue-regulated selector. A nil reward uses
// OrderStatisticReward.
func NewDeadlineSelector(source ServerSource, est *estimator.Estimator, p Params) (*DeadlineSelector, error) {
	if p.Fragments < 1 {
		return nil, fmt.Errorf("%w: fragments needed must be at least 1, got %d", zerrors.ErrInvalidParameters, p.Fragments)
	}
	if p.Threshold < 0 || p.Weight < 0 {
		return nil, fmt.Errorf("%w: threshold and weight must be non-negative (H=%v, V=%v)",
			zerrors.ErrInvalidParameters, p.Threshold, p.Weight)
	}
	reward := p.Reward
	if reward == nil {
		reward = OrderStatisticReward
	}
	return &DeadlineSelector{
		source:    source,
		estimator: est,
		fragments: p.Fragments,
		threshold: p.Threshold,
		weight:    p.Weight,
		reward:    reward,
	}, nil
}

func (d *DeadlineSelector) Policy() Policy { return DeadlinePolicy }

// Backlog returns the current virtual queue length Q.
func (d *DeadlineSelector) Backlog() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backlog
}

// SetBacklog restores Q, e.g. from a persisted snapshot. Negative values are
// treated as an empty queue.
func (d *DeadlineSelector) SetBacklog(q float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backlog = math.Max(q, 0)
}

// Select returns the top D servers by capped score followed by every further
// server, in score order, whose marginal reward passes the drift test.
func (d *DeadlineSelector) Select(round uint64) ([]string, error) {
	return d.SelectFrom(round, d.source.ListServers())
}

// SelectFrom is Select restricted to candidates.
func (d *DeadlineSelector) SelectFrom(round uint64, candidates []string) ([]string, error) {
	servers := uniqueServers(candidates)
	if err := checkUniverse(servers, d.fragments); err != nil {
		return nil, err
	}

	scores := d.estimator.Scores(servers, round, deadlineConfidence)
	for s, v := range scores {
		scores[s] = math.Min(v, 1)
	}
	ranked := rank(servers, scores)

	backlog := d.Backlog()
	selected := expand(ranked, d.fragments, d.weight, backlog, d.reward)

	log.WithFields(log.Fields{
		"policy":   DeadlinePolicy,
		"round":    round,
		"backlog":  backlog,
		"selected": selected,
	}).Debug("Selected servers")
	return selected, nil
}

// expand takes the first d ranked candidates and then adds candidates in order
// while weight * (reward gain) exceeds backlog, stopping at the first one
// that does not.
func expand(ranked []Candidate, d int, weight, backlog float64, reward RewardFunc) []string {
	selected := names(ranked[:d])
	scores := make([]float64, d, len(ranked))
	for i := 0; i < d; i++ {
		scores[i] = ranked[i].Score
	}

	current := reward(scores, d)
	for _, c := range ranked[d:] {
		next := reward(append(scores, c.Score), d)
		if weight*(next-current) <= backlog {
			break
		}
		scores = append(scores, c.Score)
		selected = append(selected, c.Server)
		current = next
	}
	return selected
}

// Observe updates quality with binary deadline hits and then advances the
// virtual queue: Q = max(Q - H, 0) + |selected|.
func (d *DeadlineSelector) Observe(selected []string, successes map[string]float64) {
	for _, s := range selected {
		success, ok := successes[s]
		if !ok {
			continue
		}
		d.estimator.Update(s, success)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.backlog = math.Max(d.backlog-d.threshold, 0) + float64(len(selected))
}

// Outcome is 1 for a fetch that succeeded within the deadline and 0 otherwise.
func (d *DeadlineSelector) Outcome(elapsed, deadline time.Duration, err error) float64 {
	if err != nil || elapsed > deadline {
		return 0
	}
	return 1
}
