package selector

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zstream/internal/estimator"
	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// LatencySelector picks exactly D servers per round.
type LatencySelector struct {
	source    ServerSource
	estimator *estimator.Estimator
	fragments int
}

// NewLatencySelector creates a fixed-size selector that needs fragments (D)
// servers per round.
func NewLatencySelector(source ServerSource, est *estimator.Estimator, fragments int) (*LatencySelector, error) {
	if fragments < 1 {
		return nil, fmt.Errorf("%w: fragments needed must be at least 1, got %d", zerrors.ErrInvalidParameters, fragments)
	}
	return &LatencySelector{
		source:    source,
		estimator: est,
		fragments: fragments,
	}, nil
}

func (l *LatencySelector) Policy() Policy { return LatencyPolicy }

// confidence is the exploration coefficient D+1.
func (l *LatencySelector) confidence() float64 {
	return float64(l.fragments + 1)
}

// Select returns the D servers with the highest upper-confidence scores.
func (l *LatencySelector) Select(round uint64) ([]string, error) {
	return l.SelectFrom(round, l.source.ListServers())
}

// SelectFrom is Select restricted to candidates.
func (l *LatencySelector) SelectFrom(round uint64, candidates []string) ([]string, error) {
	servers := uniqueServers(candidates)
	if err := checkUniverse(servers, l.fragments); err != nil {
		return nil, err
	}

	ranked := rank(servers, l.estimator.Scores(servers, round, l.confidence()))
	selected := names(ranked[:l.fragments])

	log.WithFields(log.Fields{
		"policy":   LatencyPolicy,
		"round":    round,
		"selected": selected,
	}).Debug("Selected servers")
	return selected, nil
}

// Observe rewards each selected server with 1 - latency, where latency has
// already been normalized against the deadline.
func (l *LatencySelector) Observe(selected []string, latencies map[string]float64) {
	for _, s := range selected {
		latency, ok := latencies[s]
		if !ok {
			continue
		}
		l.estimator.Update(s, 1-estimator.Clamp(latency))
	}
}

// Outcome is the fetch latency as a fraction of the deadline, capped at 1.
// Failures count as a full deadline.
func (l *LatencySelector) Outcome(elapsed, deadline time.Duration, err error) float64 {
	if err != nil || deadline <= 0 {
		return 1
	}
	return estimator.Clamp(float64(elapsed) / float64(deadline))
}
