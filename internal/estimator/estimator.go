// Package estimator keeps the per-server quality estimates that drive server
// selection.
//
// Each server carries a running mean of the outcomes it produced (quality) and
// the number of outcomes folded into that mean plus one (selections). Servers
// are created lazily with quality 0.5 and selections 1 the first time they are
// seen, so a changing server pool needs no registration step.
package estimator

import (
	"math"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zstream/internal/domain"
)

const (
	DefaultQuality    = 0.5
	DefaultSelections = 1
)

type stats struct {
	quality    float64
	selections int64
}

// Estimator is safe for concurrent use. A single lock covers the whole map so
// that a quality value is never observed without its matching selection count.
type Estimator struct {
	mu      sync.RWMutex
	servers map[string]*stats
}

// New creates an empty estimator.
func New() *Estimator {
	return &Estimator{
		servers: make(map[string]*stats),
	}
}

// Bonus returns the confidence term sqrt(coef * ln(round) / selections).
// Rounds at or below 1 give no bonus.
func Bonus(round uint64, coef float64, selections int64) float64 {
	if round <= 1 || selections < 1 {
		return 0
	}
	return math.Sqrt(coef * math.Log(float64(round)) / float64(selections))
}

// Score returns the upper-confidence estimate quality + Bonus for server.
func (e *Estimator) Score(server string, round uint64, coef float64) float64 {
	quality, selections := e.Get(server)
	return quality + Bonus(round, coef, selections)
}

// Scores computes Score for every server under one read lock.
func (e *Estimator) Scores(servers []string, round uint64, coef float64) map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	scores := make(map[string]float64, len(servers))
	for _, s := range servers {
		quality, selections := float64(DefaultQuality), int64(DefaultSelections)
		if st, ok := e.servers[s]; ok {
			quality, selections = st.quality, st.selections
		}
		scores[s] = quality + Bonus(round, coef, selections)
	}
	return scores
}

// Get returns the current (quality, selections) pair for server, or the
// defaults for a server that has never been updated.
func (e *Estimator) Get(server string) (float64, int64) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if st, ok := e.servers[server]; ok {
		return st.quality, st.selections
	}
	return DefaultQuality, DefaultSelections
}

// Update folds one observed outcome into the running mean for server.
// Outcomes are clamped to [0, 1].
func (e *Estimator) Update(server string, outcome float64) {
	outcome = Clamp(outcome)

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.lookup(server)
	st.quality = (st.quality*float64(st.selections) + outcome) / float64(st.selections+1)
	st.selections++

	log.WithFields(log.Fields{
		"server":     server,
		"outcome":    outcome,
		"quality":    st.quality,
		"selections": st.selections,
	}).Trace("Updated server quality")
}

// Seed overwrites the state of a server, typically when restoring a
// persisted snapshot.
func (e *Estimator) Seed(server string, quality float64, selections int64) {
	if selections < 1 {
		selections = DefaultSelections
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.lookup(server)
	st.quality = Clamp(quality)
	st.selections = selections
}

// Snapshot returns the state of every known server ordered by server id.
func (e *Estimator) Snapshot() []domain.ServerStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.ServerStats, 0, len(e.servers))
	for name, st := range e.servers {
		out = append(out, domain.ServerStats{
			Server:     name,
			Quality:    st.quality,
			Selections: st.selections,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Server < out[j].Server })
	return out
}

// lookup must be called with the write lock held.
func (e *Estimator) lookup(server string) *stats {
	st, ok := e.servers[server]
	if !ok {
		st = &stats{quality: DefaultQuality, selections: DefaultSelections}
		e.servers[server] = st
	}
	return st
}

// Clamp limits v to [0, 1]. NaN is treated as the worst outcome.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
