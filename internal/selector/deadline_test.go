package selector

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zstream/internal/estimator"
	zerrors "github.com/zzenonn/zstream/internal/errors"
)

var greedyExample = []Candidate{
	{Server: "s1", Score: 0.9},
	{Server: "s2", Score: 0.8},
	{Server: "s3", Score: 0.7},
	{Server: "s4", Score: 0.6},
	{Server: "s5", Score: 0.5},
	{Server: "s6", Score: 0.4},
}

func TestExpand_GreedyStop(t *testing.T) {
	// The d-th order statistic of the top d never moves when a lower-scored
	// candidate joins, so nothing beyond the top d passes the test.
	got := expand(greedyExample, 2, 100, 5, OrderStatisticReward)
	assert.Equal(t, []string{"s1", "s2"}, got)

	// With the exact tail probability the gains are 18.2 (s3), 5.52 (s4) and
	// 2.02 (s5) after weighting; s5 is the first to fall below Q=5.
	got = expand(greedyExample, 2, 100, 5, BinomialReward)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, got)
}

func TestExpand_StopsAtFirstFailure(t *testing.T) {
	calls := 0
	// Gains: +0.1 for s3, +0 for s4, +0.5 for s5. s5 must never be considered.
	reward := func(scores []float64, d int) float64 {
		calls++
		switch len(scores) {
		case 3, 4:
			return 0.1
		case 5:
			return 0.6
		default:
			return 0
		}
	}
	got := expand(greedyExample, 2, 100, 5, reward)
	assert.Equal(t, []string{"s1", "s2", "s3"}, got)
	assert.Equal(t, 3, calls)
}

func seededDeadline(t *testing.T, p Params) (*DeadlineSelector, *estimator.Estimator) {
	t.Helper()
	est := estimator.New()
	universe := StaticServers{}
	for _, c := range greedyExample {
		est.Seed(c.Server, c.Score, 1)
		universe = append(universe, c.Server)
	}
	sel, err := NewDeadlineSelector(universe, est, p)
	require.NoError(t, err)
	return sel, est
}

func TestDeadlineSelector_GreedyExampleThroughSelect(t *testing.T) {
	sel, _ := seededDeadline(t, Params{Fragments: 2, Threshold: 3, Weight: 100, Reward: BinomialReward})
	sel.SetBacklog(5)

	// Round 1 carries no confidence bonus, so scores equal the seeded quality.
	got, err := sel.Select(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, got)

	sel, _ = seededDeadline(t, Params{Fragments: 2, Threshold: 3, Weight: 100})
	sel.SetBacklog(5)
	got, err = sel.Select(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, got)
}

func TestDeadlineSelector_ScoresAreCapped(t *testing.T) {
	sel, _ := seededDeadline(t, Params{Fragments: 2, Threshold: 3, Weight: 100, Reward: BinomialReward})

	// At a late round every bonus pushes the score past 1; capped scores
	// give a certain reward for the top two and no gain from adding more.
	got, err := sel.Select(1_000_000)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeadlineSelector_InsufficientServers(t *testing.T) {
	sel, err := NewDeadlineSelector(StaticServers{"only"}, estimator.New(), Params{Fragments: 2, Threshold: 2, Weight: 1})
	require.NoError(t, err)
	_, err = sel.Select(1)
	assert.True(t, errors.Is(err, zerrors.ErrInsufficientServers))
}

func TestDeadlineSelector_ObserveUpdatesQueueAndQuality(t *testing.T) {
	est := estimator.New()
	sel, err := NewDeadlineSelector(serverNames(6), est, Params{Fragments: 2, Threshold: 3, Weight: 10})
	require.NoError(t, err)

	sel.Observe([]string{"server-00", "server-01", "server-02"}, map[string]float64{
		"server-00": 1,
		"server-01": 0,
	})
	assert.Equal(t, 3.0, sel.Backlog())

	q, n := est.Get("server-00")
	assert.InDelta(t, 0.75, q, 1e-12)
	assert.Equal(t, int64(2), n)
	q, _ = est.Get("server-01")
	assert.InDelta(t, 0.25, q, 1e-12)
	_, n = est.Get("server-02")
	assert.Equal(t, int64(1), n, "non-responding server keeps its state")

	// Q = max(3 - 3, 0) + 2
	sel.Observe([]string{"server-00", "server-01"}, nil)
	assert.Equal(t, 2.0, sel.Backlog())

	// Q = max(2 - 3, 0) + 1
	sel.Observe([]string{"server-03"}, nil)
	assert.Equal(t, 1.0, sel.Backlog())
}

func TestDeadlineSelector_SetBacklogNeverNegative(t *testing.T) {
	sel, err := NewDeadlineSelector(serverNames(3), estimator.New(), Params{Fragments: 1})
	require.NoError(t, err)
	sel.SetBacklog(-4)
	assert.Zero(t, sel.Backlog())
}

func TestDeadlineSelector_Outcome(t *testing.T) {
	sel, err := NewDeadlineSelector(serverNames(3), estimator.New(), Params{Fragments: 1})
	require.NoError(t, err)

	assert.Equal(t, 1.0, sel.Outcome(900*time.Millisecond, time.Second, nil))
	assert.Equal(t, 1.0, sel.Outcome(time.Second, time.Second, nil))
	assert.Equal(t, 0.0, sel.Outcome(1100*time.Millisecond, time.Second, nil))
	assert.Equal(t, 0.0, sel.Outcome(time.Millisecond, time.Second, errors.New("timeout")))
}

func TestDeadlineSelector_FirstRoundUsesRedundancyWhenQueueIsEmpty(t *testing.T) {
	sel, err := NewDeadlineSelector(serverNames(6), estimator.New(), Params{
		Fragments: 2, Threshold: 3, Weight: 100, Reward: BinomialReward,
	})
	require.NoError(t, err)

	got, err := sel.Select(1)
	require.NoError(t, err)
	assert.Greater(t, len(got), 2)
}

func TestDeadlineSelector_QueueStability(t *testing.T) {
	const (
		servers = 8
		d       = 2
		h       = 4.0
		rounds  = 3000
	)

	for _, tc := range []struct {
		name   string
		weight float64
		reward RewardFunc
	}{
		{"no weight", 0, BinomialReward},
		{"small weight", 5, BinomialReward},
		{"large weight", 200, BinomialReward},
		{"order statistic", 200, OrderStatisticReward},
	} {
		t.Run(tc.name, func(t *testing.T) {
			universe := serverNames(servers)
			sel, err := NewDeadlineSelector(universe, estimator.New(), Params{
				Fragments: d, Threshold: h, Weight: tc.weight, Reward: tc.reward,
			})
			require.NoError(t, err)

			total := 0
			for round := uint64(1); round <= rounds; round++ {
				selected, err := sel.Select(round)
				require.NoError(t, err)
				require.GreaterOrEqual(t, len(selected), d)
				total += len(selected)

				outcomes := make(map[string]float64, len(selected))
				for i, s := range selected {
					// Deterministic, server-dependent hit pattern.
					if (int(round)+i)%3 != 0 {
						outcomes[s] = 1
					} else {
						outcomes[s] = 0
					}
				}
				sel.Observe(selected, outcomes)

				q := sel.Backlog()
				require.GreaterOrEqual(t, q, 0.0, "round %d", round)
				require.LessOrEqual(t, q, tc.weight+servers, "round %d", round)
			}

			avg := float64(total) / rounds
			assert.LessOrEqual(t, avg, h+(tc.weight+servers)/rounds)
			if tc.weight == 0 {
				assert.Equal(t, float64(d), avg)
			}
		})
	}
}
