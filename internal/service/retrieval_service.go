package service

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zstream/internal/domain"
	"github.com/zzenonn/zstream/internal/erasure"
	zerrors "github.com/zzenonn/zstream/internal/errors"
	"github.com/zzenonn/zstream/internal/estimator"
	"github.com/zzenonn/zstream/internal/placement"
	"github.com/zzenonn/zstream/internal/selector"
)

// DefaultFetchTimeout bounds a single server's fetch and doubles as the
// deadline outcomes are judged against.
const DefaultFetchTimeout = time.Second

// RetrievalService fetches chunks from the servers a selector picks, returns
// as soon as enough fragments arrived to decode, and feeds per-server outcomes
// back to the selector.
type RetrievalService struct {
	metadata  MetadataReader
	placer    placement.Placer
	selector  selector.Selector
	estimator *estimator.Estimator
	timeout   time.Duration

	round atomic.Uint64
}

// NewRetrievalService wires a retrieval path. est must be the estimator the
// selector was built with; it is only read here, for snapshots and metrics.
func NewRetrievalService(metadata MetadataReader, placer placement.Placer, sel selector.Selector, est *estimator.Estimator, fetchTimeout time.Duration) *RetrievalService {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &RetrievalService{
		metadata:  metadata,
		placer:    placer,
		selector:  sel,
		estimator: est,
		timeout:   fetchTimeout,
	}
}

// Round returns the number of the most recent round.
func (s *RetrievalService) Round() uint64 {
	return s.round.Load()
}

// fetchResult is what one server task reports.
type fetchResult struct {
	server    string
	fragments map[int][]byte // valid fragments, even on partial failure
	elapsed   time.Duration
	err       error
}

// FetchChunk retrieves and decodes a chunk.
//
// Every call whose chunk metadata loads consumes exactly one round; an unknown
// chunk returns ErrChunkNotFound without taking one. Servers are selected from
// those holding fragments of the chunk and queried concurrently, each bounded
// by the fetch timeout. Once k distinct valid fragments are held the
// outstanding fetches are cancelled, and the outcomes gathered up to that
// point are reported to the selector. Servers still in flight are left out of
// the report.
func (s *RetrievalService) FetchChunk(ctx context.Context, chunkID string) ([]byte, error) {
	meta, err := s.metadata.GetMetadata(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	round := s.round.Add(1)
	policy := string(s.selector.Policy())
	start := time.Now()

	logger := log.WithFields(log.Fields{
		"chunk":  chunkID,
		"round":  round,
		"policy": policy,
	})

	selected, err := s.selector.SelectFrom(round, meta.Servers())
	if err != nil {
		s.finishRound(policy, start, false)
		return nil, zerrors.ChunkUnavailableError(chunkID, err)
	}
	selectionSize.WithLabelValues(policy).Observe(float64(len(selected)))
	logger.WithField("selected", selected).Debug("Selected servers")

	fragments, outcomes := s.gather(ctx, meta, selected, logger)

	s.selector.Observe(selected, outcomes)
	s.publishState(policy, selected)

	data, err := erasure.Decode(fragments, meta.DataShards, meta.ParityShards, meta.OriginalSize)
	if err != nil {
		s.finishRound(policy, start, false)
		logger.WithError(err).Warn("Chunk unavailable")
		return nil, zerrors.ChunkUnavailableError(chunkID, err)
	}

	s.finishRound(policy, start, true)
	logger.WithFields(log.Fields{
		"fragments": len(fragments),
		"elapsed":   time.Since(start),
	}).Debug("Chunk retrieved")
	return data, nil
}

// gather runs one fetch task per selected server and collects results until
// k distinct fragments are held, every task reported, or ctx is done.
func (s *RetrievalService) gather(ctx context.Context, meta domain.ChunkMetadata, selected []string, logger *log.Entry) (map[int][]byte, map[string]float64) {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	byServer := meta.FragmentsByServer()
	outcomes := make(map[string]float64, len(selected))
	fragments := make(map[int][]byte, meta.DataShards)

	// Buffered so that abandoned tasks never block.
	results := make(chan fetchResult, len(selected))
	launched := 0
	for _, server := range selected {
		server := server
		locations := byServer[server]
		if len(locations) == 0 {
			outcomes[server] = s.selector.Outcome(0, s.timeout, zerrors.ErrFragmentNotFound)
			continue
		}
		repo, err := s.placer.GetRepositoryForServer(server)
		if err != nil {
			outcomes[server] = s.selector.Outcome(0, s.timeout, err)
			continue
		}
		launched++
		go func() {
			results <- s.fetchFromServer(fetchCtx, server, repo, meta.FragmentSize, locations)
		}()
	}

	for received := 0; received < launched && len(fragments) < meta.DataShards; received++ {
		select {
		case r := <-results:
			outcomes[r.server] = s.selector.Outcome(r.elapsed, s.timeout, r.err)
			for index, fragment := range r.fragments {
				fragments[index] = fragment
			}
			if r.err != nil {
				logger.WithError(r.err).WithField("server", r.server).Debug("Fetch failed")
			}
		case <-ctx.Done():
			logger.WithError(ctx.Err()).Debug("Retrieval abandoned")
			return fragments, outcomes
		}
	}
	return fragments, outcomes
}

// FragmentReader is the read side of a fragment server.
type FragmentReader interface {
	Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error)
}

// fetchFromServer downloads every fragment of the chunk that server holds,
// stopping at the first failure.
func (s *RetrievalService) fetchFromServer(ctx context.Context, server string, repo FragmentReader, fragmentSize int64, locations []domain.FragmentLocation) fetchResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result := fetchResult{server: server, fragments: make(map[int][]byte, len(locations))}
	for _, loc := range locations {
		fragment, err := fetchFragment(ctx, repo, loc, fragmentSize)
		if err != nil {
			result.err = fmt.Errorf("fragment %d from %s: %w", loc.Index, server, err)
			break
		}
		result.fragments[loc.Index] = fragment
	}
	result.elapsed = time.Since(start)

	status := "ok"
	if result.err != nil {
		status = "error"
	}
	fragmentFetchDuration.WithLabelValues(server, status).Observe(result.elapsed.Seconds())
	return result
}

// fetchFragment downloads one fragment and checks its length and hash.
func fetchFragment(ctx context.Context, repo FragmentReader, loc domain.FragmentLocation, fragmentSize int64) ([]byte, error) {
	rc, err := repo.Download(ctx, loc.Key, true)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	fragment, err := io.ReadAll(io.LimitReader(rc, fragmentSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(fragment)) != fragmentSize {
		return nil, fmt.Errorf("%w: %d bytes, expected %d", zerrors.ErrCorruptFragment, len(fragment), fragmentSize)
	}
	if hash := erasure.FragmentHash(fragment); hash != loc.Hash {
		return nil, fmt.Errorf("%w: hash %s, expected %s", zerrors.ErrCorruptFragment, hash, loc.Hash)
	}
	return fragment, nil
}

func (s *RetrievalService) finishRound(policy string, start time.Time, ok bool) {
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	retrievalRoundsTotal.WithLabelValues(policy, result).Inc()
	retrievalDuration.WithLabelValues(policy, result).Observe(time.Since(start).Seconds())
}

func (s *RetrievalService) publishState(policy string, selected []string) {
	if holder, ok := s.selector.(selector.BacklogHolder); ok {
		virtualBacklog.WithLabelValues(policy).Set(holder.Backlog())
	}
	for _, server := range selected {
		quality, _ := s.estimator.Get(server)
		serverQuality.WithLabelValues(server).Set(quality)
	}
}
