package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zstream/internal/domain"
	zerrors "github.com/zzenonn/zstream/internal/errors"
	"github.com/zzenonn/zstream/internal/estimator"
	"github.com/zzenonn/zstream/internal/placement"
	"github.com/zzenonn/zstream/internal/repository/objectstore"
	"github.com/zzenonn/zstream/internal/selector"
)

// memMetadata is an in-memory MetadataRepository that counts reads.
type memMetadata struct {
	mu    sync.Mutex
	items map[string]domain.ChunkMetadata
	gets  atomic.Int32
}

func newMemMetadata() *memMetadata {
	return &memMetadata{items: make(map[string]domain.ChunkMetadata)}
}

func (m *memMetadata) CreateMetadata(ctx context.Context, metadata domain.ChunkMetadata) (domain.ChunkMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[metadata.ChunkID] = metadata
	return metadata, nil
}

func (m *memMetadata) GetMetadata(ctx context.Context, chunkID string) (domain.ChunkMetadata, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.items[chunkID]
	if !ok {
		return domain.ChunkMetadata{}, fmt.Errorf("%w: %s", zerrors.ErrChunkNotFound, chunkID)
	}
	return meta, nil
}

func (m *memMetadata) ListMetadata(ctx context.Context) ([]domain.ChunkMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ChunkMetadata, 0, len(m.items))
	for _, meta := range m.items {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out, nil
}

func (m *memMetadata) DeleteMetadata(ctx context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, chunkID)
	return nil
}

// scriptedRepo is an in-memory fragment server whose downloads can be slowed,
// blocked, failed or corrupted.
type scriptedRepo struct {
	*objectstore.MemoryFragmentRepository

	delay     time.Duration
	block     bool
	err       error
	corrupt   bool
	uploadErr error

	downloads atomic.Int32
}

func (r *scriptedRepo) Upload(ctx context.Context, key string, reader io.Reader, quiet bool) (string, error) {
	if r.uploadErr != nil {
		return "", r.uploadErr
	}
	return r.MemoryFragmentRepository.Upload(ctx, key, reader, quiet)
}

func (r *scriptedRepo) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	r.downloads.Add(1)
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}

	rc, err := r.MemoryFragmentRepository.Download(ctx, key, quiet)
	if err != nil || !r.corrupt {
		return rc, err
	}
	data, _ := io.ReadAll(rc)
	data[0] ^= 0xff
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fixture struct {
	placer   *placement.RoundRobinPlacer
	repos    map[string]*scriptedRepo
	metadata *memMetadata
	chunks   *ChunkService
}

// newFixture registers servers s0..s{n-1}.
func newFixture(t *testing.T, servers int) *fixture {
	t.Helper()
	f := &fixture{
		placer:   placement.NewRoundRobinPlacer(),
		repos:    make(map[string]*scriptedRepo),
		metadata: newMemMetadata(),
	}
	for i := 0; i < servers; i++ {
		f.addServer(t, fmt.Sprintf("s%d", i))
	}
	f.chunks = NewChunkService(f.placer, f.metadata)
	return f
}

func (f *fixture) addServer(t *testing.T, name string) *scriptedRepo {
	t.Helper()
	repo := &scriptedRepo{MemoryFragmentRepository: objectstore.NewMemoryFragmentRepository(name)}
	require.NoError(t, f.placer.RegisterServer(name, repo))
	f.repos[name] = repo
	return repo
}

func (f *fixture) put(t *testing.T, chunkID string, size, k, m int) ([]byte, domain.ChunkMetadata) {
	t.Helper()
	payload := make([]byte, size)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	meta, err := f.chunks.PutChunk(context.Background(), chunkID, bytes.NewReader(payload), k, m, true)
	require.NoError(t, err)
	return payload, meta
}

func (f *fixture) retrieval(t *testing.T, policy selector.Policy, p selector.Params, timeout time.Duration) (*RetrievalService, *estimator.Estimator) {
	t.Helper()
	est := estimator.New()
	sel, err := selector.New(policy, f.placer, est, p)
	require.NoError(t, err)
	return NewRetrievalService(f.metadata, f.placer, sel, est, timeout), est
}
