package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// MemoryFragmentRepository keeps fragments in process memory. Values are
// copied on the way in and out so callers cannot mutate stored bytes.
type MemoryFragmentRepository struct {
	name string
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryFragmentRepository creates an empty in-memory repository.
func NewMemoryFragmentRepository(name string) *MemoryFragmentRepository {
	return &MemoryFragmentRepository{
		name: name,
		data: make(map[string][]byte),
	}
}

func (m *MemoryFragmentRepository) Upload(ctx context.Context, key string, r io.Reader, quiet bool) (string, error) {
	value, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return fmt.Sprintf("mem://%s/%s", m.name, key), nil
}

func (m *MemoryFragmentRepository) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", zerrors.ErrFragmentNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(append([]byte{}, value...))), nil
}

func (m *MemoryFragmentRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryFragmentRepository) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

// Keys lists stored keys in sorted order.
func (m *MemoryFragmentRepository) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryFragmentRepository) GetBucketName() string {
	return m.name
}

func (m *MemoryFragmentRepository) GetStorageType() string {
	return string(MemoryType)
}
