package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zstream/internal/domain"
	"github.com/zzenonn/zstream/internal/erasure"
	zerrors "github.com/zzenonn/zstream/internal/errors"
)

func TestChunkService_PutChunkLayout(t *testing.T) {
	f := newFixture(t, 4)
	payload, meta := f.put(t, "chunk-1", 1001, 4, 2)

	assert.Equal(t, "chunk-1", meta.ChunkID)
	assert.Equal(t, int64(1001), meta.OriginalSize)
	assert.Equal(t, int64(3), meta.PaddingSize)
	assert.Equal(t, int64(251), meta.FragmentSize)
	assert.Equal(t, 6, meta.TotalShards())
	require.Len(t, meta.Fragments, 6)

	fragments, _, err := erasure.Encode(payload, 4, 2)
	require.NoError(t, err)

	for i, loc := range meta.Fragments {
		assert.Equal(t, i, loc.Index)
		assert.Equal(t, fmt.Sprintf("s%d", i%4), loc.Server, "round-robin placement")
		assert.Equal(t, fmt.Sprintf("chunk-1/block%02d.bin", i), loc.Key)
		assert.Equal(t, erasure.FragmentHash(fragments[i]), loc.Hash)
		if i < 4 {
			assert.Equal(t, domain.RoleData, loc.Role)
		} else {
			assert.Equal(t, domain.RoleParity, loc.Role)
		}
	}

	// s0 and s1 hold two fragments each when n=6 over 4 servers.
	assert.Len(t, f.repos["s0"].Keys(), 2)
	assert.Len(t, f.repos["s3"].Keys(), 1)

	stored, err := f.chunks.GetLayout(context.Background(), "chunk-1")
	require.NoError(t, err)
	assert.Equal(t, meta, stored)
}

func TestChunkService_GeneratesID(t *testing.T) {
	f := newFixture(t, 3)
	_, meta := f.put(t, "", 10, 2, 1)

	_, err := uuid.Parse(meta.ChunkID)
	assert.NoError(t, err)

	chunks, err := f.chunks.ListChunks(context.Background())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, meta.ChunkID, chunks[0].ChunkID)
}

func TestChunkService_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	_, err := f.chunks.PutChunk(ctx, "empty", bytes.NewReader(nil), 2, 1, true)
	assert.ErrorIs(t, err, zerrors.ErrEmptyChunk)

	_, err = f.chunks.PutChunk(ctx, "bad", bytes.NewReader([]byte("abc")), 0, 1, true)
	assert.ErrorIs(t, err, zerrors.ErrInvalidParameters)

	empty := newFixture(t, 0)
	_, err = empty.chunks.PutChunk(ctx, "nowhere", bytes.NewReader([]byte("abc")), 2, 1, true)
	assert.ErrorIs(t, err, zerrors.ErrInsufficientServers)
}

func TestChunkService_UploadFailureCleansUp(t *testing.T) {
	f := newFixture(t, 3)
	cause := errors.New("disk full")
	f.repos["s2"].uploadErr = cause

	_, err := f.chunks.PutChunk(context.Background(), "doomed", bytes.NewReader(make([]byte, 64)), 2, 1, true)
	require.ErrorIs(t, err, cause)

	for name, repo := range f.repos {
		assert.Empty(t, repo.Keys(), "server %s kept fragments", name)
	}
	_, err = f.chunks.GetLayout(context.Background(), "doomed")
	assert.ErrorIs(t, err, zerrors.ErrChunkNotFound)
}

func TestChunkService_DeleteChunk(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.put(t, "gone", 300, 2, 1)
	f.put(t, "kept", 300, 2, 1)

	require.NoError(t, f.chunks.DeleteChunk(ctx, "gone"))

	for _, repo := range f.repos {
		for _, key := range repo.Keys() {
			assert.Contains(t, key, "kept/")
		}
	}
	_, err := f.chunks.GetLayout(ctx, "gone")
	assert.ErrorIs(t, err, zerrors.ErrChunkNotFound)

	err = f.chunks.DeleteChunk(ctx, "gone")
	assert.ErrorIs(t, err, zerrors.ErrChunkNotFound)
}
