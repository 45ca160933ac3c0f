package db

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zstream/internal/domain"
	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// fakeTable is a single-table, string-partition-key DynamoDB stand in.
// Scan returns one item per page to exercise pagination.
type fakeTable struct {
	mu    sync.Mutex
	pk    string
	items map[string]map[string]types.AttributeValue
}

func newFakeTable(pk string) *fakeTable {
	return &fakeTable{pk: pk, items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeTable) keyOf(item map[string]types.AttributeValue) string {
	return item[f.pk].(*types.AttributeValueMemberS).Value
}

func (f *fakeTable) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[f.keyOf(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[f.keyOf(params.Key)]}, nil
}

func (f *fakeTable) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, f.keyOf(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeTable) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if params.ExclusiveStartKey != nil {
		last := f.keyOf(params.ExclusiveStartKey)
		start = sort.SearchStrings(keys, last) + 1
	}
	if start >= len(keys) {
		return &dynamodb.ScanOutput{}, nil
	}

	out := &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{f.items[keys[start]]}}
	if start+1 < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			f.pk: &types.AttributeValueMemberS{Value: keys[start]},
		}
	}
	return out, nil
}

func sampleChunk(id string) domain.ChunkMetadata {
	return domain.ChunkMetadata{
		ChunkID:      id,
		OriginalSize: 10,
		PaddingSize:  2,
		FragmentSize: 3,
		DataShards:   4,
		ParityShards: 2,
		Fragments: []domain.FragmentLocation{
			{Index: 0, Role: domain.RoleData, Hash: "00000000000000aa", Server: "a", Key: id + "/block00.bin"},
			{Index: 4, Role: domain.RoleParity, Hash: "00000000000000bb", Server: "b", Key: id + "/block04.bin"},
		},
	}
}

func TestMetadataRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMetadataRepository(newFakeTable("chunk_id"), "chunk_metadata")

	_, err := repo.GetMetadata(ctx, "missing")
	assert.ErrorIs(t, err, zerrors.ErrChunkNotFound)

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := repo.CreateMetadata(ctx, sampleChunk(id))
		require.NoError(t, err)
	}

	got, err := repo.GetMetadata(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, sampleChunk("c2"), got)

	updated := sampleChunk("c2")
	updated.OriginalSize = 11
	updated.PaddingSize = 1
	_, err = repo.UpdateMetadata(ctx, updated)
	require.NoError(t, err)
	got, err = repo.GetMetadata(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.OriginalSize)

	all, err := repo.ListMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, repo.DeleteMetadata(ctx, "c1"))
	_, err = repo.GetMetadata(ctx, "c1")
	assert.ErrorIs(t, err, zerrors.ErrChunkNotFound)
}

func TestQualityRepository(t *testing.T) {
	ctx := context.Background()
	table := newFakeTable("area")
	repo := NewQualityRepository(table, "server_quality")

	_, found, err := repo.LoadSnapshot(ctx, "eu-west")
	require.NoError(t, err)
	assert.False(t, found)

	snapshot := domain.QualitySnapshot{
		Area:    "eu-west",
		Policy:  "deadline",
		Round:   42,
		Backlog: 3.5,
		Servers: []domain.ServerStats{
			{Server: "a", Quality: 0.9, Selections: 30},
			{Server: "b", Quality: 0.2, Selections: 5},
		},
	}
	require.NoError(t, repo.SaveSnapshot(ctx, snapshot))

	item := table.items["eu-west"]
	require.NotNil(t, item)
	assert.Equal(t, "42", item["round"].(*types.AttributeValueMemberN).Value)

	got, found, err := repo.LoadSnapshot(ctx, "eu-west")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snapshot, got)
}
