package db

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zzenonn/zstream/internal/domain"
	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// MetadataRepository manages DynamoDB interactions for ChunkMetadata.
type MetadataRepository struct {
	client    DynamoDBAPI
	tableName string
}

// NewMetadataRepository initializes a new MetadataRepository.
func NewMetadataRepository(client DynamoDBAPI, tableName string) MetadataRepository {
	return MetadataRepository{
		client:    client,
		tableName: tableName,
	}
}

func chunkKey(chunkID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"chunk_id": &types.AttributeValueMemberS{Value: chunkID},
	}
}

// CreateMetadata stores chunk metadata in DynamoDB.
func (repo *MetadataRepository) CreateMetadata(ctx context.Context, metadata domain.ChunkMetadata) (domain.ChunkMetadata, error) {
	metadataMap, err := attributevalue.MarshalMap(metadata)
	if err != nil {
		return domain.ChunkMetadata{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(repo.tableName),
		Item:      metadataMap,
	}

	if _, err := repo.client.PutItem(ctx, input); err != nil {
		return domain.ChunkMetadata{}, fmt.Errorf("failed to create metadata: %w", err)
	}

	return metadata, nil
}

// GetMetadata retrieves chunk metadata by chunk id.
func (repo *MetadataRepository) GetMetadata(ctx context.Context, chunkID string) (domain.ChunkMetadata, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(repo.tableName),
		Key:       chunkKey(chunkID),
	}

	result, err := repo.client.GetItem(ctx, input)
	if err != nil {
		return domain.ChunkMetadata{}, fmt.Errorf("failed to get metadata: %w", err)
	}

	if result.Item == nil {
		return domain.ChunkMetadata{}, fmt.Errorf("%w: %s", zerrors.ErrChunkNotFound, chunkID)
	}

	var metadata domain.ChunkMetadata
	if err := attributevalue.UnmarshalMap(result.Item, &metadata); err != nil {
		return domain.ChunkMetadata{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// ListMetadata scans every stored chunk layout.
func (repo *MetadataRepository) ListMetadata(ctx context.Context) ([]domain.ChunkMetadata, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(repo.tableName),
	}

	var metadataList []domain.ChunkMetadata
	for {
		result, err := repo.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		for _, item := range result.Items {
			var metadata domain.ChunkMetadata
			if err := attributevalue.UnmarshalMap(item, &metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
			metadataList = append(metadataList, metadata)
		}

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return metadataList, nil
}

// UpdateMetadata replaces existing chunk metadata.
func (repo *MetadataRepository) UpdateMetadata(ctx context.Context, metadata domain.ChunkMetadata) (domain.ChunkMetadata, error) {
	return repo.CreateMetadata(ctx, metadata)
}

// DeleteMetadata removes chunk metadata by chunk id.
func (repo *MetadataRepository) DeleteMetadata(ctx context.Context, chunkID string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(repo.tableName),
		Key:       chunkKey(chunkID),
	}

	if _, err := repo.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}
