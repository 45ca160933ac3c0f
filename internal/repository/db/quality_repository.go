package db

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zstream/internal/domain"
)

// QualityRepository persists estimator snapshots, one item per area.
type QualityRepository struct {
	client    DynamoDBAPI
	tableName string
}

// NewQualityRepository initializes a new QualityRepository.
func NewQualityRepository(client DynamoDBAPI, tableName string) QualityRepository {
	return QualityRepository{
		client:    client,
		tableName: tableName,
	}
}

// SaveSnapshot replaces the stored snapshot for snapshot.Area.
func (repo *QualityRepository) SaveSnapshot(ctx context.Context, snapshot domain.QualitySnapshot) error {
	item, err := attributevalue.MarshalMap(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal quality snapshot: %w", err)
	}

	_, err = repo.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(repo.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save quality snapshot: %w", err)
	}

	log.WithFields(log.Fields{
		"area":    snapshot.Area,
		"round":   snapshot.Round,
		"servers": len(snapshot.Servers),
	}).Debug("Saved quality snapshot")
	return nil
}

// LoadSnapshot returns the stored snapshot for area. found is false when the
// area has never been saved.
func (repo *QualityRepository) LoadSnapshot(ctx context.Context, area string) (snapshot domain.QualitySnapshot, found bool, err error) {
	result, err := repo.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(repo.tableName),
		Key: map[string]types.AttributeValue{
			"area": &types.AttributeValueMemberS{Value: area},
		},
	})
	if err != nil {
		return domain.QualitySnapshot{}, false, fmt.Errorf("failed to load quality snapshot: %w", err)
	}
	if result.Item == nil {
		return domain.QualitySnapshot{}, false, nil
	}

	if err := attributevalue.UnmarshalMap(result.Item, &snapshot); err != nil {
		return domain.QualitySnapshot{}, false, fmt.Errorf("failed to unmarshal quality snapshot: %w", err)
	}
	return snapshot, true, nil
}
