// Package migrate creates and removes the DynamoDB tables zstream needs.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

const tableWaitTimeout = 5 * time.Minute

// TableAPI is the subset of the DynamoDB client used by migrations.
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Migration creates or drops one table.
type Migration interface {
	Version() string
	TableName() string
	Up(ctx context.Context, client TableAPI) error
	Down(ctx context.Context, client TableAPI) error
}

// All returns the migrations for the given table names in apply order.
func All(chunkTable, qualityTable string) []Migration {
	return []Migration{
		&CreateChunkMetadataTable{Table: chunkTable},
		&CreateServerQualityTable{Table: qualityTable},
	}
}

// Up applies migrations in order. Tables that already exist are skipped.
func Up(ctx context.Context, client TableAPI, migrations ...Migration) error {
	for _, m := range migrations {
		err := m.Up(ctx, client)
		var inUse *types.ResourceInUseException
		switch {
		case errors.As(err, &inUse):
			log.WithField("table", m.TableName()).Info("Table already exists, skipping")
		case err != nil:
			return fmt.Errorf("migration %s: %w", m.Version(), err)
		default:
			log.WithFields(log.Fields{
				"table":   m.TableName(),
				"version": m.Version(),
			}).Info("Created table")
		}
	}
	return nil
}

// Down reverts migrations in reverse order. Missing tables are skipped.
func Down(ctx context.Context, client TableAPI, migrations ...Migration) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		err := m.Down(ctx, client)
		var notFound *types.ResourceNotFoundException
		switch {
		case errors.As(err, &notFound):
			log.WithField("table", m.TableName()).Info("Table does not exist, skipping")
		case err != nil:
			return fmt.Errorf("migration %s: %w", m.Version(), err)
		default:
			log.WithField("table", m.TableName()).Info("Deleted table")
		}
	}
	return nil
}

// createKeyedTable creates an on-demand table with a single string partition
// key and waits for it to become active.
func createKeyedTable(ctx context.Context, client TableAPI, table, partitionKey, purpose string) error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(partitionKey),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(partitionKey),
				KeyType:       types.KeyTypeHash, // Partition Key
			},
		},
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{
				Key:   aws.String("Purpose"),
				Value: aws.String(purpose),
			},
		},
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	}, tableWaitTimeout)
}

func deleteTable(ctx context.Context, client TableAPI, table string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(table),
	})
	return err
}
