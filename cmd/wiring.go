package main

import (
	"context"
	"fmt"
	"maps"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zstream/internal/config"
	"github.com/zzenonn/zstream/internal/estimator"
	"github.com/zzenonn/zstream/internal/placement"
	"github.com/zzenonn/zstream/internal/repository/db"
	"github.com/zzenonn/zstream/internal/repository/objectstore"
	"github.com/zzenonn/zstream/internal/selector"
	"github.com/zzenonn/zstream/internal/service"
)

// app holds the repositories and services shared by the chunk commands.
type app struct {
	placer   *placement.RoundRobinPlacer
	metadata db.MetadataRepository
	quality  db.QualityRepository
	chunks   *service.ChunkService
}

func newApp(ctx context.Context) (*app, error) {
	dynamoDb, err := db.NewDatabase(cfg.AwsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	servers, err := resolveServers(ctx, dynamoDb)
	if err != nil {
		return nil, err
	}

	placer, err := buildPlacer(ctx, servers)
	if err != nil {
		return nil, err
	}

	a := &app{
		placer:   placer,
		metadata: db.NewMetadataRepository(dynamoDb.Client, cfg.ChunkTable),
		quality:  db.NewQualityRepository(dynamoDb.Client, cfg.QualityTable),
	}
	a.chunks = service.NewChunkService(placer, &a.metadata)
	return a, nil
}

// resolveServers merges the configured servers with the SSM inventory and
// tag discovery. Configured entries win on id clashes.
func resolveServers(ctx context.Context, dynamoDb *db.DynamoDb) (map[string]string, error) {
	servers := make(map[string]string)

	if cfg.DiscoveryTag != "" {
		discovered, err := placement.DiscoverTaggedBuckets(ctx, dynamoDb.TaggingClient, cfg.DiscoveryTag)
		if err != nil {
			return nil, err
		}
		maps.Copy(servers, discovered)
	}

	if cfg.ServersParameter != "" {
		inventory, err := placement.LoadServersFromSSM(ctx, ssm.NewFromConfig(cfg.AwsConfig), cfg.ServersParameter)
		if err != nil {
			return nil, err
		}
		maps.Copy(servers, inventory)
	}

	maps.Copy(servers, cfg.Servers)
	return servers, nil
}

// buildPlacer registers every server in id order so placement is stable
// across runs.
func buildPlacer(ctx context.Context, servers map[string]string) (*placement.RoundRobinPlacer, error) {
	if config.NeedsGCS(servers) {
		if _, err := cfg.NewGCSClient(ctx); err != nil {
			return nil, err
		}
	}

	factory := objectstore.NewObjectRepositoryFactory(cfg.AwsConfig, cfg.GcsClient)
	placer := placement.NewRoundRobinPlacer()
	for _, id := range placement.SortedServerIDs(servers) {
		bucket, err := objectstore.ParseBucketConfig(servers[id])
		if err != nil {
			return nil, fmt.Errorf("server %s: %w", id, err)
		}
		repo, err := factory.CreateRepository(bucket)
		if err != nil {
			return nil, fmt.Errorf("server %s: %w", id, err)
		}
		if err := placer.RegisterServer(id, repo); err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{
			"server": id,
			"type":   repo.GetStorageType(),
			"bucket": repo.GetBucketName(),
		}).Debug("Registered server")
	}
	return placer, nil
}

// newRetrieval builds the selection policy and the retrieval path on top of
// the shared placer, restoring learned quality for the configured area. The
// chunk service is rebuilt on the same metadata cache so deletes evict
// cached layouts.
func (a *app) newRetrieval(ctx context.Context) (*service.RetrievalService, error) {
	reward, err := selector.ParseReward(cfg.Reward)
	if err != nil {
		return nil, err
	}

	est := estimator.New()
	sel, err := selector.New(selector.Policy(cfg.Policy), a.placer, est, selector.Params{
		Fragments: cfg.FragmentsNeeded,
		Threshold: cfg.QueueThreshold,
		Weight:    cfg.TradeoffWeight,
		Reward:    reward,
	})
	if err != nil {
		return nil, err
	}

	cache := service.NewMetadataCache(&a.metadata, cfg.CacheSize, cfg.CacheTTL)
	retrieval := service.NewRetrievalService(cache, a.placer, sel, est, cfg.FetchTimeout)
	a.chunks = service.NewChunkService(a.placer, cache)

	if err := retrieval.LoadQuality(ctx, &a.quality, cfg.QualityArea); err != nil {
		log.WithError(err).Warn("Starting without stored server quality")
	}
	return retrieval, nil
}
