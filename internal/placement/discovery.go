package placement

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	taggingtypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// ParameterGetter is the subset of the SSM client used for server inventory.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadServersFromSSM reads a JSON object of server id to location URI from
// an SSM parameter, e.g. {"edge-a": "s3://fragments-a", "edge-b": "http://10.0.0.7:8080"}.
func LoadServersFromSSM(ctx context.Context, client ParameterGetter, name string) (map[string]string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, zerrors.FetchingResourceError("ssm parameter", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("ssm parameter %s has no value", name)
	}

	servers := make(map[string]string)
	if err := json.Unmarshal([]byte(*out.Parameter.Value), &servers); err != nil {
		return nil, fmt.Errorf("ssm parameter %s is not a server map: %w", name, err)
	}

	log.WithFields(log.Fields{
		"parameter": name,
		"servers":   len(servers),
	}).Debug("Loaded server inventory from SSM")
	return servers, nil
}

// ParseTagFilter splits a "key=value" filter. A bare key matches any value.
func ParseTagFilter(filter string) (string, []string, error) {
	key, value, found := strings.Cut(strings.TrimSpace(filter), "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil, fmt.Errorf("%w: empty tag key in %q", zerrors.ErrInvalidParameters, filter)
	}
	if !found || strings.TrimSpace(value) == "" {
		return key, nil, nil
	}
	return key, []string{strings.TrimSpace(value)}, nil
}

// DiscoverTaggedBuckets finds S3 buckets carrying the given tag and returns
// them as a server map keyed by bucket name.
func DiscoverTaggedBuckets(ctx context.Context, client resourcegroupstaggingapi.GetResourcesAPIClient, filter string) (map[string]string, error) {
	key, values, err := ParseTagFilter(filter)
	if err != nil {
		return nil, err
	}

	input := &resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: []string{"s3"},
		TagFilters: []taggingtypes.TagFilter{
			{Key: aws.String(key), Values: values},
		},
	}

	servers := make(map[string]string)
	paginator := resourcegroupstaggingapi.NewGetResourcesPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, zerrors.FetchingResourceError("tagged buckets", err)
		}
		for _, mapping := range page.ResourceTagMappingList {
			bucket, ok := bucketFromARN(aws.ToString(mapping.ResourceARN))
			if !ok {
				continue
			}
			servers[bucket] = "s3://" + bucket
		}
	}

	log.WithFields(log.Fields{
		"tag":     filter,
		"buckets": len(servers),
	}).Debug("Discovered tagged buckets")
	return servers, nil
}

// bucketFromARN extracts the bucket from arn:aws:s3:::bucket. Object ARNs are
// skipped.
func bucketFromARN(resourceARN string) (string, bool) {
	parsed, err := arn.Parse(resourceARN)
	if err != nil || parsed.Service != "s3" {
		return "", false
	}
	if parsed.Resource == "" || strings.Contains(parsed.Resource, "/") {
		return "", false
	}
	return parsed.Resource, true
}

// SortedServerIDs returns the ids of a server map in stable order so that
// registration, and therefore placement, is reproducible.
func SortedServerIDs(servers map[string]string) []string {
	ids := make([]string, 0, len(servers))
	for id := range servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
