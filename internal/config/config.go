package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	zerrors "github.com/zzenonn/zstream/internal/errors"
)

// Config holds the application configuration
type Config struct {
	LogLevel string
	// AwsConfig: AWS SDK uses a shared configuration object that contains
	// credentials, region, retry policies, etc. S3, DynamoDB, SSM and the
	// tagging API are all created from this single config.
	AwsConfig aws.Config
	// GcsClient is created on demand by NewGCSClient once a gs:// server is
	// known. It stays nil otherwise.
	GcsClient *storage.Client

	ChunkTable   string
	QualityTable string
	QualityArea  string

	// Servers maps server id to location URI (s3://, gs://, http(s)://, file://, mem://)
	Servers          map[string]string
	ServersParameter string
	DiscoveryTag     string

	Policy          string
	FragmentsNeeded int
	QueueThreshold  float64
	TradeoffWeight  float64
	Reward          string
	FetchTimeout    time.Duration

	CacheSize int
	CacheTTL  time.Duration

	DataShards   int
	ParityShards int

	ListenAddr string
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	if err := setupViper(configPath, rootCmd); err != nil {
		return nil, err
	}

	awsConfig, err := loadAWSConfig()
	if err != nil {
		return nil, err
	}

	cfg := fromViper()
	cfg.AwsConfig = awsConfig

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fromViper reads every key except the cloud clients.
func fromViper() *Config {
	return &Config{
		LogLevel:         viper.GetString("log_level"),
		ChunkTable:       viper.GetString("chunk_table"),
		QualityTable:     viper.GetString("quality_table"),
		QualityArea:      viper.GetString("quality_area"),
		Servers:          parseServers(),
		ServersParameter: viper.GetString("servers_parameter"),
		DiscoveryTag:     viper.GetString("discovery_tag"),
		Policy:           strings.ToLower(viper.GetString("policy")),
		FragmentsNeeded:  viper.GetInt("fragments_needed"),
		QueueThreshold:   viper.GetFloat64("queue_threshold"),
		TradeoffWeight:   viper.GetFloat64("tradeoff_weight"),
		Reward:           strings.ToLower(viper.GetString("reward")),
		FetchTimeout:     viper.GetDuration("fetch_timeout"),
		CacheSize:        viper.GetInt("cache_size"),
		CacheTTL:         viper.GetDuration("cache_ttl"),
		DataShards:       viper.GetInt("data_shards"),
		ParityShards:     viper.GetInt("parity_shards"),
		ListenAddr:       viper.GetString("listen_addr"),
	}
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.ChunkTable == "" {
		return zerrors.ConfigNotSetError("chunk_table")
	}
	if c.QualityTable == "" {
		return zerrors.ConfigNotSetError("quality_table")
	}
	switch c.Policy {
	case "latency", "deadline":
	default:
		return fmt.Errorf("%w: policy must be latency or deadline, got %q", zerrors.ErrInvalidParameters, c.Policy)
	}
	if c.FragmentsNeeded < 1 {
		return fmt.Errorf("%w: fragments_needed must be at least 1", zerrors.ErrInvalidParameters)
	}
	if c.QueueThreshold < 0 || c.TradeoffWeight < 0 {
		return fmt.Errorf("%w: queue_threshold and tradeoff_weight must be non-negative", zerrors.ErrInvalidParameters)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch_timeout must be positive", zerrors.ErrInvalidParameters)
	}
	if c.DataShards < 1 || c.ParityShards < 0 {
		return fmt.Errorf("%w: data_shards must be at least 1 and parity_shards non-negative", zerrors.ErrInvalidParameters)
	}
	return nil
}

// setupViper configures Viper with defaults, paths, and bindings
func setupViper(configPath string, rootCmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	viper.AutomaticEnv()

	if rootCmd != nil {
		var bindErr error
		rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			// --log-level binds to log_level, and so on
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := viper.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("chunk_table", "chunk_metadata")
	viper.SetDefault("quality_table", "server_quality")
	viper.SetDefault("quality_area", "default")
	viper.SetDefault("policy", "deadline")
	viper.SetDefault("fragments_needed", 4)
	viper.SetDefault("queue_threshold", 5.0)
	viper.SetDefault("tradeoff_weight", 100.0)
	viper.SetDefault("reward", "order-statistic")
	viper.SetDefault("fetch_timeout", time.Second)
	viper.SetDefault("cache_size", 1024)
	viper.SetDefault("cache_ttl", 10*time.Minute)
	viper.SetDefault("data_shards", 4)
	viper.SetDefault("parity_shards", 2)
	viper.SetDefault("listen_addr", ":8080")
}

// loadAWSConfig loads AWS SDK configuration
func loadAWSConfig() (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %v", err)
	}
	return cfg, nil
}

// NewGCSClient loads the Google Cloud Storage client into c.GcsClient if it
// is not set yet.
func (c *Config) NewGCSClient(ctx context.Context) (*storage.Client, error) {
	if c.GcsClient != nil {
		return c.GcsClient, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to create GCS client: %v", err)
	}
	c.GcsClient = client
	return client, nil
}

// NeedsGCS reports whether any server location uses the gs:// scheme.
func NeedsGCS(servers map[string]string) bool {
	for _, uri := range servers {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(uri)), "gs://") {
			return true
		}
	}
	return false
}

// parseServers parses the server map from Viper. Entries may be a plain URI
// or a map with a "uri" key.
func parseServers() map[string]string {
	servers := make(map[string]string)
	raw := viper.GetStringMap("servers")

	for id, value := range raw {
		switch v := value.(type) {
		case string:
			servers[id] = v
		case map[string]interface{}:
			if uri := getString(v, "uri", ""); uri != "" {
				servers[id] = uri
			}
		}
	}

	return servers
}


// getString safely extracts string value from map with default
func getString(m map[string]interface{}, key, defaultValue string) string {
	if value, exists := m[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}
