// Package config implements the process configuration layer: YAML-file
// loading with conservative defaults, generalized to the artifact-mediation
// domain's bucket, container, and region settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// S3BucketConfig names one S3-compatible bucket and how to address it.
type S3BucketConfig struct {
	Name           string `yaml:"name"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint,omitempty"`
	DirectHost     string `yaml:"directHost,omitempty"`
	CloudFrontHost string `yaml:"cloudFrontHost,omitempty"`
}

// AzureContainerConfig names the blob container and the account used to
// sign SAS URLs against it.
type AzureContainerConfig struct {
	Container   string `yaml:"container"`
	AccountName string `yaml:"accountName"`
	AccountKey  string `yaml:"accountKey"`
}

// DynamoDBConfig points the Artifact Store at a DynamoDB table, when the
// in-memory store isn't used.
type DynamoDBConfig struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
}

// NATSConfig points the Event Publisher at a NATS deployment.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// RegionRange is one entry of the Region Resolver's CIDR table.
type RegionRange struct {
	CIDR   string `yaml:"cidr"`
	Region string `yaml:"region"`
}

// Config is the artifact-mediation core's full process configuration.
type Config struct {
	ListenAddr      string                 `yaml:"listenAddr"`
	PublicBucket    S3BucketConfig         `yaml:"publicBucket"`
	PrivateBucket   S3BucketConfig         `yaml:"privateBucket"`
	AzureContainer  AzureContainerConfig   `yaml:"azureContainer"`
	CloudMirrorHost string                 `yaml:"cloudMirrorHost"`
	DynamoDB        *DynamoDBConfig        `yaml:"dynamodb,omitempty"`
	NATS            *NATSConfig            `yaml:"nats,omitempty"`
	Regions         []RegionRange          `yaml:"regions"`
	RateLimit       RateLimitConfig        `yaml:"rateLimit"`
}

// RateLimitConfig bounds the per-client request rate at the HTTP layer.
type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanupInterval"`
}

// Default returns a Config with conservative defaults for local
// development against an in-memory store.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			CleanupInterval:   10 * time.Minute,
		},
	}
}

// LoadFromFile loads a Config from a YAML file, starting from Default()
// so unset fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
