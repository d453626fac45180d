// Command artifactcored runs the artifact mediation core as a standalone
// HTTP service: flag parsing, slog setup, collaborator wiring, and graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nats-io/nats.go"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/taskcluster/artifactcore/api"
	"github.com/taskcluster/artifactcore/authz"
	azurebackend "github.com/taskcluster/artifactcore/backend/azure"
	s3backend "github.com/taskcluster/artifactcore/backend/s3"
	"github.com/taskcluster/artifactcore/config"
	"github.com/taskcluster/artifactcore/monitor"
	"github.com/taskcluster/artifactcore/publisher"
	"github.com/taskcluster/artifactcore/region"
	"github.com/taskcluster/artifactcore/service"
	"github.com/taskcluster/artifactcore/store"
	"github.com/taskcluster/artifactcore/task"
)

var (
	configFile = flag.String("config", "", "Path to artifactcore configuration YAML file")
	addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
	jwtSecret  = flag.String("jwt-secret", "", "HMAC secret validating bearer token scopes claims (or set ARTIFACTCORE_JWT_SECRET)")
)

func main() {
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelInfo,
	}))

	cfg, err := loadConfig(*configFile, logger)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	secret := []byte(*jwtSecret)
	if len(secret) == 0 {
		secret = []byte(os.Getenv("ARTIFACTCORE_JWT_SECRET"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := monitor.New()

	publicBucket, privateBucket, err := buildBuckets(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to configure S3 buckets: %v", err)
	}

	azureContainer, err := buildAzureContainer(cfg)
	if err != nil {
		log.Fatalf("failed to configure Azure container: %v", err)
	}

	artifactStore, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to configure artifact store: %v", err)
	}
	defer closeStore()

	pub, closePublisher, err := buildPublisher(cfg, logger)
	if err != nil {
		log.Fatalf("failed to configure event publisher: %v", err)
	}
	defer closePublisher()

	resolver := region.NewResolver(region.NewTable(toRegionRanges(cfg.Regions)))

	watcher, err := startConfigWatcher(*configFile, resolver, logger)
	if err != nil {
		log.Fatalf("failed to start config watcher: %v", err)
	}
	if watcher != nil {
		defer func() { _ = watcher.Stop() }()
	}

	svc := service.New(service.Config{
		Tasks:           task.NewMemoryReader(),
		Store:           artifactStore,
		Authorizer:      authz.NewScopeAuthorizer(),
		Publisher:       pub,
		Monitor:         mon,
		PublicBucket:    publicBucket,
		PrivateBucket:   privateBucket,
		AzureContainer:  azureContainer,
		CloudMirrorHost: cfg.CloudMirrorHost,
		Logger:          logger,
	})

	handler, stopMiddleware := api.NewRouter(api.Deps{
		Service:  svc,
		Resolver: resolver,
		Monitor:  mon,
		Metrics:  mon.Handler(),
		Logger:   logger,
	}, cfg.RateLimit, secret)
	defer stopMiddleware()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting artifactcore", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	fmt.Printf("artifactcore listening on %s\n", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}

	fmt.Println("shutdown complete")
}

// toRegionRanges adapts the config file's region table entries to the
// region package's own Range type.
func toRegionRanges(ranges []config.RegionRange) []region.Range {
	out := make([]region.Range, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, region.Range{CIDR: r.CIDR, Region: r.Region})
	}
	return out
}

// startConfigWatcher watches the config file named by path for changes and
// hot-swaps the resolver's region table when the regions section changes.
// It returns a nil watcher, doing nothing, when no config file was given
// (there is nothing on disk to watch).
func startConfigWatcher(path string, resolver *region.Resolver, logger *slog.Logger) (*config.ConfigWatcher, error) {
	if path == "" {
		return nil, nil
	}

	source := config.NewFileSource(path)
	watcher := config.NewConfigWatcher(source, func(event config.ConfigChangeEvent) {
		resolver.SetTable(region.NewTable(toRegionRanges(event.Config.Regions)))
		logger.Info("applied reloaded configuration", "source", event.Source, "hash", event.NewHash[:8])
	}, config.WithWatchLogger(logger))

	if err := watcher.Start(); err != nil {
		return nil, err
	}
	return watcher, nil
}

// loadConfig loads cfg from path, or falls back to config.Default() with a
// logged notice when no config file is given — an empty config is a valid
// starting point for local development.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if path == "" {
		logger.Info("no config file specified, using default configuration")
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

func buildBuckets(ctx context.Context, cfg *config.Config) (service.Bucket, service.Bucket, error) {
	if cfg.PublicBucket.Name == "" && cfg.PrivateBucket.Name == "" {
		return nil, nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}

	newClient := func(b config.S3BucketConfig) *s3.Client {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.Region = b.Region
			if b.Endpoint != "" {
				o.BaseEndpoint = &b.Endpoint
				o.UsePathStyle = true
			}
		})
	}

	var publicBucket, privateBucket service.Bucket
	if cfg.PublicBucket.Name != "" {
		opts := bucketOptions(cfg.PublicBucket)
		publicBucket = s3backend.NewBucket(newClient(cfg.PublicBucket), cfg.PublicBucket.Name, cfg.PublicBucket.Region, opts...)
	}
	if cfg.PrivateBucket.Name != "" {
		opts := bucketOptions(cfg.PrivateBucket)
		privateBucket = s3backend.NewBucket(newClient(cfg.PrivateBucket), cfg.PrivateBucket.Name, cfg.PrivateBucket.Region, opts...)
	}
	return publicBucket, privateBucket, nil
}

func bucketOptions(b config.S3BucketConfig) []s3backend.Option {
	var opts []s3backend.Option
	if b.DirectHost != "" {
		opts = append(opts, s3backend.WithDirectHost(b.DirectHost))
	}
	if b.CloudFrontHost != "" {
		opts = append(opts, s3backend.WithCloudFrontHost(b.CloudFrontHost))
	}
	return opts
}

func buildAzureContainer(cfg *config.Config) (service.BlobContainer, error) {
	ac := cfg.AzureContainer
	if ac.Container == "" {
		return nil, nil
	}
	cred, err := azblob.NewSharedKeyCredential(ac.AccountName, ac.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", ac.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return azurebackend.NewContainer(client, ac.Container, cred), nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.ArtifactStore, func(), error) {
	if cfg.DynamoDB == nil || cfg.DynamoDB.Table == "" {
		return store.NewMemoryArtifactStore(), func() {}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)
	return store.NewDynamoDBArtifactStore(client, cfg.DynamoDB.Table), func() {}, nil
}

// noopPublisher is used when no NATS deployment is configured; artifact
// creation still succeeds, it just has nothing to fan events out to.
type noopPublisher struct{}

func (noopPublisher) PublishArtifactCreated(publisher.ArtifactCreatedEvent, []string) error { return nil }

func buildPublisher(cfg *config.Config, logger *slog.Logger) (publisher.Publisher, func(), error) {
	if cfg.NATS == nil || cfg.NATS.URL == "" {
		logger.Info("no NATS configured, artifactCreated events will not be published")
		return noopPublisher{}, func() {}, nil
	}
	conn, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return publisher.New(conn, cfg.NATS.Subject, logger), func() { conn.Close() }, nil
}
