package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	appcmd "github.com/mikills/mintline/cmd"
	"github.com/mikills/mintline/drop"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
)

func main() {
	logFormat := getenvDefault("MINTLINE_LOG_FORMAT", "text")
	logger := newLogger(logFormat)

	if len(os.Args) < 2 || os.Args[1] != "upload" {
		fmt.Fprintln(os.Stderr, "usage: mintline upload -assets <dir> -cache <name> -env <env> -storage <s3|bundle>")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	assetsDir := fs.String("assets", "", "directory of paired media+manifest files")
	cacheName := fs.String("cache", "", "cache name for this drop")
	env := fs.String("env", "devnet", "environment selector")
	storage := fs.String("storage", "s3", "storage backend: s3 or bundle")
	statusAddr := fs.String("status-addr", "", "optional address for the progress HTTP endpoint")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}
	if *assetsDir == "" || *cacheName == "" {
		fmt.Fprintln(os.Stderr, "upload: -assets and -cache are required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := cacheStoreFromEnv(ctx, logger)
	uploader := uploaderFromEnv(ctx, logger, *storage, *assetsDir)
	chain := chainClientFromEnv(logger)

	opts := []drop.PipelineOption{
		drop.WithLogger(logger),
		drop.WithAuthority(os.Getenv("MINTLINE_AUTHORITY")),
	}
	if lease := leaseManagerFromEnv(logger); lease != nil {
		ttl := getenvDurationDefault(logger, "MINTLINE_LEASE_TTL", 5*time.Minute)
		opts = append(opts, drop.WithRunLease(lease, ttl))
	}

	pipeline := drop.NewPipeline(*env, *cacheName, *assetsDir, uploader, chain, store, opts...)

	if *statusAddr != "" {
		app := appcmd.NewApp(pipeline, appcmd.AppConfig{Address: *statusAddr, Logger: logger})
		if err := app.Start(); err != nil {
			logger.Error("start status app", "error", err)
			os.Exit(1)
		}
		logger.Info("status endpoint listening", "address", app.Address())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = app.Stop(shutdownCtx)
		}()
	}

	report, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
	if report.State != drop.StateDone {
		logger.Warn("run partially failed; re-run the same command to resume",
			"failed_uploads", report.FailedUploads,
			"failed_commits", report.FailedCommits)
		os.Exit(1)
	}
	logger.Info("all assets uploaded and committed",
		"items", report.Progress.Items,
		"committed", report.Progress.Committed)
}

func cacheStoreFromEnv(ctx context.Context, logger *slog.Logger) drop.CacheStore {
	mongoURI := os.Getenv("MINTLINE_CACHE_MONGO_URI")
	if mongoURI == "" {
		return &drop.FileCacheStore{Dir: getenvDefault("MINTLINE_CACHE_DIR", ".cache")}
	}

	db := getenvDefault("MINTLINE_CACHE_MONGO_DB", "mintline")
	coll := getenvDefault("MINTLINE_CACHE_MONGO_COLLECTION", "caches")

	client, err := mongo.Connect(mongooptions.Client().ApplyURI(mongoURI))
	if err != nil {
		logger.Error("mongo connect", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		logger.Error("mongo ping", "error", err)
		os.Exit(1)
	}
	logger.Info("configured mongo cache store", "db", db, "collection", coll)
	return drop.NewMongoCacheStore(client.Database(db).Collection(coll))
}

func uploaderFromEnv(ctx context.Context, logger *slog.Logger, storage, assetsDir string) drop.StorageUploader {
	switch storage {
	case "s3":
		bucket := os.Getenv("MINTLINE_S3_BUCKET")
		if bucket == "" {
			logger.Error("MINTLINE_S3_BUCKET is required for the s3 backend")
			os.Exit(1)
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("load aws config", "error", err)
			os.Exit(1)
		}
		client := drop.NewS3Storage(s3.NewFromConfig(cfg), bucket, os.Getenv("MINTLINE_S3_PREFIX"))
		client.BaseURL = os.Getenv("MINTLINE_S3_BASE_URL")
		logger.Info("configured s3 storage", "bucket", bucket, "prefix", client.Prefix)
		return &drop.PerAssetUploader{
			Dir:       assetsDir,
			Client:    client,
			ChunkSize: getenvIntDefault(logger, "MINTLINE_UPLOAD_CHUNK_SIZE", 50),
			Logger:    logger,
		}
	case "bundle":
		keyFile := os.Getenv("MINTLINE_BUNDLER_KEY_FILE")
		if keyFile == "" {
			logger.Error("MINTLINE_BUNDLER_KEY_FILE is required for the bundle backend")
			os.Exit(1)
		}
		key, err := loadEd25519Key(keyFile)
		if err != nil {
			logger.Error("load bundler key", "error", err)
			os.Exit(1)
		}
		client, err := drop.NewHTTPBundleClient(
			getenvDefault("MINTLINE_BUNDLER_NODE_URL", "https://node1.bundlr.network"),
			os.Getenv("MINTLINE_GATEWAY_URL"),
			key,
		)
		if err != nil {
			logger.Error("configure bundle client", "error", err)
			os.Exit(1)
		}
		logger.Info("configured bundle storage", "node", client.NodeURL, "gateway", client.GatewayURL)
		return &drop.BundledUploader{Dir: assetsDir, Client: client, Logger: logger}
	default:
		logger.Error("unknown storage backend", "storage", storage)
		os.Exit(1)
		return nil
	}
}

func chainClientFromEnv(logger *slog.Logger) drop.ConfigClient {
	client, err := drop.NewHTTPConfigClient(
		getenvDefault("MINTLINE_CHAIN_GATEWAY_URL", "http://127.0.0.1:8899"),
		os.Getenv("MINTLINE_AUTHORITY"),
	)
	if err != nil {
		logger.Error("configure chain gateway", "error", err)
		os.Exit(1)
	}
	return client
}

func leaseManagerFromEnv(logger *slog.Logger) drop.RunLeaseManager {
	addr := os.Getenv("MINTLINE_REDIS_LEASE_ADDR")
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	manager, err := drop.NewRedisRunLeaseManager(client, os.Getenv("MINTLINE_REDIS_LEASE_PREFIX"))
	if err != nil {
		logger.Error("configure redis lease", "error", err)
		os.Exit(1)
	}
	logger.Info("configured redis run lease", "addr", addr)
	return manager
}

// loadEd25519Key reads a hex-encoded 32-byte seed from path.
func loadEd25519Key(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func getenvDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvDurationDefault(logger *slog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("invalid duration env var", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return d
}

func getenvIntDefault(logger *slog.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("invalid integer env var", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return n
}
