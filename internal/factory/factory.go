package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glorisonglotech/omnibiz-sub004/internal/bucketing"
	"github.com/glorisonglotech/omnibiz-sub004/internal/client"
	"github.com/glorisonglotech/omnibiz-sub004/internal/config"
	"github.com/glorisonglotech/omnibiz-sub004/internal/detector"
	"github.com/glorisonglotech/omnibiz-sub004/internal/handler"
	"github.com/glorisonglotech/omnibiz-sub004/internal/middleware"
	"github.com/glorisonglotech/omnibiz-sub004/internal/notifier"
	"github.com/glorisonglotech/omnibiz-sub004/internal/pipeline"
	"github.com/glorisonglotech/omnibiz-sub004/internal/remediation"
	"github.com/glorisonglotech/omnibiz-sub004/internal/repository/events"
	redisrepo "github.com/glorisonglotech/omnibiz-sub004/internal/repository/redis"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	clickhouseClient *client.ClickHouseClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient

	bucketingManager *bucketing.Manager

	// Domain components
	eventStore      events.Store
	blocklistCache  *redisrepo.BlocklistCache
	anomalyDetector *detector.Detector
	engine          *remediation.Engine
	hub             *notifier.Hub
	alertNotifier   *notifier.Notifier
	eventPipeline   *pipeline.Pipeline
	guard           *middleware.Guard
	securityHandler *handler.SecurityHandler

	closeOnce sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{config: cfg}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := factory.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("elasticsearch_enabled", cfg.Elasticsearch.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// ClickHouse holds the event log and is the one dependency the service
	// cannot run without.
	if ch, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = ch
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	// Redis
	if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = rc
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if es, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			util.Warn("Elasticsearch initialization failed - proceeding without indexing", util.ErrorField(err))
		} else {
			f.esClient = es
			if err := f.esClient.HealthCheck(); err != nil {
				util.Warn("Elasticsearch health check failed", util.ErrorField(err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	if f.clickhouseClient == nil {
		return fmt.Errorf("clickhouse client is required")
	}

	return nil
}

// initializeComponents wires the detection pipeline end to end.
func (f *Factory) initializeComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := util.Get()
	secCfg := f.config.Security

	f.bucketingManager = bucketing.NewManager(secCfg.EventBuckets)

	store := events.NewClickHouseStore(f.clickhouseClient, f.bucketingManager, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("failed to ensure event schema: %w", err)
		}
		util.Warn("Failed to ensure event schema", util.ErrorField(err))
	}
	f.eventStore = store

	if f.redisClient != nil {
		f.blocklistCache = redisrepo.NewBlocklistCache(f.redisClient)
	}

	var locker remediation.AccountLocker
	var mirror remediation.StateMirror
	if f.blocklistCache != nil {
		locker = f.blocklistCache
		mirror = f.blocklistCache
	}
	f.engine = remediation.NewEngine(f.eventStore, locker, mirror, secCfg, logger)
	if err := f.engine.RestoreState(ctx); err != nil {
		util.Warn("Failed to restore remediation state", util.ErrorField(err))
	}

	f.anomalyDetector = detector.NewDetector(f.eventStore, secCfg, logger)

	f.hub = notifier.NewHub(logger)

	var alertProducer notifier.AlertProducer
	var eventProducer pipeline.EventProducer
	if f.kafkaProducer != nil {
		alertProducer = f.kafkaProducer
		eventProducer = f.kafkaProducer
	}
	f.alertNotifier = notifier.NewNotifier(f.hub, alertProducer, f.config.Kafka.AlertsTopic, logger)

	var indexer pipeline.EventIndexer
	if f.esClient != nil {
		indexer = f.esClient
	}
	f.eventPipeline = pipeline.New(f.eventStore, f.anomalyDetector, f.engine, f.alertNotifier,
		pipeline.Options{
			Buffer:      secCfg.PipelineBuffer,
			Workers:     secCfg.PipelineWorkers,
			Indexer:     indexer,
			Producer:    eventProducer,
			EventsTopic: f.config.Kafka.EventsTopic,
		}, logger)

	f.guard = middleware.NewGuard(f.engine, f.engine, f.eventStore, f.eventPipeline,
		middleware.GuardOptions{
			MaxBodyScanBytes: secCfg.MaxBodyScanBytes,
			RateLimitWindow:  secCfg.RateLimitDuration,
			SkipPaths:        []string{"/health", "/api/v1/security/ws"},
		}, logger)

	f.securityHandler = handler.NewSecurityHandler(f.eventStore, f.engine, f.alertNotifier, f.hub, logger)

	return nil
}

func (f *Factory) Config() *config.Config                    { return f.config }
func (f *Factory) EventStore() events.Store                  { return f.eventStore }
func (f *Factory) Engine() *remediation.Engine               { return f.engine }
func (f *Factory) Pipeline() *pipeline.Pipeline              { return f.eventPipeline }
func (f *Factory) Guard() *middleware.Guard                  { return f.guard }
func (f *Factory) SecurityHandler() *handler.SecurityHandler { return f.securityHandler }

// HealthCheck reports per-dependency status for the health endpoint.
func (f *Factory) HealthCheck(ctx context.Context) map[string]string {
	statuses := make(map[string]string)

	if f.clickhouseClient != nil {
		statuses["clickhouse"] = healthStatus(f.clickhouseClient.HealthCheck(ctx))
	} else {
		statuses["clickhouse"] = "not initialized"
	}

	if f.redisClient != nil {
		statuses["redis"] = healthStatus(f.redisClient.HealthCheck(ctx))
	} else {
		statuses["redis"] = "not initialized"
	}

	if f.config.Kafka.Enabled {
		if f.kafkaProducer != nil {
			statuses["kafka"] = healthStatus(f.kafkaProducer.HealthCheck(ctx))
		} else {
			statuses["kafka"] = "not initialized"
		}
	} else {
		statuses["kafka"] = "disabled"
	}

	if f.config.Elasticsearch.Enabled {
		if f.esClient != nil {
			statuses["elasticsearch"] = healthStatus(f.esClient.HealthCheck())
		} else {
			statuses["elasticsearch"] = "not initialized"
		}
	} else {
		statuses["elasticsearch"] = "disabled"
	}

	return statuses
}

func healthStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "healthy"
}

// Close shuts dependencies down in reverse dependency order: stop taking
// new work, drain the pipeline, then close the stores and transports.
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		if f.eventPipeline != nil {
			f.eventPipeline.Close()
		}
		if f.hub != nil {
			f.hub.Close()
		}
		if f.kafkaProducer != nil {
			f.kafkaProducer.Close()
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.clickhouseClient != nil {
			f.clickhouseClient.Close()
		}
		if f.redisClient != nil {
			f.redisClient.Close()
		}
		util.Info("Factory closed")
	})
}
