package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"admin-auth-service/internal/audit"
	"admin-auth-service/internal/bucketing"
	"admin-auth-service/internal/client"
	"admin-auth-service/internal/config"
	"admin-auth-service/internal/encryption"
	"admin-auth-service/internal/handler"
	"admin-auth-service/internal/hashing"
	"admin-auth-service/internal/ipallow"
	"admin-auth-service/internal/mfa"
	"admin-auth-service/internal/ratelimit"
	clickhouserepo "admin-auth-service/internal/repository/clickhouse"
	redisrepo "admin-auth-service/internal/repository/redis"
	"admin-auth-service/internal/repository/scylla"
	"admin-auth-service/internal/service"
	"admin-auth-service/internal/session"
	"admin-auth-service/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"golang.org/x/sync/errgroup"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	// Domain components
	allowlist      *ipallow.Allowlist
	limiter        *ratelimit.Limiter
	sessionManager *session.Manager
	mfaEngine      *mfa.Engine
	eventLog       *audit.Logger
	detector       *audit.Detector
	authService    *service.AdminAuthService
	authHandler    *handler.AuthHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	if err := factory.initializeDomain(); err != nil {
		return nil, fmt.Errorf("failed to initialize domain components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("ip_allowlist_active", !factory.allowlist.Empty()),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without alerts", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Elasticsearch
	if f.config.Elastic.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			util.Warn("Elasticsearch initialization failed - proceeding without forensic mirror", util.ErrorField(err))
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized")
		}
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
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

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("Failed to load AWS config - falling back to local key derivation", util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
		}
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	util.Info("Managers initialized successfully",
		util.Bool("kms_backed", kmsClient != nil),
	)
}

// initializeDomain wires the auth pipeline. A malformed IP allowlist pattern
// is a configuration error and fails startup.
func (f *Factory) initializeDomain() error {
	allowlist, err := ipallow.New(f.config.Security.AdminIPAllowlist)
	if err != nil {
		return fmt.Errorf("invalid admin IP allowlist: %w", err)
	}
	f.allowlist = allowlist

	f.limiter = ratelimit.NewLimiter(
		redisrepo.NewRateLimitCache(f.redisClient),
		f.config.Security.LoginRateLimit,
		f.config.Security.LoginRateWindow,
		util.Get(),
	)

	f.sessionManager = session.NewManager(
		redisrepo.NewSessionCache(f.redisClient),
		f.config.Security.SessionTTL,
		util.Get(),
	)

	var indexer audit.Indexer
	if f.esClient != nil {
		indexer = &audit.ESIndexer{Index: func(ctx context.Context, index, id string, doc interface{}) error {
			resp, err := f.esClient.IndexDocument(ctx, index, id, doc)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.IsError() {
				return fmt.Errorf("elasticsearch index returned %s", resp.Status())
			}
			return nil
		}}
	}
	f.eventLog = audit.NewLogger(
		clickhouserepo.NewEventStore(f.clickhouseClient),
		indexer,
		f.bucketingManager,
		util.Get(),
	)

	var notifier audit.Notifier
	if f.kafkaProducer != nil {
		notifier = &audit.KafkaNotifier{
			Produce: func(ctx context.Context, topic string, key, value []byte) error {
				return f.kafkaProducer.ProduceMessage(ctx, topic, key, value, nil)
			},
			Topic: f.config.Kafka.AlertTopic,
		}
	}
	detector, err := audit.NewDetector(
		f.eventLog,
		notifier,
		f.config.Security,
		util.Get(),
	)
	if err != nil {
		return err
	}
	f.detector = detector

	f.mfaEngine = mfa.NewEngine(
		scylla.NewMFAEnrollmentRepository(f.scyllaClient, f.bucketingManager, util.Get()),
		f.encryptionManager,
		f.hasher,
		nil,
		f.eventLog,
		f.config.Security.MFAIssuer,
		f.config.Security.BackupCodeCount,
		util.Get(),
	)

	f.authService = service.NewAdminAuthService(
		service.NewHTTPIdentityProvider(f.config.Security.IdentityProviderURL, f.config.Security.ExternalTimeout),
		f.limiter,
		f.allowlist,
		f.mfaEngine,
		f.sessionManager,
		f.eventLog,
		f.detector,
		f.config.Security.ExternalTimeout,
		util.Get(),
	)

	f.authHandler = handler.NewAuthHandler(f.authService, f.mfaEngine, f.eventLog, f.config, util.Get())
	return nil
}

// HealthCheck probes every dependency in parallel.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		if err != nil {
			mu.Lock()
			healthErrors[name] = err
			mu.Unlock()
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if f.redisClient == nil {
			record("redis", fmt.Errorf("redis client not initialized"))
			return nil
		}
		record("redis", f.redisClient.HealthCheck(ctx))
		return nil
	})
	g.Go(func() error {
		if f.scyllaClient == nil {
			record("scylla", fmt.Errorf("scylla client not initialized"))
			return nil
		}
		record("scylla", f.scyllaClient.HealthCheck())
		return nil
	})
	g.Go(func() error {
		if f.clickhouseClient == nil {
			record("clickhouse", fmt.Errorf("clickhouse client not initialized"))
			return nil
		}
		record("clickhouse", f.clickhouseClient.HealthCheck(ctx))
		return nil
	})
	g.Go(func() error {
		if f.esClient != nil {
			record("elasticsearch", f.esClient.HealthCheck())
		}
		return nil
	})
	g.Go(func() error {
		if f.kafkaProducer != nil {
			record("kafka", f.kafkaProducer.HealthCheck(ctx))
		}
		return nil
	})

	g.Wait()
	return healthErrors
}

// IsHealthy reports overall health. Kafka and Elasticsearch are best-effort
// dependencies and do not gate readiness.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	return len(healthErrors) == 0
}

// HTTPHealth adapts the factory's health probes for the health endpoint.
func (f *Factory) HTTPHealth() handler.HealthChecker {
	return httpHealth{f: f}
}

type httpHealth struct {
	f *Factory
}

func (h httpHealth) HealthCheck() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	healthErrors := h.f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")

	out := make(map[string]string, len(healthErrors))
	for name, err := range healthErrors {
		out[name] = err.Error()
	}
	return out
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) AuthHandler() *handler.AuthHandler {
	return f.authHandler
}

func (f *Factory) AuthService() *service.AdminAuthService {
	return f.authService
}

func (f *Factory) EventLog() *audit.Logger {
	return f.eventLog
}
