// Package app 提供策略服务的应用入口
//
// ## 依赖
// - PostgreSQL: 策略、交易、审批记录与审计日志
// - Redis: 可选，启用策略快照缓存与分布式锁
// - Kafka: 可选，发布策略/交易事件，消费执行结果
//
// ## Kafka 主题
// - 生产: policy-events, transaction-events
// - 消费: transfer-executions (执行方回写链上哈希或失败原因)
//
// ## 端口
// - HTTP: 管理与审批接口 /policy/v1, /health, /metrics
// - gRPC: 健康检查
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/cache"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/config"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/directory"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/handler"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/kafka"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/lock"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/repository"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/router"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/rules"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/service"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

// App 策略服务应用
type App struct {
	cfg *config.Config

	// 基础设施
	db          *gorm.DB
	redisClient redis.UniversalClient
	grpcServer  *grpc.Server
	httpServer  *http.Server

	// Kafka
	kafkaProducer *kafka.EventProducer
	kafkaConsumer *kafka.ExecutionConsumer

	// 服务层
	auditSvc       *service.AuditService
	policySvc      *service.PolicyService
	changeSvc      *service.ChangeApprovalService
	transactionSvc *service.TransactionService
	decisionSvc    *service.DecisionService

	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建应用实例
func New(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run 启动应用
func (a *App) Run() error {
	// 1. 初始化数据库
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 2. 初始化 Redis
	if err := a.initRedis(); err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	// 3. 初始化 Kafka，失败时不发布事件
	if err := a.initKafka(); err != nil {
		logger.Warn("failed to init kafka, running without kafka", zap.Error(err))
	}

	// 4. 初始化服务层
	a.initServices()

	// 5. 启动执行结果消费者
	a.startConsumer()

	// 6. 启动 gRPC 与 HTTP
	if err := a.startGRPC(); err != nil {
		return fmt.Errorf("failed to start gRPC: %w", err)
	}
	a.startHTTPServer()

	return nil
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down policy service...")

	// 关闭顺序：服务端 -> 消息队列 -> 数据库 -> 缓存
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}
	}

	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}

	if a.kafkaConsumer != nil {
		if err := a.kafkaConsumer.Stop(); err != nil {
			logger.Warn("stop kafka consumer failed", zap.Error(err))
		}
	}

	if a.kafkaProducer != nil {
		if err := a.kafkaProducer.Close(); err != nil {
			logger.Warn("close kafka producer failed", zap.Error(err))
		}
	}

	if a.db != nil {
		if sqlDB, _ := a.db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
	}

	if a.redisClient != nil {
		a.redisClient.Close()
	}

	a.cancel()
	logger.Info("policy service stopped")
	return nil
}

// initDB 初始化数据库并执行迁移
func (a *App) initDB() error {
	pg := &a.cfg.Postgres
	db, err := gorm.Open(postgres.Open(pg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(pg.MaxConnections)
	sqlDB.SetMaxIdleConns(pg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pg.ConnMaxLifetimeMinutes) * time.Minute)

	a.db = db

	if pg.AutoMigrate {
		if err := AutoMigrate(a.db, a.cfg.Service.Name); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		logger.Info("database migrated")
	}
	return nil
}

// initRedis 初始化 Redis，未启用时跳过
func (a *App) initRedis() error {
	if !a.cfg.Redis.Enabled {
		logger.Info("redis disabled")
		return nil
	}

	a.redisClient = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr(),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return a.redisClient.Ping(ctx).Err()
}

// initKafka 初始化 Kafka 生产者
func (a *App) initKafka() error {
	if !a.cfg.Kafka.Enabled {
		logger.Info("kafka disabled")
		return nil
	}

	producer, err := kafka.NewEventProducer(&kafka.ProducerConfig{
		Brokers:  a.cfg.Kafka.Brokers,
		ClientID: a.cfg.Kafka.ClientID,
	})
	if err != nil {
		return err
	}
	a.kafkaProducer = producer

	logger.Info("kafka producer initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return nil
}

// newLocker 按配置选择锁后端
func (a *App) newLocker() lock.Locker {
	policyCfg := &a.cfg.Policy
	if policyCfg.LockBackend == config.LockBackendRedis && a.redisClient != nil {
		return lock.NewRedisLocker(a.redisClient, "policy", policyCfg.LockExpiration(), policyCfg.LockTimeout())
	}
	return lock.NewMemoryLocker(policyCfg.LockTimeout())
}

// initServices 初始化服务层
func (a *App) initServices() {
	// 仓储层
	policyRepo := repository.NewPolicyRepository(a.db)
	txRepo := repository.NewTransactionRepository(a.db)
	auditRepo := repository.NewAuditLogRepository(a.db)

	dir := directory.NewStaticDirectory(a.cfg.Directory.Users, a.cfg.Directory.Wallets)
	locker := a.newLocker()

	// 快照缓存，未启用 Redis 或 TTL 为 0 时直接读库
	var (
		activeCache service.ActivePolicyCache
		invalidator service.CacheInvalidator
		cacheTTL    time.Duration
	)
	if a.redisClient != nil && a.cfg.Policy.CacheTTL() > 0 {
		policyCache := cache.NewPolicyCache(a.redisClient, a.cfg.Policy.CacheTTL())
		activeCache = policyCache
		invalidator = policyCache
		cacheTTL = policyCache.TTL()
	}

	a.auditSvc = service.NewAuditService(auditRepo)
	a.policySvc = service.NewPolicyService(policyRepo, a.auditSvc, locker, dir, invalidator)
	a.changeSvc = service.NewChangeApprovalService(policyRepo, a.auditSvc, locker, dir, invalidator)
	a.transactionSvc = service.NewTransactionService(txRepo, policyRepo, a.auditSvc, locker, dir)
	a.decisionSvc = service.NewDecisionService(policyRepo, rules.NewEngine(), activeCache, dir)

	// 设置 Kafka 回调
	if a.kafkaProducer != nil {
		callback := a.kafkaProducer.EventCallback()
		a.policySvc.SetOnEvent(callback)
		a.changeSvc.SetOnEvent(callback)
		a.transactionSvc.SetOnEvent(callback)
	}

	logger.Info("services initialized",
		zap.String("lock_backend", a.cfg.Policy.LockBackend),
		zap.Bool("policy_cache", activeCache != nil),
		zap.Duration("policy_cache_ttl", cacheTTL),
		zap.Int("directory_users", len(a.cfg.Directory.Users)))
}

// startConsumer 启动执行结果消费者
func (a *App) startConsumer() {
	if !a.cfg.Kafka.Enabled {
		return
	}

	consumer, err := kafka.NewExecutionConsumer(&kafka.ConsumerConfig{
		Brokers: a.cfg.Kafka.Brokers,
		GroupID: a.cfg.Kafka.GroupID,
	}, a.transactionSvc)
	if err != nil {
		logger.Error("create kafka consumer failed", zap.Error(err))
		return
	}
	a.kafkaConsumer = consumer

	go func() {
		if err := consumer.Start(a.ctx); err != nil {
			logger.Error("kafka consumer error", zap.Error(err))
		}
	}()
}

// startGRPC 启动 gRPC 健康检查服务
func (a *App) startGRPC() error {
	addr := fmt.Sprintf(":%d", a.cfg.Service.GRPCPort)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	a.grpcServer = grpc.NewServer()

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, healthServer)
	healthServer.SetServingStatus(a.cfg.Service.Name, grpc_health_v1.HealthCheckResponse_SERVING)

	logger.Info("starting gRPC server",
		zap.String("addr", addr),
		zap.String("service", a.cfg.Service.Name))

	go func() {
		if err := a.grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	return nil
}

// startHTTPServer 启动 HTTP 服务
func (a *App) startHTTPServer() {
	engine := router.NewEngine(&router.Handlers{
		Policy:      handler.NewPolicyHandler(a.policySvc, a.changeSvc),
		Transaction: handler.NewTransactionHandler(a.decisionSvc, a.transactionSvc),
		Audit:       handler.NewAuditHandler(a.auditSvc),
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()
}

// GetConfig 获取配置
func (a *App) GetConfig() *config.Config {
	return a.cfg
}
