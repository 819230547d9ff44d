package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"update-user-service/internal/config"
	"update-user-service/internal/domain"
	"update-user-service/internal/events"
	apphttp "update-user-service/internal/http"
	"update-user-service/internal/metrics"
	"update-user-service/internal/repository"
	"update-user-service/internal/repository/dynamo"
	"update-user-service/internal/repository/sqlite"
	"update-user-service/internal/secrets"
	"update-user-service/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		logger.Warnf("unknown log level %q, keeping %s", cfg.Log.Level, logger.GetLevel())
	} else {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, closeStore, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.New(registry)
	if err != nil {
		logger.Fatalf("setup metrics: %v", err)
	}

	broker := events.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.Queue, logger)
	if err := broker.Connect(ctx); err != nil {
		logger.Warnf("broker unavailable, events disabled: %v", err)
	}
	defer broker.Close()

	dispatcher := events.NewDispatcher(events.DispatcherConfig{
		Buffer:         cfg.Events.Buffer,
		PublishTimeout: cfg.Events.PublishTimeout,
		Logger:         logger,
		Metrics:        recorder,
	}, broker)
	dispatcher.Start(ctx)

	userService := service.NewUserService(users, dispatcher, logger, recorder)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(userService, logger, recorder, registry)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("update user service listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	dispatcher.Shutdown()

	logger.Info("bye")
}

func buildRepository(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.UserRepository, func(), error) {
	if cfg.Database.Driver == "sqlite" {
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		repo := sqlite.NewUserRepository(db)
		if err := repo.Init(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init user repository: %w", err)
		}
		logger.Infof("using sqlite users store at %s", cfg.Database.Path)
		return repo, func() { db.Close() }, nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Secrets.Enabled {
		provider := secrets.NewLambdaProvider(lambda.NewFromConfig(awsCfg), cfg.Secrets.Function)
		bundle, err := provider.Fetch(ctx)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("resolved storage credentials from %s", cfg.Secrets.Function)

		awsCfg, err = loadAWSConfig(ctx, cfg, &bundle)
		if err != nil {
			return nil, nil, err
		}
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
	logger.Infof("using dynamodb table %s (region %s)", cfg.Database.Table, cfg.AWS.Region)
	return dynamo.NewUserRepository(client, cfg.Database.Table), func() {}, nil
}

// loadAWSConfig builds the SDK config. With a secrets bundle the storage
// client authenticates with those static keys instead of the default chain.
func loadAWSConfig(ctx context.Context, cfg config.Config, bundle *domain.Secrets) (aws.Config, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	if bundle != nil {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(bundle.AccessKeyID, bundle.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}
