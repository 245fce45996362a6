package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/heartrisk/pkg/common/config"
	"github.com/synaptica-ai/heartrisk/pkg/common/database"
	"github.com/synaptica-ai/heartrisk/pkg/common/kafka"
	"github.com/synaptica-ai/heartrisk/pkg/common/logger"
	"github.com/synaptica-ai/heartrisk/pkg/gateway/middleware"
	"github.com/synaptica-ai/heartrisk/pkg/ingestion"
	"github.com/synaptica-ai/heartrisk/pkg/observability/metrics"
	"github.com/synaptica-ai/heartrisk/pkg/serving"
	"github.com/synaptica-ai/heartrisk/pkg/serving/explain"
	"github.com/synaptica-ai/heartrisk/pkg/serving/inference"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
	"github.com/synaptica-ai/heartrisk/pkg/serving/pipeline"
	"github.com/synaptica-ai/heartrisk/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel)
	metrics.Init()

	classifier, err := model.Load(cfg.ModelArtifactPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load model artifact")
	}

	attribution := explain.New(classifier, cfg.AttributionMethod)
	if err := attribution.Err(); err != nil {
		logger.Log.WithError(err).Warn("Attribution unavailable; predictions will fail until the method is changed")
	}
	info := serving.DescribeModel(classifier, attribution)
	logger.Log.WithFields(map[string]interface{}{
		"path":      cfg.ModelArtifactPath,
		"algorithm": info.Algorithm,
		"features":  info.FeatureNames,
		"method":    info.AttributionMethod,
	}).Info("Model loaded")

	validator := ingestion.NewValidator(nil)
	riskPipeline := pipeline.New(classifier, inference.New(classifier), attribution)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var records serving.RecordSource
	if cfg.FeatureStoreEnabled {
		db, err := database.GetPostgres(cfg)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to database")
		}
		defer database.ClosePostgres()

		snapshots := storage.NewSnapshotRepository(db)
		if err := snapshots.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate snapshot tables")
		}
		redisClient := database.GetRedis(cfg)
		defer database.CloseRedis()

		store := storage.NewFeatureStore(redisClient, snapshots, cfg.FeatureOnlinePrefix, cfg.FeatureStoreCacheTTL)
		records = store

		if cfg.FeatureStoreRetention > 0 {
			go func() {
				ticker := time.NewTicker(12 * time.Hour)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						if _, err := store.Prune(ctx, cfg.FeatureStoreRetention); err != nil {
							logger.Log.WithError(err).Warn("Snapshot retention sweep failed")
						}
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	assessor := serving.NewAssessor(validator, riskPipeline)

	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaResultTopic)
		defer producer.Close()
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaRequestTopic, cfg.KafkaGroupID)
		defer consumer.Close()

		processor := serving.NewEventProcessor(assessor, producer)
		go func() {
			logger.Log.WithField("topic", cfg.KafkaRequestTopic).Info("Consuming assessment requests")
			if err := consumer.Consume(ctx, processor.Handle); err != nil && ctx.Err() == nil {
				logger.Log.WithError(err).Error("Assessment consumer stopped")
			}
		}()
	}

	router := mux.NewRouter()
	router.Use(
		middleware.Logging,
		middleware.Recovery,
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		middleware.BodyLimit(cfg.MaxRequestBody),
	)
	serving.NewHTTPHandler(assessor, validator, records, info).Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      middleware.CORS(router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Serving Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Serving Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Serving Service stopped")
}
