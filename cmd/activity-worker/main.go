package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/group-acca-poc/internal/activity-worker/consumer"
	"github.com/radieske/group-acca-poc/internal/activity-worker/feed"
	"github.com/radieske/group-acca-poc/internal/activity-worker/pubsub"
	sharedcache "github.com/radieske/group-acca-poc/internal/shared/cache"
	"github.com/radieske/group-acca-poc/internal/shared/config"
	"github.com/radieske/group-acca-poc/internal/shared/db"
	sharedkafka "github.com/radieske/group-acca-poc/internal/shared/kafka"
	"github.com/radieske/group-acca-poc/internal/shared/logger"
	"github.com/radieske/group-acca-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Consumer Kafka (consumer group activity-feed)
	reader := sharedkafka.NewReader(cfg.KafkaBrokers, cfg.TopicRoundEvents, "activity-feed")
	defer reader.Close()

	// DLQ para mensagens que não decodificam
	var dlqWriter *sharedkafka.Writer
	if cfg.TopicRoundEventsDLQ != "" {
		dlqWriter = sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundEventsDLQ)
		defer dlqWriter.Close()
	}

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "activity_events_consumed_total", Help: "eventos consumidos"})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{Name: "activity_events_persisted_total", Help: "entradas de feed gravadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "activity_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, persisted, errorsBy)

	proc := &consumer.Processor{
		Log:     log,
		Reader:  reader,
		Store:   feed.NewPostgres(pg),
		Bcast:   pubsub.NewRedisBroadcaster(redisClient),
		Channel: cfg.RedisPubSubChannel,

		OnConsumed: func() { consumed.Inc() },
		OnPersist:  func() { persisted.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}
	if dlqWriter != nil {
		proc.DLQ = dlqWriter
	}

	// Servidor HTTP para métricas e health check
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	})
	log.Info("metrics/health listening", zap.String("addr", ":"+cfg.MetricsPort))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("activity-worker started", zap.String("consume", cfg.TopicRoundEvents))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("activity-worker stopped")
}
