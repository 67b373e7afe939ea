package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	ahttp "github.com/radieske/group-acca-poc/internal/acca-service/http"
	kpub "github.com/radieske/group-acca-poc/internal/acca-service/producer"
	"github.com/radieske/group-acca-poc/internal/acca-service/rankcache"
	"github.com/radieske/group-acca-poc/internal/acca-service/repo"
	sharedcache "github.com/radieske/group-acca-poc/internal/shared/cache"
	"github.com/radieske/group-acca-poc/internal/shared/config"
	"github.com/radieske/group-acca-poc/internal/shared/db"
	sharedkafka "github.com/radieske/group-acca-poc/internal/shared/kafka"
	"github.com/radieske/group-acca-poc/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis (cache de ranking)
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topico round_events)
	writer := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundEvents)
	defer writer.Close()

	// deps
	repository := repo.NewPostgres(pg)
	rank := rankcache.New(rdb, time.Duration(cfg.RankingCacheTTLSec)*time.Second)
	publ := kpub.NewKafkaPublisher(writer)

	// Métricas Prometheus
	votesToggled := prometheus.NewCounter(prometheus.CounterOpts{Name: "acca_votes_toggled_total", Help: "toggles de voto aplicados"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "acca_round_transitions_total", Help: "transições de fase por tipo"}, []string{"type"})
	prometheus.MustRegister(votesToggled, transitions)

	// HTTP público
	api := ahttp.NewServer(log, repository, publ, rank)
	api.OnVoteToggled = func() { votesToggled.Inc() }
	api.OnTransition = func(t string) { transitions.WithLabelValues(t).Inc() }

	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.PingContext(r.Context()); err != nil {
			http.Error(w, "pg", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() {
		addr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("metrics/health", zap.String("addr", addr))
		_ = http.ListenAndServe(addr, metricsMux)
	}()

	log.Info("acca-service listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
