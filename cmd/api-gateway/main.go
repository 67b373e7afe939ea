package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/radieske/group-acca-poc/internal/shared/config"
	"github.com/radieske/group-acca-poc/internal/shared/logger"
)

func rp(to string) *httputil.ReverseProxy {
	u, _ := url.Parse(to)
	return httputil.NewSingleHostReverseProxy(u)
}

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// targets
	accaURL := os.Getenv("ACCA_URL")
	if accaURL == "" {
		accaURL = "http://localhost:8084"
	}
	acca := rp(accaURL)

	mux := http.NewServeMux()

	// rounds e votos (ex.: /api/rounds/* -> acca-service)
	mux.Handle("/api/rounds", http.StripPrefix("/api", acca))
	mux.Handle("/api/rounds/", http.StripPrefix("/api", acca))
	mux.Handle("/api/submissions/", http.StripPrefix("/api", acca))

	addr := ":" + cfg.HTTPPort
	log.Info("api-gateway listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, withCORS(mux)); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
