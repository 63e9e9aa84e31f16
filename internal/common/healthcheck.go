package common

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/khanghh/koauth/params"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// NewHealthCheckHandler serves /livez and /readyz. rdb may be nil when no
// redis backend is configured.
func NewHealthCheckHandler(rdb redis.UniversalClient, db *gorm.DB) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := db.DB()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		if err := sqlDB.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		if rdb != nil {
			if _, err := rdb.Ping(r.Context()).Result(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func StartHealthCheckServer(ctx context.Context, done chan struct{}, rdb redis.UniversalClient, db *gorm.DB) {
	defer close(done)
	server := &http.Server{
		Addr:    params.HealthCheckServerAddr,
		Handler: NewHealthCheckHandler(rdb, db),
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		server.Shutdown(context.Background())
	case err := <-serverErr:
		slog.Error("Health check server stopped", "error", err)
	}
}
