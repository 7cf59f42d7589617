package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/AndreOrlov/cozytime-bridge/internal/config"
	"github.com/AndreOrlov/cozytime-bridge/internal/cozytime"
	"github.com/AndreOrlov/cozytime-bridge/internal/metrics"
	"github.com/AndreOrlov/cozytime-bridge/internal/readings"
)

// Deps are the collaborators served over HTTP. Metrics may be nil.
type Deps struct {
	DB       *sql.DB
	Decoder  *cozytime.Decoder
	Readings readings.Repository
	Metrics  *metrics.Metrics
}

func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, d.DB)
	registerReadings(mux, d.Decoder, d.Readings)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}
	return mux
}

// NewServer wraps handler with request logging.
func NewServer(cfg config.Config, handler http.Handler, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(logger, handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
