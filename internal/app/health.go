package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/AndreOrlov/cozytime-bridge/internal/config"
	"github.com/AndreOrlov/cozytime-bridge/internal/cozytime"
	"github.com/AndreOrlov/cozytime-bridge/internal/types"
)

type stationLister interface {
	Stations() []cozytime.StationSeen
}

// runHealth publishes the health of every known station each HealthInterval.
func runHealth(ctx context.Context, cfg config.Config, stations stationLister, publish func(types.StationHealth) error, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, h := range stationHealth(stations.Stations(), now, cfg.StaleAfter) {
				if err := publish(h); err != nil {
					logger.Debug("station health not published", "station_id", h.StationID, "error", err)
				}
			}
		}
	}
}

// stationHealth marks a station healthy when it was seen within staleAfter.
func stationHealth(seen []cozytime.StationSeen, now time.Time, staleAfter time.Duration) []types.StationHealth {
	out := make([]types.StationHealth, 0, len(seen))
	for _, s := range seen {
		out = append(out, types.StationHealth{
			StationID: s.StationID,
			LastSeen:  s.LastSeen,
			Healthy:   now.Sub(s.LastSeen) <= staleAfter,
		})
	}
	return out
}
