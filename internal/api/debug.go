package api

import (
	"net/http"
	"time"

	"wasteroute/internal/buildinfo"
	"wasteroute/internal/opt"
)

// DebugJSON reports build info, non-secret configuration and the latest optimizer run per algorithm.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	p := s.Optimizer.Params()
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 s.Cfg.Port,
			"RATE_RPS":             s.Cfg.RateRPS,
			"RATE_BURST":           s.Cfg.RateBurst,
			"OPTIMIZER_TIMEOUT":    s.Cfg.OptimizerTimeout.String(),
			"WEBHOOK_MAX_ATTEMPTS": s.Cfg.WebhookMaxAttempts,
			"HAS_DATABASE_URL":     s.Cfg.DatabaseURL != "",
			"HAS_REDIS_URL":        s.Cfg.RedisURL != "",
			"DEPOT":                s.Cfg.Depot,
		},
		"optimizer": map[string]any{
			"urgency_weight":                      p.UrgencyWeight,
			"distance_weight":                     p.DistanceWeight,
			"two_opt_max_passes":                  p.TwoOptMaxPasses,
			"base_collection_minutes":             p.BaseCollectionMinutes,
			"collection_minutes_per_fill_percent": p.CollectionMinutesPerFillPercent,
			"average_speed_kmh":                   p.AverageSpeedKmh,
		},
		"last_runs": opt.LastRuns(),
	}
	writeJSON(w, http.StatusOK, info)
}
