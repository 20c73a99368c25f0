// Package config loads service settings from the environment, an optional .env
// file and an optional optimizer tuning YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"

	"wasteroute/internal/geo"
	"wasteroute/internal/opt"
)

// Config is the resolved service configuration.
type Config struct {
	Port               string
	DatabaseURL        string
	DBMigrate          bool
	RedisURL           string
	RateRPS            float64
	RateBurst          int
	OptimizerTimeout   time.Duration
	WebhookMaxAttempts int
	LogLevel           string
	LogFormat          string
	OptimizerConfig    string

	// Depot is the fallback route start when neither an explicit start nor a crew
	// location is known. Nil means the first bin is used.
	Depot     *geo.Point
	Optimizer opt.Params
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:               "8080",
		DBMigrate:          true,
		RateRPS:            10,
		RateBurst:          20,
		OptimizerTimeout:   2 * time.Second,
		WebhookMaxAttempts: 10,
		LogLevel:           "info",
		LogFormat:          "text",
		Optimizer:          opt.DefaultParams(),
	}
}

// Load reads .env (if present), then the process environment, then the tuning
// file named by OPTIMIZER_CONFIG.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Values from the environment win over the
// depot in the tuning file.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Defaults()
	var errs []error

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		c.Port = v
	}
	c.DatabaseURL = strings.TrimSpace(getenv("DATABASE_URL"))
	c.RedisURL = strings.TrimSpace(getenv("REDIS_URL"))
	if v := getenv("DB_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DB_MIGRATE: %w", err))
		}
		c.DBMigrate = b
	}
	if v := getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			errs = append(errs, fmt.Errorf("RATE_RPS: want a positive number, got %q", v))
		} else {
			c.RateRPS = f
		}
	}
	if v := getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("RATE_BURST: want a positive integer, got %q", v))
		} else {
			c.RateBurst = n
		}
	}
	if v := getenv("OPTIMIZER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("OPTIMIZER_TIMEOUT: want a positive duration, got %q", v))
		} else {
			c.OptimizerTimeout = d
		}
	}
	if v := getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: want a positive integer, got %q", v))
		} else {
			c.WebhookMaxAttempts = n
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}

	c.OptimizerConfig = strings.TrimSpace(getenv("OPTIMIZER_CONFIG"))
	if c.OptimizerConfig != "" {
		depot, err := LoadTuning(c.OptimizerConfig, &c.Optimizer)
		if err != nil {
			errs = append(errs, err)
		}
		c.Depot = depot
	}

	lat, lng := getenv("DEPOT_LAT"), getenv("DEPOT_LNG")
	if lat != "" || lng != "" {
		p, err := parseDepot(lat, lng)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.Depot = &p
		}
	}

	if err := c.Optimizer.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

func parseDepot(lat, lng string) (geo.Point, error) {
	if lat == "" || lng == "" {
		return geo.Point{}, errors.New("DEPOT_LAT and DEPOT_LNG must be set together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("DEPOT_LAT: %w", err)
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("DEPOT_LNG: %w", err)
	}
	p, err := geo.NewPoint(la, ln)
	if err != nil {
		return geo.Point{}, fmt.Errorf("depot: %w", err)
	}
	return p, nil
}

// tuningFile mirrors the optimizer YAML. Pointer fields distinguish a missing
// key from an explicit zero.
type tuningFile struct {
	Hybrid struct {
		UrgencyWeight  *float64 `yaml:"urgency_weight"`
		DistanceWeight *float64 `yaml:"distance_weight"`
	} `yaml:"hybrid"`
	TwoOpt struct {
		MaxPasses *int `yaml:"max_passes"`
	} `yaml:"two_opt"`
	Builder struct {
		BaseCollectionMinutes           *float64 `yaml:"base_collection_minutes"`
		CollectionMinutesPerFillPercent *float64 `yaml:"collection_minutes_per_fill_percent"`
		AverageSpeedKmh                 *float64 `yaml:"average_speed_kmh"`
	} `yaml:"builder"`
	Depot *struct {
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
	} `yaml:"depot"`
}

// LoadTuning overlays the YAML file at path onto p and returns the depot it
// names, if any.
func LoadTuning(path string, p *opt.Params) (*geo.Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("optimizer config: %w", err)
	}
	return ParseTuning(data, p)
}

// ParseTuning is LoadTuning on raw YAML bytes.
func ParseTuning(data []byte, p *opt.Params) (*geo.Point, error) {
	var f tuningFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("optimizer config: %w", err)
	}
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.UrgencyWeight, f.Hybrid.UrgencyWeight)
	set(&p.DistanceWeight, f.Hybrid.DistanceWeight)
	set(&p.BaseCollectionMinutes, f.Builder.BaseCollectionMinutes)
	set(&p.CollectionMinutesPerFillPercent, f.Builder.CollectionMinutesPerFillPercent)
	set(&p.AverageSpeedKmh, f.Builder.AverageSpeedKmh)
	if f.TwoOpt.MaxPasses != nil {
		p.TwoOptMaxPasses = *f.TwoOpt.MaxPasses
	}
	if f.Depot == nil {
		return nil, nil
	}
	d, err := geo.NewPoint(f.Depot.Latitude, f.Depot.Longitude)
	if err != nil {
		return nil, fmt.Errorf("optimizer config depot: %w", err)
	}
	return &d, nil
}

// SetupLogging configures the standard logrus logger. Unknown levels fall back
// to info with a warning.
func SetupLogging(level, format string) {
	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.WithField("level", level).Warn("unknown LOG_LEVEL, using info")
		return
	}
	log.SetLevel(lvl)
}
