package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/footprint"
	"github.com/couchcryptid/storm-footprint/internal/grid"
	"github.com/couchcryptid/storm-footprint/internal/selection"
	"github.com/couchcryptid/storm-footprint/internal/windfield"
)

const defaultRegionPath = "data/region.geojson"

// Config holds all run settings, populated from environment variables.
type Config struct {
	TracksPath        string
	IntensityBinsPath string
	DamageBinsPath    string
	VulnerabilityPath string

	// RegionPath is a GeoJSON boundary. It supplies the selection centroid
	// unless RegionCentroid is set, and the grid extent unless Extent is set.
	// When unset it defaults to data/region.geojson, unless both are set.
	RegionPath     string
	RegionCentroid *domain.Point
	Extent         *grid.Extent
	CellHeight     float64
	CellWidth      float64
	CRS            string
	Buffer         float64

	Selection    selection.Criteria
	Estimator    windfield.RmaxEstimator
	OverrideRmax bool
	Footprint    footprint.Options

	OutputDir    string
	PerilID      string
	CoverageType int

	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaFootprintTopic string
	PostgresDSN         string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	estimator, err := windfield.ParseEstimator(sharedcfg.EnvOrDefault("RMAX_ESTIMATOR", "W06"))
	if err != nil {
		return nil, fmt.Errorf("invalid RMAX_ESTIMATOR: %w", err)
	}

	regionPath, regionSet := os.LookupEnv("REGION_GEOJSON_PATH")

	var p parser
	cfg := &Config{
		TracksPath:        sharedcfg.EnvOrDefault("TRACKS_PATH", "data/tracks.csv"),
		IntensityBinsPath: sharedcfg.EnvOrDefault("INTENSITY_BINS_PATH", "data/intensity_bin_dict.csv"),
		DamageBinsPath:    os.Getenv("DAMAGE_BINS_PATH"),
		VulnerabilityPath: os.Getenv("VULNERABILITY_PATH"),

		RegionPath: strings.TrimSpace(regionPath),
		CellHeight: p.float("GRID_CELL_HEIGHT", 0.1),
		CellWidth:  p.float("GRID_CELL_WIDTH", 0.1),
		CRS:        sharedcfg.EnvOrDefault("GRID_CRS", "EPSG:4326"),
		Buffer:     p.float("GRID_BUFFER", 0),

		Selection: selection.Criteria{
			DistanceKm:  p.float("SELECTION_DISTANCE_KM", 300),
			MinCategory: p.int("SELECTION_MIN_CATEGORY", 1),
		},
		Estimator:    estimator,
		OverrideRmax: p.bool("RMAX_OVERRIDE", false),
		Footprint: footprint.Options{
			Workers:               p.int("WORKERS", runtime.NumCPU()),
			InfluenceRadiusFactor: p.float("INFLUENCE_RADIUS_FACTOR", 0),
		},

		OutputDir:    sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		PerilID:      sharedcfg.EnvOrDefault("PERIL_ID", "WTC"),
		CoverageType: p.int("COVERAGE_TYPE", 1),

		KafkaEnabled:        p.bool("KAFKA_ENABLED", false),
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaFootprintTopic: strings.TrimSpace(sharedcfg.EnvOrDefault("KAFKA_FOOTPRINT_TOPIC", "hazard-footprints")),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if lat, lon := os.Getenv("REGION_CENTROID_LAT"), os.Getenv("REGION_CENTROID_LON"); lat != "" || lon != "" {
		cfg.RegionCentroid = &domain.Point{
			Lon: p.float("REGION_CENTROID_LON", 0),
			Lat: p.float("REGION_CENTROID_LAT", 0),
		}
		if lat == "" || lon == "" {
			p.fail("REGION_CENTROID_LAT and REGION_CENTROID_LON must be set together")
		}
	}
	cfg.Extent = p.extent(cfg.CellHeight, cfg.CellWidth)
	if !regionSet && (cfg.RegionCentroid == nil || cfg.Extent == nil) {
		cfg.RegionPath = defaultRegionPath
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TracksPath == "" {
		return errors.New("TRACKS_PATH is required")
	}
	if c.IntensityBinsPath == "" {
		return errors.New("INTENSITY_BINS_PATH is required")
	}
	if c.RegionPath == "" && (c.RegionCentroid == nil || c.Extent == nil) {
		return errors.New("REGION_GEOJSON_PATH is required unless both REGION_CENTROID_* and GRID_MIN_*/GRID_MAX_* are set")
	}
	if (c.DamageBinsPath == "") != (c.VulnerabilityPath == "") {
		return errors.New("DAMAGE_BINS_PATH and VULNERABILITY_PATH must be set together")
	}
	if c.CellHeight <= 0 || c.CellWidth <= 0 {
		return errors.New("GRID_CELL_HEIGHT and GRID_CELL_WIDTH must be > 0")
	}
	if c.Buffer < 0 {
		return errors.New("GRID_BUFFER must be >= 0")
	}
	if err := c.Selection.Validate(); err != nil {
		return fmt.Errorf("invalid SELECTION_*: %w", err)
	}
	if c.Footprint.Workers < 1 {
		return errors.New("WORKERS must be >= 1")
	}
	if c.Footprint.InfluenceRadiusFactor < 0 {
		return errors.New("INFLUENCE_RADIUS_FACTOR must be >= 0")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaFootprintTopic == "" {
			return errors.New("KAFKA_FOOTPRINT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}

// parser collects the first malformed variable so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

func (p *parser) float(key string, def float64) float64 {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail("invalid %s %q: %w", key, s, err)
		return def
	}
	return v
}

func (p *parser) int(key string, def int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail("invalid %s %q: %w", key, s, err)
		return def
	}
	return v
}

func (p *parser) bool(key string, def bool) bool {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail("invalid %s %q: %w", key, s, err)
		return def
	}
	return v
}

// extent returns the explicit grid extent, or nil when none of the
// GRID_MIN_*/GRID_MAX_* variables are set.
func (p *parser) extent(cellHeight, cellWidth float64) *grid.Extent {
	keys := []string{"GRID_MIN_X", "GRID_MIN_Y", "GRID_MAX_X", "GRID_MAX_Y"}
	set := 0
	for _, k := range keys {
		if os.Getenv(k) != "" {
			set++
		}
	}
	switch set {
	case 0:
		return nil
	case len(keys):
	default:
		p.fail("GRID_MIN_X, GRID_MIN_Y, GRID_MAX_X and GRID_MAX_Y must be set together")
		return nil
	}
	return &grid.Extent{
		MinX:       p.float("GRID_MIN_X", 0),
		MinY:       p.float("GRID_MIN_Y", 0),
		MaxX:       p.float("GRID_MAX_X", 0),
		MaxY:       p.float("GRID_MAX_Y", 0),
		CellHeight: cellHeight,
		CellWidth:  cellWidth,
	}
}
