package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/grid"
	"github.com/couchcryptid/storm-footprint/internal/windfield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/tracks.csv", cfg.TracksPath)
	assert.Equal(t, "data/intensity_bin_dict.csv", cfg.IntensityBinsPath)
	assert.Empty(t, cfg.DamageBinsPath)
	assert.Empty(t, cfg.VulnerabilityPath)
	assert.Equal(t, "data/region.geojson", cfg.RegionPath)
	assert.Nil(t, cfg.RegionCentroid)
	assert.Nil(t, cfg.Extent)
	assert.Equal(t, 0.1, cfg.CellHeight)
	assert.Equal(t, 0.1, cfg.CellWidth)
	assert.Equal(t, "EPSG:4326", cfg.CRS)
	assert.Equal(t, 300.0, cfg.Selection.DistanceKm)
	assert.Equal(t, 1, cfg.Selection.MinCategory)
	assert.Equal(t, windfield.W06, cfg.Estimator)
	assert.False(t, cfg.OverrideRmax)
	assert.Equal(t, runtime.NumCPU(), cfg.Footprint.Workers)
	assert.Zero(t, cfg.Footprint.InfluenceRadiusFactor)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, "WTC", cfg.PerilID)
	assert.Equal(t, 1, cfg.CoverageType)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "hazard-footprints", cfg.KafkaFootprintTopic)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("TRACKS_PATH", "in/storm.csv")
	t.Setenv("DAMAGE_BINS_PATH", "in/damage.csv")
	t.Setenv("VULNERABILITY_PATH", "in/vf.csv")
	t.Setenv("REGION_CENTROID_LAT", "16.2")
	t.Setenv("REGION_CENTROID_LON", "-61.5")
	t.Setenv("GRID_MIN_X", "620000")
	t.Setenv("GRID_MIN_Y", "1750000")
	t.Setenv("GRID_MAX_X", "720000")
	t.Setenv("GRID_MAX_Y", "1830000")
	t.Setenv("GRID_CELL_HEIGHT", "1000")
	t.Setenv("GRID_CELL_WIDTH", "2000")
	t.Setenv("GRID_CRS", "EPSG:2970")
	t.Setenv("GRID_BUFFER", "5000")
	t.Setenv("SELECTION_DISTANCE_KM", "150.5")
	t.Setenv("SELECTION_MIN_CATEGORY", "3")
	t.Setenv("RMAX_ESTIMATOR", "q11")
	t.Setenv("RMAX_OVERRIDE", "true")
	t.Setenv("WORKERS", "3")
	t.Setenv("INFLUENCE_RADIUS_FACTOR", "10")
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("PERIL_ID", "WSS")
	t.Setenv("COVERAGE_TYPE", "3")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_FOOTPRINT_TOPIC", "custom-footprints")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/footprint")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "in/storm.csv", cfg.TracksPath)
	assert.Equal(t, "in/damage.csv", cfg.DamageBinsPath)
	assert.Equal(t, "in/vf.csv", cfg.VulnerabilityPath)
	assert.Equal(t, &domain.Point{Lon: -61.5, Lat: 16.2}, cfg.RegionCentroid)
	assert.Equal(t, &grid.Extent{MinX: 620000, MinY: 1750000, MaxX: 720000, MaxY: 1830000, CellHeight: 1000, CellWidth: 2000}, cfg.Extent)
	assert.Equal(t, "EPSG:2970", cfg.CRS)
	assert.Equal(t, 5000.0, cfg.Buffer)
	assert.Equal(t, 150.5, cfg.Selection.DistanceKm)
	assert.Equal(t, 3, cfg.Selection.MinCategory)
	assert.Equal(t, windfield.Q11, cfg.Estimator)
	assert.True(t, cfg.OverrideRmax)
	assert.Equal(t, 3, cfg.Footprint.Workers)
	assert.Equal(t, 10.0, cfg.Footprint.InfluenceRadiusFactor)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, "WSS", cfg.PerilID)
	assert.Equal(t, 3, cfg.CoverageType)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-footprints", cfg.KafkaFootprintTopic)
	assert.Equal(t, "postgres://localhost/footprint", cfg.PostgresDSN)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown estimator", map[string]string{"RMAX_ESTIMATOR": "H80"}, "RMAX_ESTIMATOR"},
		{"bad float", map[string]string{"SELECTION_DISTANCE_KM": "far"}, "SELECTION_DISTANCE_KM"},
		{"bad int", map[string]string{"SELECTION_MIN_CATEGORY": "3.5"}, "SELECTION_MIN_CATEGORY"},
		{"bad bool", map[string]string{"KAFKA_ENABLED": "maybe"}, "KAFKA_ENABLED"},
		{"zero distance", map[string]string{"SELECTION_DISTANCE_KM": "0"}, "SELECTION_"},
		{"zero cell", map[string]string{"GRID_CELL_WIDTH": "0"}, "GRID_CELL_WIDTH"},
		{"negative buffer", map[string]string{"GRID_BUFFER": "-1"}, "GRID_BUFFER"},
		{"zero workers", map[string]string{"WORKERS": "0"}, "WORKERS"},
		{"negative influence", map[string]string{"INFLUENCE_RADIUS_FACTOR": "-3"}, "INFLUENCE_RADIUS_FACTOR"},
		{"partial extent", map[string]string{"GRID_MIN_X": "0", "GRID_MAX_X": "1"}, "GRID_MIN_X"},
		{"partial centroid", map[string]string{"REGION_CENTROID_LAT": "16"}, "REGION_CENTROID_LON"},
		{"damage without curves", map[string]string{"DAMAGE_BINS_PATH": "d.csv"}, "VULNERABILITY_PATH"},
		{"no region", map[string]string{"REGION_GEOJSON_PATH": " "}, "REGION_GEOJSON_PATH"},
		{"kafka without topic", map[string]string{"KAFKA_ENABLED": "true", "KAFKA_FOOTPRINT_TOPIC": " "}, "KAFKA_FOOTPRINT_TOPIC"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_CentroidAndExtentWithoutRegion(t *testing.T) {
	t.Setenv("REGION_CENTROID_LAT", "16")
	t.Setenv("REGION_CENTROID_LON", "-61")
	t.Setenv("GRID_MIN_X", "-62")
	t.Setenv("GRID_MIN_Y", "15")
	t.Setenv("GRID_MAX_X", "-60")
	t.Setenv("GRID_MAX_Y", "17")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.RegionPath)
	require.NotNil(t, cfg.Extent)
	assert.Equal(t, -62.0, cfg.Extent.MinX)
}

func TestLoad_RegionDefaultNeedsBothOverrides(t *testing.T) {
	t.Setenv("REGION_CENTROID_LAT", "16")
	t.Setenv("REGION_CENTROID_LON", "-61")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "data/region.geojson", cfg.RegionPath)
	assert.Nil(t, cfg.Extent)
}
