package region

import (
	"math"
	"testing"

	"github.com/couchcryptid/storm-footprint/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

const squareGeometry = `{"type":"Polygon","coordinates":[[[-62,16],[-61,16],[-61,17],[-62,17],[-62,16]]]}`

func geographic(t *testing.T) *grid.Projection {
	t.Helper()
	p, err := grid.NewProjection("EPSG:4326")
	require.NoError(t, err)
	return p
}

func TestParseGeoJSON_Geometry(t *testing.T) {
	r, err := ParseGeoJSON([]byte(squareGeometry), geographic(t))
	require.NoError(t, err)

	c, err := r.Centroid()
	require.NoError(t, err)
	assert.InDelta(t, -61.5, c.Lon, 1e-9)
	assert.InDelta(t, 16.5, c.Lat, 1e-9)

	e := r.Extent(0.1, 0.2)
	assert.Equal(t, grid.Extent{MinX: -62, MinY: 16, MaxX: -61, MaxY: 17, CellHeight: 0.1, CellWidth: 0.2}, e)
}

func TestParseGeoJSON_FeatureCollection(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"west"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
		{"type":"Feature","properties":{"name":"east"},"geometry":{"type":"MultiPolygon","coordinates":[[[[4,0],[6,0],[6,2],[4,2],[4,0]]]]}}
	]}`
	r, err := ParseGeoJSON([]byte(data), geographic(t))
	require.NoError(t, err)

	// Two equal squares centred on x=1 and x=5.
	c, err := r.Centroid()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, c.Lon, 1e-9)
	assert.InDelta(t, 1.0, c.Lat, 1e-9)

	e := r.Extent(1, 1)
	assert.Equal(t, 0.0, e.MinX)
	assert.Equal(t, 6.0, e.MaxX)
}

func TestParseGeoJSON_Feature(t *testing.T) {
	data := `{"type":"Feature","properties":{},"geometry":` + squareGeometry + `}`
	r, err := ParseGeoJSON([]byte(data), geographic(t))
	require.NoError(t, err)
	c, err := r.Centroid()
	require.NoError(t, err)
	assert.InDelta(t, 16.5, c.Lat, 1e-9)
}

func TestParseGeoJSON_Errors(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`{not json`), geographic(t))
	require.Error(t, err)

	_, err = ParseGeoJSON([]byte(`{"type":"Point","coordinates":[1,2]}`), geographic(t))
	require.ErrorIs(t, err, ErrNoPolygons)
}

func TestProject(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {10, 0}, {10, 10}, {0, 0}}})

	t.Run("geographic keeps the polygon", func(t *testing.T) {
		got, err := project(poly, geographic(t))
		require.NoError(t, err)
		assert.Same(t, poly, got)
	})

	t.Run("projected copies", func(t *testing.T) {
		mercator, err := grid.NewProjection("EPSG:3857")
		require.NoError(t, err)

		got, err := project(poly, mercator)
		require.NoError(t, err)
		assert.NotSame(t, poly, got)
		assert.InDelta(t, 6378137*10*math.Pi/180, got.FlatCoords()[2], 1e-3)
		assert.Equal(t, 10.0, poly.FlatCoords()[2])
	})
}
