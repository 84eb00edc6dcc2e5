// Package grid discretizes a projected extent into rectangular area perils.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
)

// ErrInvalidExtent is returned when a grid definition cannot produce cells.
var ErrInvalidExtent = errors.New("invalid grid extent")

// MaxCells bounds the grid size so a unit mistake (degrees vs metres) fails
// fast instead of allocating millions of polygons.
const MaxCells = 5_000_000

// Extent is a bounding box in a projected CRS plus the cell size.
type Extent struct {
	MinX       float64 `json:"min_x"`
	MinY       float64 `json:"min_y"`
	MaxX       float64 `json:"max_x"`
	MaxY       float64 `json:"max_y"`
	CellHeight float64 `json:"cell_height"`
	CellWidth  float64 `json:"cell_width"`
}

// Validate reports the first extent field that cannot produce a grid.
func (e Extent) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"min_x", e.MinX}, {"min_y", e.MinY}, {"max_x", e.MaxX}, {"max_y", e.MaxY},
		{"cell_height", e.CellHeight}, {"cell_width", e.CellWidth},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidExtent, f.name)
		}
	}
	switch {
	case e.CellHeight <= 0:
		return fmt.Errorf("%w: cell_height must be > 0, got %v", ErrInvalidExtent, e.CellHeight)
	case e.CellWidth <= 0:
		return fmt.Errorf("%w: cell_width must be > 0, got %v", ErrInvalidExtent, e.CellWidth)
	case e.MaxX <= e.MinX:
		return fmt.Errorf("%w: max_x (%v) must be greater than min_x (%v)", ErrInvalidExtent, e.MaxX, e.MinX)
	case e.MaxY <= e.MinY:
		return fmt.Errorf("%w: max_y (%v) must be greater than min_y (%v)", ErrInvalidExtent, e.MaxY, e.MinY)
	}
	rows := math.Ceil((e.MaxY - e.MinY) / e.CellHeight)
	cols := math.Ceil((e.MaxX - e.MinX) / e.CellWidth)
	if rows*cols > MaxCells {
		return fmt.Errorf("%w: %.0f x %.0f cells exceeds the limit of %d", ErrInvalidExtent, rows, cols, MaxCells)
	}
	return nil
}

// Dims returns the row and column counts, rounding partial cells up.
func (e Extent) Dims() (rows, cols int) {
	rows = int(math.Ceil((e.MaxY - e.MinY) / e.CellHeight))
	cols = int(math.Ceil((e.MaxX - e.MinX) / e.CellWidth))
	return rows, cols
}

// Buffer grows the bounding box by d on every side. The cell size is unchanged.
func (e Extent) Buffer(d float64) Extent {
	e.MinX -= d
	e.MinY -= d
	e.MaxX += d
	e.MaxY += d
	return e
}

// Grid is the set of area perils covering an extent.
type Grid struct {
	Extent Extent
	CRS    string
	Rows   int
	Cols   int
	Cells  []domain.GridCell
}

// Build lays out cells column by column from the top-left corner of the
// extent. Cell ids run 1..rows*cols in that order. The last row and column
// may extend past the extent.
func Build(e Extent, p *Projection) (*Grid, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	rows, cols := e.Dims()
	g := &Grid{
		Extent: e,
		CRS:    p.CRS(),
		Rows:   rows,
		Cols:   cols,
		Cells:  make([]domain.GridCell, 0, rows*cols),
	}

	xLeft := e.MinX
	for i := 0; i < cols; i++ {
		xRight := xLeft + e.CellWidth
		yTop := e.MaxY
		for j := 0; j < rows; j++ {
			yBottom := yTop - e.CellHeight
			polygon := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
				{xLeft, yTop},
				{xRight, yTop},
				{xRight, yBottom},
				{xLeft, yBottom},
				{xLeft, yTop},
			}})
			cell, err := geographicCell(len(g.Cells)+1, polygon, p)
			if err != nil {
				return nil, err
			}
			g.Cells = append(g.Cells, cell)
			yTop = yBottom
		}
		xLeft = xRight
	}
	return g, nil
}

// geographicCell extracts the corner vertices (exterior ring without the
// closing vertex) and the centroid, both reprojected to lon/lat.
func geographicCell(id int, polygon *geom.Polygon, p *Projection) (domain.GridCell, error) {
	cell := domain.GridCell{ID: id}
	ring := polygon.LinearRing(0).Coords()
	for k, c := range ring[:len(ring)-1] {
		lon, lat, err := p.ToGeo(c.X(), c.Y())
		if err != nil {
			return domain.GridCell{}, fmt.Errorf("cell %d corner %d: %w", id, k+1, err)
		}
		cell.Corners[k] = domain.Point{Lon: lon, Lat: lat}
	}
	centroid := xy.PolygonsCentroid(polygon)
	lon, lat, err := p.ToGeo(centroid.X(), centroid.Y())
	if err != nil {
		return domain.GridCell{}, fmt.Errorf("cell %d centroid: %w", id, err)
	}
	cell.Centroid = domain.Point{Lon: lon, Lat: lat}
	return cell, nil
}

// GeoJSON renders the grid as a FeatureCollection of geographic polygons
// with the area-peril id as feature id and property.
func (g *Grid) GeoJSON() ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(g.Cells))}
	for _, c := range g.Cells {
		ring := make([]geom.Coord, 0, 5)
		for _, v := range c.Corners {
			ring = append(ring, geom.Coord{v.Lon, v.Lat})
		}
		ring = append(ring, ring[0])
		polygon, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
		if err != nil {
			return nil, fmt.Errorf("cell %d polygon: %w", c.ID, err)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.Itoa(c.ID),
			Geometry: polygon,
			Properties: map[string]interface{}{
				"areaperil_id": c.ID,
				"centroid_lon": c.Centroid.Lon,
				"centroid_lat": c.Centroid.Lat,
			},
		})
	}
	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, fmt.Errorf("marshal grid geojson: %w", err)
	}
	return data, nil
}

// Dictionary returns the area-peril dictionary rows for the grid.
func (g *Grid) Dictionary(perilID string, coverageType int) []domain.AreaPerilRow {
	rows := make([]domain.AreaPerilRow, len(g.Cells))
	for i, c := range g.Cells {
		rows[i] = domain.AreaPerilRow{
			PerilID:      perilID,
			CoverageType: coverageType,
			Corners:      c.Corners,
			AreaPerilID:  c.ID,
		}
	}
	return rows
}
