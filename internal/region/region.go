// Package region derives the region-of-interest centroid and grid extent from
// a boundary geometry.
package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/grid"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
)

// ErrNoPolygons is returned when a boundary contains no polygonal geometry.
var ErrNoPolygons = errors.New("region boundary has no polygons")

// Region is a boundary expressed in the grid's projected CRS.
type Region struct {
	polygons   []*geom.Polygon
	projection *grid.Projection
}

// ParseGeoJSON reads a GeoJSON geometry, Feature, or FeatureCollection in
// WGS-84 and projects its polygons into the grid CRS.
func ParseGeoJSON(data []byte, p *grid.Projection) (*Region, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse region geojson: %w", err)
	}

	var geometries []geom.T
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse region feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry)
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse region feature: %w", err)
		}
		geometries = append(geometries, f.Geometry)
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("parse region geometry: %w", err)
		}
		geometries = append(geometries, g)
	}

	r := &Region{projection: p}
	for _, g := range geometries {
		switch g := g.(type) {
		case *geom.Polygon:
			r.polygons = append(r.polygons, g)
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				r.polygons = append(r.polygons, g.Polygon(i))
			}
		}
	}
	if len(r.polygons) == 0 {
		return nil, ErrNoPolygons
	}
	for i, poly := range r.polygons {
		projected, err := project(poly, p)
		if err != nil {
			return nil, fmt.Errorf("project region polygon %d: %w", i, err)
		}
		r.polygons[i] = projected
	}
	return r, nil
}

// project returns a copy of poly with every vertex converted to the grid CRS.
// A geographic grid uses poly as is.
func project(poly *geom.Polygon, p *grid.Projection) (*geom.Polygon, error) {
	if p.Geographic() {
		return poly, nil
	}
	out := poly.Clone()
	flat := out.FlatCoords()
	stride := out.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := p.FromGeo(flat[i], flat[i+1])
		if err != nil {
			return nil, err
		}
		flat[i], flat[i+1] = x, y
	}
	return out, nil
}

// Centroid returns the area-weighted centroid of the boundary, computed in the
// projected CRS and converted back to lon/lat.
func (r *Region) Centroid() (domain.Point, error) {
	c := xy.PolygonsCentroid(r.polygons[0], r.polygons[1:]...)
	lon, lat, err := r.projection.ToGeo(c.X(), c.Y())
	if err != nil {
		return domain.Point{}, fmt.Errorf("region centroid: %w", err)
	}
	return domain.Point{Lon: lon, Lat: lat}, nil
}

// Extent returns the projected bounding box of the boundary with the given
// cell size.
func (r *Region) Extent(cellHeight, cellWidth float64) grid.Extent {
	e := grid.Extent{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
		CellHeight: cellHeight, CellWidth: cellWidth,
	}
	for _, poly := range r.polygons {
		flat := poly.FlatCoords()
		stride := poly.Stride()
		for i := 0; i+1 < len(flat); i += stride {
			e.MinX = math.Min(e.MinX, flat[i])
			e.MaxX = math.Max(e.MaxX, flat[i])
			e.MinY = math.Min(e.MinY, flat[i+1])
			e.MaxY = math.Max(e.MaxY, flat[i+1])
		}
	}
	return e
}
