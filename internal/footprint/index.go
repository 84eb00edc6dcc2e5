package footprint

import (
	"math"

	"github.com/couchcryptid/storm-footprint/internal/domain"
	"github.com/couchcryptid/storm-footprint/internal/geomath"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// indexPad widens every bounding box, in degrees, so that point entries and
// boxes touching on an edge still intersect.
const indexPad = 1e-9

// cellEntry is an rtree entry for one cell centroid. The geometry is a
// padded point box.
type cellEntry struct {
	geom.Polygonal
	pos int
}

// cellIndex answers "which cell centroids lie within r km of a point" with an
// rtree prefilter on lon/lat boxes followed by an exact haversine test.
type cellIndex struct {
	tree  *rtree.Rtree
	cells []domain.GridCell
}

func newCellIndex(cells []domain.GridCell) *cellIndex {
	tree := rtree.NewTree(25, 50)
	for i, c := range cells {
		lon := normalizeLon(c.Centroid.Lon)
		lat := c.Centroid.Lat
		tree.Insert(&cellEntry{
			Polygonal: &geom.Bounds{
				Min: geom.Point{X: lon - indexPad, Y: lat - indexPad},
				Max: geom.Point{X: lon + indexPad, Y: lat + indexPad},
			},
			pos: i,
		})
	}
	return &cellIndex{tree: tree, cells: cells}
}

// within calls visit for every cell whose centroid lies within radiusKm of
// (lon, lat), with the haversine distance. An infinite radius visits every
// cell. Visit order is not defined.
func (ix *cellIndex) within(lon, lat, radiusKm float64, visit func(pos int, distKm float64) error) error {
	if math.IsInf(radiusKm, 1) {
		for i, c := range ix.cells {
			if err := visit(i, geomath.Distance(lon, lat, c.Centroid.Lon, c.Centroid.Lat)); err != nil {
				return err
			}
		}
		return nil
	}

	boxes := searchBoxes(lon, lat, radiusKm)
	var seen map[int]struct{}
	if len(boxes) > 1 {
		seen = make(map[int]struct{})
	}
	for _, box := range boxes {
		for _, g := range ix.tree.SearchIntersect(box) {
			e := g.(*cellEntry)
			if seen != nil {
				if _, dup := seen[e.pos]; dup {
					continue
				}
				seen[e.pos] = struct{}{}
			}
			c := ix.cells[e.pos]
			d := geomath.Distance(lon, lat, c.Centroid.Lon, c.Centroid.Lat)
			if d > radiusKm {
				continue
			}
			if err := visit(e.pos, d); err != nil {
				return err
			}
		}
	}
	return nil
}

// searchBoxes returns lon/lat boxes covering the spherical cap of radiusKm
// around (lon, lat). The longitude half-width is the exact tangent-point
// bound asin(sin(d)/cos(lat)). Caps that reach a pole span every longitude,
// and caps that cross the antimeridian are split in two.
func searchBoxes(lon, lat, radiusKm float64) []*geom.Bounds {
	delta := geomath.AngularRadius(radiusKm)
	dLat := delta * 180 / math.Pi
	minLat := lat - dLat - indexPad
	maxLat := lat + dLat + indexPad
	box := func(minLon, maxLon float64) *geom.Bounds {
		return &geom.Bounds{
			Min: geom.Point{X: minLon - indexPad, Y: minLat},
			Max: geom.Point{X: maxLon + indexPad, Y: maxLat},
		}
	}

	if maxLat >= 90 || minLat <= -90 || delta >= math.Pi/2 {
		return []*geom.Bounds{box(-180, 180)}
	}
	ratio := math.Sin(delta) / math.Cos(lat*math.Pi/180)
	if ratio >= 1 {
		return []*geom.Bounds{box(-180, 180)}
	}
	dLon := math.Asin(ratio) * 180 / math.Pi

	lon = normalizeLon(lon)
	minLon, maxLon := lon-dLon, lon+dLon
	switch {
	case minLon < -180:
		return []*geom.Bounds{box(minLon+360, 180), box(-180, maxLon)}
	case maxLon > 180:
		return []*geom.Bounds{box(minLon, 180), box(-180, maxLon-360)}
	}
	return []*geom.Bounds{box(minLon, maxLon)}
}

// normalizeLon maps a longitude into [-180, 180).
func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
