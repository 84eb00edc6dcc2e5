package grid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
)

const (
	// geographicProj is the WGS-84 longitude/latitude reference system.
	geographicProj = "+proj=longlat +datum=WGS84 +no_defs"
	// webMercatorProj is the spherical Mercator used for web mapping (EPSG:3857).
	webMercatorProj = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"
)

// knownCRS maps EPSG codes used by regional models to proj4 definitions.
var knownCRS = map[int]string{
	3857: webMercatorProj,
	// Guadeloupe 1948 / UTM zone 20N.
	2970: "+proj=utm +zone=20 +ellps=intl +towgs84=-467,-16,-300,0,0,0,0 +units=m +no_defs",
}

// Projection converts between a projected CRS and geographic coordinates.
// A geographic CRS (EPSG:4326) is the identity.
type Projection struct {
	crs     string
	toGeo   proj.Transformer
	fromGeo proj.Transformer
}

// NewProjection parses a CRS given as "EPSG:<code>", a bare code, or a proj4
// string starting with "+". UTM zones are accepted as EPSG:326xx / EPSG:327xx.
func NewProjection(crs string) (*Projection, error) {
	crs = strings.TrimSpace(crs)
	def, geographic, err := proj4Definition(crs)
	if err != nil {
		return nil, err
	}
	p := &Projection{crs: crs}
	if geographic {
		return p, nil
	}

	gridSR, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse grid crs %q: %w", crs, err)
	}
	geoSR, err := proj.Parse(geographicProj)
	if err != nil {
		return nil, fmt.Errorf("parse geographic crs: %w", err)
	}
	if p.toGeo, err = gridSR.NewTransform(geoSR); err != nil {
		return nil, fmt.Errorf("create transform %q to geographic: %w", crs, err)
	}
	if p.fromGeo, err = geoSR.NewTransform(gridSR); err != nil {
		return nil, fmt.Errorf("create transform geographic to %q: %w", crs, err)
	}
	return p, nil
}

// CRS returns the CRS string the projection was created from.
func (p *Projection) CRS() string { return p.crs }

// Geographic reports whether the projected CRS is already lon/lat.
func (p *Projection) Geographic() bool { return p.toGeo == nil }

// ToGeo converts projected x/y to longitude/latitude in degrees.
func (p *Projection) ToGeo(x, y float64) (lon, lat float64, err error) {
	if p.toGeo == nil {
		return x, y, nil
	}
	lon, lat, err = p.toGeo(x, y)
	if err != nil {
		return 0, 0, fmt.Errorf("reproject (%v, %v) from %s: %w", x, y, p.crs, err)
	}
	return lon, lat, nil
}

// FromGeo converts longitude/latitude in degrees to projected x/y.
func (p *Projection) FromGeo(lon, lat float64) (x, y float64, err error) {
	if p.fromGeo == nil {
		return lon, lat, nil
	}
	x, y, err = p.fromGeo(lon, lat)
	if err != nil {
		return 0, 0, fmt.Errorf("reproject (%v, %v) to %s: %w", lon, lat, p.crs, err)
	}
	return x, y, nil
}

func proj4Definition(crs string) (def string, geographic bool, err error) {
	if strings.HasPrefix(crs, "+") {
		return crs, strings.Contains(crs, "+proj=longlat"), nil
	}
	codeStr := strings.TrimPrefix(strings.ToUpper(crs), "EPSG:")
	if codeStr == "" {
		return "", true, nil
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return "", false, fmt.Errorf("unsupported crs %q", crs)
	}
	switch {
	case code == 4326:
		return geographicProj, true, nil
	case code > 32600 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600), false, nil
	case code > 32700 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700), false, nil
	}
	if def, ok := knownCRS[code]; ok {
		return def, false, nil
	}
	return "", false, fmt.Errorf("unsupported crs %q: pass a proj4 definition instead", crs)
}
