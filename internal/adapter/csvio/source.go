package csvio

import (
	"context"
	"fmt"
	"os"

	"github.com/couchcryptid/storm-footprint/internal/domain"
)

// Paths locates the input files. Empty optional paths load nothing.
type Paths struct {
	Tracks        string
	IntensityBins string
	DamageBins    string
	Vulnerability string
	Region        string
}

// FileSource loads run inputs from local files.
type FileSource struct {
	paths Paths
}

// NewFileSource creates a FileSource over paths.
func NewFileSource(paths Paths) *FileSource {
	return &FileSource{paths: paths}
}

// LoadTracks reads the track catalogue.
func (s *FileSource) LoadTracks(_ context.Context) ([]domain.TrackSample, error) {
	return ReadTracksFile(s.paths.Tracks)
}

// LoadIntensityBins reads the intensity bin table.
func (s *FileSource) LoadIntensityBins(_ context.Context) ([]domain.Bin, error) {
	return ReadBinsFile(s.paths.IntensityBins)
}

// LoadDamageBins reads the damage bin table, or returns nil when none is configured.
func (s *FileSource) LoadDamageBins(_ context.Context) ([]domain.Bin, error) {
	if s.paths.DamageBins == "" {
		return nil, nil
	}
	return ReadBinsFile(s.paths.DamageBins)
}

// LoadVulnerability reads the vulnerability curves, or returns nil when none are configured.
func (s *FileSource) LoadVulnerability(_ context.Context) ([]domain.VulnerabilityCurve, error) {
	if s.paths.Vulnerability == "" {
		return nil, nil
	}
	return ReadVulnerabilityFile(s.paths.Vulnerability)
}

// LoadRegion returns the raw region GeoJSON, or nil when none is configured.
func (s *FileSource) LoadRegion(_ context.Context) ([]byte, error) {
	if s.paths.Region == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.paths.Region)
	if err != nil {
		return nil, fmt.Errorf("read region: %w", err)
	}
	return data, nil
}
