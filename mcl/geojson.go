package mcl

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParticlesToFeatureCollection converts a cloud into GeoJSON point
// features in map meters. Each feature carries theta and weight.
func ParticlesToFeatureCollection(cloud ParticleCloud) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range cloud {
		f := geojson.NewFeature(orb.Point{p.X, p.Y})
		f.Properties["theta"] = p.Theta
		f.Properties["weight"] = p.W
		fc.Append(f)
	}
	return fc
}

// PoseFeature converts an estimate into a GeoJSON point feature
func PoseFeature(est EstimatedPose) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{est.X, est.Y})
	f.Properties["theta"] = est.Theta
	f.Properties["valid"] = est.Valid
	f.Properties["kind"] = "estimate"
	return f
}

// MapBoundsFeature outlines the map extent as a GeoJSON polygon
func MapBoundsFeature(m *OccupancyMap) *geojson.Feature {
	f := geojson.NewFeature(m.Bounds().ToPolygon())
	f.Properties["kind"] = "bounds"
	f.Properties["resolution"] = m.Resolution
	return f
}

// LocalizationFeatureCollection bundles particles, the estimate and the
// map outline for the HTTP API.
func LocalizationFeatureCollection(m *OccupancyMap, cloud ParticleCloud, est EstimatedPose) *geojson.FeatureCollection {
	fc := ParticlesToFeatureCollection(cloud)
	if m != nil {
		fc.Append(MapBoundsFeature(m))
	}
	if est.Valid {
		fc.Append(PoseFeature(est))
	}
	return fc
}
