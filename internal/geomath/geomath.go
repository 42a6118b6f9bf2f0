package geomath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/wroge/wgs84"

	"github.com/citystride/grounding/pkg/core"
)

// Spherical mean earth radius in meters. The haversine distance below only
// gates probe re-casts, so a spherical approximation is fine.
const EarthRadius = 6371000.0

// DefaultHeightOffset is how far above the entity a down ray is anchored.
// Casting from the entity's exact height is ill-conditioned when it is
// standing on the surface being probed.
const DefaultHeightOffset = 1.0

var (
	toECEF   = wgs84.LonLat().To(wgs84.XYZ())
	toLonLat = wgs84.XYZ().To(wgs84.LonLat())
)

// HorizontalDistance returns the great-circle distance in meters between
// two geodetic points. Inputs are in radians.
func HorizontalDistance(lon1, lat1, lon2, lat2 float64) float64 {
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * EarthRadius * math.Asin(math.Sqrt(a))
}

// ECEF converts a geodetic position to geocentric (earth-centered,
// earth-fixed) coordinates in meters.
func ECEF(pos core.GeodeticPosition) mgl64.Vec3 {
	x, y, z := toECEF(RadToDeg(pos.Longitude), RadToDeg(pos.Latitude), pos.Height)
	return mgl64.Vec3{x, y, z}
}

// Geodetic converts a geocentric point back to a geodetic position
// (radians, meters).
func Geodetic(p mgl64.Vec3) core.GeodeticPosition {
	lon, lat, h := toLonLat(p.X(), p.Y(), p.Z())
	return core.GeodeticPosition{
		Longitude: DegToRad(lon),
		Latitude:  DegToRad(lat),
		Height:    h,
	}
}

// ElevationOf returns the ellipsoidal height in meters of a geocentric
// point.
func ElevationOf(p mgl64.Vec3) float64 {
	_, _, h := toLonLat(p.X(), p.Y(), p.Z())
	return h
}

// LocalDown returns the unit nadir vector of the local east-north-up frame
// at the given geodetic coordinate, expressed in the geocentric frame.
func LocalDown(lonRad, latRad float64) mgl64.Vec3 {
	cosLat := math.Cos(latRad)
	return mgl64.Vec3{
		-cosLat * math.Cos(lonRad),
		-cosLat * math.Sin(lonRad),
		-math.Sin(latRad),
	}
}

// LocalDownRay builds a ray anchored heightOffset meters above the given
// position, pointing toward the local nadir. A non-positive heightOffset
// falls back to DefaultHeightOffset.
func LocalDownRay(pos core.GeodeticPosition, heightOffset float64) core.Ray {
	if heightOffset <= 0 {
		heightOffset = DefaultHeightOffset
	}
	anchor := pos
	anchor.Height += heightOffset
	return core.Ray{
		Origin:    ECEF(anchor),
		Direction: LocalDown(pos.Longitude, pos.Latitude),
	}
}

// RadToDeg converts radians to degrees.
func RadToDeg(r float64) float64 {
	return r * 180 / math.Pi
}

// DegToRad converts degrees to radians. Exported for callers that configure
// positions in degrees (the demo binary, tests).
func DegToRad(d float64) float64 {
	return d * math.Pi / 180
}
