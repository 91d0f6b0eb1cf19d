// Package geo computes great-circle distances between coordinates.
package geo

import "math"

// EarthRadiusKM is the mean Earth radius used for every distance feature.
const EarthRadiusKM = 6371.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceTo returns the haversine distance from p to other in kilometers.
func (p Point) DistanceTo(other Point) float64 {
	return Haversine(p.Lat, p.Lon, other.Lat, other.Lon)
}

// Haversine returns the great-circle distance in kilometers between two points
// given in degrees. Training and inference both derive distance_km through this
// function; the model was fit on its exact output.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2) - toRadians(lat1)
	dLambda := toRadians(lon2) - toRadians(lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
