package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinate
// pairs in kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}

	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	d := earthRadiusKm * c
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	return d
}

type Point struct {
	Lat float64
	Lng float64
}

// IncrementM returns the distance in meters contributed by moving from
// prev to next. A nil prev marks the first sample of a sequence and
// contributes nothing.
func IncrementM(prev *Point, next Point) float64 {
	if prev == nil {
		return 0
	}
	return HaversineKm(prev.Lat, prev.Lng, next.Lat, next.Lng) * 1000
}

// TotalM sums consecutive increments over an ordered sequence of points.
// Summing increments one point at a time yields the same total.
func TotalM(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += IncrementM(&points[i-1], points[i])
	}
	return total
}

// PaceSecPerKm returns seconds per kilometer, or 0 while no distance has
// been covered.
func PaceSecPerKm(elapsedSec, distanceM float64) float64 {
	if distanceM <= 0 {
		return 0
	}
	return elapsedSec / (distanceM / 1000)
}

// SpeedMps returns meters per second, or 0 while no time has elapsed.
func SpeedMps(distanceM, elapsedSec float64) float64 {
	if elapsedSec <= 0 {
		return 0
	}
	return distanceM / elapsedSec
}

// AvgSpeedKmh is the session-level average: total distance over total
// elapsed time, not a mean of per-sample speeds.
func AvgSpeedKmh(distanceM, elapsedSec float64) float64 {
	if elapsedSec <= 0 {
		return 0
	}
	return (distanceM / 1000) / (elapsedSec / 3600)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
