package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine_SamePoint(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 12.97, Lon: 77.59},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 89.9, Lon: -179.9},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, Haversine(p.Lat, p.Lon, p.Lat, p.Lon))
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
	}{
		{name: "bangalore-chennai", a: Point{12.97, 77.59}, b: Point{13.08, 80.27}},
		{name: "across antimeridian", a: Point{10, 179.5}, b: Point{-10, -179.5}},
		{name: "equator", a: Point{0, 0}, b: Point{0, 1}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.a.DistanceTo(test.b), test.b.DistanceTo(test.a))
		})
	}
}

func TestHaversine_Reference(t *testing.T) {
	assert.InDelta(t, 290.5914813031398, Haversine(12.97, 77.59, 13.08, 80.27), 1e-9)
	assert.InDelta(t, 111.19492664455873, Haversine(0, 0, 0, 1), 1e-9)
}

func BenchmarkHaversine(b *testing.B) {
	for n := 0; n < b.N; n++ {
		_ = Haversine(12.97, 77.59, 13.08, 80.27)
	}
}
