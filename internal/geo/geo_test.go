package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(24.9, 67.1, 24.9, 67.1))

	// One degree of latitude is roughly 111.2 km.
	d := Haversine(24.0, 67.0, 25.0, 67.0)
	assert.InDelta(t, 111195, d, 50)
}

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"karachi", 24.9, 67.1, true},
		{"poles and antimeridian", 90, -180, true},
		{"lat too high", 90.1, 0, false},
		{"lng too low", 0, -180.5, false},
		{"nan", math.NaN(), 0, false},
		{"inf", 0, math.Inf(1), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ValidCoordinates(c.lat, c.lng))
		})
	}
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.23, RoundTo(1.2349, 2))
	assert.Equal(t, 2.0, RoundTo(1.96, 0))
}
