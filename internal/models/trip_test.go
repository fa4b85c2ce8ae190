package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAggregates(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	samples := []PositionSample{
		{Lat: 24.0, Lng: 67.0, Speed: Float(10), Timestamp: base},
		{Lat: 24.0, Lng: 67.0, Speed: Float(0), Timestamp: base.Add(1 * time.Minute)},
		{Lat: 24.0, Lng: 67.0, Timestamp: base.Add(2 * time.Minute)}, // no speed reported
		{Lat: 24.0, Lng: 67.0, Speed: Float(20), Timestamp: base.Add(3 * time.Minute)},
		{Lat: 25.0, Lng: 67.0, Speed: Float(0.5), Timestamp: base.Add(4 * time.Minute)},
	}

	agg := ComputeAggregates(samples)
	assert.Equal(t, 20.0, agg.MaxSpeed)
	assert.Equal(t, 7.63, agg.AvgSpeed)
	assert.Equal(t, 2, agg.StopCount)
	assert.InDelta(t, 111195, agg.DistanceMeters, 50)
}

func TestComputeAggregatesEmpty(t *testing.T) {
	assert.Equal(t, TripAggregates{}, ComputeAggregates(nil))
}

func TestNormalizeSortsOutOfOrderSamples(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	trip := &Trip{Samples: []PositionSample{
		{Lat: 24.2, Lng: 67.0, Timestamp: base.Add(2 * time.Minute)},
		{Lat: 24.0, Lng: 67.0, Timestamp: base},
		{Lat: 24.1, Lng: 67.0, Timestamp: base.Add(1 * time.Minute)},
	}}

	trip.Normalize()

	require.Len(t, trip.Samples, 3)
	assert.Equal(t, 3, trip.SampleCount)
	for i := 1; i < len(trip.Samples); i++ {
		assert.False(t, trip.Samples[i].Timestamp.Before(trip.Samples[i-1].Timestamp))
	}
	// In order the path is monotone, so the distance equals the end-to-end span.
	assert.InDelta(t, 22239, trip.DistanceMeters, 10)
}

func TestWindowBoundaries(t *testing.T) {
	loc := time.FixedZone("PKT", 5*60*60)
	// 20:30 UTC is 01:30 the next day in +05:00.
	ts := time.Date(2024, 3, 1, 20, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-02", WindowDay(ts, loc))
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, loc), WindowEnd(ts, loc))

	end, err := WindowDayEnd("2024-03-01", loc)
	require.NoError(t, err)
	assert.True(t, end.Equal(time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)))

	_, err = WindowDayEnd("not-a-day", loc)
	assert.Error(t, err)
}
