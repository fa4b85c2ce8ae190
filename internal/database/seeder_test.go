package database

import (
	"context"
	"testing"

	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedFleetOnce(t *testing.T) {
	ctx := context.Background()
	vehicles := store.NewMemoryVehicleStore()

	require.NoError(t, SeedFleet(ctx, vehicles))
	require.NoError(t, SeedFleet(ctx, vehicles))

	all, err := vehicles.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(demoFleet))
	for _, v := range all {
		assert.Equal(t, models.VehicleStatusActive, v.Status)
		assert.NotEmpty(t, v.TrackerID)
	}
}

func TestIndexSpecsGuardOpenTrips(t *testing.T) {
	specs := indexSpecs()[store.TripsCollection]
	require.NotEmpty(t, specs)

	guard := specs[0]
	require.NotNil(t, guard.Options)
	require.NotNil(t, guard.Options.Unique)
	assert.True(t, *guard.Options.Unique)
	assert.NotNil(t, guard.Options.PartialFilterExpression)
}
