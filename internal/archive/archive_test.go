package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"ku-fleet-api-server/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func sampleTrip() models.Trip {
	t0 := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	return models.Trip{
		ID:        primitive.NewObjectID(),
		VehicleID: primitive.NewObjectID(),
		WindowDay: "2026-09-01",
		StartTime: t0,
		Status:    models.TripStatusCompleted,
		Samples: []models.PositionSample{
			{Lat: 0, Lng: 0.1, Speed: models.Float(30), Timestamp: t0.Add(time.Minute)},
			{Lat: 0, Lng: 0, Speed: models.Float(10), Timestamp: t0},
		},
	}
}

func TestArchiveTripUploadsJSON(t *testing.T) {
	client := &fakeS3{}
	a := &S3Archiver{Client: client, Bucket: "fleet-archive", Prefix: "trip-archive"}
	trip := sampleTrip()

	key, err := a.ArchiveTrip(context.Background(), trip)
	require.NoError(t, err)
	assert.Equal(t, "trip-archive/2026-09-01/"+trip.ID.Hex()+".json", key)

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "fleet-archive", aws.ToString(in.Bucket))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))

	var got models.Trip
	require.NoError(t, json.Unmarshal(client.bodies[0], &got))
	require.Len(t, got.Samples, 2)
	assert.True(t, got.Samples[0].Timestamp.Before(got.Samples[1].Timestamp))
	assert.Equal(t, 2, got.SampleCount)
	assert.Equal(t, 30.0, got.MaxSpeed)
}

func TestArchiveTripUploadError(t *testing.T) {
	a := &S3Archiver{Client: &fakeS3{err: errors.New("access denied")}, Bucket: "b"}
	_, err := a.ArchiveTrip(context.Background(), sampleTrip())
	assert.ErrorContains(t, err, "access denied")
}

func TestObjectKeyWithoutPrefix(t *testing.T) {
	trip := sampleTrip()
	assert.Equal(t, "2026-09-01/"+trip.ID.Hex()+".json", ObjectKey("", trip))
}
