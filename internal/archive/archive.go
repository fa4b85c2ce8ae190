// server/internal/archive/archive.go
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"ku-fleet-api-server/config"
	"ku-fleet-api-server/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver exports closed trips to cold storage before they are marked archived.
type Archiver interface {
	ArchiveTrip(ctx context.Context, trip models.Trip) (string, error)
}

// PutObjectAPI is the part of *s3.Client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

// NewS3Archiver builds an archiver from config. Empty static keys fall back
// to the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg config.S3Config) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Archiver{
		Client: s3.NewFromConfig(sdkConfig),
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	}, nil
}

// ObjectKey is <prefix>/<windowDay>/<tripID>.json.
func ObjectKey(prefix string, trip models.Trip) string {
	return path.Join(prefix, trip.WindowDay, trip.ID.Hex()+".json")
}

// ArchiveTrip uploads the trip document with its samples sorted and returns the object key.
func (a *S3Archiver) ArchiveTrip(ctx context.Context, trip models.Trip) (string, error) {
	trip.Normalize()
	body, err := json.Marshal(trip)
	if err != nil {
		return "", fmt.Errorf("encode trip %s: %w", trip.ID.Hex(), err)
	}

	key := ObjectKey(a.Prefix, trip)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload trip %s to S3: %w", trip.ID.Hex(), err)
	}
	return key, nil
}
