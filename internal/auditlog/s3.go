package auditlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/linnemanlabs/ventwatch/internal/canonical"
	"github.com/linnemanlabs/ventwatch/internal/emission"
)

// S3Config configures snapshot archiving.
type S3Config struct {
	Bucket string

	// Prefix is prepended to every key. May be empty.
	Prefix string

	// Endpoint overrides the S3 endpoint (S3-compatible stores). Enables path-style addressing.
	Endpoint string
}

// objectUploader is the subset of *manager.Uploader the archiver needs.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver implements emission.Archiver. Snapshots land at
//
//	s3://<bucket>/<prefix>/audit/YYYY/MM/DD/<eventID>.json
//
// dated by the snapshot's generation time.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader objectUploader
}

// NewS3Archiver loads AWS configuration from the environment (AWS_REGION, AWS_PROFILE,
// static keys, ...) and returns a ready archiver.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ObjectKey returns where a snapshot is stored.
func (a *S3Archiver) ObjectKey(snap *emission.Snapshot) string {
	year, month, day := snap.GeneratedAt.UTC().Date()
	return path.Join(a.prefix, "audit",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		snap.Event.ID+".json",
	)
}

// Archive uploads the canonical JSON of snap and returns its object key.
func (a *S3Archiver) Archive(ctx context.Context, snap *emission.Snapshot) (string, error) {
	if snap == nil || snap.Event == nil {
		return "", errors.New("s3: nil snapshot")
	}
	body, err := canonical.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("canonicalize snapshot: %w", err)
	}

	key := a.ObjectKey(snap)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		Metadata: map[string]string{
			"event-id":      snap.Event.ID,
			"sha256-digest": snap.Digest,
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return key, nil
}
