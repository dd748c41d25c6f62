package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 uploads PNG snapshots into a bucket.
type S3 struct {
	c      objectPutter
	bucket string
	name   string
	label  bool
	log    *logger.Logger
}

func NewS3(ctx context.Context, endpoint, bucket, key, secret string, secure bool, log *logger.Logger) (*S3, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(key, secret, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.New("bucket doesn't exist")
	}

	return &S3{c: client, bucket: bucket, log: log.Stage("s3")}, nil
}

// WithName sets the object name template and the label flag.
func (s *S3) WithName(name string, label bool) *S3 {
	s.name, s.label = name, label
	return s
}

func (s *S3) Export(ctx context.Context, snap pipeline.FrozenSnapshot, meta pipeline.ExportMeta) error {
	if s == nil || s.c == nil {
		return errors.New("s3 client was not initialised")
	}
	data, err := EncodePNG(snap, meta, s.label)
	if err != nil {
		return err
	}
	name := ParseName(s.name, meta.Mode.String(), meta.CapturedAt) + ".png"
	opts := minio.PutObjectOptions{
		ContentType:    "image/png",
		SendContentMd5: true,
		UserMetadata: map[string]string{
			"mode":     meta.Mode.String(),
			"width":    strconv.Itoa(snap.W),
			"height":   strconv.Itoa(snap.H),
			"channels": strconv.Itoa(snap.Channels),
		},
	}
	info, err := s.c.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return err
	}
	s.log.Debug().Msgf("Uploaded: %v", info)
	return nil
}
