// Package objectstore wraps the AWS S3 operations the extraction pipeline
// needs (download source video, upload extracted frames), following the
// S3Client interface/impl split and s3:// URI parsing from
// aws/implementations.go and checkpoint/checkpoint.go.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client is the subset of S3 operations this package depends on, mirrored
// from aws/implementations.go's S3Client interface so tests can swap in a
// fake.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewClient loads the default AWS config for region and builds a real S3
// client.
func NewClient(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Store exposes the video/frame object-store layout from spec.md §6.
type Store struct {
	client       Client
	videosBucket string
	framesBucket string
}

func New(client Client, videosBucket, framesBucket string) *Store {
	return &Store{client: client, videosBucket: videosBucket, framesBucket: framesBucket}
}

// VideoKey returns the s3:// URI of the source video for (platform, code).
func (s *Store) VideoKey(platform, code string) string {
	return fmt.Sprintf("s3://%s/%s/%s/video.mp4", s.videosBucket, platform, code)
}

// FrameKey returns the s3:// URI for one extracted frame. frameNumber is
// 1-based; frameSecond is rendered with two-decimal precision.
func (s *Store) FrameKey(platform, code string, frameNumber int, frameSecond float64) string {
	return fmt.Sprintf("s3://%s/%s/%s/%d_%.2f.png", s.framesBucket, platform, code, frameNumber, frameSecond)
}

// DownloadVideo fetches the source video for (platform, code) into w.
// ErrNotFound is returned when the key doesn't exist, so callers can mark
// the item failed and continue per spec.md §4.6 step 1.
func (s *Store) DownloadVideo(ctx context.Context, platform, code string, w io.Writer) error {
	return s.download(ctx, s.VideoKey(platform, code), w)
}

func (s *Store) download(ctx context.Context, uri string, w io.Writer) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("downloading %s: %w", uri, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", uri, err)
	}
	return nil
}

// UploadFrame uploads one extracted frame's PNG bytes to its deterministic
// key.
func (s *Store) UploadFrame(ctx context.Context, platform, code string, frameNumber int, frameSecond float64, data []byte) error {
	uri := s.FrameKey(platform, code, frameNumber, frameSecond)
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}

	contentType := "image/png"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        newReadSeeker(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", uri, err)
	}
	return nil
}

// Exists checks whether the object at an s3:// URI is present.
func (s *Store) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ParseURI splits an s3://bucket/key URI into its components.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 URI %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid s3 URI scheme %q in %q", u.Scheme, uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NotFound") || strings.Contains(msg, "404")
}
