// Package publish mirrors finished parts to an S3-compatible bucket.
package publish

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "vslice/internal/config"
)

// PutObjectAPI is the subset of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads job outputs under <prefix>/<job id>/<name>.
type S3Publisher struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Publisher creates a publisher around an existing client.
func NewS3Publisher(client PutObjectAPI, bucket, prefix string) *S3Publisher {
	return &S3Publisher{client: client, bucket: bucket, prefix: prefix}
}

// NewFromConfig builds the S3 client from the default AWS credential chain.
// A custom endpoint switches to path-style addressing for MinIO and friends.
func NewFromConfig(ctx context.Context, cfg appconfig.S3Config) (*S3Publisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Publisher(client, cfg.Bucket, cfg.Prefix), nil
}

// Key returns the object key of one part.
func (p *S3Publisher) Key(jobID, name string) string {
	return path.Join(p.prefix, jobID, name)
}

// Publish uploads files from dir and returns their keys in order.
// The first failing upload aborts the mirror.
func (p *S3Publisher) Publish(ctx context.Context, jobID, dir string, files []string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, name := range files {
		key := p.Key(jobID, name)
		if err := p.put(ctx, filepath.Join(dir, name), key); err != nil {
			return keys, fmt.Errorf("failed to upload %s: %w", name, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *S3Publisher) put(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ContentType(localPath)),
	})
	return err
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".ts":   "video/mp2t",
	".avi":  "video/x-msvideo",
}

// ContentType guesses the MIME type of a part from its extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
