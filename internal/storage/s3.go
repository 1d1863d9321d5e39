// Package storage keeps off-box copies of replaced snapshots in S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/internal/config"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds a path-style client for AWS or an S3 compatible
// endpoint such as MinIO.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backup stores snapshots under <prefix>/<version>/<file>.
type S3Backup struct {
	client s3API
	bucket string
	prefix string
}

var _ store.Backup = (*S3Backup)(nil)

func NewS3Backup(client s3API, bucket, prefix string) *S3Backup {
	return &S3Backup{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *S3Backup) key(version, name string) string {
	return path.Join(b.prefix, version, name)
}

// Backup uploads every file of version.
func (b *S3Backup) Backup(ctx context.Context, version string, files map[string][]byte) error {
	for _, name := range store.SortedNames(files) {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(b.key(version, name)),
			Body:        bytes.NewReader(files[name]),
			ContentType: aws.String(contentType(name)),
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s to S3: %w", b.key(version, name), err)
		}
	}
	logger.Info("[Storage] Snapshot backed up", "version", version, "bucket", b.bucket, "files", len(files))
	return nil
}

// Versions lists the backed up snapshot versions, sorted.
func (b *S3Backup) Versions(ctx context.Context) ([]string, error) {
	root := ""
	if b.prefix != "" {
		root = b.prefix + "/"
	}
	keys, err := b.list(ctx, root)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, k := range keys {
		rel := strings.TrimPrefix(k, root)
		if version, _, ok := strings.Cut(rel, "/"); ok {
			versions = append(versions, version)
		}
	}
	versions = store.DedupeStrings(versions)
	sort.Strings(versions)
	return versions, nil
}

// Restore downloads every file of a backed up version.
func (b *S3Backup) Restore(ctx context.Context, version string) (map[string][]byte, error) {
	prefix := b.key(version, "") + "/"
	keys, err := b.list(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no backup of snapshot %q", version)
	}

	files := make(map[string][]byte, len(keys))
	for _, k := range keys {
		result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(k),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get %s from S3: %w", k, err)
		}
		data, err := io.ReadAll(result.Body)
		result.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", k, err)
		}
		files[strings.TrimPrefix(k, prefix)] = data
	}
	return files, nil
}

func (b *S3Backup) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := b.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}
	return keys, nil
}

func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "text/plain"
}
