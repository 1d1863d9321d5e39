package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory and pages listings two keys at a time.
type fakeS3 struct {
	objects      map[string][]byte
	contentTypes map[string]string
	failPut      bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut {
		return nil, errors.New("access denied")
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	f.contentTypes[*in.Key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start = sort.SearchStrings(keys, *in.ContinuationToken)
	}
	end := min(start+2, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func snapshotFiles(tag string) map[string][]byte {
	return map[string][]byte{
		"entities.json": []byte(`[{"id":"` + tag + `"}]`),
		"graph.json":    []byte(`{}`),
		"mappings.tsv":  []byte("variant\tcanonical\n"),
	}
}

func TestBackupAndRestore(t *testing.T) {
	client := newFakeS3()
	b := NewS3Backup(client, "island", "/snapshots/")
	ctx := context.Background()

	require.NoError(t, b.Backup(ctx, "v1", snapshotFiles("a")))
	require.NoError(t, b.Backup(ctx, "v2", snapshotFiles("b")))

	assert.Contains(t, client.objects, "snapshots/v1/entities.json")
	assert.Equal(t, "application/json", client.contentTypes["snapshots/v1/entities.json"])

	versions, err := b.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, versions)

	files, err := b.Restore(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, snapshotFiles("a"), files)
}

func TestBackupWithoutPrefix(t *testing.T) {
	client := newFakeS3()
	b := NewS3Backup(client, "island", "")
	ctx := context.Background()

	require.NoError(t, b.Backup(ctx, "v1", snapshotFiles("a")))
	assert.Contains(t, client.objects, "v1/graph.json")

	versions, err := b.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, versions)
}

func TestRestoreMissingVersion(t *testing.T) {
	b := NewS3Backup(newFakeS3(), "island", "snapshots")
	_, err := b.Restore(context.Background(), "v9")
	assert.Error(t, err)
}

func TestBackupUploadFailure(t *testing.T) {
	client := newFakeS3()
	client.failPut = true
	b := NewS3Backup(client, "island", "snapshots")
	err := b.Backup(context.Background(), "v1", snapshotFiles("a"))
	assert.ErrorContains(t, err, "access denied")
}
