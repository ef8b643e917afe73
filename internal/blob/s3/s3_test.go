package s3blob

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	path        string
	body        string
	contentType string
	multipart   bool
}

func (r *recordingWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	r.path, r.body, r.contentType = path, string(b), contentType
	return err
}

func (r *recordingWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	r.path, r.body, r.multipart = path, string(b), true
	return err
}

func TestSnapshotKey(t *testing.T) {
	ts := time.Date(2025, 9, 22, 17, 0, 0, 0, time.FixedZone("x", 3600))
	assert.Equal(t, "snapshots/ledger/2025/09/22/1758556800.json", SnapshotKey(ts))
}

func TestSnapshotUploader(t *testing.T) {
	w := &recordingWriter{}
	ts := time.Unix(1758556800, 0)

	key, err := NewSnapshotUploader(w).Upload(t.Context(), ts, []byte(`{"markets":{}}`))
	require.NoError(t, err)
	assert.Equal(t, SnapshotKey(ts), key)
	assert.Equal(t, key, w.path)
	assert.Equal(t, `{"markets":{}}`, w.body)
	assert.Equal(t, "application/json", w.contentType)
	assert.False(t, w.multipart)
}

type fakeS3 struct {
	putObjectAPI
	got *s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.got = in
	return &s3.PutObjectOutput{}, nil
}

func TestWriter_Put(t *testing.T) {
	api := &fakeS3{}
	w := &Writer{api: api, bucket: "ladder"}
	require.NoError(t, w.Put(t.Context(), "k.json", nil, "application/json"))
	assert.Equal(t, "ladder", aws.ToString(api.got.Bucket))
	assert.Equal(t, "k.json", aws.ToString(api.got.Key))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
}
