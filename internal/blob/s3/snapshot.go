package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// multipartThreshold is the snapshot size above which uploads go multipart.
const multipartThreshold = 16 * 1024 * 1024

// SnapshotKey returns the object key for a ledger snapshot taken at t:
// snapshots/ledger/YYYY/MM/DD/<unix>.json (UTC).
func SnapshotKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("snapshots/ledger/%04d/%02d/%02d/%d.json", t.Year(), int(t.Month()), t.Day(), t.Unix())
}

// SnapshotUploader pushes serialized ledger snapshots to a BlobWriter.
type SnapshotUploader struct {
	writer domain.BlobWriter
}

// NewSnapshotUploader creates an uploader on top of w.
func NewSnapshotUploader(w domain.BlobWriter) *SnapshotUploader {
	return &SnapshotUploader{writer: w}
}

// Upload stores data under SnapshotKey(takenAt) and returns the key.
func (u *SnapshotUploader) Upload(ctx context.Context, takenAt time.Time, data []byte) (string, error) {
	key := SnapshotKey(takenAt)
	var err error
	if len(data) > multipartThreshold {
		err = u.writer.PutMultipart(ctx, key, bytes.NewReader(data), minPartSize)
	} else {
		err = u.writer.Put(ctx, key, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		return "", err
	}
	return key, nil
}
