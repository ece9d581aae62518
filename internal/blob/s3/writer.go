package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// minPartSize is the smallest part S3 accepts in a multipart upload.
const minPartSize int64 = 5 * 1024 * 1024

// DefaultMultipartThreshold is the body size above which uploads go through
// the multipart manager.
const DefaultMultipartThreshold int64 = 8 * 1024 * 1024

// Writer implements domain.BlobWriter on the client's bucket.
type Writer struct {
	c         *Client
	threshold int64
	uploader  *manager.Uploader
}

// NewWriter creates a Writer. threshold <= 0 uses DefaultMultipartThreshold
// and is never below the 5 MiB part minimum.
func NewWriter(c *Client, threshold int64) *Writer {
	if threshold <= 0 {
		threshold = DefaultMultipartThreshold
	}
	threshold = max(threshold, minPartSize)
	return &Writer{
		c:         c,
		threshold: threshold,
		uploader: manager.NewUploader(c.s3, func(u *manager.Uploader) {
			u.PartSize = threshold
		}),
	}
}

// Upload stores obj with a single PutObject when it fits under the
// threshold and through the multipart manager otherwise.
func (w *Writer) Upload(ctx context.Context, obj domain.BlobObject) error {
	key := w.c.objectKey(obj.Path)
	in := &s3.PutObjectInput{
		Bucket:   aws.String(w.c.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(obj.Body),
		Metadata: obj.Metadata,
	}
	if obj.ContentType != "" {
		in.ContentType = aws.String(obj.ContentType)
	}

	if w.multipart(len(obj.Body)) {
		if _, err := w.uploader.Upload(ctx, in); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
		return nil
	}
	in.ContentLength = aws.Int64(int64(len(obj.Body)))
	if _, err := w.c.s3.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

func (w *Writer) multipart(size int) bool { return int64(size) > w.threshold }

var _ domain.BlobWriter = (*Writer)(nil)
