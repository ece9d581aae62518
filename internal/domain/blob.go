package domain

import "context"

// BlobObject is one object to store. Metadata keys are stored as
// user-defined object metadata.
type BlobObject struct {
	Path        string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// BlobWriter uploads objects to object storage.
type BlobWriter interface {
	Upload(ctx context.Context, obj BlobObject) error
}
