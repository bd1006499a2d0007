package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// ObjectWriter writes objects to cloud storage.
// This interface enables mocking and testing of storage functionality.
type ObjectWriter interface {
	// WriteObject stores the contents of r under bucket/object and returns
	// the gs:// URI of the stored object.
	WriteObject(ctx context.Context, bucket, object, contentType string, r io.Reader) (string, error)
}

// ObjectReader reads objects back from cloud storage.
type ObjectReader interface {
	// ReadObject downloads the object at a gs:// URI.
	ReadObject(ctx context.Context, uri string) ([]byte, error)
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits gs://bucket/path/to/object into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.csv" → "file.csv"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
