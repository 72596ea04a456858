package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ErrObjectNotFound is returned when a source object does not exist.
var ErrObjectNotFound = errors.New("storage object not found")

// ObjectStore streams objects between Cloud Storage and local scratch files.
type ObjectStore struct {
	client       *storage.Client
	MaxRetries   int
	Backoff      time.Duration
	WriteTimeout time.Duration
}

// NewObjectStore wraps a storage client with the default retry policy.
func NewObjectStore(client *storage.Client) *ObjectStore {
	return &ObjectStore{
		client:       client,
		MaxRetries:   4,
		Backoff:      1 * time.Second,
		WriteTimeout: 50 * time.Second,
	}
}

// Download copies the object at loc into destPath and returns the bytes written.
func (s *ObjectStore) Download(ctx context.Context, loc Location, destPath string) (int64, error) {
	gcsReader, err := s.client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return 0, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, loc.Bucket, loc.Key)
		}
		return 0, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	defer gcsReader.Close()
	return copyToFile(destPath, gcsReader)
}

// copyToFile writes r to a new file at path. A failed close is an error, so a
// short file is never reported as complete.
func copyToFile(path string, r io.Reader) (int64, error) {
	localFile, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file at %s: %w", path, err)
	}
	n, err := io.Copy(localFile, r)
	if err != nil {
		_ = localFile.Close()
		return n, fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	if err := localFile.Close(); err != nil {
		return n, fmt.Errorf("failed to close local file %s: %w", path, err)
	}
	return n, nil
}

// Upload writes localPath to loc, retrying transient failures with
// exponential backoff. Existing objects are overwritten.
func (s *ObjectStore) Upload(ctx context.Context, loc Location, localPath string) error {
	backoff := s.Backoff
	var lastErr error

	for i := 0; i < s.MaxRetries; i++ {
		err := s.uploadOnce(ctx, loc, localPath)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", loc.String(),
			"attempt", i+1,
			"maxRetries", s.MaxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", loc.String(), lastErr)
}

func (s *ObjectStore) uploadOnce(ctx context.Context, loc Location, localPath string) error {
	localFileReader, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer localFileReader.Close()

	writeCtx, cancel := context.WithTimeout(ctx, s.WriteTimeout)
	defer cancel()

	gcsWriter := s.client.Bucket(loc.Bucket).Object(loc.Key).NewWriter(writeCtx)
	gcsWriter.ContentType = "application/pdf"

	if _, err := io.Copy(gcsWriter, localFileReader); err != nil {
		_ = gcsWriter.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}

	if err := gcsWriter.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

// IsRetryable reports whether an upload error is worth another attempt.
// Client-side API errors other than timeouts and throttling are final.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, os.ErrNotExist) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusRequestTimeout, gerr.Code == http.StatusTooManyRequests:
			return true
		case gerr.Code >= 400 && gerr.Code < 500:
			return false
		}
	}
	return true
}
