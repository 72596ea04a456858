package gcp

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// Clients owns the Firestore and Cloud Storage handles for one run.
// Open it at run start and Close it when the run ends.
type Clients struct {
	Firestore *firestore.Client
	Storage   *storage.Client
}

// Open creates both clients concurrently. If either fails, the other is
// closed and the error is returned.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Clients, error) {
	var c Clients
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		client, err := NewFirestoreClient(gctx, projectID, opts...)
		if err != nil {
			return err
		}
		c.Firestore = client
		return nil
	})
	eg.Go(func() error {
		client, err := storage.NewClient(gctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create Storage client: %w", err)
		}
		c.Storage = client
		return nil
	})
	if err := eg.Wait(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &c, nil
}

// Close releases both clients. It is safe to call on a partially opened value.
func (c *Clients) Close() error {
	var errs []error
	if c.Firestore != nil {
		if err := c.Firestore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close firestore: %w", err))
		}
		c.Firestore = nil
	}
	if c.Storage != nil {
		if err := c.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
		c.Storage = nil
	}
	return errors.Join(errs...)
}
