package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/pdfassetmigrator/internal/models"
)

// ErrAssetNotFound means no asset of the in-scope kind exists for an ID.
var ErrAssetNotFound = errors.New("asset not found")

// AssetStore reads and updates asset metadata in Firestore.
type AssetStore struct {
	collection *firestore.CollectionRef
}

// NewAssetStore returns an AssetStore over the named collection.
func NewAssetStore(client *firestore.Client, collection string) *AssetStore {
	return &AssetStore{collection: client.Collection(collection)}
}

// GetAsset fetches a PDF asset by ID. Absent assets and assets of another
// kind both yield ErrAssetNotFound.
func (s *AssetStore) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	if err := checkAssetID(id); err != nil {
		return nil, err
	}
	ref := s.collection.Doc(id)
	docs, err := s.collection.
		Where(firestore.DocumentID, "==", ref).
		Where("kind", "==", models.AssetKindPDF).
		Select("kind", "original", "compressedOptimizedUrl").
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query asset %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, ErrAssetNotFound
	}
	var asset models.Asset
	if err := docs[0].DataTo(&asset); err != nil {
		return nil, fmt.Errorf("failed to decode asset %s: %w", id, err)
	}
	asset.ID = docs[0].Ref.ID
	return &asset, nil
}

// SetCompressedURL records the compressed rendition location. It never
// creates a document; a missing asset is a persistence error.
func (s *AssetStore) SetCompressedURL(ctx context.Context, id, url string) error {
	if err := checkAssetID(id); err != nil {
		return err
	}
	ref := s.collection.Doc(id)
	updates := []firestore.Update{
		{Path: "compressedOptimizedUrl", Value: url},
		{Path: "compressedAt", Value: firestore.ServerTimestamp},
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("failed to update asset: %w: %s", ErrAssetNotFound, id)
		}
		return fmt.Errorf("failed to update asset %s: %w", id, err)
	}
	return nil
}

// checkAssetID rejects IDs that cannot name a document directly in the
// collection. Such a reference can never match an asset.
func checkAssetID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
	case strings.Contains(id, "/"):
	case len(id) > 4 && strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"):
	default:
		return nil
	}
	return fmt.Errorf("%w: invalid id %q", ErrAssetNotFound, id)
}
