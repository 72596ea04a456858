package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
)

// DefaultPageSize is the number of records fetched per page.
const DefaultPageSize = 25

// Record is one document of the primary collection.
type Record struct {
	ID   string
	Data map[string]any
}

// RecordStore pages through a Firestore collection in document ID order.
type RecordStore struct {
	collection *firestore.CollectionRef
	pageSize   int
}

// NewRecordStore returns a RecordStore over the named collection.
func NewRecordStore(client *firestore.Client, collection string, pageSize int) *RecordStore {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &RecordStore{collection: client.Collection(collection), pageSize: pageSize}
}

// Count returns the number of documents in the collection at call time.
func (s *RecordStore) Count(ctx context.Context) (int64, error) {
	res, err := s.collection.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.collection.ID, err)
	}
	v, ok := res["all"]
	if !ok {
		return 0, fmt.Errorf("count aggregation for %s returned no result", s.collection.ID)
	}
	pv, ok := v.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count aggregation for %s returned %T", s.collection.ID, v)
	}
	return pv.GetIntegerValue(), nil
}

// Page returns up to pageSize records whose IDs sort strictly after cursor.
// An empty cursor starts from the beginning. The returned cursor is the last
// record's ID, or "" when the page is empty.
func (s *RecordStore) Page(ctx context.Context, cursor string) ([]Record, string, error) {
	q := s.collection.OrderBy(firestore.DocumentID, firestore.Asc).Limit(s.pageSize)
	if cursor != "" {
		q = q.StartAfter(cursor)
	}

	it := q.Documents(ctx)
	defer it.Stop()

	var records []Record
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read page after %q: %w", cursor, err)
		}
		records = append(records, Record{ID: snap.Ref.ID, Data: snap.Data()})
	}
	if len(records) == 0 {
		return nil, "", nil
	}
	return records, records[len(records)-1].ID, nil
}
