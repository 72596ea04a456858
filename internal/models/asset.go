package models

import "time"

// AssetKindPDF is the only asset kind the compressor touches.
const AssetKindPDF = "pdf"

// Asset is the Firestore record describing a stored binary object.
// Original and CompressedOptimizedURL hold object storage locations.
type Asset struct {
	ID                     string    `firestore:"-"`
	Kind                   string    `firestore:"kind,omitempty"`
	Original               string    `firestore:"original,omitempty"`
	CompressedOptimizedURL string    `firestore:"compressedOptimizedUrl,omitempty"`
	CompressedAt           time.Time `firestore:"compressedAt,omitempty"`
}

// IsCompressed reports whether a compressed rendition has already been committed.
func (a *Asset) IsCompressed() bool {
	return a.CompressedOptimizedURL != ""
}
