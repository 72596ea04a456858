package gcp

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// LocationStyle records how a location was written so a derived location
// can be rendered the same way.
type LocationStyle int

const (
	// StyleKey is a bare object key resolved against the default bucket.
	StyleKey LocationStyle = iota
	// StyleGS is gs://bucket/key.
	StyleGS
	// StylePathURL is https://storage.googleapis.com/bucket/key.
	StylePathURL
	// StyleHostURL is https://bucket.storage.googleapis.com/key.
	StyleHostURL
)

const storageHost = "storage.googleapis.com"

// Location identifies one Cloud Storage object.
type Location struct {
	Bucket string
	Key    string
	Style  LocationStyle
	host   string
}

// ParseLocation accepts gs:// URIs, storage.googleapis.com URLs (path or
// virtual-host form, also storage.cloud.google.com) and bare keys. Bare keys
// resolve against defaultBucket.
func ParseLocation(raw, defaultBucket string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("empty storage location")
	}

	if !strings.Contains(raw, "://") {
		key := strings.TrimPrefix(raw, "/")
		if defaultBucket == "" {
			return Location{}, fmt.Errorf("location %q has no bucket and no default bucket is configured", raw)
		}
		if key == "" {
			return Location{}, fmt.Errorf("location %q has an empty object key", raw)
		}
		return Location{Bucket: defaultBucket, Key: key, Style: StyleKey}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid storage location %q: %w", raw, err)
	}

	var loc Location
	switch {
	case u.Scheme == "gs":
		loc = Location{Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/"), Style: StyleGS}
	case (u.Scheme == "https" || u.Scheme == "http") && (u.Host == storageHost || u.Host == "storage.cloud.google.com"):
		bucket, key, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		loc = Location{Bucket: bucket, Key: key, Style: StylePathURL, host: u.Host}
	case (u.Scheme == "https" || u.Scheme == "http") && strings.HasSuffix(u.Host, "."+storageHost):
		loc = Location{Bucket: strings.TrimSuffix(u.Host, "."+storageHost), Key: strings.TrimPrefix(u.Path, "/"), Style: StyleHostURL}
	default:
		return Location{}, fmt.Errorf("location %q is not a Cloud Storage object", raw)
	}
	if loc.Bucket == "" || loc.Key == "" {
		return Location{}, fmt.Errorf("location %q is missing a bucket or object key", raw)
	}
	return loc, nil
}

// String renders the location in its original style.
func (l Location) String() string {
	switch l.Style {
	case StyleGS:
		return "gs://" + l.Bucket + "/" + l.Key
	case StylePathURL:
		host := l.host
		if host == "" {
			host = storageHost
		}
		return (&url.URL{Scheme: "https", Host: host, Path: "/" + l.Bucket + "/" + l.Key}).String()
	case StyleHostURL:
		return (&url.URL{Scheme: "https", Host: l.Bucket + "." + storageHost, Path: "/" + l.Key}).String()
	default:
		return l.Key
	}
}

// FileName is the base name of the object key.
func (l Location) FileName() string {
	name := path.Base(l.Key)
	if name == "." || name == "/" {
		return "source.pdf"
	}
	return name
}

// Sibling returns a location in the same bucket whose key has its extension
// replaced by suffix, e.g. docs/a.pdf -> docs/a_compressed.pdf.
func (l Location) Sibling(suffix string) Location {
	out := l
	out.Key = strings.TrimSuffix(l.Key, path.Ext(l.Key)) + suffix
	return out
}
