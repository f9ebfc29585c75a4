// Package blobstore provides the blob-backed persistence layer: one JSON
// record per ornament under records/, and raw media blobs under per-category
// prefixes. The blob key space is the only shared state in the system;
// there is no database and no queue. Writes are last-writer-wins full
// replacements; the store offers no conditional writes, so callers key
// everything by the caller-supplied ornament id.
package blobstore

import (
	"context"

	"github.com/waywereminisce/ornament-api/internal/letter"
)

// RecordPrefix is the key prefix for submission record documents.
const RecordPrefix = "records/"

// RecordKey returns the blob key holding the record JSON for an ornament id.
func RecordKey(id string) string {
	return RecordPrefix + id + ".json"
}

// Store is the blob record store. Each method is safe for concurrent use.
//
// GetRecord returns (nil, nil) when no record exists for the id.
// PutRecord and PutMedia perform full-object replacement.
type Store interface {
	// PutRecord writes the record JSON at records/{id}.json, overwriting.
	PutRecord(ctx context.Context, rec *letter.Record) error

	// GetRecord fetches and decodes one record. Returns nil, nil if absent.
	GetRecord(ctx context.Context, id string) (*letter.Record, error)

	// ListRecords fetches and decodes every record under records/.
	// Undecodable blobs are skipped with a warning, not surfaced as errors.
	ListRecords(ctx context.Context) ([]*letter.Record, error)

	// PutMedia stores raw media bytes at the given key and returns the
	// publicly fetchable URL of the stored blob.
	PutMedia(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// ListKeys returns all blob keys under the given prefix. An empty
	// prefix lists the whole key space.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the given blob keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Fetch retrieves blob bytes by URL, including artifact downloads
	// from the generation service's result URLs.
	Fetch(ctx context.Context, url string) ([]byte, error)
}
