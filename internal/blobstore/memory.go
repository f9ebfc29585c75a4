package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/waywereminisce/ornament-api/internal/letter"
)

// MemStore is an in-memory Store used by tests and local development.
// Media URLs use a mem:// scheme that Fetch resolves back to the stored
// bytes, so the full upload → merge → download cycle can run without S3.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		blobs: make(map[string][]byte),
		types: make(map[string]string),
	}
}

// URL returns the mem:// URL for a blob key.
func (m *MemStore) URL(key string) string {
	return "mem://blobs/" + key
}

func (m *MemStore) PutRecord(ctx context.Context, rec *letter.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[RecordKey(rec.ID)] = data
	m.types[RecordKey(rec.ID)] = "application/json"
	return nil
}

func (m *MemStore) GetRecord(ctx context.Context, id string) (*letter.Record, error) {
	m.mu.Lock()
	data, ok := m.blobs[RecordKey(id)]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var rec letter.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *MemStore) ListRecords(ctx context.Context) ([]*letter.Record, error) {
	keys, err := m.ListKeys(ctx, RecordPrefix)
	if err != nil {
		return nil, err
	}
	records := make([]*letter.Record, 0, len(keys))
	for _, key := range keys {
		m.mu.Lock()
		data := m.blobs[key]
		m.mu.Unlock()
		var rec letter.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (m *MemStore) PutMedia(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return m.URL(key), nil
}

func (m *MemStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.blobs, key)
		delete(m.types, key)
	}
	return nil
}

func (m *MemStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	key, ok := strings.CutPrefix(url, "mem://blobs/")
	if !ok {
		return nil, fmt.Errorf("fetch %s: unsupported URL scheme", url)
	}
	m.mu.Lock()
	data, found := m.blobs[key]
	m.mu.Unlock()
	if !found {
		return nil, fmt.Errorf("fetch %s: not found", url)
	}
	return append([]byte(nil), data...), nil
}

// ContentType reports the stored content type for a key. Test helper.
func (m *MemStore) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[key]
}
