package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/waywereminisce/ornament-api/internal/letter"
)

// fetchTimeout bounds a single Fetch round trip. Generated GLB files run to
// a few megabytes; result URLs are served from the generation provider's CDN.
const fetchTimeout = 60 * time.Second

// S3Store implements Store on an S3 bucket with public-read objects,
// mirroring the put/list/fetch-by-URL semantics of a hosted blob service.
type S3Store struct {
	client *s3.Client
	bucket string
	region string
	httpc  *http.Client
}

// NewS3Store creates an S3-backed store for the given bucket and region.
func NewS3Store(client *s3.Client, bucket, region string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		httpc:  &http.Client{Timeout: fetchTimeout},
	}
}

// URL returns the public virtual-hosted URL for a blob key.
func (s *S3Store) URL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func (s *S3Store) PutRecord(ctx context.Context, rec *letter.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	key := RecordKey(rec.ID)
	contentType := "application/json"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Record written")
	return nil
}

func (s *S3Store) GetRecord(ctx context.Context, id string) (*letter.Record, error) {
	key := RecordKey(id)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", id, err)
	}
	var rec letter.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *S3Store) ListRecords(ctx context.Context) ([]*letter.Record, error) {
	keys, err := s.ListKeys(ctx, RecordPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]*letter.Record, 0, len(keys))
	for _, key := range keys {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
		})
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping unreadable record blob")
			continue
		}
		data, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping unreadable record blob")
			continue
		}
		var rec letter.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable record blob")
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *S3Store) PutMedia(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put media %s: %w", key, err)
	}
	log.Info().Str("key", key).Int("bytes", len(data)).Str("contentType", contentType).Msg("Media blob stored")
	return s.URL(key), nil
}

func (s *S3Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, *obj.Key)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}
	return keys, nil
}

func (s *S3Store) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
		})
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		log.Info().Str("key", key).Msg("Blob deleted")
	}
	return nil
}

func (s *S3Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fetch body: %w", err)
	}
	return data, nil
}
