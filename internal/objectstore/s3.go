// Package objectstore wraps the AWS S3 client with the retry and
// streaming conventions this pipeline needs: exponential backoff on
// transient errors, existence checks that don't treat 404 as a fault,
// and small helpers for JSON/JSONL upload.
//
// Grounded on the other_examples OHLCV ingestion pipeline's
// getS3ObjectWithRetry (backoff shape, rate-limit detection) and on
// original_source/s3_utils.py for the operation set this package
// exposes (download, upload_json, upload_jsonl, exists).
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/asiafilings/filing-etl-worker/internal/logging"
)

const maxRetries = 5

// Store is the lazily initialized, process-wide shared S3 client.
type Store struct {
	client *s3.Client
	log    *logging.Logger
}

// New builds a Store from the default AWS credential chain/region
// resolution, matching the teacher's lazy-singleton client pattern.
func New(ctx context.Context, log *logging.Logger) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Store{client: s3.NewFromConfig(cfg), log: log}, nil
}

// GetObject downloads an object's full body with retry on transient
// failures. A 404/NoSuchKey is returned as (nil, nil) — absence of the
// object is not itself an error at this layer.
func (s *Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(float64(int64(1)<<attempt), 30)) * time.Second
			s.log.Warn("retrying s3 get", "bucket", bucket, "key", key, "attempt", attempt, "backoff", backoff.String())
			time.Sleep(backoff)
		}

		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			if !isTransient(err) {
				return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
			}
			lastErr = err
			continue
		}

		body, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("get s3://%s/%s failed after %d attempts: %w", bucket, key, maxRetries, lastErr)
}

// Exists reports whether an object is present, treating 404/NoSuchKey
// as false rather than an error (mirrors _object_exists in
// original_source/ocr_worker.py).
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// PutBytes uploads a raw body with the given content type.
func (s *Store) PutBytes(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// PutJSON uploads a value as a single JSON object.
func (s *Store) PutJSON(ctx context.Context, bucket, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json for s3://%s/%s: %w", bucket, key, err)
	}
	return s.PutBytes(ctx, bucket, key, body, "application/json")
}

// PutJSONL uploads a slice of JSON-serializable records as newline
// delimited JSON, one compact record per line.
func (s *Store) PutJSONL(ctx context.Context, bucket, key string, records []interface{}) error {
	var buf bytes.Buffer
	for i, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal jsonl record %d for s3://%s/%s: %w", i, bucket, key, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return s.PutBytes(ctx, bucket, key, buf.Bytes(), "application/x-ndjson")
}

func isNotFound(err error) bool {
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "StatusCode: 404") || strings.Contains(err.Error(), "NotFound")
}

func isTransient(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"RequestTimeout", "SlowDown", "Throttling", "InternalError", "ServiceUnavailable", "connection reset", "EOF"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
