package extractionworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/asiafilings/filing-etl-worker/internal/logging"
	"github.com/asiafilings/filing-etl-worker/internal/objectstore"
	"github.com/asiafilings/filing-etl-worker/internal/pagemodel"
)

// shardWriter buffers PageRecords into newline-delimited JSON and
// flushes a part to the object store whenever the buffer reaches
// shardSizeBytes, naming parts sequentially per shardKey.
type shardWriter struct {
	store        *objectstore.Store
	outputBucket string
	outputPrefix string
	exchange     string
	jobIndex     int
	maxBytes     int

	log  *logging.Logger
	buf  bytes.Buffer
	part int
}

func newShardWriter(store *objectstore.Store, outputBucket, outputPrefix, exchange string, jobIndex, maxBytes int, log *logging.Logger) *shardWriter {
	return &shardWriter{
		store: store, outputBucket: outputBucket, outputPrefix: outputPrefix,
		exchange: exchange, jobIndex: jobIndex, maxBytes: maxBytes, log: log,
	}
}

// Write appends one record, flushing the current shard first if
// appending it would exceed maxBytes.
func (s *shardWriter) Write(record pagemodel.PageRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal page record: %w", err)
	}

	if s.buf.Len() > 0 && s.buf.Len()+len(line)+1 > s.maxBytes {
		if err := s.flush(); err != nil {
			return err
		}
	}

	s.buf.Write(line)
	s.buf.WriteByte('\n')
	return nil
}

// Close flushes any remaining buffered records as a final shard.
func (s *shardWriter) Close() error {
	if s.buf.Len() == 0 {
		return nil
	}
	return s.flush()
}

func (s *shardWriter) flush() error {
	key := shardKey(s.outputPrefix, s.exchange, s.jobIndex, s.part)
	if err := s.store.PutBytes(context.Background(), s.outputBucket, key, s.buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("upload shard %s: %w", key, err)
	}
	s.log.Info("uploaded output shard", "key", key, "bytes", s.buf.Len())
	s.part++
	s.buf.Reset()
	return nil
}
