package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// defaultBatchSize is how many records go into one archive object.
	defaultBatchSize = 500

	// multipartThreshold switches large batches to a multipart upload.
	multipartThreshold = 8 << 20
)

// RecordSource is the part of domain.OrderRecordStore the archiver needs.
type RecordSource interface {
	ListFinalBefore(ctx context.Context, before time.Time, limit int) ([]domain.OrderRecord, error)
	DeleteFinal(ctx context.Context, orderIDs []string) (int64, error)
}

// RecordArchiver implements domain.Archiver. Terminal records older than the
// cutoff are written in batches as JSONL objects under
// archive/order_records/YYYY/MM/DD/ and deleted from the database once the
// upload succeeds.
type RecordArchiver struct {
	writer    domain.BlobWriter
	records   RecordSource
	audit     domain.AuditStore
	batchSize int
	logger    *slog.Logger
}

// NewRecordArchiver creates a RecordArchiver. audit may be nil.
func NewRecordArchiver(writer domain.BlobWriter, records RecordSource, audit domain.AuditStore, logger *slog.Logger) *RecordArchiver {
	return &RecordArchiver{
		writer:    writer,
		records:   records,
		audit:     audit,
		batchSize: defaultBatchSize,
		logger:    logger.With(slog.String("component", "record_archiver")),
	}
}

// SetBatchSize overrides the records per object.
func (a *RecordArchiver) SetBatchSize(n int) {
	if n > 0 {
		a.batchSize = n
	}
}

// ArchiveRecords moves every terminal record last updated before the cutoff
// and returns how many were removed from the database.
func (a *RecordArchiver) ArchiveRecords(ctx context.Context, before time.Time) (int64, error) {
	run := uuid.NewString()[:8]
	var total int64
	for seq := 0; ; seq++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := a.records.ListFinalBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: list final records: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		path := archivePath(before, run, seq)
		if err := a.upload(ctx, path, batch); err != nil {
			return total, err
		}

		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.OrderID
		}
		n, err := a.records.DeleteFinal(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: delete archived records: %w", err)
		}
		total += n

		a.logger.InfoContext(ctx, "archived order records",
			slog.String("path", path),
			slog.Int("records", len(batch)),
			slog.Int64("deleted", n),
		)
		if a.audit != nil {
			if err := a.audit.Log(ctx, "archive_order_records", map[string]any{
				"path":   path,
				"count":  len(batch),
				"before": before.UTC().Format(time.RFC3339),
			}); err != nil {
				a.logger.WarnContext(ctx, "audit archive failed", slog.String("error", err.Error()))
			}
		}

		// A short batch was the last one. No deletions means the same rows
		// would come back forever.
		if len(batch) < a.batchSize || n == 0 {
			return total, nil
		}
	}
}

func (a *RecordArchiver) upload(ctx context.Context, path string, batch []domain.OrderRecord) error {
	buf, err := marshalJSONL(batch)
	if err != nil {
		return fmt.Errorf("s3blob: encode %s: %w", path, err)
	}
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}

// archivePath partitions objects by the cutoff's day, e.g.
// archive/order_records/2026/10/19/20261019T030000Z-1a2b3c4d-0000.jsonl.
func archivePath(before time.Time, run string, seq int) string {
	b := before.UTC()
	return fmt.Sprintf("archive/order_records/%s/%s-%s-%04d.jsonl",
		b.Format("2006/01/02"), b.Format("20060102T150405Z"), run, seq)
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*RecordArchiver)(nil)
