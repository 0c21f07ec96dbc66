package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	failAt  int
	puts    int
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	w.puts++
	if w.failAt > 0 && w.puts == w.failAt {
		return errors.New("bucket unavailable")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, jsonlContentType)
}

type memSource struct {
	records []domain.OrderRecord
}

func (s *memSource) ListFinalBefore(_ context.Context, before time.Time, limit int) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	for _, r := range s.records {
		if r.Final() && r.UpdatedAt.Before(before) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memSource) DeleteFinal(_ context.Context, ids []string) (int64, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	var kept []domain.OrderRecord
	var n int64
	for _, r := range s.records {
		if drop[r.OrderID] && r.Final() {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}
func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}
func (a *memAudit) ListByOrder(context.Context, string) ([]domain.AuditEntry, error) {
	return nil, nil
}

func seed(n int, status domain.RecordStatus, updated time.Time) []domain.OrderRecord {
	out := make([]domain.OrderRecord, n)
	for i := range out {
		out[i] = domain.OrderRecord{
			OrderID:   fmt.Sprintf("%s-%03d", status, i),
			Handler:   "pin888",
			Market:    domain.NewTotal(domain.SideOver, decimal.RequireFromString("2.5")),
			Price:     decimal.RequireFromString("1.95"),
			Stake:     decimal.NewFromInt(100),
			Status:    status,
			UpdatedAt: updated,
		}
	}
	return out
}

func countLines(t *testing.T, b []byte) int {
	t.Helper()
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var rec domain.OrderRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		n++
	}
	return n
}

func TestArchiveRecordsMovesTerminalRecordsInBatches(t *testing.T) {
	cutoff := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)

	src := &memSource{}
	src.records = append(src.records, seed(5, domain.RecordPlaced, old)...)
	src.records = append(src.records, seed(2, domain.RecordTimedOut, old)...)
	src.records = append(src.records, seed(3, domain.RecordOpen, old)...)
	src.records = append(src.records, seed(1, domain.RecordFailed, cutoff.Add(time.Hour))...)

	w := &memWriter{objects: make(map[string][]byte)}
	audit := &memAudit{}
	a := NewRecordArchiver(w, src, audit, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.SetBatchSize(3)

	n, err := a.ArchiveRecords(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	require.Len(t, w.objects, 3)
	lines := 0
	for path, body := range w.objects {
		assert.True(t, strings.HasPrefix(path, "archive/order_records/2026/10/19/20261019T030000Z-"), path)
		assert.True(t, strings.HasSuffix(path, ".jsonl"), path)
		lines += countLines(t, body)
	}
	assert.Equal(t, 7, lines)
	assert.Len(t, audit.events, 3)

	// Open records and recent terminal records stay.
	assert.Len(t, src.records, 4)
	for _, r := range src.records {
		assert.True(t, r.Status == domain.RecordOpen || r.UpdatedAt.After(cutoff))
	}
}

func TestArchiveRecordsKeepsRowsWhenUploadFails(t *testing.T) {
	cutoff := time.Now().UTC()
	src := &memSource{records: seed(4, domain.RecordPlaced, cutoff.Add(-time.Hour))}
	w := &memWriter{objects: make(map[string][]byte), failAt: 2}
	a := NewRecordArchiver(w, src, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.SetBatchSize(2)

	n, err := a.ArchiveRecords(context.Background(), cutoff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
	assert.Equal(t, int64(2), n)
	assert.Len(t, src.records, 2)
}

func TestArchiveRecordsNothingToDo(t *testing.T) {
	w := &memWriter{objects: make(map[string][]byte)}
	a := NewRecordArchiver(w, &memSource{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := a.ArchiveRecords(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "https://minio:9000", withScheme("minio:9000", true))
	assert.Equal(t, "http://minio:9000", withScheme("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", withScheme("https://s3.example.com", false))
}
