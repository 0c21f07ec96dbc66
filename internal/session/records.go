package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// RecordStore is a session's order records keyed by order id. Records that
// reached a terminal status reject every further write.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.OrderRecord
	now     func() time.Time
}

// NewRecordStore returns an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]domain.OrderRecord), now: time.Now}
}

// Get returns a copy of the record for orderID.
func (s *RecordStore) Get(orderID string) (domain.OrderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[orderID]
	return rec, ok
}

// Put creates or replaces the record. Replacing a final record fails with
// domain.ErrRecordFinal.
func (s *RecordStore) Put(rec domain.OrderRecord) (domain.OrderRecord, error) {
	if rec.OrderID == "" {
		return domain.OrderRecord{}, fmt.Errorf("session: put record: empty order id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cur, ok := s.records[rec.OrderID]; ok {
		if cur.Final() {
			return cur, fmt.Errorf("session: put record %s: %w", rec.OrderID, domain.ErrRecordFinal)
		}
		rec.CreatedAt = cur.CreatedAt
		if rec.RetryCount < cur.RetryCount {
			rec.RetryCount = cur.RetryCount
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Status == "" {
		rec.Status = domain.RecordOpen
	}
	rec.UpdatedAt = now
	s.records[rec.OrderID] = rec
	return rec, nil
}

// Update applies fn to a copy of the record and stores the result. The order
// id is fixed and the retry count never decreases.
func (s *RecordStore) Update(orderID string, fn func(*domain.OrderRecord) error) (domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[orderID]
	if !ok {
		return domain.OrderRecord{}, fmt.Errorf("session: update record %s: %w", orderID, domain.ErrRecordNotFound)
	}
	if cur.Final() {
		return cur, fmt.Errorf("session: update record %s: %w", orderID, domain.ErrRecordFinal)
	}

	next := cur
	if err := fn(&next); err != nil {
		return cur, err
	}
	next.OrderID = cur.OrderID
	next.CreatedAt = cur.CreatedAt
	if next.RetryCount < cur.RetryCount {
		next.RetryCount = cur.RetryCount
	}
	next.UpdatedAt = s.now()
	s.records[orderID] = next
	return next, nil
}

// Evict drops the record for orderID.
func (s *RecordStore) Evict(orderID string) {
	s.mu.Lock()
	delete(s.records, orderID)
	s.mu.Unlock()
}

// Len returns the number of records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// List returns every record, oldest first.
func (s *RecordStore) List() []domain.OrderRecord {
	s.mu.RLock()
	out := make([]domain.OrderRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
