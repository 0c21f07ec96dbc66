package session

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestRecordStorePutDefaults(t *testing.T) {
	s := NewRecordStore()
	rec, err := s.Put(domain.OrderRecord{OrderID: "o1", Stake: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, domain.RecordOpen, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())

	_, err = s.Put(domain.OrderRecord{})
	assert.Error(t, err)
}

func TestRecordStorePutKeepsCreationAndRetries(t *testing.T) {
	s := NewRecordStore()
	first, err := s.Put(domain.OrderRecord{OrderID: "o1", RetryCount: 3})
	require.NoError(t, err)

	second, err := s.Put(domain.OrderRecord{OrderID: "o1", RetryCount: 1, Price: decimal.RequireFromString("1.9")})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 3, second.RetryCount)
	assert.True(t, second.Price.Equal(decimal.RequireFromString("1.9")))
}

func TestRecordStoreFinalIsImmutable(t *testing.T) {
	s := NewRecordStore()
	_, err := s.Put(domain.OrderRecord{OrderID: "o1"})
	require.NoError(t, err)

	_, err = s.Update("o1", func(r *domain.OrderRecord) error {
		r.Status = domain.RecordPlaced
		r.TicketID = "T-1"
		return nil
	})
	require.NoError(t, err)

	_, err = s.Update("o1", func(r *domain.OrderRecord) error {
		r.TicketID = "T-2"
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrRecordFinal)

	_, err = s.Put(domain.OrderRecord{OrderID: "o1"})
	assert.ErrorIs(t, err, domain.ErrRecordFinal)

	rec, ok := s.Get("o1")
	require.True(t, ok)
	assert.Equal(t, "T-1", rec.TicketID)
	assert.Equal(t, domain.RecordPlaced, rec.Status)
}

func TestRecordStoreUpdate(t *testing.T) {
	s := NewRecordStore()
	_, err := s.Update("missing", func(*domain.OrderRecord) error { return nil })
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = s.Put(domain.OrderRecord{OrderID: "o1", RetryCount: 2})
	require.NoError(t, err)

	rec, err := s.Update("o1", func(r *domain.OrderRecord) error {
		r.OrderID = "hijack"
		r.RetryCount = 0
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", rec.OrderID)
	assert.Equal(t, 2, rec.RetryCount)

	boom := errors.New("boom")
	_, err = s.Update("o1", func(r *domain.OrderRecord) error {
		r.RetryCount = 9
		return boom
	})
	assert.ErrorIs(t, err, boom)
	rec, _ = s.Get("o1")
	assert.Equal(t, 2, rec.RetryCount)
}

func TestRecordStoreListAndEvict(t *testing.T) {
	s := NewRecordStore()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Put(domain.OrderRecord{OrderID: id})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())
	assert.Len(t, s.List(), 3)

	s.Evict("b")
	_, ok := s.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
}
