package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestQueryBuilderNumbersPlaceholders(t *testing.T) {
	since := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	q := newQuery(`SELECT 1 FROM order_records WHERE handler = $1`, "pin888")
	q.where("created_at >= ", since)
	q.order("created_at DESC")
	q.page(domain.ListOpts{Limit: 50, Offset: 100})

	assert.Equal(t,
		`SELECT 1 FROM order_records WHERE handler = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		q.sql)
	assert.Equal(t, []any{"pin888", since, 50, 100}, q.args)
}

func TestQueryBuilderSkipsEmptyPage(t *testing.T) {
	q := newQuery(`SELECT 1 FROM audit_log WHERE TRUE`)
	q.page(domain.ListOpts{})
	assert.Equal(t, `SELECT 1 FROM audit_log WHERE TRUE`, q.sql)
	assert.Empty(t, q.args)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/hedgebot?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "hedgebot"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
	assert.IsNonDecreasing(t, names)
}
