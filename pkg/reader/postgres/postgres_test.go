package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/pgpool"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name    string
		columns map[string]bool
		want    string
	}{
		{
			name:    "all columns",
			columns: map[string]bool{"address": true, "date": true, "body": true, "type": true},
			want: `SELECT COALESCE(address::text, ''), COALESCE(date, 0)::bigint, COALESCE(body::text, '') ` +
				`FROM "sms" WHERE type::text = '1' ORDER BY 2 DESC`,
		},
		{
			name:    "missing date and type",
			columns: map[string]bool{"address": true, "body": true},
			want:    `SELECT COALESCE(address::text, ''), 0::bigint, COALESCE(body::text, '') FROM "sms"`,
		},
		{
			name:    "body only",
			columns: map[string]bool{"body": true},
			want:    `SELECT '', 0::bigint, COALESCE(body::text, '') FROM "sms"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildQuery(pgx.Identifier{"sms"}, tt.columns))
		})
	}
}

func TestNew_SchemaQualifiedTable(t *testing.T) {
	r := New(Config{Table: "phone.inbox"}, nil)

	assert.Equal(t, "phone", r.schema)
	assert.Equal(t, "inbox", r.table)
	assert.Equal(t, `"phone"."inbox"`, r.identifier().Sanitize())
}

func TestMessages_Unreachable(t *testing.T) {
	r := New(Config{Config: pgpool.Config{Host: "127.0.0.1", Port: 1, Database: "sms", User: "sms"}}, nil)

	_, err := r.Messages(context.Background())
	assert.ErrorIs(t, err, api.ErrSourceUnavailable)
}

func startPostgres(t *testing.T) pgpool.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("sms"),
		tcpostgres.WithUsername("sms"),
		tcpostgres.WithPassword("sms"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return pgpool.Config{URL: connStr}
}

func TestMessages_Integration(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	r := New(Config{Config: cfg}, nil)
	defer r.Close()

	// Missing table reads as an unavailable store.
	_, err := r.Messages(ctx)
	require.ErrorIs(t, err, api.ErrSourceUnavailable)

	granted, err := r.HasPermission(ctx)
	require.NoError(t, err)
	assert.True(t, granted)

	pool, err := r.connect(ctx)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		CREATE TABLE sms (address text, date bigint, body text, type int);
		INSERT INTO sms VALUES
			('AXISBK', 2000, 'Your a/c debited INR 1,234.00 UTR: ABCD123456', 1),
			('HDFCBK', 3000, 'Rs 250.00 spent', 1),
			('ME', 4000, 'sent by me', 2),
			(NULL, NULL, 'no sender', 1);
	`)
	require.NoError(t, err)

	records, err := r.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "HDFCBK", records[0].Sender)
	assert.Equal(t, int64(3000), records[0].TimestampMillis)
	assert.Equal(t, "AXISBK", records[1].Sender)
	assert.Equal(t, api.MessageRecord{Body: "no sender"}, records[2])
}

func TestMessages_IntegrationMissingColumns(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	r := New(Config{Config: cfg, Table: "public.inbox"}, nil)
	defer r.Close()

	pool, err := r.connect(ctx)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		CREATE TABLE inbox (body text);
		INSERT INTO inbox VALUES ('INR 5 credited');
	`)
	require.NoError(t, err)

	records, err := r.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, api.MessageRecord{Body: "INR 5 credited"}, records[0])
}
