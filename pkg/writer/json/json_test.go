package json

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsledger/pkg/api"
)

func ptr(s string) *string { return &s }

func TestWrite_UpsertsByID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w, err := New(Config{FilePath: path}, nil)
	require.NoError(t, err)

	a := &api.Transaction{ID: uuid.New(), Title: "From: AXISBK", Amount: ptr("1,234.00")}
	b := &api.Transaction{ID: uuid.New(), Title: "From: HDFCBK"}

	require.NoError(t, w.Write(context.Background(), []*api.Transaction{a, b}))
	require.NoError(t, w.Write(context.Background(), []*api.Transaction{a}))
	assert.Equal(t, 2, w.TransactionCount())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []*api.Transaction
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, "1,234.00", *got[0].Amount)
	assert.Nil(t, got[1].Amount)
}

func TestNew_LoadsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	id := uuid.New()
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"`+id.String()+`","title":"From: X"}]`), 0o600))

	w, err := New(Config{FilePath: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, w.TransactionCount())

	require.NoError(t, w.Write(context.Background(), []*api.Transaction{{ID: id, Title: "From: X"}}))
	assert.Equal(t, 1, w.TransactionCount())
}

func TestNew_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	w, err := New(Config{FilePath: path}, nil)
	require.NoError(t, err)
	assert.Zero(t, w.TransactionCount())
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
