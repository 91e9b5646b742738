package buffered

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsledger/pkg/api"
)

func makeTransactions(n int) []*api.Transaction {
	out := make([]*api.Transaction, n)
	for i := range out {
		out[i] = &api.Transaction{Title: "From: " + strconv.Itoa(i)}
	}
	return out
}

func TestWrite_SplitsIntoBatches(t *testing.T) {
	var sizes []int
	w := New(func(_ context.Context, batch []*api.Transaction) error {
		sizes = append(sizes, len(batch))
		return nil
	}, Config{BatchSize: 3}, nil)

	require.NoError(t, w.Write(context.Background(), makeTransactions(7)))
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestWrite_Empty(t *testing.T) {
	called := false
	w := New(func(context.Context, []*api.Transaction) error {
		called = true
		return nil
	}, Config{}, nil)

	require.NoError(t, w.Write(context.Background(), nil))
	assert.False(t, called)
	assert.Equal(t, DefaultBatchSize, w.BatchSize())
}

func TestWrite_StopsOnError(t *testing.T) {
	errBoom := errors.New("boom")
	calls := 0
	w := New(func(context.Context, []*api.Transaction) error {
		calls++
		if calls == 2 {
			return errBoom
		}
		return nil
	}, Config{BatchSize: 2}, nil)

	err := w.Write(context.Background(), makeTransactions(6))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "2 written")
}

func TestWrite_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(func(context.Context, []*api.Transaction) error { return nil }, Config{}, nil)
	assert.ErrorIs(t, w.Write(ctx, makeTransactions(1)), context.Canceled)
}
