package session_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ArionMiles/smsledger/internal/session"
	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/gate"
	"github.com/ArionMiles/smsledger/pkg/metrics"
	"github.com/ArionMiles/smsledger/pkg/parser"
)

const passcode = "9398"

var axis = api.MessageRecord{
	Sender:          "AXISBK",
	Body:            "Your a/c debited INR 1,234.00 UTR: ABCD123456",
	TimestampMillis: 1731578400000,
}

// guardedSource is a Source behind a permission.
type guardedSource struct {
	*api.MockSource
	*api.MockPermissionChecker
}

type fixture struct {
	source   *api.MockSource
	perm     *api.MockPermissionChecker
	fallback *api.MockSource
	speaker  *api.MockSpeaker
	writer   *api.MockWriter
	metrics  *metrics.Recorder
	statuses []string
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	return &fixture{
		source:   api.NewMockSource(ctrl),
		perm:     api.NewMockPermissionChecker(ctrl),
		fallback: api.NewMockSource(ctrl),
		speaker:  api.NewMockSpeaker(ctrl),
		writer:   api.NewMockWriter(ctrl),
		metrics:  metrics.New(),
	}
}

func (f *fixture) session(t *testing.T, guarded bool) *session.Session {
	t.Helper()

	var src api.Source = f.source
	if guarded {
		src = guardedSource{MockSource: f.source, MockPermissionChecker: f.perm}
	}

	s, err := session.New(session.Options{
		Gate:     gate.New(passcode),
		Source:   src,
		Parser:   parser.New(time.UTC),
		Fallback: f.fallback,
		Speaker:  f.speaker,
		Writer:   f.writer,
		Metrics:  f.metrics,
		Notify:   func(s string) { f.statuses = append(f.statuses, s) },
	}, nil)
	require.NoError(t, err)
	return s
}

func unlocked(txns ...*api.Transaction) session.State {
	return session.State{Unlocked: true, Transactions: txns, Status: session.StatusDone}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := session.New(session.Options{}, nil)
	assert.Error(t, err)

	_, err = session.New(session.Options{Gate: gate.New(passcode)}, nil)
	assert.Error(t, err)

	ctrl := gomock.NewController(t)
	_, err = session.New(session.Options{Gate: gate.New(passcode), Source: api.NewMockSource(ctrl)}, nil)
	assert.Error(t, err)
}

func TestUnlock(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong passcode", func(t *testing.T) {
		f := newFixture(t)
		s := f.session(t, false)

		st := s.Unlock(ctx, "1234", session.Initial())
		assert.False(t, st.Unlocked)
		assert.Equal(t, session.StatusWrongCode, st.Status)
		assert.ErrorIs(t, st.Err, session.ErrWrongPasscode)
		assert.Empty(t, st.Transactions)
	})

	t.Run("correct passcode scans immediately", func(t *testing.T) {
		f := newFixture(t)
		f.source.EXPECT().Messages(gomock.Any()).Return([]api.MessageRecord{axis}, nil)
		s := f.session(t, false)

		st := s.Unlock(ctx, " 9398\n", session.Initial())
		assert.True(t, st.Unlocked)
		assert.Equal(t, session.StatusDone, st.Status)
		assert.NoError(t, st.Err)
		assert.Equal(t, []string{session.StatusUnlocked}, f.statuses)

		require.Len(t, st.Transactions, 1)
		tx := st.Transactions[0]
		assert.Equal(t, "From: AXISBK", tx.Title)
		assert.Equal(t, "2024-11-14 10:00:00", tx.SubtitleDate)
		assert.Equal(t, "1,234.00", tx.AmountOrEmpty())
		assert.Equal(t, "ABCD123456", tx.UTROrEmpty())
		assert.Equal(t, axis.Body, tx.Snippet)
	})

	t.Run("wrong passcode while unlocked keeps the list", func(t *testing.T) {
		f := newFixture(t)
		s := f.session(t, false)

		prev := &api.Transaction{Title: "From: OLD"}
		st := s.Unlock(ctx, "0000", unlocked(prev))
		assert.True(t, st.Unlocked)
		assert.Equal(t, session.StatusWrongCode, st.Status)
		assert.ErrorIs(t, st.Err, session.ErrWrongPasscode)
		assert.Equal(t, []*api.Transaction{prev}, st.Transactions)
	})

	t.Run("correct passcode while unlocked refreshes", func(t *testing.T) {
		f := newFixture(t)
		f.source.EXPECT().Messages(gomock.Any()).Return([]api.MessageRecord{axis}, nil)
		s := f.session(t, false)

		st := s.Unlock(ctx, passcode, unlocked())
		assert.True(t, st.Unlocked)
		assert.Equal(t, session.StatusDone, st.Status)
		assert.NoError(t, st.Err)
		require.Len(t, st.Transactions, 1)
		assert.Equal(t, "From: AXISBK", st.Transactions[0].Title)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	previous := &api.Transaction{Title: "From: OLD"}

	tests := []struct {
		name      string
		guarded   bool
		setup     func(f *fixture)
		wantCount int
		wantKept  bool
		status    string
		notified  []string
		outcome   string
	}{
		{
			name: "messages replace the list",
			setup: func(f *fixture) {
				f.source.EXPECT().Messages(gomock.Any()).Return([]api.MessageRecord{axis, axis}, nil)
			},
			wantCount: 2,
			status:    session.StatusDone,
			outcome:   metrics.OutcomeOK,
		},
		{
			name: "empty store",
			setup: func(f *fixture) {
				f.source.EXPECT().Messages(gomock.Any()).Return(nil, nil)
			},
			wantCount: 0,
			status:    session.StatusEmpty,
			outcome:   metrics.OutcomeEmpty,
		},
		{
			name:    "permission already granted",
			guarded: true,
			setup: func(f *fixture) {
				f.perm.EXPECT().HasPermission(gomock.Any()).Return(true, nil)
				f.source.EXPECT().Messages(gomock.Any()).Return([]api.MessageRecord{axis}, nil)
			},
			wantCount: 1,
			status:    session.StatusDone,
			outcome:   metrics.OutcomeOK,
		},
		{
			name:    "permission granted on request",
			guarded: true,
			setup: func(f *fixture) {
				gomock.InOrder(
					f.perm.EXPECT().HasPermission(gomock.Any()).Return(false, nil),
					f.perm.EXPECT().RequestPermission(gomock.Any()).Return(true, nil),
					f.source.EXPECT().Messages(gomock.Any()).Return([]api.MessageRecord{axis}, nil),
				)
			},
			wantCount: 1,
			status:    session.StatusDone,
			notified:  []string{session.StatusGranted},
			outcome:   metrics.OutcomeOK,
		},
		{
			name:    "permission refused keeps the list",
			guarded: true,
			setup: func(f *fixture) {
				f.perm.EXPECT().HasPermission(gomock.Any()).Return(false, nil)
				f.perm.EXPECT().RequestPermission(gomock.Any()).Return(false, nil)
			},
			wantKept: true,
			status:   session.StatusDenied,
			outcome:  metrics.OutcomeDenied,
		},
		{
			name: "source reports permission denied",
			setup: func(f *fixture) {
				f.source.EXPECT().Messages(gomock.Any()).
					Return(nil, fmt.Errorf("opening x: %w", errors.Join(api.ErrPermissionDenied, errors.New("eacces"))))
			},
			wantKept: true,
			status:   session.StatusDenied,
			outcome:  metrics.OutcomeDenied,
		},
		{
			name: "unavailable store falls back to sample",
			setup: func(f *fixture) {
				f.source.EXPECT().Messages(gomock.Any()).Return(nil, fmt.Errorf("opening x: %w", api.ErrSourceUnavailable))
				f.fallback.EXPECT().Messages(gomock.Any()).Return([]api.MessageRecord{axis}, nil)
			},
			wantCount: 1,
			status:    session.StatusUnavailable,
			notified:  []string{session.StatusUnavailable},
			outcome:   metrics.OutcomeUnavailable,
		},
		{
			name:    "unavailable during permission check falls back",
			guarded: true,
			setup: func(f *fixture) {
				f.perm.EXPECT().HasPermission(gomock.Any()).Return(false, api.ErrSourceUnavailable)
				f.fallback.EXPECT().Messages(gomock.Any()).Return([]api.MessageRecord{axis}, nil)
			},
			wantCount: 1,
			status:    session.StatusUnavailable,
			notified:  []string{session.StatusUnavailable},
			outcome:   metrics.OutcomeUnavailable,
		},
		{
			name: "fallback failure is an error",
			setup: func(f *fixture) {
				f.source.EXPECT().Messages(gomock.Any()).Return(nil, api.ErrSourceUnavailable)
				f.fallback.EXPECT().Messages(gomock.Any()).Return(nil, errors.New("broken fixture"))
			},
			wantKept: true,
			status:   "Error reading SMS: reading fallback: broken fixture",
			notified: []string{session.StatusUnavailable},
			outcome:  metrics.OutcomeError,
		},
		{
			name: "unexpected error keeps the list",
			setup: func(f *fixture) {
				f.source.EXPECT().Messages(gomock.Any()).Return(nil, errors.New("cursor closed"))
			},
			wantKept: true,
			status:   "Error reading SMS: cursor closed",
			outcome:  metrics.OutcomeError,
		},
		{
			name:    "permission check error keeps the list",
			guarded: true,
			setup: func(f *fixture) {
				f.perm.EXPECT().HasPermission(gomock.Any()).Return(false, errors.New("io error"))
			},
			wantKept: true,
			status:   "Error reading SMS: io error",
			outcome:  metrics.OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			s := f.session(t, tt.guarded)

			st := s.Refresh(ctx, unlocked(previous))

			assert.True(t, st.Unlocked)
			assert.Equal(t, tt.status, st.Status)
			assert.Equal(t, tt.notified, f.statuses)
			if tt.wantKept {
				assert.Equal(t, []*api.Transaction{previous}, st.Transactions)
				assert.Error(t, st.Err)
			} else {
				assert.Len(t, st.Transactions, tt.wantCount)
				assert.NoError(t, st.Err)
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Scans.WithLabelValues(tt.outcome)))
		})
	}
}

func TestRefresh_Locked(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, true)

	st := s.Refresh(context.Background(), session.Initial())
	assert.False(t, st.Unlocked)
	assert.Equal(t, session.StatusNeedCode, st.Status)
	assert.ErrorIs(t, st.Err, session.ErrLocked)
}

func TestRefresh_RecordsFieldMetrics(t *testing.T) {
	f := newFixture(t)
	f.source.EXPECT().Messages(gomock.Any()).Return([]api.MessageRecord{
		axis,
		{Sender: "HDFC", Body: "Rs 10 paid", TimestampMillis: 1},
		{Sender: "X", Body: "hello", TimestampMillis: 0},
	}, nil)
	s := f.session(t, false)

	s.Refresh(context.Background(), unlocked())

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.MessagesScanned))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.TransactionsExtracted))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.FieldsFound.WithLabelValues("amount")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FieldsFound.WithLabelValues("utr")))
}

func TestRefresh_WritesMetricsFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := api.NewMockSource(ctrl)
	src.EXPECT().Messages(gomock.Any()).Return(nil, nil)

	path := filepath.Join(t.TempDir(), "smsledger.prom")
	s, err := session.New(session.Options{
		Gate:        gate.New(passcode),
		Source:      src,
		Parser:      parser.New(time.UTC),
		Metrics:     metrics.New(),
		MetricsFile: path,
	}, nil)
	require.NoError(t, err)

	s.Refresh(context.Background(), unlocked())
	assert.FileExists(t, path)
}

func TestSpeak(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, false)
	tx := parser.New(time.UTC).ParseRecord(axis)

	f.speaker.EXPECT().Speak(gomock.Any(), tx.SpeechText()).Return(nil)
	s.Speak(context.Background(), tx)

	// Failures are swallowed.
	f.speaker.EXPECT().Speak(gomock.Any(), gomock.Any()).Return(errors.New("no audio device"))
	s.Speak(context.Background(), tx)

	s.Speak(context.Background(), nil)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	tx := parser.New(time.UTC).ParseRecord(axis)

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		f.writer.EXPECT().Write(gomock.Any(), []*api.Transaction{tx, tx}).Return(nil)
		s := f.session(t, false)

		st := s.Export(ctx, unlocked(tx, tx))
		assert.Equal(t, "Exported 2 transactions", st.Status)
		assert.Len(t, st.Transactions, 2)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Exports.WithLabelValues("success")))
	})

	t.Run("failure", func(t *testing.T) {
		f := newFixture(t)
		f.writer.EXPECT().Write(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		s := f.session(t, false)

		st := s.Export(ctx, unlocked(tx))
		assert.Equal(t, "Export failed: disk full", st.Status)
		assert.EqualError(t, st.Err, "disk full")
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Exports.WithLabelValues("failed")))
	})

	t.Run("locked", func(t *testing.T) {
		f := newFixture(t)
		s := f.session(t, false)

		st := s.Export(ctx, session.Initial())
		assert.Equal(t, session.StatusNeedCode, st.Status)
	})

	t.Run("no writer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s, err := session.New(session.Options{
			Gate:   gate.New(passcode),
			Source: api.NewMockSource(ctrl),
			Parser: parser.New(time.UTC),
		}, nil)
		require.NoError(t, err)
		assert.False(t, s.HasWriter())

		st := s.Export(ctx, unlocked(tx))
		assert.Equal(t, session.StatusNoWriter, st.Status)
		assert.ErrorIs(t, st.Err, session.ErrNoWriter)
	})
}
