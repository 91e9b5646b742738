// Package session holds the application state and drives the
// unlock, refresh, speak and export flow.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/gate"
	"github.com/ArionMiles/smsledger/pkg/metrics"
	"github.com/ArionMiles/smsledger/pkg/parser"
	"github.com/ArionMiles/smsledger/pkg/reader/sample"
	"github.com/ArionMiles/smsledger/pkg/speech"
)

// Status lines shown to the user.
const (
	StatusLocked      = "Enter passcode"
	StatusUnlocked    = "Unlocked. Reading SMS..."
	StatusWrongCode   = "Wrong passcode"
	StatusNeedCode    = "Enter passcode first"
	StatusDenied      = "Permission denied. Can't read SMS."
	StatusGranted     = "Permission granted. Reading SMS..."
	StatusUnavailable = "Message store unavailable: showing sample data"
	StatusEmpty       = "No transactions found"
	StatusDone        = "Done"
	StatusNoWriter    = "No export writer configured"
)

// Errors carried in State.Err alongside their status line.
var (
	ErrWrongPasscode = errors.New("wrong passcode")
	ErrLocked        = errors.New("locked")
	ErrNoWriter      = errors.New("no export writer configured")
)

// State is the whole of the user-visible application state.
type State struct {
	Unlocked     bool
	Transactions []*api.Transaction
	Status       string
	// Err is the failure behind Status, nil when the last operation succeeded.
	Err error
}

// Initial returns the locked start state.
func Initial() State {
	return State{Status: StatusLocked}
}

// Options wires the session's collaborators. Gate, Source and Parser are required.
type Options struct {
	Gate   *gate.Gate
	Source api.Source
	Parser *parser.Parser

	// Fallback is scanned when Source reports ErrSourceUnavailable.
	// Defaults to the built-in sample.
	Fallback api.Source
	// Speaker defaults to speech.Fallback.
	Speaker api.Speaker
	// Writer is optional; Export reports StatusNoWriter without it.
	Writer api.Writer
	// Metrics is optional.
	Metrics *metrics.Recorder
	// MetricsFile receives a textfile dump after every scan when set.
	MetricsFile string
	// Notify receives intermediate status lines while a refresh runs.
	Notify func(status string)
}

// Session runs the flow against its collaborators. It is not safe for
// concurrent use; callers run one operation at a time.
type Session struct {
	gate        *gate.Gate
	source      api.Source
	fallback    api.Source
	parser      *parser.Parser
	speaker     api.Speaker
	writer      api.Writer
	metrics     *metrics.Recorder
	metricsFile string
	notify      func(string)
	logger      *slog.Logger
}

// New creates a Session.
func New(opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Gate == nil {
		return nil, errors.New("session: gate is required")
	}
	if opts.Source == nil {
		return nil, errors.New("session: source is required")
	}
	if opts.Parser == nil {
		return nil, errors.New("session: parser is required")
	}

	s := &Session{
		gate:        opts.Gate,
		source:      opts.Source,
		fallback:    opts.Fallback,
		parser:      opts.Parser,
		speaker:     opts.Speaker,
		writer:      opts.Writer,
		metrics:     opts.Metrics,
		metricsFile: opts.MetricsFile,
		notify:      opts.Notify,
		logger:      logger,
	}
	if s.fallback == nil {
		s.fallback = sample.NewDefault()
	}
	if s.speaker == nil {
		s.speaker = speech.NewFallback(logger)
	}
	if s.notify == nil {
		s.notify = func(string) {}
	}
	return s, nil
}

// HasWriter reports whether an export writer is configured.
func (s *Session) HasWriter() bool {
	return s.writer != nil
}

// Unlock checks input against the gate. On success the inbox is read immediately.
// An already unlocked state is checked again: a wrong code reports
// StatusWrongCode without relocking, a correct one refreshes.
func (s *Session) Unlock(ctx context.Context, input string, st State) State {
	if !s.gate.Check(input) {
		s.logger.Info("unlock rejected")
		st.Status = StatusWrongCode
		st.Err = ErrWrongPasscode
		return st
	}

	s.logger.Info("unlocked")
	st.Unlocked = true
	st.Err = nil
	st.Status = StatusUnlocked
	s.notify(st.Status)
	return s.Refresh(ctx, st)
}

// Refresh rescans the source and replaces the transaction list.
// On failure the previous list is kept and Status describes the error.
func (s *Session) Refresh(ctx context.Context, st State) State {
	if !st.Unlocked {
		st.Status = StatusNeedCode
		st.Err = ErrLocked
		return st
	}

	start := time.Now()
	records, outcome, err := s.scan(ctx)
	switch {
	case outcome == metrics.OutcomeDenied:
		s.recordScan(outcome, nil, nil, start)
		st.Status = StatusDenied
		st.Err = api.ErrPermissionDenied
		return st
	case err != nil:
		s.logger.Error("reading messages failed", "error", err)
		s.recordScan(metrics.OutcomeError, nil, nil, start)
		st.Status = fmt.Sprintf("Error reading SMS: %v", err)
		st.Err = err
		return st
	}

	txns := s.parser.ParseAll(records)
	if outcome == metrics.OutcomeOK && len(txns) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	s.recordScan(outcome, records, txns, start)

	st.Transactions = txns
	st.Err = nil
	switch {
	case outcome == metrics.OutcomeUnavailable:
		st.Status = StatusUnavailable
	case len(txns) == 0:
		st.Status = StatusEmpty
	default:
		st.Status = StatusDone
	}

	s.logger.Info("refresh complete", "outcome", outcome, "messages", len(records), "transactions", len(txns))
	return st
}

// scan runs the permission flow and reads the source, substituting the
// fallback when the store is unavailable.
func (s *Session) scan(ctx context.Context) ([]api.MessageRecord, string, error) {
	granted, err := s.checkPermission(ctx)
	if err == nil && !granted {
		return nil, metrics.OutcomeDenied, nil
	}

	var records []api.MessageRecord
	if err == nil {
		records, err = s.source.Messages(ctx)
	}

	switch {
	case err == nil:
		return records, metrics.OutcomeOK, nil
	case errors.Is(err, api.ErrSourceUnavailable):
		s.logger.Warn("message store unavailable, using fallback", "error", err)
		s.notify(StatusUnavailable)
		records, err = s.fallback.Messages(ctx)
		if err != nil {
			return nil, metrics.OutcomeError, fmt.Errorf("reading fallback: %w", err)
		}
		return records, metrics.OutcomeUnavailable, nil
	case errors.Is(err, api.ErrPermissionDenied):
		s.logger.Warn("permission denied by source", "error", err)
		return nil, metrics.OutcomeDenied, nil
	default:
		return nil, metrics.OutcomeError, err
	}
}

// checkPermission asks once when the source sits behind a permission.
func (s *Session) checkPermission(ctx context.Context) (bool, error) {
	pc, ok := s.source.(api.PermissionChecker)
	if !ok {
		return true, nil
	}

	granted, err := pc.HasPermission(ctx)
	if err != nil || granted {
		return granted, err
	}

	s.logger.Info("requesting permission")
	granted, err = pc.RequestPermission(ctx)
	if err != nil {
		return false, err
	}
	if granted {
		s.notify(StatusGranted)
	}
	return granted, nil
}

func (s *Session) recordScan(outcome string, records []api.MessageRecord, txns []*api.Transaction, start time.Time) {
	if s.metrics == nil {
		return
	}

	var amounts, utrs int
	for _, t := range txns {
		if t.Amount != nil {
			amounts++
		}
		if t.UTR != nil {
			utrs++
		}
	}
	s.metrics.RecordScan(outcome, len(records), len(txns), amounts, utrs, time.Since(start))

	if s.metricsFile != "" {
		if err := s.metrics.WriteTextfile(s.metricsFile); err != nil {
			s.logger.Warn("writing metrics failed", "error", err)
		}
	}
}

// Speak reads the transaction aloud. Failures are logged only.
func (s *Session) Speak(ctx context.Context, tx *api.Transaction) {
	if tx == nil {
		return
	}
	if err := s.speaker.Speak(ctx, tx.SpeechText()); err != nil {
		s.logger.Warn("speaking failed", "error", err)
	}
}

// Export writes the current list to the configured writer.
func (s *Session) Export(ctx context.Context, st State) State {
	if !st.Unlocked {
		st.Status = StatusNeedCode
		st.Err = ErrLocked
		return st
	}
	if s.writer == nil {
		st.Status = StatusNoWriter
		st.Err = ErrNoWriter
		return st
	}

	err := s.writer.Write(ctx, st.Transactions)
	if s.metrics != nil {
		s.metrics.RecordExport(err)
	}
	if err != nil {
		s.logger.Error("export failed", "error", err)
		st.Status = fmt.Sprintf("Export failed: %v", err)
		st.Err = err
		return st
	}

	s.logger.Info("export complete", "count", len(st.Transactions))
	st.Status = fmt.Sprintf("Exported %d transactions", len(st.Transactions))
	st.Err = nil
	return st
}
