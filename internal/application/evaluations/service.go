package evaluations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/uxtrap/internal/application"
	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/session"
)

// Recorder receives run counters. middleware.Metrics is the production one.
type Recorder interface {
	RunStarted()
	RunFinished(state session.RunState, kind evaluation.Kind)
}

// Service implements the evaluation use-cases.
// Journal, Exports and Metrics are optional.
type Service struct {
	Sessions     *session.Store
	Preprocessor evaluation.Preprocessor
	Client       evaluation.Client
	Prompt       func(evaluation.Context) string
	Journal      evaluation.RunJournal
	Exports      evaluation.ExportStore
	Metrics      Recorder
	Clock        application.Clock
	Logger       *zap.Logger

	wg sync.WaitGroup
}

// Now is the service clock, shared with the HTTP layer.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Evaluate runs the pipeline once: prepare → prompt → one outbound call → parse.
// Used directly by the CLI and by Start's background run.
func (s *Service) Evaluate(ctx context.Context, ectx evaluation.Context, img evaluation.UploadedImage) (*evaluation.Result, error) {
	if len(img.Data) == 0 {
		return nil, evaluation.ErrNoImage
	}
	ectx = ectx.Trimmed()
	if ectx.WorkflowName == "" {
		return nil, evaluation.ErrMissingWorkflow
	}

	prepared, err := s.Preprocessor.Prepare(ctx, img.Data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, evaluation.ErrCancelled
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, evaluation.ErrCancelled
	}

	text, err := s.Client.Evaluate(ctx, prepared, s.Prompt(ectx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, evaluation.ErrCancelled
		}
		return nil, err
	}
	return evaluation.ParseResult(text)
}

// Start validates the session and launches a run in the background.
// Validation errors are returned before any outbound call is made.
func (s *Service) Start(sessionID string) (session.RunView, error) {
	sess, err := s.Sessions.Get(sessionID, s.now())
	if err != nil {
		return session.RunView{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticket, err := sess.BeginRun(uuid.New().String(), s.now(), cancel)
	if err != nil {
		cancel()
		return session.RunView{}, err
	}

	if s.Metrics != nil {
		s.Metrics.RunStarted()
	}
	s.log().Info("evaluation started",
		zap.String("run_id", ticket.RunID),
		zap.String("session_id", ticket.SessionID),
		zap.String("workflow", ticket.Context.WorkflowName),
		zap.String("image", ticket.Image.Name))

	view := sess.Run()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.execute(ctx, sess, ticket)
	}()
	return view, nil
}

func (s *Service) execute(ctx context.Context, sess *session.Session, t session.Ticket) {
	res, err := s.Evaluate(ctx, t.Context, t.Image)
	finished := s.now()

	state := session.StateCancelled
	if sess.FinishRun(t.RunID, res, err, finished) {
		state = stateOf(err)
	} else {
		// cancelled while in flight; the outcome is discarded
		res, err = nil, evaluation.ErrCancelled
	}
	kind := evaluation.KindOf(err)

	fields := []zap.Field{
		zap.String("run_id", t.RunID),
		zap.String("session_id", t.SessionID),
		zap.String("state", string(state)),
		zap.Duration("duration", finished.Sub(t.StartedAt)),
	}
	switch state {
	case session.StateFailed:
		s.log().Warn("evaluation failed", append(fields, zap.String("error_kind", string(kind)), zap.Error(err))...)
	default:
		s.log().Info("evaluation finished", fields...)
	}

	if s.Metrics != nil {
		s.Metrics.RunFinished(state, kind)
	}
	s.record(t, state, res, err, finished)
}

func stateOf(err error) session.RunState {
	switch {
	case err == nil:
		return session.StateSucceeded
	case errors.Is(err, evaluation.ErrCancelled):
		return session.StateCancelled
	}
	return session.StateFailed
}

func (s *Service) record(t session.Ticket, state session.RunState, res *evaluation.Result, err error, finished time.Time) {
	if s.Journal == nil {
		return
	}
	rec := &evaluation.RunRecord{
		ID:           t.RunID,
		SessionID:    t.SessionID,
		WorkflowName: t.Context.WorkflowName,
		ImageName:    t.Image.Name,
		State:        string(state),
		StartedAt:    t.StartedAt,
		DurationMS:   finished.Sub(t.StartedAt).Milliseconds(),
	}
	if err != nil {
		rec.ErrorKind = string(evaluation.KindOf(err))
		rec.ErrorMessage = truncate(err.Error(), 500)
	}
	if res != nil {
		rec.TrapCount = len(res.Traps)
		rec.OverallScore = res.OverallScore
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Journal.Save(ctx, rec); err != nil {
		s.log().Error("failed to save run record", zap.String("run_id", t.RunID), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

// Cancel aborts the session's running evaluation.
func (s *Service) Cancel(sessionID string) (session.RunView, error) {
	sess, err := s.Sessions.Get(sessionID, s.now())
	if err != nil {
		return session.RunView{}, err
	}
	runID, err := sess.CancelRun(s.now())
	if err != nil {
		return session.RunView{}, err
	}
	s.log().Info("evaluation cancel requested", zap.String("run_id", runID), zap.String("session_id", sessionID))
	return sess.Run(), nil
}

// Export is the downloadable document for the session's last successful run.
type Export struct {
	Filename string
	Data     []byte
	Location string // object location when an export store is configured
}

func (s *Service) Export(ctx context.Context, sessionID string) (Export, error) {
	sess, err := s.Sessions.Get(sessionID, s.now())
	if err != nil {
		return Export{}, err
	}
	doc, err := sess.Export()
	if err != nil {
		return Export{}, err
	}
	data, err := doc.Marshal()
	if err != nil {
		return Export{}, fmt.Errorf("marshal export: %w", err)
	}
	out := Export{Filename: evaluation.ExportFilename(doc.Context.WorkflowName, s.now()), Data: data}

	if s.Exports != nil {
		loc, err := s.Exports.PutExport(ctx, sessionID+"/"+out.Filename, data)
		if err != nil {
			// the download still works without the archived copy
			s.log().Warn("failed to store export copy", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			out.Location = loc
		}
	}
	return out, nil
}

// RecentRuns lists journal entries, newest first. Empty without a journal.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*evaluation.RunRecord, error) {
	if s.Journal == nil {
		return []*evaluation.RunRecord{}, nil
	}
	return s.Journal.Latest(ctx, limit)
}

// RunSummary counts journal entries started within the last sinceDays days.
func (s *Service) RunSummary(ctx context.Context, sinceDays int) (evaluation.RunSummary, error) {
	if s.Journal == nil {
		return evaluation.RunSummary{}, nil
	}
	if sinceDays <= 0 {
		sinceDays = 7
	}
	return s.Journal.Summary(ctx, s.now().AddDate(0, 0, -sinceDays))
}

// Wait blocks until every background run has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
