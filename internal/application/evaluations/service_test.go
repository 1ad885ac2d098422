package evaluations

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/session"
)

const validAnswer = "Here is my review:\n```json\n" + `{
  "summary": {"verdict": "Needs Work", "intent": "sign up", "emotionalContext": "rushed", "health": "ok"},
  "traps": [
    {"id": "t1", "name": "Invisible Element", "tenet": "understandable", "severity": "p2",
     "location": {"x": 40, "y": 120, "description": "footer"}, "evidence": "e", "diagnostic": "d",
     "remediation": {"quickPivot": "q", "architecturalSolve": "a", "aiFix": "f"}}
  ],
  "tenetScores": {"Understandable": 2},
  "tenetWin": "Beautiful",
  "priorities": ["t1"],
  "overallScore": 6
}` + "\n```"

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type passthrough struct{}

func (passthrough) Prepare(_ context.Context, data []byte) (evaluation.PreparedImage, error) {
	return evaluation.PreparedImage{Data: data, MediaType: "image/jpeg"}, nil
}

type fakeClient struct {
	calls  atomic.Int32
	text   string
	err    error
	block  bool
	prompt atomic.Value
}

func (f *fakeClient) Evaluate(ctx context.Context, img evaluation.PreparedImage, prompt string) (string, error) {
	f.calls.Add(1)
	f.prompt.Store(prompt)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

type memJournal struct {
	mu   sync.Mutex
	recs []*evaluation.RunRecord
}

func (j *memJournal) Save(_ context.Context, r *evaluation.RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, r)
	return nil
}

func (j *memJournal) Latest(_ context.Context, limit int) ([]*evaluation.RunRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*evaluation.RunRecord, 0, limit)
	for i := len(j.recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.recs[i])
	}
	return out, nil
}

func (j *memJournal) Summary(_ context.Context, since time.Time) (evaluation.RunSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var sum evaluation.RunSummary
	for _, r := range j.recs {
		if r.StartedAt.Before(since) {
			continue
		}
		sum.Total++
		switch r.State {
		case "succeeded":
			sum.Succeeded++
		case "failed":
			sum.Failed++
		case "cancelled":
			sum.Cancelled++
		}
	}
	return sum, nil
}

type memExports struct {
	keys []string
}

func (m *memExports) PutExport(_ context.Context, key string, _ []byte) (string, error) {
	m.keys = append(m.keys, key)
	return "exports/" + key, nil
}

type countingRecorder struct {
	started  atomic.Int32
	finished atomic.Int32
}

func (c *countingRecorder) RunStarted() { c.started.Add(1) }
func (c *countingRecorder) RunFinished(session.RunState, evaluation.Kind) {
	c.finished.Add(1)
}

var now = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newService(client *fakeClient) (*Service, *memJournal, *memExports) {
	j := &memJournal{}
	e := &memExports{}
	return &Service{
		Sessions:     session.NewStore(),
		Preprocessor: passthrough{},
		Client:       client,
		Prompt:       func(c evaluation.Context) string { return "workflow=" + c.WorkflowName },
		Journal:      j,
		Exports:      e,
		Clock:        fixedClock{now},
	}, j, e
}

func readySession(svc *Service, workflow string) *session.Session {
	s := svc.Sessions.Create(now)
	s.SetContext(evaluation.Context{WorkflowName: workflow})
	s.AddImages(evaluation.UploadedImage{ID: "img-1", Name: "home.png", Data: []byte("png")})
	return s
}

func waitRuns(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))
}

func TestStartValidationMakesNoCall(t *testing.T) {
	client := &fakeClient{text: validAnswer}
	svc, j, _ := newService(client)

	empty := svc.Sessions.Create(now)
	empty.SetContext(evaluation.Context{WorkflowName: "Checkout"})
	_, err := svc.Start(empty.ID())
	assert.ErrorIs(t, err, evaluation.ErrNoImage)

	noWorkflow := readySession(svc, "   ")
	_, err = svc.Start(noWorkflow.ID())
	assert.ErrorIs(t, err, evaluation.ErrMissingWorkflow)

	_, err = svc.Start("missing")
	assert.ErrorIs(t, err, session.ErrNotFound)

	waitRuns(t, svc)
	assert.Zero(t, client.calls.Load())
	assert.Empty(t, j.recs)
	assert.Equal(t, session.StateIdle, noWorkflow.Run().State)
}

func TestStartSucceedsAndExports(t *testing.T) {
	client := &fakeClient{text: validAnswer}
	svc, j, exports := newService(client)
	metrics := &countingRecorder{}
	svc.Metrics = metrics
	s := readySession(svc, " Asset Onboarding ")

	view, err := svc.Start(s.ID())
	require.NoError(t, err)
	assert.Equal(t, session.StateRunning, view.State)
	waitRuns(t, svc)

	assert.EqualValues(t, 1, client.calls.Load())
	assert.Equal(t, "workflow=Asset Onboarding", client.prompt.Load())

	run := s.Run()
	require.Equal(t, session.StateSucceeded, run.State)
	require.NotNil(t, run.Result)
	assert.Equal(t, evaluation.VerdictNeedsWork, run.Result.Summary.Verdict)
	assert.Equal(t, 100.0, run.Result.Traps[0].Location.Y)

	require.Len(t, j.recs, 1)
	assert.Equal(t, "succeeded", j.recs[0].State)
	assert.Equal(t, 1, j.recs[0].TrapCount)
	assert.Equal(t, 6, j.recs[0].OverallScore)
	assert.EqualValues(t, 1, metrics.started.Load())
	assert.EqualValues(t, 1, metrics.finished.Load())

	sum, err := svc.RunSummary(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, evaluation.RunSummary{Total: 1, Succeeded: 1}, sum)

	exp, err := svc.Export(context.Background(), s.ID())
	require.NoError(t, err)
	assert.Equal(t, "ux-evaluation-asset-onboarding-20260304-050607.json", exp.Filename)
	assert.Contains(t, string(exp.Data), `"workflowName": "Asset Onboarding"`)
	assert.Equal(t, []string{s.ID() + "/" + exp.Filename}, exports.keys)
	assert.Equal(t, "exports/"+s.ID()+"/"+exp.Filename, exp.Location)
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	client := &fakeClient{block: true}
	svc, _, _ := newService(client)
	s := readySession(svc, "Checkout")

	_, err := svc.Start(s.ID())
	require.NoError(t, err)
	_, err = svc.Start(s.ID())
	assert.ErrorIs(t, err, evaluation.ErrRunInProgress)

	_, err = svc.Cancel(s.ID())
	require.NoError(t, err)
	waitRuns(t, svc)
	assert.EqualValues(t, 1, client.calls.Load())
}

func TestCancelAbortsInFlightCall(t *testing.T) {
	defer goleak.VerifyNone(t)
	client := &fakeClient{block: true}
	svc, j, _ := newService(client)
	s := readySession(svc, "Checkout")

	_, err := svc.Start(s.ID())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	view, err := svc.Cancel(s.ID())
	require.NoError(t, err)
	assert.Equal(t, session.StateCancelled, view.State)
	require.NotNil(t, view.Error)
	assert.Equal(t, "Evaluation cancelled.", view.Error.Message)

	waitRuns(t, svc)
	assert.Equal(t, session.StateCancelled, s.Run().State)
	require.Len(t, j.recs, 1)
	assert.Equal(t, "cancelled", j.recs[0].State)
	assert.Equal(t, "cancelled", j.recs[0].ErrorKind)

	_, err = svc.Cancel(s.ID())
	assert.ErrorIs(t, err, session.ErrNotRunning)
	_, err = svc.Export(context.Background(), s.ID())
	assert.ErrorIs(t, err, session.ErrNoResult)
}

func TestFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
		kind evaluation.Kind
	}{
		{"prose only", "I cannot evaluate this image.", nil, evaluation.KindParse},
		{"truncated", `{"summary": {"verdict": "Pass"`, nil, evaluation.KindParse},
		{"no traps", `{"summary": {"verdict": "Pass"}}`, nil, evaluation.KindIncomplete},
		{"rate limited", "", evaluation.ClassifyServiceMessage("rate limit exceeded"), evaluation.KindRateLimit},
		{"bad request", "", evaluation.ClassifyServiceMessage("invalid base64"), evaluation.KindInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{text: tt.text, err: tt.err}
			svc, j, _ := newService(client)
			s := readySession(svc, "Checkout")

			_, err := svc.Start(s.ID())
			require.NoError(t, err)
			waitRuns(t, svc)

			run := s.Run()
			assert.Equal(t, session.StateFailed, run.State)
			require.NotNil(t, run.Error)
			assert.Equal(t, tt.kind, run.Error.Kind)
			assert.Nil(t, run.Result)
			require.Len(t, j.recs, 1)
			assert.Equal(t, string(tt.kind), j.recs[0].ErrorKind)
			assert.EqualValues(t, 1, client.calls.Load())
		})
	}
}

func TestEvaluateSynchronous(t *testing.T) {
	client := &fakeClient{text: validAnswer}
	svc, _, _ := newService(client)

	_, err := svc.Evaluate(context.Background(), evaluation.Context{WorkflowName: "x"}, evaluation.UploadedImage{})
	assert.ErrorIs(t, err, evaluation.ErrNoImage)
	_, err = svc.Evaluate(context.Background(), evaluation.Context{}, evaluation.UploadedImage{Data: []byte("a")})
	assert.ErrorIs(t, err, evaluation.ErrMissingWorkflow)
	assert.Zero(t, client.calls.Load())

	res, err := svc.Evaluate(context.Background(), evaluation.Context{WorkflowName: "x"}, evaluation.UploadedImage{Data: []byte("a")})
	require.NoError(t, err)
	assert.Len(t, res.Traps, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Evaluate(ctx, evaluation.Context{WorkflowName: "x"}, evaluation.UploadedImage{Data: []byte("a")})
	assert.ErrorIs(t, err, evaluation.ErrCancelled)
	assert.EqualValues(t, 1, client.calls.Load())
}

func TestRecentRunsWithoutJournal(t *testing.T) {
	svc, _, _ := newService(&fakeClient{})
	svc.Journal = nil
	runs, err := svc.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Len(t, truncate(strings.Repeat("x", 600), 500), 500)
}
