package httpserver

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/uxtrap/internal/application/evaluations"
	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/session"
)

const answer = `Sure! {"summary":{"verdict":"Critical","intent":"pay","emotionalContext":"anxious","health":"poor"},
"traps":[{"id":"t1","name":"Risky Default","tenet":"Protective","severity":"P1",
"location":{"x":25,"y":75,"description":"checkbox"},"evidence":"e","diagnostic":"d",
"remediation":{"quickPivot":"q","architecturalSolve":"a","aiFix":"f"}}],
"tenetScores":{"Protective":1},"tenetWin":"Beautiful","priorities":["t1"],"overallScore":3}`

type passthrough struct{}

func (passthrough) Prepare(_ context.Context, data []byte) (evaluation.PreparedImage, error) {
	return evaluation.PreparedImage{Data: data, MediaType: "image/jpeg"}, nil
}

type stubClient struct {
	text  string
	block chan struct{}
}

func (c *stubClient) Evaluate(ctx context.Context, _ evaluation.PreparedImage, _ string) (string, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.text, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type harness struct {
	t   *testing.T
	srv *httptest.Server
	svc *evaluations.Service
}

func newHarness(t *testing.T, client evaluation.Client, keys map[string]string) *harness {
	t.Helper()
	svc := &evaluations.Service{
		Sessions:     session.NewStore(),
		Preprocessor: passthrough{},
		Client:       client,
		Prompt:       func(c evaluation.Context) string { return c.WorkflowName },
		Clock:        fixedClock{time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)},
	}
	srv := httptest.NewServer(NewRouter(Options{Service: svc, APIKeys: keys, MaxUploadBytes: 1 << 20}))
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, svc: svc}
}

func (h *harness) do(method, path string, body io.Reader, contentType string) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	require.NoError(h.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) json(method, path string, in any, out any) int {
	h.t.Helper()
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		require.NoError(h.t, err)
		body = bytes.NewReader(b)
	}
	resp := h.do(method, path, body, "application/json")
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) wait() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.svc.Wait(ctx))
}

func pngBytes(t *testing.T) []byte {
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func (h *harness) upload(sid string, files map[string][]byte) *http.Response {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(h.t, err)
		_, _ = fw.Write(data)
	}
	require.NoError(h.t, mw.Close())
	return h.do(http.MethodPost, "/v1/sessions/"+sid+"/images", body, mw.FormDataContentType())
}

func (h *harness) newSession() string {
	var v session.View
	require.Equal(h.t, http.StatusCreated, h.json(http.MethodPost, "/v1/sessions", nil, &v))
	return v.ID
}

func TestFullEvaluationFlow(t *testing.T) {
	h := newHarness(t, &stubClient{text: answer}, nil)
	sid := h.newSession()

	// no image, no workflow
	var errBody errorBody
	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPost, "/v1/sessions/"+sid+"/evaluations", nil, &errBody))
	assert.Equal(t, "Please upload at least one screenshot.", errBody.Error.Message)

	resp := h.upload(sid, map[string][]byte{"../home.png": pngBytes(t)})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var imgs imagesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&imgs))
	require.Len(t, imgs.Images, 1)
	assert.Equal(t, "home.png", imgs.Images[0].Name)
	assert.Equal(t, "image/png", imgs.Images[0].MediaType)

	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPost, "/v1/sessions/"+sid+"/evaluations", nil, &errBody))
	assert.Equal(t, "Please enter a workflow name.", errBody.Error.Message)

	var ctxOut evaluation.Context
	require.Equal(t, http.StatusOK, h.json(http.MethodPut, "/v1/sessions/"+sid+"/context",
		map[string]string{"workflowName": " Pay Bills ", "persona": "Retiree"}, &ctxOut))
	assert.Equal(t, "Pay Bills", ctxOut.WorkflowName)

	var run session.RunView
	require.Equal(t, http.StatusAccepted, h.json(http.MethodPost, "/v1/sessions/"+sid+"/evaluations", nil, &run))
	h.wait()

	require.Equal(t, http.StatusOK, h.json(http.MethodGet, "/v1/sessions/"+sid+"/evaluations/current", nil, &run))
	assert.Equal(t, session.StateSucceeded, run.State)
	require.NotNil(t, run.Result)
	assert.Equal(t, evaluation.VerdictCritical, run.Result.Summary.Verdict)

	// markers follow zoom
	var vp viewportResponse
	require.Equal(t, http.StatusOK, h.json(http.MethodPost, "/v1/sessions/"+sid+"/viewport",
		map[string]any{"action": "preset", "zoom": 2}, &vp))
	assert.True(t, vp.Changed)
	assert.Equal(t, 2.0, vp.Zoom)
	require.Len(t, vp.Markers, 1)
	assert.Equal(t, 0.5, vp.Markers[0].Scale)
	assert.Equal(t, 25.0, vp.Markers[0].LeftPercent)

	resp = h.do(http.MethodGet, "/v1/sessions/"+sid+"/export", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "ux-evaluation-pay-bills-20260304-050607.json", params["filename"])
	var doc evaluation.ExportDocument
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Pay Bills", doc.Context.WorkflowName)
	assert.Equal(t, "home.png", doc.ImageName)

	resp = h.do(http.MethodGet, "/v1/sessions/"+sid+"/images/"+string(imgs.Images[0].ID), nil, "")
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestUploadRejectsNonImages(t *testing.T) {
	h := newHarness(t, &stubClient{}, nil)
	sid := h.newSession()
	resp := h.upload(sid, map[string][]byte{"notes.txt": []byte("hello world")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var v session.View
	h.json(http.MethodGet, "/v1/sessions/"+sid, nil, &v)
	assert.Empty(t, v.Images)
}

func TestUploadTooLarge(t *testing.T) {
	h := newHarness(t, &stubClient{}, nil)
	sid := h.newSession()
	big := append(pngBytes(t), make([]byte, (1<<20)+(64<<10))...)
	resp := h.upload(sid, map[string][]byte{"big.png": big})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

// pngBomb is a valid PNG header declaring a w x h canvas, without pixel data.
func pngBomb(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 2
	chunk := append([]byte("IHDR"), ihdr...)

	buf := new(bytes.Buffer)
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestUploadRejectsOversizedCanvas(t *testing.T) {
	h := newHarness(t, &stubClient{}, nil)
	sid := h.newSession()
	resp := h.upload(sid, map[string][]byte{"bomb.png": pngBomb(16000, 16000)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, "image", errBody.Error.Kind)
	assert.Contains(t, errBody.Error.Message, "bomb.png")

	var v session.View
	h.json(http.MethodGet, "/v1/sessions/"+sid, nil, &v)
	assert.Empty(t, v.Images)
}

func TestViewportRejectsNonFiniteResult(t *testing.T) {
	h := newHarness(t, &stubClient{}, nil)
	sid := h.newSession()
	path := "/v1/sessions/" + sid + "/viewport"

	var vp viewportResponse
	var errBody errorBody
	require.Equal(t, http.StatusOK, h.json(http.MethodPost, path, map[string]any{"action": "drag_start", "x": -1e308, "y": 0}, &vp))
	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPost, path, map[string]any{"action": "drag_move", "x": 1e308, "y": 0}, &errBody))
	h.json(http.MethodPost, path, map[string]any{"action": "drag_end"}, &vp)

	// doubling overflows float64 after 1024 steps
	last := http.StatusOK
	steps := 0
	for ; steps < 1100 && last == http.StatusOK; steps++ {
		resp := h.do(http.MethodPost, path, strings.NewReader(`{"action":"double_click"}`), "application/json")
		_, _ = io.Copy(io.Discard, resp.Body)
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusBadRequest, last)
	assert.Equal(t, 1024, steps)

	require.Equal(t, http.StatusOK, h.json(http.MethodGet, path, nil, &vp))
	assert.False(t, math.IsInf(vp.Zoom, 0))
	assert.Equal(t, math.Ldexp(1, 1023), vp.Zoom)

	var view session.View
	require.Equal(t, http.StatusOK, h.json(http.MethodGet, "/v1/sessions/"+sid, nil, &view))
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"zoom": math.Inf(1)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var errBody errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "internal", errBody.Error.Kind)
}

func TestActiveImageAndViewport(t *testing.T) {
	h := newHarness(t, &stubClient{}, nil)
	sid := h.newSession()
	h.upload(sid, map[string][]byte{"a.png": pngBytes(t)})
	h.upload(sid, map[string][]byte{"b.png": pngBytes(t)})

	var vp viewportResponse
	h.json(http.MethodPost, "/v1/sessions/"+sid+"/viewport", map[string]any{"action": "wheel", "deltaY": 100, "modifier": false}, &vp)
	assert.False(t, vp.Changed)
	assert.Equal(t, 1.0, vp.Zoom)

	h.json(http.MethodPost, "/v1/sessions/"+sid+"/viewport", map[string]any{"action": "double_click"}, &vp)
	assert.Equal(t, 2.0, vp.Zoom)
	assert.Equal(t, "scale(2) translate(0px, 0px)", vp.CSS)

	h.json(http.MethodPost, "/v1/sessions/"+sid+"/viewport", map[string]any{"action": "drag_start", "x": 10, "y": 10}, &vp)
	h.json(http.MethodPost, "/v1/sessions/"+sid+"/viewport", map[string]any{"action": "drag_move", "x": 50, "y": 30}, &vp)
	assert.Equal(t, 40.0, vp.Pan.X)
	assert.Equal(t, 20.0, vp.Pan.Y)
	assert.Equal(t, 40.0, vp.Transform.OffsetX)

	var errBody errorBody
	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPost, "/v1/sessions/"+sid+"/viewport", map[string]any{"action": "preset", "zoom": 3}, &errBody))
	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodPost, "/v1/sessions/"+sid+"/viewport", map[string]any{"action": "spin"}, &errBody))

	var active struct {
		ActiveIndex int              `json:"activeIndex"`
		Viewport    viewportResponse `json:"viewport"`
	}
	require.Equal(t, http.StatusOK, h.json(http.MethodPut, "/v1/sessions/"+sid+"/images/active", map[string]int{"index": 9}, &active))
	assert.Equal(t, 1, active.ActiveIndex)
	assert.Equal(t, 1.0, active.Viewport.Zoom, "switching image resets the viewport")
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, &stubClient{}, nil)
	var errBody errorBody

	assert.Equal(t, http.StatusBadRequest, h.json(http.MethodGet, "/v1/sessions/not-a-uuid", nil, &errBody))
	assert.Equal(t, http.StatusNotFound, h.json(http.MethodGet, "/v1/sessions/0b6a3f51-8d2b-4f62-9a0e-3f0e0f5b1c2d", nil, &errBody))
	assert.Equal(t, "not_found", errBody.Error.Kind)

	sid := h.newSession()
	assert.Equal(t, http.StatusConflict, h.json(http.MethodPost, "/v1/sessions/"+sid+"/evaluations/current/cancel", nil, &errBody))
	assert.Equal(t, http.StatusConflict, h.json(http.MethodGet, "/v1/sessions/"+sid+"/export", nil, &errBody))
	assert.Equal(t, http.StatusNotFound, h.json(http.MethodDelete, "/v1/sessions/"+sid+"/images/0b6a3f51-8d2b-4f62-9a0e-3f0e0f5b1c2d", nil, &errBody))

	resp := h.do(http.MethodPut, "/v1/sessions/"+sid+"/context", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodDelete, "/v1/sessions/"+sid, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, h.json(http.MethodGet, "/v1/sessions/"+sid, nil, &errBody))
}

func TestBusyAndCancel(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	h := newHarness(t, &stubClient{text: answer, block: block}, nil)
	sid := h.newSession()
	h.upload(sid, map[string][]byte{"a.png": pngBytes(t)})
	h.json(http.MethodPut, "/v1/sessions/"+sid+"/context", map[string]string{"workflowName": "Login"}, nil)

	var run session.RunView
	require.Equal(t, http.StatusAccepted, h.json(http.MethodPost, "/v1/sessions/"+sid+"/evaluations", nil, &run))
	assert.Equal(t, session.StateRunning, run.State)

	var errBody errorBody
	assert.Equal(t, http.StatusConflict, h.json(http.MethodPost, "/v1/sessions/"+sid+"/evaluations", nil, &errBody))
	assert.Equal(t, "busy", errBody.Error.Kind)

	require.Equal(t, http.StatusOK, h.json(http.MethodPost, "/v1/sessions/"+sid+"/evaluations/current/cancel", nil, &run))
	assert.Equal(t, session.StateCancelled, run.State)
	require.NotNil(t, run.Error)
	assert.Equal(t, evaluation.KindCancelled, run.Error.Kind)
	h.wait()
}

func TestTaxonomyProbesAndAuth(t *testing.T) {
	h := newHarness(t, &stubClient{}, map[string]string{"web": "k"})

	resp := h.do(http.MethodGet, "/v1/taxonomy", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/v1/taxonomy", nil)
	req.Header.Set("X-API-Key", "k")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tax struct {
		Tenets     []evaluation.Tenet          `json:"tenets"`
		Traps      []evaluation.TrapDefinition `json:"traps"`
		Severities []evaluation.SeverityInfo   `json:"severities"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tax))
	assert.Len(t, tax.Tenets, 9)
	assert.Len(t, tax.Traps, 25)
	assert.Len(t, tax.Severities, 5)

	for _, p := range []string{"/health", "/ready", "/live", "/metrics"} {
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, p, nil, "").StatusCode, p)
	}
}

func TestRunsWithoutJournal(t *testing.T) {
	h := newHarness(t, &stubClient{}, nil)
	var out struct {
		Runs []evaluation.RunRecord `json:"runs"`
	}
	require.Equal(t, http.StatusOK, h.json(http.MethodGet, "/v1/runs?limit=5", nil, &out))
	assert.Empty(t, out.Runs)
}

func TestExportKeepsNonASCIIWorkflowName(t *testing.T) {
	h := newHarness(t, &stubClient{text: answer}, nil)
	sid := h.newSession()
	require.Equal(t, http.StatusCreated, h.upload(sid, map[string][]byte{"a.png": pngBytes(t)}).StatusCode)
	require.Equal(t, http.StatusOK, h.json(http.MethodPut, "/v1/sessions/"+sid+"/context",
		map[string]string{"workflowName": "Café Flow"}, nil))
	require.Equal(t, http.StatusAccepted, h.json(http.MethodPost, "/v1/sessions/"+sid+"/evaluations", nil, nil))
	h.wait()

	resp := h.do(http.MethodGet, "/v1/sessions/"+sid+"/export", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "ux-evaluation-café-flow-20260304-050607.json", params["filename"])
}
