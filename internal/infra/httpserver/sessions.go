package httpserver

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/session"
	"github.com/bryanwahyu/uxtrap/internal/domain/viewport"
	"github.com/bryanwahyu/uxtrap/internal/infra/imaging"
	"github.com/bryanwahyu/uxtrap/internal/middleware"
)

func (r *Router) session(req *http.Request) (*session.Session, error) {
	sid := chi.URLParam(req, "sid")
	if err := middleware.ValidateID("session", sid); err != nil {
		return nil, err
	}
	return r.svc.Sessions.Get(sid, r.svc.Now())
}

// POST /v1/sessions
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) error {
	s := r.svc.Sessions.Create(r.svc.Now())
	r.log.Debug("session created", zap.String("session_id", s.ID()))
	writeJSON(w, http.StatusCreated, s.View())
	return nil
}

// GET /v1/sessions/{sid}
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, s.View())
	return nil
}

// DELETE /v1/sessions/{sid}
func (r *Router) handleDeleteSession(w http.ResponseWriter, req *http.Request) error {
	sid := chi.URLParam(req, "sid")
	if err := middleware.ValidateID("session", sid); err != nil {
		return err
	}
	if err := r.svc.Sessions.Delete(sid, r.svc.Now()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// PUT /v1/sessions/{sid}/context
// Body: {"workflowName": "...", "epicDetails": "...", "persona": "...", "useCase": "..."}
func (r *Router) handleSetContext(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	var body evaluation.Context
	if err := decodeJSON(w, req, &body); err != nil {
		return err
	}
	clean, err := middleware.SanitizeContext(body)
	if err != nil {
		return err
	}
	s.SetContext(clean)
	writeJSON(w, http.StatusOK, s.Context())
	return nil
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, badRequest("%s is larger than %d bytes", fh.Filename, limit)
	}
	return data, nil
}

type imagesResponse struct {
	Images      []evaluation.UploadedImage `json:"images"`
	ActiveIndex int                        `json:"activeIndex"`
}

// POST /v1/sessions/{sid}/images (multipart, field "files")
// Every file is read fully and sniffed before any of them is added.
func (r *Router) handleUploadImages(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest("invalid multipart form: %v", err)
	}
	defer req.MultipartForm.RemoveAll()

	files := req.MultipartForm.File["files"]
	if len(files) == 0 {
		return badRequest("no files in field \"files\"")
	}

	now := r.svc.Now()
	imgs := make([]evaluation.UploadedImage, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh, r.maxUpload)
		if err != nil {
			return err
		}
		mt, err := middleware.DetectImageType(data)
		if err != nil {
			return err
		}
		if _, err := imaging.CheckSize(data, r.maxPixels); err != nil {
			return fmt.Errorf("%s: %w", middleware.SanitizeFileName(fh.Filename), err)
		}
		imgs = append(imgs, evaluation.UploadedImage{
			ID:         evaluation.ImageID(uuid.New().String()),
			Name:       middleware.SanitizeFileName(fh.Filename),
			MediaType:  mt,
			Size:       len(data),
			UploadedAt: now,
			Data:       data,
		})
	}
	s.AddImages(imgs...)

	v := s.View()
	writeJSON(w, http.StatusCreated, imagesResponse{Images: v.Images, ActiveIndex: v.ActiveIndex})
	return nil
}

// DELETE /v1/sessions/{sid}/images/{imageID}
func (r *Router) handleDeleteImage(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "imageID")
	if err := middleware.ValidateID("image", id); err != nil {
		return err
	}
	if err := s.RemoveImage(evaluation.ImageID(id)); err != nil {
		return err
	}
	v := s.View()
	writeJSON(w, http.StatusOK, imagesResponse{Images: v.Images, ActiveIndex: v.ActiveIndex})
	return nil
}

// PUT /v1/sessions/{sid}/images/active
// Body: {"index": 2}
func (r *Router) handleSetActive(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	var body struct {
		Index *int `json:"index"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		return err
	}
	if body.Index == nil {
		return badRequest("index is required")
	}
	idx := s.SetActive(*body.Index)
	writeJSON(w, http.StatusOK, map[string]any{
		"activeIndex": idx,
		"viewport":    newViewportResponse(s, false),
	})
	return nil
}

// GET /v1/sessions/{sid}/images/{imageID}
func (r *Router) handleGetImage(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "imageID")
	if err := middleware.ValidateID("image", id); err != nil {
		return err
	}
	img, err := s.Image(evaluation.ImageID(id))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", img.MediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, err = w.Write(img.Data)
	return err
}

type viewportResponse struct {
	Zoom      float64           `json:"zoom"`
	Pan       viewport.Point    `json:"pan"`
	Dragging  bool              `json:"dragging"`
	Changed   bool              `json:"changed"`
	Transform viewport.Affine   `json:"transform"`
	CSS       string            `json:"css"`
	Markers   []viewport.Marker `json:"markers"`
}

func newViewportResponse(s *session.Session, changed bool) viewportResponse {
	v := s.Viewport()
	return viewportResponse{
		Zoom:      v.Zoom,
		Pan:       v.Pan,
		Dragging:  v.Dragging,
		Changed:   changed,
		Transform: v.ImageTransform(),
		CSS:       v.CSS(),
		Markers:   s.Markers(),
	}
}

// GET /v1/sessions/{sid}/viewport
func (r *Router) handleGetViewport(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newViewportResponse(s, false))
	return nil
}

type viewportAction struct {
	Action   string  `json:"action"`
	DeltaY   float64 `json:"deltaY"`
	Modifier bool    `json:"modifier"`
	Zoom     float64 `json:"zoom"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Primary  *bool   `json:"primary"`
	TrapID   string  `json:"trapId"`
}

// finite reports whether the state can still be rendered and encoded.
// Zoom has no product bound, but Inf, NaN and an underflow to 0 are not zooms.
func finite(v viewport.Viewport) bool {
	ok := func(f float64) bool { return !math.IsInf(f, 0) && !math.IsNaN(f) }
	return ok(v.Zoom) && v.Zoom > 0 && ok(v.Pan.X) && ok(v.Pan.Y)
}

// apply runs one pointer or button action. It reports whether the viewport changed.
func (a viewportAction) apply(v *viewport.Viewport) (bool, error) {
	before := *v
	switch a.Action {
	case "zoom_in":
		v.ZoomIn()
	case "zoom_out":
		v.ZoomOut()
	case "wheel":
		return v.Wheel(a.DeltaY, a.Modifier), nil
	case "double_click":
		v.DoubleClick()
	case "preset":
		if err := v.SetPreset(a.Zoom); err != nil {
			return false, err
		}
	case "drag_start":
		primary := a.Primary == nil || *a.Primary
		return v.BeginDrag(viewport.Point{X: a.X, Y: a.Y}, primary), nil
	case "drag_move":
		return v.DragTo(viewport.Point{X: a.X, Y: a.Y}), nil
	case "drag_end":
		v.EndDrag()
	case "reset":
		v.Reset()
	default:
		return false, badRequest("unknown viewport action %q", a.Action)
	}
	return *v != before, nil
}

// POST /v1/sessions/{sid}/viewport
// Body: {"action": "wheel", "deltaY": -120, "modifier": true}
func (r *Router) handleViewportAction(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	var body viewportAction
	if err := decodeJSON(w, req, &body); err != nil {
		return err
	}

	if body.Action == "select_trap" {
		s.SelectTrap(body.TrapID)
		writeJSON(w, http.StatusOK, newViewportResponse(s, true))
		return nil
	}

	changed := false
	if _, err := s.UpdateViewport(func(v *viewport.Viewport) error {
		var err error
		if changed, err = body.apply(v); err != nil {
			return err
		}
		if !finite(*v) {
			return badRequest("viewport action %q leaves zoom outside the float range", body.Action)
		}
		return nil
	}); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, newViewportResponse(s, changed))
	return nil
}
