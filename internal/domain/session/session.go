package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/viewport"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrImageNotFound = errors.New("image not found")
	ErrNotRunning    = errors.New("no evaluation is running")
	ErrNoResult      = errors.New("no evaluation result to export")
)

// RunState enum
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
	StateCancelled RunState = "cancelled"
)

type run struct {
	id         string
	state      RunState
	ctx        evaluation.Context
	image      evaluation.UploadedImage
	result     *evaluation.Result
	err        error
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc
}

// Ticket is what a run needs once it has entered Running: immutable snapshots
// of the context and of the active image taken at submission time.
type Ticket struct {
	RunID     string
	SessionID string
	Context   evaluation.Context
	Image     evaluation.UploadedImage
	StartedAt time.Time
}

// Session consolidates everything one user edits: context, image collection with
// its active index, viewport and the run state machine. All access is serialized.
type Session struct {
	mu sync.Mutex

	id        string
	createdAt time.Time
	lastSeen  time.Time

	ectx       evaluation.Context
	images     []evaluation.UploadedImage
	active     int
	view       viewport.Viewport
	activeTrap string
	run        *run
}

func New(id string, now time.Time) *Session {
	return &Session{id: id, createdAt: now, lastSeen: now, view: viewport.New()}
}

func (s *Session) ID() string { return s.id }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) SetContext(c evaluation.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ectx = c
}

func (s *Session) Context() evaluation.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ectx
}

// AddImages appends in upload order. The first image of an empty collection becomes active.
func (s *Session) AddImages(imgs ...evaluation.UploadedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.activeIDLocked()
	s.images = append(s.images, imgs...)
	s.setActiveLocked(s.active, prev)
}

// RemoveImage drops one image and resets the active index to 0.
func (s *Session) RemoveImage(id evaluation.ImageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, img := range s.images {
		if img.ID != id {
			continue
		}
		prev := s.activeIDLocked()
		s.images = append(s.images[:i:i], s.images[i+1:]...)
		s.setActiveLocked(0, prev)
		return nil
	}
	return ErrImageNotFound
}

// SetActive clamps idx into range and returns the index actually selected.
func (s *Session) SetActive(idx int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setActiveLocked(idx, s.activeIDLocked())
	return s.active
}

func (s *Session) activeIDLocked() evaluation.ImageID {
	if s.active >= 0 && s.active < len(s.images) {
		return s.images[s.active].ID
	}
	return ""
}

// setActiveLocked is the only place the active index changes, so the viewport
// reset on image change cannot be skipped.
func (s *Session) setActiveLocked(idx int, prev evaluation.ImageID) {
	switch {
	case len(s.images) == 0:
		idx = 0
	case idx < 0:
		idx = 0
	case idx >= len(s.images):
		idx = len(s.images) - 1
	}
	s.active = idx
	if s.activeIDLocked() != prev {
		s.view.Reset()
		s.activeTrap = ""
	}
}

func (s *Session) ActiveImage() (evaluation.UploadedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.images) == 0 {
		return evaluation.UploadedImage{}, false
	}
	return s.images[s.active], true
}

func (s *Session) Image(id evaluation.ImageID) (evaluation.UploadedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.images {
		if img.ID == id {
			return img, nil
		}
	}
	return evaluation.UploadedImage{}, ErrImageNotFound
}

// Images returns a copy of the collection.
func (s *Session) Images() []evaluation.UploadedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]evaluation.UploadedImage, len(s.images))
	copy(out, s.images)
	return out
}

func (s *Session) Viewport() viewport.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// UpdateViewport applies fn to the live viewport. A failing fn leaves it untouched.
func (s *Session) UpdateViewport(fn func(v *viewport.Viewport) error) (viewport.Viewport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.view
	if err := fn(&next); err != nil {
		return s.view, err
	}
	s.view = next
	return s.view, nil
}

// SelectTrap highlights one marker; an empty id clears the selection.
func (s *Session) SelectTrap(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTrap = id
}

// Markers places the markers of the current result for the current viewport.
func (s *Session) Markers() []viewport.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil || s.run.result == nil || s.run.image.ID != s.activeIDLocked() {
		return []viewport.Marker{}
	}
	return s.view.Markers(s.run.result.Traps, s.activeTrap)
}

// BeginRun validates preconditions and enters Running. cancel is kept as the
// run's cancellation handle. On error nothing changes.
func (s *Session) BeginRun(runID string, now time.Time, cancel context.CancelFunc) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil && s.run.state == StateRunning {
		return Ticket{}, evaluation.ErrRunInProgress
	}
	if len(s.images) == 0 {
		return Ticket{}, evaluation.ErrNoImage
	}
	if strings.TrimSpace(s.ectx.WorkflowName) == "" {
		return Ticket{}, evaluation.ErrMissingWorkflow
	}

	snap := s.ectx.Trimmed()
	img := s.images[s.active]
	s.run = &run{
		id:        runID,
		state:     StateRunning,
		ctx:       snap,
		image:     img,
		startedAt: now,
		cancel:    cancel,
	}
	s.activeTrap = ""
	return Ticket{RunID: runID, SessionID: s.id, Context: snap, Image: img, StartedAt: now}, nil
}

// FinishRun records the outcome of runID. It is a no-op (false) when the run
// was cancelled or replaced in the meantime.
func (s *Session) FinishRun(runID string, res *evaluation.Result, err error, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.run
	if r == nil || r.id != runID || r.state != StateRunning {
		return false
	}
	r.finishedAt = now
	r.cancel = nil
	switch {
	case err == nil:
		r.state = StateSucceeded
		r.result = res
	case errors.Is(err, evaluation.ErrCancelled):
		r.state = StateCancelled
		r.err = err
	default:
		r.state = StateFailed
		r.err = err
	}
	return true
}

// CancelRun moves a running run to Cancelled and aborts its outbound call.
func (s *Session) CancelRun(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.run
	if r == nil || r.state != StateRunning {
		return "", ErrNotRunning
	}
	r.state = StateCancelled
	r.err = evaluation.ErrCancelled
	r.result = nil
	r.finishedAt = now
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return r.id, nil
}

// Export builds the export document from the current context and the last result.
func (s *Session) Export() (evaluation.ExportDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil || s.run.state != StateSucceeded || s.run.result == nil {
		return evaluation.ExportDocument{}, ErrNoResult
	}
	return evaluation.ExportDocument{
		EvaluatedAt: s.run.finishedAt,
		ImageName:   s.run.image.Name,
		Context:     s.ectx.Trimmed(),
		Result:      s.run.result,
	}, nil
}
