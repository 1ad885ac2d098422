package session

import (
	"time"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/domain/viewport"
)

// ErrorView is the user-facing form of a run error.
type ErrorView struct {
	Kind    evaluation.Kind `json:"kind"`
	Message string          `json:"message"`
	Detail  string          `json:"detail,omitempty"`
}

// RunView is a read-only snapshot of the run state machine.
type RunView struct {
	ID         string             `json:"id,omitempty"`
	State      RunState           `json:"state"`
	ImageID    evaluation.ImageID `json:"imageId,omitempty"`
	ImageName  string             `json:"imageName,omitempty"`
	StartedAt  *time.Time         `json:"startedAt,omitempty"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
	Result     *evaluation.Result `json:"result,omitempty"`
	Error      *ErrorView         `json:"error,omitempty"`
}

// View is a snapshot of the whole session, image bytes excluded.
type View struct {
	ID          string                     `json:"id"`
	CreatedAt   time.Time                  `json:"createdAt"`
	Context     evaluation.Context         `json:"context"`
	Images      []evaluation.UploadedImage `json:"images"`
	ActiveIndex int                        `json:"activeIndex"`
	Viewport    viewport.Viewport          `json:"viewport"`
	Run         RunView                    `json:"run"`
}

func (s *Session) Run() RunView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runViewLocked()
}

func (s *Session) runViewLocked() RunView {
	r := s.run
	if r == nil {
		return RunView{State: StateIdle}
	}
	v := RunView{
		ID:        r.id,
		State:     r.state,
		ImageID:   r.image.ID,
		ImageName: r.image.Name,
		Result:    r.result,
	}
	started := r.startedAt
	v.StartedAt = &started
	if !r.finishedAt.IsZero() {
		finished := r.finishedAt
		v.FinishedAt = &finished
	}
	if r.err != nil {
		v.Error = &ErrorView{
			Kind:    evaluation.KindOf(r.err),
			Message: evaluation.UserMessage(r.err),
			Detail:  r.err.Error(),
		}
	}
	return v
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	images := make([]evaluation.UploadedImage, len(s.images))
	copy(images, s.images)
	return View{
		ID:          s.id,
		CreatedAt:   s.createdAt,
		Context:     s.ectx,
		Images:      images,
		ActiveIndex: s.active,
		Viewport:    s.view,
		Run:         s.runViewLocked(),
	}
}
