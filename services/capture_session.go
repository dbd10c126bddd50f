package services

import (
	"errors"
	"log"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/camden-git/faceserver/models"
)

// SessionState is the lifecycle state of a capture session
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionCapturing
	SessionComplete
	SessionAborted
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionCapturing:
		return "capturing"
	case SessionComplete:
		return "complete"
	case SessionAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// SessionEventType classifies the per-frame outcome reported to the caller
type SessionEventType string

const (
	EventAccepted     SessionEventType = "accepted"
	EventNoFace       SessionEventType = "no_face"
	EventRejected     SessionEventType = "rejected"
	EventQuotaReached SessionEventType = "quota_reached"
)

// SessionEvent is sent to the connection for every frame it offers
type SessionEvent struct {
	Type            SessionEventType `json:"type"`
	Label           string           `json:"label"`
	SamplesAccepted int              `json:"samples_accepted"`
	SamplesLive     int              `json:"samples_live"`
	FramesReceived  int              `json:"frames_received"`
	Message         string           `json:"message,omitempty"`
}

// ErrSessionClosed is returned when a frame arrives after the session reached
// a terminal state.
var ErrSessionClosed = errors.New("capture session is closed")

// SampleAdmitter is the slice of the sample store a capture session drives.
type SampleAdmitter interface {
	Admit(label *models.Label, frame gocv.Mat) (Admission, error)
}

// CaptureSession turns one connection's stream of raw frames into sample
// store admissions for a single bound label. All transitions are driven by
// store responses; the session holds no quota logic of its own. Sessions are
// in-memory only and owned by the connection handler.
type CaptureSession struct {
	ID    string
	Label *models.Label

	store           SampleAdmitter
	state           SessionState
	framesReceived  int
	samplesAccepted int
}

// NewCaptureSession binds a new idle session to a label
func NewCaptureSession(store SampleAdmitter, label *models.Label) *CaptureSession {
	return &CaptureSession{
		ID:    uuid.New().String(),
		Label: label,
		store: store,
		state: SessionIdle,
	}
}

// State returns the current session state
func (cs *CaptureSession) State() SessionState {
	return cs.state
}

// HandleFrame offers one raw frame to the sample store and reports the
// outcome. Recoverable per-frame failures (no face, storage rejection) keep
// the session open; the session completes only when the store reports the
// quota reached.
func (cs *CaptureSession) HandleFrame(frame gocv.Mat) (SessionEvent, error) {
	if cs.state == SessionComplete || cs.state == SessionAborted {
		return SessionEvent{}, ErrSessionClosed
	}
	cs.state = SessionCapturing
	cs.framesReceived++

	admission, err := cs.store.Admit(cs.Label, frame)
	if err != nil {
		log.Printf("session %s: admission error for label %q: %v", cs.ID, cs.Label.Name, err)
	}

	event := SessionEvent{
		Label:           cs.Label.Name,
		SamplesLive:     admission.SamplesLive,
		FramesReceived:  cs.framesReceived,
		SamplesAccepted: cs.samplesAccepted,
	}

	switch admission.Result {
	case AdmitAccepted:
		cs.samplesAccepted++
		event.Type = EventAccepted
		event.SamplesAccepted = cs.samplesAccepted
	case AdmitNoFace:
		event.Type = EventNoFace
	case AdmitQuotaReached:
		cs.state = SessionComplete
		event.Type = EventQuotaReached
	default:
		event.Type = EventRejected
		event.Message = admission.Reason
	}
	return event, nil
}

// Close aborts the session unless it already completed. Closing mid-capture
// is normal cancellation: samples admitted so far stay valid.
func (cs *CaptureSession) Close() {
	if cs.state != SessionComplete {
		cs.state = SessionAborted
	}
	log.Printf("session %s: closed in state %s (%d/%d frames accepted)",
		cs.ID, cs.state, cs.samplesAccepted, cs.framesReceived)
}
