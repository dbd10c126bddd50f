package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/camden-git/faceserver/realtime"
	"github.com/camden-git/faceserver/repository"
	"github.com/camden-git/faceserver/services"
	"github.com/camden-git/faceserver/vision"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventBroadcaster is the slice of the realtime hub handlers publish to
type EventBroadcaster interface {
	Broadcast(event realtime.Event)
}

// EnrollHandler owns the persistent enrollment connections. Each connection
// binds one label, streams binary frames in and receives a JSON SessionEvent
// per frame.
type EnrollHandler struct {
	Labels repository.LabelRepositoryInterface
	Store  services.SampleAdmitter
	Hub    EventBroadcaster
}

// ServeWS upgrades the connection and runs one capture session over it. The
// session is created on bind and destroyed on disconnect; closing the
// connection mid-capture aborts the session and keeps already-admitted
// samples.
func (eh *EnrollHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("label"))
	if name == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_label", "Query parameter 'label' is required")
		return
	}

	label, err := eh.Labels.GetByName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "label_not_found", "Label must be registered before enrollment")
			return
		}
		log.Printf("enroll: error resolving label %q: %v", name, err)
		WriteAPIError(w, http.StatusInternalServerError, "label_failed", "Failed to resolve label")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("enroll: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := services.NewCaptureSession(eh.Store, label)
	defer session.Close()
	log.Printf("enroll: session %s opened for label %q", session.ID, label.Name)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		alreadyComplete := session.State() == services.SessionComplete
		event, handled := eh.handleFrame(session, payload)
		if !handled {
			event = services.SessionEvent{
				Type:    services.EventRejected,
				Label:   label.Name,
				Message: "failed to decode frame",
			}
		}

		if err := conn.WriteJSON(event); err != nil {
			return
		}

		// late frames on a completed session repeat the terminal event but
		// must not announce completion again
		if event.Type == services.EventQuotaReached && !alreadyComplete {
			eh.Hub.Broadcast(realtime.Event{
				Type:      realtime.EventEnrollmentComplete,
				Label:     label.Name,
				Timestamp: time.Now().Unix(),
			})
		}
	}
}

// handleFrame decodes one binary message and offers it to the session. A
// session that already completed keeps answering with the terminal event so
// slow clients see a consistent stream.
func (eh *EnrollHandler) handleFrame(session *services.CaptureSession, payload []byte) (services.SessionEvent, bool) {
	frame, err := vision.DecodeFrame(payload)
	if err != nil {
		log.Printf("enroll: session %s: %v", session.ID, err)
		return services.SessionEvent{}, false
	}
	defer frame.Close()

	event, err := session.HandleFrame(frame)
	if err != nil {
		if errors.Is(err, services.ErrSessionClosed) {
			return services.SessionEvent{
				Type:  services.EventQuotaReached,
				Label: session.Label.Name,
			}, true
		}
		return services.SessionEvent{}, false
	}
	return event, true
}
