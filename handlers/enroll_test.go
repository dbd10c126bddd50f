package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gorm.io/gorm"

	"github.com/camden-git/faceserver/models"
	"github.com/camden-git/faceserver/realtime"
	"github.com/camden-git/faceserver/services"
)

type stubLabelRepo struct {
	label *models.Label
}

func (r *stubLabelRepo) GetOrCreate(name string) (*models.Label, error) { return r.label, nil }
func (r *stubLabelRepo) GetByID(id uint) (*models.Label, error)        { return r.label, nil }
func (r *stubLabelRepo) ListAll() ([]models.Label, error)              { return []models.Label{*r.label}, nil }

func (r *stubLabelRepo) GetByName(name string) (*models.Label, error) {
	if r.label != nil && r.label.Name == name {
		return r.label, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// scriptedAdmitter accepts a fixed number of frames and reports the quota
// reached for every frame after that
type scriptedAdmitter struct {
	mu       sync.Mutex
	capacity int
	accepted int
}

func (a *scriptedAdmitter) Admit(label *models.Label, frame gocv.Mat) (services.Admission, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accepted >= a.capacity {
		return services.Admission{Result: services.AdmitQuotaReached, SamplesLive: a.accepted}, nil
	}
	a.accepted++
	return services.Admission{Result: services.AdmitAccepted, SamplesLive: a.accepted}, nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *recordingBroadcaster) Broadcast(event realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) byType(eventType string) []realtime.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []realtime.Event
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func encodeTestFrame(t *testing.T) []byte {
	t.Helper()
	img := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	require.NoError(t, err)
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func dialEnroll(t *testing.T, handler *EnrollHandler, label string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?label=" + label
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEnrollStreamAnnouncesCompletionOnce(t *testing.T) {
	hub := &recordingBroadcaster{}
	handler := &EnrollHandler{
		Labels: &stubLabelRepo{label: &models.Label{ID: 1, Name: "alice"}},
		Store:  &scriptedAdmitter{capacity: 1},
		Hub:    hub,
	}
	conn := dialEnroll(t, handler, "alice")
	frame := encodeTestFrame(t)

	var event services.SessionEvent

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, services.EventAccepted, event.Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, services.EventQuotaReached, event.Type)

	// late frames keep answering with the terminal event but must not
	// announce the completed enrollment again
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, services.EventQuotaReached, event.Type)
	}

	complete := hub.byType(realtime.EventEnrollmentComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, "alice", complete[0].Label)
}

func TestEnrollRejectsUnregisteredLabel(t *testing.T) {
	handler := &EnrollHandler{
		Labels: &stubLabelRepo{label: &models.Label{ID: 1, Name: "alice"}},
		Store:  &scriptedAdmitter{capacity: 1},
		Hub:    &recordingBroadcaster{},
	}
	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?label=nobody"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
