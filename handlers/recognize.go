package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/camden-git/faceserver/services"
	"github.com/camden-git/faceserver/vision"
)

// RecognitionResponse is the JSON frame result sent over a recognition
// connection. Confidence is the classifier's raw distance score (lower is a
// better match); Match reflects the caller-chosen acceptance threshold and is
// omitted when no threshold applies.
type RecognitionResponse struct {
	Status       string   `json:"status"`
	Name         string   `json:"name,omitempty"`
	Confidence   float64  `json:"confidence"`
	Box          *BoxJSON `json:"box,omitempty"`
	ModelVersion uint64   `json:"model_version,omitempty"`
	Match        *bool    `json:"match,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// BoxJSON is a detection box in the original frame's pixel coordinates
type BoxJSON struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RecognizeHandler owns the persistent recognition connections: binary frames
// in, one JSON result per frame out.
type RecognizeHandler struct {
	Recognizer *services.Recognizer
	// MaxDistance is the default acceptance threshold; 0 disables it. A
	// connection may override it with the max_distance query parameter.
	MaxDistance float64
}

func (rh *RecognizeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	maxDistance := rh.MaxDistance
	if raw := r.URL.Query().Get("max_distance"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			WriteAPIError(w, http.StatusBadRequest, "invalid_threshold", "max_distance must be a non-negative number")
			return
		}
		maxDistance = parsed
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("recognize: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		resp := rh.recognizeFrame(payload, maxDistance)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (rh *RecognizeHandler) recognizeFrame(payload []byte, maxDistance float64) RecognitionResponse {
	frame, err := vision.DecodeFrame(payload)
	if err != nil {
		return RecognitionResponse{Status: "failed", Message: "failed to decode frame"}
	}
	defer frame.Close()

	result, err := rh.Recognizer.Recognize(frame)
	if err != nil {
		if errors.Is(err, services.ErrUnknownLabelID) {
			// model/registry desync is fatal for this request and logged for
			// operator attention, never silently substituted
			log.Printf("recognize: %v", err)
			return RecognitionResponse{Status: "failed", Message: "unknown_label_id"}
		}
		log.Printf("recognize: recognition error: %v", err)
		return RecognitionResponse{Status: "failed", Message: "recognition failed"}
	}

	switch result.Status {
	case services.RecognitionNoModel:
		return RecognitionResponse{Status: "no_model"}
	case services.RecognitionNoFace:
		return RecognitionResponse{Status: "no_face", ModelVersion: result.ModelVersion}
	}

	resp := RecognitionResponse{
		Status:       "identified",
		Name:         result.Name,
		Confidence:   result.Confidence,
		ModelVersion: result.ModelVersion,
		Box: &BoxJSON{
			X:      result.Box.Min.X,
			Y:      result.Box.Min.Y,
			Width:  result.Box.Dx(),
			Height: result.Box.Dy(),
		},
	}
	if maxDistance > 0 {
		match := result.Confidence <= maxDistance
		resp.Match = &match
	}
	return resp
}
