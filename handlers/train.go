package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/camden-git/faceserver/realtime"
	"github.com/camden-git/faceserver/services"
)

// TrainHandler exposes the training pipeline and the published model state
type TrainHandler struct {
	Trainer   *services.Trainer
	Artifacts *services.ModelArtifactStore
	Hub       EventBroadcaster
}

// Train runs a full-rebuild training pass and publishes the result
func (th *TrainHandler) Train(w http.ResponseWriter, r *http.Request) {
	result, err := th.Trainer.Train()
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTrainingInProgress):
			WriteAPIError(w, http.StatusConflict, "training_in_progress", "A training run is already in progress; retry later")
		case errors.Is(err, services.ErrNoTrainingData):
			WriteAPIError(w, http.StatusUnprocessableEntity, "no_training_data", "No samples have been enrolled yet")
		default:
			log.Printf("Error training model: %v", err)
			th.Hub.Broadcast(realtime.Event{
				Type:      realtime.EventTrainingFailed,
				Error:     err.Error(),
				Timestamp: time.Now().Unix(),
			})
			WriteAPIError(w, http.StatusInternalServerError, "training_failed", "Model training failed")
		}
		return
	}

	th.Hub.Broadcast(realtime.Event{
		Type:         realtime.EventModelPublished,
		ModelVersion: result.Version,
		Timestamp:    time.Now().Unix(),
	})
	writeJSON(w, http.StatusOK, result)
}

// GetModel reports the currently published model artifact, if any
func (th *TrainHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	artifact, ok := th.Artifacts.Current()
	if !ok {
		WriteAPIError(w, http.StatusNotFound, "no_model", "No model has been trained yet")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}
