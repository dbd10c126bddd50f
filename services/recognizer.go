package services

import (
	"errors"
	"fmt"
	"image"
	"log"

	"gocv.io/x/gocv"
	"gorm.io/gorm"

	"github.com/camden-git/faceserver/repository"
)

// ErrUnknownLabelID is returned when the published model predicts a label id
// the registry no longer has. This is a classifier/registry desynchronization
// and is reported, never silently substituted.
var ErrUnknownLabelID = errors.New("model predicted a label id unknown to the registry")

// RecognitionStatus is the outcome class of one recognition attempt
type RecognitionStatus string

const (
	RecognitionIdentified RecognitionStatus = "identified"
	RecognitionNoFace     RecognitionStatus = "no_face"
	RecognitionNoModel    RecognitionStatus = "no_model"
)

// Recognition is the result of identifying one frame. Confidence is the
// classifier's raw distance score, lower meaning a better match; acceptance
// thresholds are caller policy and are never applied here.
type Recognition struct {
	Status       RecognitionStatus
	Name         string
	Confidence   float64
	Box          image.Rectangle
	ModelVersion uint64
}

// Recognizer is the recognition pipeline: detect, normalize identically to
// the enrollment path, query the currently published artifact and resolve the
// predicted id to a name.
type Recognizer struct {
	artifacts  *ModelArtifactStore
	detector   Detector
	normalizer Normalizer
	labels     repository.LabelRepositoryInterface
}

// NewRecognizer creates a recognition pipeline over the artifact store
func NewRecognizer(
	artifacts *ModelArtifactStore,
	detector Detector,
	normalizer Normalizer,
	labels repository.LabelRepositoryInterface,
) *Recognizer {
	return &Recognizer{
		artifacts:  artifacts,
		detector:   detector,
		normalizer: normalizer,
		labels:     labels,
	}
}

// Recognize identifies the primary face in one raw frame against the current
// model version
func (r *Recognizer) Recognize(frame gocv.Mat) (*Recognition, error) {
	artifact, ok := r.artifacts.Current()
	if !ok {
		return &Recognition{Status: RecognitionNoModel}, nil
	}

	boxes := r.detector.Detect(frame)
	if len(boxes) == 0 {
		return &Recognition{Status: RecognitionNoFace, ModelVersion: artifact.Version}, nil
	}
	box := boxes[0]

	face, err := r.normalizer.Normalize(frame, box)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize face: %w", err)
	}
	defer face.Close()

	labelID, confidence, err := artifact.Classifier.Predict(face)
	if err != nil {
		return nil, fmt.Errorf("prediction against model version %d failed: %w", artifact.Version, err)
	}

	label, err := r.labels.GetByID(uint(labelID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("recognizer: model version %d predicted unknown label id %d", artifact.Version, labelID)
			return nil, fmt.Errorf("label id %d: %w", labelID, ErrUnknownLabelID)
		}
		return nil, err
	}

	return &Recognition{
		Status:       RecognitionIdentified,
		Name:         label.Name,
		Confidence:   confidence,
		Box:          box,
		ModelVersion: artifact.Version,
	}, nil
}
