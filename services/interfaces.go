package services

import (
	"image"

	"gocv.io/x/gocv"
)

// Detector locates face regions in a frame. Implementations return boxes in
// descending priority order; callers use only the first one.
type Detector interface {
	Detect(frame gocv.Mat) []image.Rectangle
}

// Normalizer crops a detected region and produces the fixed-size,
// single-channel, contrast-equalized image the classifier is trained on.
// The same normalizer instance must be used for enrollment and recognition;
// the classifier is sensitive to preprocessing skew.
type Normalizer interface {
	Normalize(frame gocv.Mat, box image.Rectangle) (gocv.Mat, error)
}

// Classifier is the trainable face recognition capability. Confidence returned
// by Predict is a distance: lower means a better match. Implementations that
// substitute a classifier family with the opposite direction must convert, not
// pass through.
type Classifier interface {
	Fit(images []gocv.Mat, labelIDs []int) error
	Predict(face gocv.Mat) (labelID int, confidence float64, err error)
	Save(path string) error
	Load(path string) error
}

// ClassifierFactory produces a fresh, untrained classifier. The training
// pipeline uses one instance per fit and another to verify the written
// artifact before publishing it.
type ClassifierFactory func() Classifier

// ImageIO persists and loads normalized sample images. Read returns the image
// in the single-channel form Normalize produced.
type ImageIO interface {
	Write(path string, img gocv.Mat) error
	Read(path string) (gocv.Mat, error)
}
