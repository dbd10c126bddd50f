package vision

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/camden-git/faceserver/services"
)

// LBPHClassifier wraps the OpenCV LBPH face recognizer. Its confidence is a
// distance in LBP histogram space: lower means a better match, matching the
// direction the services.Classifier contract requires.
type LBPHClassifier struct {
	recognizer *contrib.LBPHFaceRecognizer
	trained    bool
}

// NewLBPHClassifier creates an untrained LBPH recognizer. Its signature
// satisfies services.ClassifierFactory.
func NewLBPHClassifier() services.Classifier {
	return &LBPHClassifier{recognizer: contrib.NewLBPHFaceRecognizer()}
}

// Fit trains the recognizer from scratch on the full sample set
func (c *LBPHClassifier) Fit(images []gocv.Mat, labelIDs []int) error {
	if len(images) == 0 {
		return fmt.Errorf("cannot fit LBPH model on an empty sample set")
	}
	if len(images) != len(labelIDs) {
		return fmt.Errorf("sample/label length mismatch: %d images, %d labels", len(images), len(labelIDs))
	}
	c.recognizer.Train(images, labelIDs)
	c.trained = true
	return nil
}

// Predict returns the best-matching label id and its distance score
func (c *LBPHClassifier) Predict(face gocv.Mat) (int, float64, error) {
	if !c.trained {
		return 0, 0, fmt.Errorf("LBPH model is not trained")
	}
	if face.Empty() {
		return 0, 0, fmt.Errorf("cannot predict on an empty image")
	}
	resp := c.recognizer.PredictExtendedResponse(face)
	if resp.Label < 0 {
		return 0, 0, fmt.Errorf("LBPH prediction produced no match")
	}
	return int(resp.Label), float64(resp.Confidence), nil
}

// Save writes the fitted model state to path
func (c *LBPHClassifier) Save(path string) error {
	if !c.trained {
		return fmt.Errorf("cannot save an untrained LBPH model")
	}
	c.recognizer.SaveFile(path)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("LBPH model write to %s failed: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("LBPH model write to %s produced an empty file", path)
	}
	return nil
}

// Load reads fitted model state from path
func (c *LBPHClassifier) Load(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("LBPH model file %s is not readable: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("LBPH model file %s is empty", path)
	}
	c.recognizer.LoadFile(path)
	c.trained = true
	return nil
}
