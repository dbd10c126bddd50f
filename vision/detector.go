package vision

import (
	"image"
	"log"

	"gocv.io/x/gocv"
)

// CascadeDetector detects frontal faces with an OpenCV Haar cascade. The
// zero-value Enabled=false detector is returned when the cascade cannot be
// loaded, in which case Detect reports no faces.
type CascadeDetector struct {
	classifier   gocv.CascadeClassifier
	Enabled      bool
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
}

// NewCascadeDetector loads the Haar cascade at cascadePath
func NewCascadeDetector(cascadePath string, scaleFactor float64, minNeighbors, minSize int) *CascadeDetector {
	if cascadePath == "" {
		log.Println("detection: cascade path is empty, disabling face detection")
		return &CascadeDetector{Enabled: false}
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		log.Printf("detection: ERROR loading cascade file: %s", cascadePath)
		classifier.Close()
		return &CascadeDetector{Enabled: false}
	}
	log.Printf("detection: successfully loaded cascade %s", cascadePath)

	if scaleFactor <= 1.0 {
		scaleFactor = 1.1
	}
	if minNeighbors <= 0 {
		minNeighbors = 5
	}
	if minSize <= 0 {
		minSize = 30
	}

	return &CascadeDetector{
		classifier:   classifier,
		Enabled:      true,
		scaleFactor:  scaleFactor,
		minNeighbors: minNeighbors,
		minSize:      image.Pt(minSize, minSize),
	}
}

func (d *CascadeDetector) Close() {
	if d != nil && d.Enabled {
		d.classifier.Close()
		log.Println("detection: closed cascade classifier")
		d.Enabled = false
	}
}

// Detect runs the cascade over the contrast-equalized grayscale frame and
// returns face boxes, largest first
func (d *CascadeDetector) Detect(frame gocv.Mat) []image.Rectangle {
	if d == nil || !d.Enabled || frame.Empty() {
		return nil
	}

	gray := ToEqualizedGray(frame)
	defer gray.Close()

	boxes := d.classifier.DetectMultiScaleWithParams(
		gray,
		d.scaleFactor,
		d.minNeighbors,
		0,
		d.minSize,
		image.Point{},
	)

	// the primary face is the largest detection
	for i := 1; i < len(boxes); i++ {
		if area(boxes[i]) > area(boxes[0]) {
			boxes[0], boxes[i] = boxes[i], boxes[0]
		}
	}
	return boxes
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
