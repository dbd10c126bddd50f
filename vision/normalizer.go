package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ToEqualizedGray converts a frame to contrast-equalized grayscale. Already
// single-channel input is equalized without conversion. The caller owns the
// returned Mat.
func ToEqualizedGray(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		gray = frame.Clone()
	}

	equalized := gocv.NewMat()
	gocv.EqualizeHist(gray, &equalized)
	gray.Close()
	return equalized
}

// FaceNormalizer produces the fixed-size single-channel samples the
// classifier consumes. Enrollment and recognition must share one instance so
// both paths apply identical preprocessing.
type FaceNormalizer struct {
	size int
}

// NewFaceNormalizer creates a normalizer emitting size-by-size images
func NewFaceNormalizer(size int) *FaceNormalizer {
	if size <= 0 {
		size = 100
	}
	return &FaceNormalizer{size: size}
}

// Normalize crops the detection box out of the frame, converts to
// contrast-equalized grayscale and resizes to the configured dimensions. The
// caller owns the returned Mat.
func (n *FaceNormalizer) Normalize(frame gocv.Mat, box image.Rectangle) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, fmt.Errorf("cannot normalize an empty frame")
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	box = box.Intersect(bounds)
	if box.Empty() {
		return gocv.Mat{}, fmt.Errorf("detection box lies outside the frame")
	}

	region := frame.Region(box)
	defer region.Close()

	gray := ToEqualizedGray(region)
	defer gray.Close()

	resized := gocv.NewMat()
	gocv.Resize(gray, &resized, image.Pt(n.size, n.size), 0, 0, gocv.InterpolationArea)
	return resized, nil
}
