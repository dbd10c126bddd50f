package vision

import (
	"fmt"

	"gocv.io/x/gocv"
)

// DiskImageIO persists normalized samples as JPEG files and loads them back
// in the single-channel form they were stored in.
type DiskImageIO struct{}

// NewDiskImageIO creates a filesystem-backed image codec
func NewDiskImageIO() *DiskImageIO {
	return &DiskImageIO{}
}

// Write encodes img to path
func (DiskImageIO) Write(path string, img gocv.Mat) error {
	if img.Empty() {
		return fmt.Errorf("cannot write an empty image to %s", path)
	}
	if ok := gocv.IMWrite(path, img); !ok {
		return fmt.Errorf("failed to encode image to %s", path)
	}
	return nil
}

// Read loads the image at path as grayscale. The caller owns the returned Mat.
func (DiskImageIO) Read(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		return gocv.Mat{}, fmt.Errorf("failed to read image %s", path)
	}
	return img, nil
}

// DecodeFrame decodes an encoded image payload (for example one websocket
// binary message) into a BGR Mat. The caller owns the returned Mat.
func DecodeFrame(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("empty frame payload")
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if img.Empty() {
		return gocv.Mat{}, fmt.Errorf("decoded frame is empty")
	}
	return img, nil
}
