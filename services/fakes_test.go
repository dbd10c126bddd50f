package services

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/faceserver/models"
	"github.com/camden-git/faceserver/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Label{}, &models.Sample{}))
	return db
}

// fakeDetector returns a fixed set of boxes for every frame
type fakeDetector struct {
	boxes []image.Rectangle
}

func (d *fakeDetector) Detect(frame gocv.Mat) []image.Rectangle {
	return d.boxes
}

// fakeNormalizer hands back a fresh Mat without touching the frame
type fakeNormalizer struct {
	err error
}

func (n *fakeNormalizer) Normalize(frame gocv.Mat, box image.Rectangle) (gocv.Mat, error) {
	if n.err != nil {
		return gocv.Mat{}, n.err
	}
	return gocv.NewMat(), nil
}

// fakeImageIO stores plain files so row/file consistency can be asserted
// without an image codec
type fakeImageIO struct {
	mu         sync.Mutex
	writeErr   error
	unreadable map[string]bool
	writes     []string
}

func (io *fakeImageIO) Write(path string, img gocv.Mat) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.writeErr != nil {
		return io.writeErr
	}
	if err := os.WriteFile(path, []byte("sample"), 0644); err != nil {
		return err
	}
	io.writes = append(io.writes, path)
	return nil
}

func (io *fakeImageIO) Read(path string) (gocv.Mat, error) {
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.unreadable[path] {
		return gocv.Mat{}, fmt.Errorf("unreadable image %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return gocv.Mat{}, err
	}
	return gocv.NewMat(), nil
}

// fakeClassifier records lifecycle calls and writes a marker artifact
type fakeClassifier struct {
	mu sync.Mutex

	fitErr  error
	loadErr error
	fitGate chan struct{} // when set, Fit blocks until the channel closes

	fitted     bool
	fitSamples int
	fitLabels  []int
	loadedFrom string

	predictLabel      int
	predictConfidence float64
	predictErr        error
}

func (c *fakeClassifier) Fit(images []gocv.Mat, labelIDs []int) error {
	c.mu.Lock()
	gate := c.fitGate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if c.fitErr != nil {
		return c.fitErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fitted = true
	c.fitSamples = len(images)
	c.fitLabels = append([]int(nil), labelIDs...)
	return nil
}

func (c *fakeClassifier) Predict(face gocv.Mat) (int, float64, error) {
	if c.predictErr != nil {
		return 0, 0, c.predictErr
	}
	return c.predictLabel, c.predictConfidence, nil
}

func (c *fakeClassifier) Save(path string) error {
	return os.WriteFile(path, []byte("model-state"), 0644)
}

func (c *fakeClassifier) Load(path string) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty model file")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedFrom = path
	c.fitted = true
	return nil
}

// flakySampleRepo wraps a real sample repository and fails selected
// operations on demand
type flakySampleRepo struct {
	repository.SampleRepositoryInterface
	createErr error
	deleteErr error
}

func (r *flakySampleRepo) Create(sample *models.Sample) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.SampleRepositoryInterface.Create(sample)
}

func (r *flakySampleRepo) DeleteByLabel(labelID uint) (int64, error) {
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	return r.SampleRepositoryInterface.DeleteByLabel(labelID)
}

// fakeAdmitter drives capture session tests with scripted store responses
type fakeAdmitter struct {
	responses []Admission
	errs      []error
	calls     int
}

func (a *fakeAdmitter) Admit(label *models.Label, frame gocv.Mat) (Admission, error) {
	i := a.calls
	a.calls++
	var err error
	if i < len(a.errs) {
		err = a.errs[i]
	}
	if i >= len(a.responses) {
		return Admission{Result: AdmitRejected, Reason: "script exhausted"}, err
	}
	return a.responses[i], err
}
