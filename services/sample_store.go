package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/facette/natsort"
	"gocv.io/x/gocv"
	"gorm.io/gorm"

	"github.com/camden-git/faceserver/models"
	"github.com/camden-git/faceserver/repository"
)

// AdmitResult is the per-frame outcome of a sample admission attempt
type AdmitResult int

const (
	AdmitAccepted AdmitResult = iota
	AdmitNoFace
	AdmitQuotaReached
	AdmitRejected
)

func (r AdmitResult) String() string {
	switch r {
	case AdmitAccepted:
		return "accepted"
	case AdmitNoFace:
		return "no_face"
	case AdmitQuotaReached:
		return "quota_reached"
	case AdmitRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Admission reports what happened to one frame offered to the store
type Admission struct {
	Result AdmitResult
	// SamplesLive is the live sample count for the label after the attempt
	SamplesLive int
	// Reason is set when Result is AdmitRejected
	Reason string
}

// SampleStore persists normalized face samples under a per-label directory
// and an index row in the metadata store, keeping both sides consistent: a
// row exists exactly when its file does. The per-label quota check and the
// write it guards run under a label-scoped mutex; unguarded count-then-write
// would race under concurrent admissions.
type SampleStore struct {
	labels     repository.LabelRepositoryInterface
	samples    repository.SampleRepositoryInterface
	detector   Detector
	normalizer Normalizer
	imageIO    ImageIO
	imagesRoot string
	quota      int

	locks sync.Map // label ID -> *sync.Mutex
}

// NewSampleStore creates a sample store rooted at imagesRoot with a per-label
// live sample quota
func NewSampleStore(
	labels repository.LabelRepositoryInterface,
	samples repository.SampleRepositoryInterface,
	detector Detector,
	normalizer Normalizer,
	imageIO ImageIO,
	imagesRoot string,
	quota int,
) *SampleStore {
	if quota <= 0 {
		quota = 10
	}
	return &SampleStore{
		labels:     labels,
		samples:    samples,
		detector:   detector,
		normalizer: normalizer,
		imageIO:    imageIO,
		imagesRoot: imagesRoot,
		quota:      quota,
	}
}

// Quota returns the per-label live sample quota Q
func (s *SampleStore) Quota() int {
	return s.quota
}

func (s *SampleStore) labelLock(labelID uint) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(labelID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *SampleStore) labelDir(label *models.Label) string {
	return filepath.Join(s.imagesRoot, label.Name)
}

// Admit offers one raw frame for enrollment under the given label. The frame
// is only stored when a face is detected; the file is written first and the
// index row second, and a failed insert removes the file so neither side can
// orphan the other.
func (s *SampleStore) Admit(label *models.Label, frame gocv.Mat) (Admission, error) {
	mu := s.labelLock(label.ID)
	mu.Lock()
	defer mu.Unlock()

	count, err := s.samples.CountByLabel(label.ID)
	if err != nil {
		return Admission{Result: AdmitRejected, Reason: "count failed"}, err
	}
	if int(count) >= s.quota {
		return Admission{Result: AdmitQuotaReached, SamplesLive: int(count)}, nil
	}

	boxes := s.detector.Detect(frame)
	if len(boxes) == 0 {
		return Admission{Result: AdmitNoFace, SamplesLive: int(count)}, nil
	}

	face, err := s.normalizer.Normalize(frame, boxes[0])
	if err != nil {
		return Admission{Result: AdmitRejected, SamplesLive: int(count), Reason: "normalization failed"},
			fmt.Errorf("failed to normalize face for label %q: %w", label.Name, err)
	}
	defer face.Close()

	dir := s.labelDir(label)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Admission{Result: AdmitRejected, SamplesLive: int(count), Reason: "storage failed"},
			fmt.Errorf("failed to create sample directory %s: %w", dir, err)
	}

	path, err := s.nextSamplePath(dir)
	if err != nil {
		return Admission{Result: AdmitRejected, SamplesLive: int(count), Reason: "storage failed"}, err
	}
	if err := s.imageIO.Write(path, face); err != nil {
		return Admission{Result: AdmitRejected, SamplesLive: int(count), Reason: "storage failed"},
			fmt.Errorf("failed to write sample image %s: %w", path, err)
	}

	sample := models.Sample{LabelID: label.ID, Path: path, CreatedAt: time.Now().Unix()}
	if err := s.samples.Create(&sample); err != nil {
		// roll back the file only while no row owns the path; removing an
		// owned file would orphan that row
		if _, ownErr := s.samples.GetByPath(path); errors.Is(ownErr, gorm.ErrRecordNotFound) {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Printf("store: ERROR removing %s after failed index insert: %v", path, rmErr)
			}
		}
		return Admission{Result: AdmitRejected, SamplesLive: int(count), Reason: "index insert failed"},
			fmt.Errorf("failed to index sample %s: %w", path, err)
	}

	log.Printf("store: saved sample %s for label %q (%d/%d)", filepath.Base(path), label.Name, count+1, s.quota)
	return Admission{Result: AdmitAccepted, SamplesLive: int(count) + 1}, nil
}

// nextSamplePath returns the lowest ordinal filename under dir that no index
// row owns. Live ordinals are not necessarily contiguous: Reconcile drops
// rows whose files vanished, so reusing the live count as the ordinal could
// collide with a surviving row's file.
func (s *SampleStore) nextSamplePath(dir string) (string, error) {
	for n := 0; ; n++ {
		path := filepath.Join(dir, fmt.Sprintf("%d.jpg", n))
		_, err := s.samples.GetByPath(path)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to probe sample path %s: %w", path, err)
		}
	}
}

// ResetIfFull purges the entire sample set for a label that is being
// re-enrolled while at or above quota. Files go first, rows second: if the
// row delete then fails, the leftover rows point at missing files and the
// next Reconcile drops them, so a partial purge can never resurrect the old
// set. Returns whether a purge happened.
func (s *SampleStore) ResetIfFull(label *models.Label) (bool, error) {
	mu := s.labelLock(label.ID)
	mu.Lock()
	defer mu.Unlock()

	count, err := s.samples.CountByLabel(label.ID)
	if err != nil {
		return false, err
	}
	if int(count) < s.quota {
		return false, nil
	}

	dir := s.labelDir(label)
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to clear sample directory %s: %w", dir, err)
	}
	removed, err := s.samples.DeleteByLabel(label.ID)
	if err != nil {
		return false, err
	}
	log.Printf("store: purged %d sample(s) for label %q before re-enrollment", removed, label.Name)
	return true, nil
}

// Reconcile repairs drift between the index and the filesystem at startup:
// rows whose file vanished are dropped, and files present on disk but not
// indexed (for example from a previous deployment) are registered under a
// label named after their directory.
func (s *SampleStore) Reconcile() error {
	samples, err := s.samples.ListAll()
	if err != nil {
		return err
	}
	for i := range samples {
		if _, statErr := os.Stat(samples[i].Path); os.IsNotExist(statErr) {
			log.Printf("store: dropping index row for missing file %s", samples[i].Path)
			if delErr := s.samples.DeleteByID(samples[i].ID); delErr != nil && !errors.Is(delErr, gorm.ErrRecordNotFound) {
				return delErr
			}
		}
	}

	entries, err := os.ReadDir(s.imagesRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read images root %s: %w", s.imagesRoot, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label, err := s.labels.GetOrCreate(entry.Name())
		if err != nil {
			return err
		}

		dir := filepath.Join(s.imagesRoot, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read sample directory %s: %w", dir, err)
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			if !f.IsDir() {
				names = append(names, f.Name())
			}
		}
		// index in ordinal order so created_at ordering matches admission order
		sort.Slice(names, func(i, j int) bool { return natsort.Compare(names[i], names[j]) })

		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, getErr := s.samples.GetByPath(path); getErr == nil {
				continue
			} else if !errors.Is(getErr, gorm.ErrRecordNotFound) {
				return getErr
			}
			sample := models.Sample{LabelID: label.ID, Path: path, CreatedAt: time.Now().Unix()}
			if createErr := s.samples.Create(&sample); createErr != nil {
				return createErr
			}
			log.Printf("store: indexed untracked sample %s for label %q", name, label.Name)
		}
	}
	return nil
}
