package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/facette/natsort"
	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/camden-git/faceserver/repository"
)

// ErrTrainingInProgress is returned when train is called while another
// training run holds the gate. Training is strictly serialized: two fits
// racing to publish could interleave their verify/publish steps.
var ErrTrainingInProgress = errors.New("a training run is already in progress")

// ErrNoTrainingData is returned when the sample corpus is empty. Any
// previously published model stays current and servable.
var ErrNoTrainingData = errors.New("no samples available for training")

// TrainResult describes a successful training run
type TrainResult struct {
	Version     uint64 `json:"version"`
	SampleCount int    `json:"sample_count"`
	LabelCount  int    `json:"label_count"`
}

// Trainer is the full-rebuild training pipeline: it loads the entire live
// sample corpus, fits a fresh classifier and hands the fitted state to the
// artifact store for verified publication.
type Trainer struct {
	samples   repository.SampleRepositoryInterface
	imageIO   ImageIO
	factory   ClassifierFactory
	artifacts *ModelArtifactStore
	tmpDir    string

	mu sync.Mutex // training gate
}

// NewTrainer creates a training pipeline writing candidate artifacts to tmpDir
func NewTrainer(
	samples repository.SampleRepositoryInterface,
	imageIO ImageIO,
	factory ClassifierFactory,
	artifacts *ModelArtifactStore,
	tmpDir string,
) *Trainer {
	return &Trainer{
		samples:   samples,
		imageIO:   imageIO,
		factory:   factory,
		artifacts: artifacts,
		tmpDir:    tmpDir,
	}
}

// Train rebuilds the classifier from the full corpus and publishes it as the
// next model version. It returns ErrTrainingInProgress when called
// concurrently and ErrNoTrainingData on an empty corpus; in both cases the
// published artifact is untouched.
func (t *Trainer) Train() (*TrainResult, error) {
	if !t.mu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer t.mu.Unlock()

	rows, err := t.samples.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load sample corpus: %w", err)
	}
	// stable corpus order: label id, then natural filename order within a label
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].LabelID != rows[j].LabelID {
			return rows[i].LabelID < rows[j].LabelID
		}
		return natsort.Compare(filepath.Base(rows[i].Path), filepath.Base(rows[j].Path))
	})

	images := make([]gocv.Mat, 0, len(rows))
	labelIDs := make([]int, 0, len(rows))
	defer func() {
		for i := range images {
			images[i].Close()
		}
	}()

	labelSet := map[int]struct{}{}
	for i := range rows {
		img, readErr := t.imageIO.Read(rows[i].Path)
		if readErr != nil {
			// a row whose file went missing is repaired by Reconcile; skip it
			// here rather than failing the whole run
			log.Printf("trainer: skipping unreadable sample %s: %v", rows[i].Path, readErr)
			continue
		}
		images = append(images, img)
		labelIDs = append(labelIDs, int(rows[i].LabelID))
		labelSet[int(rows[i].LabelID)] = struct{}{}
	}

	if len(images) == 0 {
		return nil, ErrNoTrainingData
	}

	classifier := t.factory()
	if err := classifier.Fit(images, labelIDs); err != nil {
		return nil, fmt.Errorf("classifier fit failed: %w", err)
	}

	tmpPath := filepath.Join(t.tmpDir, fmt.Sprintf("model-%s.yml", uuid.New().String()))
	if err := classifier.Save(tmpPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write candidate artifact: %w", err)
	}

	uniqueLabels := make([]int, 0, len(labelSet))
	for id := range labelSet {
		uniqueLabels = append(uniqueLabels, id)
	}
	sort.Ints(uniqueLabels)

	artifact, err := t.artifacts.Publish(tmpPath, uniqueLabels)
	if err != nil {
		return nil, err
	}

	log.Printf("trainer: trained on %d sample(s) across %d label(s), published version %d",
		len(images), len(uniqueLabels), artifact.Version)
	return &TrainResult{
		Version:     artifact.Version,
		SampleCount: len(images),
		LabelCount:  len(uniqueLabels),
	}, nil
}
