package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const currentPointerFile = "current.json"

// ModelArtifact is one published, immutable classifier version. The loaded
// classifier instance is shared by all readers; it is never mutated after
// publication, so a reader holding an old artifact across a publish keeps a
// fully valid model.
type ModelArtifact struct {
	Version    uint64     `json:"version"`
	Path       string     `json:"path"`
	TrainedAt  time.Time  `json:"trained_at"`
	LabelIDs   []int      `json:"label_ids"`
	Classifier Classifier `json:"-"`
}

// ModelArtifactStore owns the single-writer/multi-reader handoff of the
// current model version. Publishing verifies the candidate file by loading it
// into a fresh classifier before the pointer swap, so readers never observe a
// mid-write or unreadable artifact; the previous version survives any failed
// publish.
type ModelArtifactStore struct {
	dir     string
	factory ClassifierFactory

	mu      sync.RWMutex
	current *ModelArtifact
	version uint64
}

// NewModelArtifactStore creates an artifact store rooted at dir
func NewModelArtifactStore(dir string, factory ClassifierFactory) *ModelArtifactStore {
	return &ModelArtifactStore{dir: dir, factory: factory}
}

// Current returns the currently published artifact, or false if none has ever
// been published
func (s *ModelArtifactStore) Current() (*ModelArtifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != nil
}

// Publish verifies the candidate file written to tmpPath, moves it into the
// store under the next version number, atomically updates the current pointer
// and swaps the in-memory artifact. On any failure the previous version is
// left untouched and still servable.
func (s *ModelArtifactStore) Publish(tmpPath string, labelIDs []int) (*ModelArtifact, error) {
	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat candidate artifact %s: %w", tmpPath, err)
	}
	if info.Size() == 0 {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("candidate artifact %s is empty", tmpPath)
	}

	// smoke-read: the verified instance becomes the served one
	classifier := s.factory()
	if err := classifier.Load(tmpPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("candidate artifact %s failed verification: %w", tmpPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.version + 1
	finalPath := filepath.Join(s.dir, fmt.Sprintf("model-v%d.yml", version))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	artifact := &ModelArtifact{
		Version:    version,
		Path:       finalPath,
		TrainedAt:  time.Now(),
		LabelIDs:   labelIDs,
		Classifier: classifier,
	}
	if err := s.writePointer(artifact); err != nil {
		// the new version file stays on disk but is never referenced
		return nil, err
	}

	s.version = version
	s.current = artifact
	log.Printf("artifacts: published model version %d (%d label(s))", version, len(labelIDs))
	return artifact, nil
}

// writePointer records the current artifact in a pointer file via
// write-then-rename so a crash mid-write cannot corrupt it
func (s *ModelArtifactStore) writePointer(artifact *ModelArtifact) error {
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode artifact pointer: %w", err)
	}
	pointerPath := filepath.Join(s.dir, currentPointerFile)
	tmp := pointerPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact pointer: %w", err)
	}
	if err := os.Rename(tmp, pointerPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to swap artifact pointer: %w", err)
	}
	return nil
}

// LoadExisting restores the published artifact recorded by a previous run, if
// any. A missing pointer file is not an error; a pointer to an unreadable
// artifact is.
func (s *ModelArtifactStore) LoadExisting() error {
	pointerPath := filepath.Join(s.dir, currentPointerFile)
	data, err := os.ReadFile(pointerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read artifact pointer: %w", err)
	}

	var artifact ModelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return fmt.Errorf("failed to decode artifact pointer: %w", err)
	}

	classifier := s.factory()
	if err := classifier.Load(artifact.Path); err != nil {
		return fmt.Errorf("failed to load published artifact %s: %w", artifact.Path, err)
	}
	artifact.Classifier = classifier

	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = artifact.Version
	s.current = &artifact
	log.Printf("artifacts: restored model version %d from %s", artifact.Version, artifact.Path)
	return nil
}
