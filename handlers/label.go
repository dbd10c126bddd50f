package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/facette/natsort"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/faceserver/models"
	"github.com/camden-git/faceserver/repository"
	"github.com/camden-git/faceserver/services"
)

const thumbnailMaxSize = 128

// LabelHandler exposes label registration and sample inspection endpoints
type LabelHandler struct {
	Labels  repository.LabelRepositoryInterface
	Samples repository.SampleRepositoryInterface
	Store   *services.SampleStore
}

// BindLabel registers (or re-opens) a label for enrollment. A label already
// at quota has its full sample set purged so a fresh capture can begin; the
// purge is all-or-nothing.
func (lh *LabelHandler) BindLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_name", "Label name cannot be empty")
		return
	}
	if strings.ContainsAny(name, "/\\") {
		WriteAPIError(w, http.StatusBadRequest, "invalid_name", "Label name cannot contain path separators")
		return
	}

	label, err := lh.Labels.GetOrCreate(name)
	if err != nil {
		log.Printf("Error registering label %q: %v", name, err)
		WriteAPIError(w, http.StatusInternalServerError, "label_failed", "Failed to register label")
		return
	}

	purged, err := lh.Store.ResetIfFull(label)
	if err != nil {
		log.Printf("Error resetting sample set for label %q: %v", name, err)
		WriteAPIError(w, http.StatusInternalServerError, "reset_failed", "Failed to reset sample set")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":  label,
		"purged": purged,
		"quota":  lh.Store.Quota(),
	})
}

// ListLabels returns all registered labels
func (lh *LabelHandler) ListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := lh.Labels.ListAll()
	if err != nil {
		log.Printf("Error listing labels: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "Failed to retrieve labels")
		return
	}
	if labels == nil {
		labels = []models.Label{}
	}
	writeJSON(w, http.StatusOK, labels)
}

// ListSamples returns the live sample rows for one label, in natural filename
// order
func (lh *LabelHandler) ListSamples(w http.ResponseWriter, r *http.Request) {
	label, ok := lh.resolveLabel(w, r)
	if !ok {
		return
	}

	samples, err := lh.Samples.ListByLabel(label.ID)
	if err != nil {
		log.Printf("Error listing samples for label %q: %v", label.Name, err)
		WriteAPIError(w, http.StatusInternalServerError, "list_failed", "Failed to retrieve samples")
		return
	}
	sort.Slice(samples, func(i, j int) bool {
		return natsort.Compare(filepath.Base(samples[i].Path), filepath.Base(samples[j].Path))
	})
	if samples == nil {
		samples = []models.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":   label,
		"samples": samples,
		"quota":   lh.Store.Quota(),
	})
}

// ServeSampleThumbnail renders a small JPEG preview of one stored sample
func (lh *LabelHandler) ServeSampleThumbnail(w http.ResponseWriter, r *http.Request) {
	label, ok := lh.resolveLabel(w, r)
	if !ok {
		return
	}

	filename := chi.URLParam(r, "filename")
	if filename != filepath.Base(filename) || filename == "" {
		WriteAPIError(w, http.StatusBadRequest, "invalid_filename", "Invalid sample filename")
		return
	}

	// the index is authoritative for sample existence
	sample, err := lh.findSample(label, filename)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "sample_not_found", "No such sample")
			return
		}
		log.Printf("Error resolving sample %s for label %q: %v", filename, label.Name, err)
		WriteAPIError(w, http.StatusInternalServerError, "sample_failed", "Failed to resolve sample")
		return
	}

	img, err := imaging.Open(sample.Path)
	if err != nil {
		log.Printf("Error opening sample image %s: %v", sample.Path, err)
		WriteAPIError(w, http.StatusInternalServerError, "sample_unreadable", "Failed to read sample image")
		return
	}
	thumb := imaging.Fit(img, thumbnailMaxSize, thumbnailMaxSize, imaging.Lanczos)

	w.Header().Set("Content-Type", "image/jpeg")
	if err := imaging.Encode(w, thumb, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		log.Printf("Error encoding thumbnail for %s: %v", sample.Path, err)
	}
}

func (lh *LabelHandler) resolveLabel(w http.ResponseWriter, r *http.Request) (*models.Label, bool) {
	name := chi.URLParam(r, "label_name")
	label, err := lh.Labels.GetByName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "label_not_found", "No such label")
			return nil, false
		}
		log.Printf("Error resolving label %q: %v", name, err)
		WriteAPIError(w, http.StatusInternalServerError, "label_failed", "Failed to resolve label")
		return nil, false
	}
	return label, true
}

func (lh *LabelHandler) findSample(label *models.Label, filename string) (*models.Sample, error) {
	samples, err := lh.Samples.ListByLabel(label.ID)
	if err != nil {
		return nil, err
	}
	for i := range samples {
		if filepath.Base(samples[i].Path) == filename {
			return &samples[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
