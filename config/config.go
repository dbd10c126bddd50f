package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultImagesSubDir = "images"
	DefaultModelsSubDir = "models"
)

const (
	defaultSampleQuota = 10
	defaultFaceSize    = 100
	defaultMinFaceSize = 30
)

type Config struct {
	// data storage configuration
	DataDirectory string // primary root for everything the server persists
	DatabasePath  string // sqlite metadata store
	ImagesPath    string // full-calculated path for per-label sample directories
	ModelsPath    string // full-calculated path for model artifacts

	// face detection (Haar cascade)
	FaceCascadePath     string
	CascadeScaleFactor  float64
	CascadeMinNeighbors int
	MinFaceSize         int

	// sample collection settings
	SampleQuota int // max live samples retained per label
	FaceSize    int // normalized sample edge length in pixels

	// recognition settings
	// RecognitionMaxDistance is the caller-side acceptance threshold applied by
	// the websocket handler; 0 disables thresholding. LBPH confidence is a
	// distance, lower means a better match.
	RecognitionMaxDistance float64
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val < 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dataDir := getEnvOrDefault("DATA_DIRECTORY", filepath.Join(".", "data"))
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for data directory '%s': %w", dataDir, err)
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", filepath.Join(absDataDir, "images.db"))

	imagesSubDir := getEnvOrDefault("IMAGES_SUBDIR", DefaultImagesSubDir)
	absImagesPath := filepath.Join(absDataDir, imagesSubDir)

	modelsSubDir := getEnvOrDefault("MODELS_SUBDIR", DefaultModelsSubDir)
	absModelsPath := filepath.Join(absDataDir, modelsSubDir)

	cascadePath := getEnvOrDefault("FACE_CASCADE_PATH", filepath.Join(absDataDir, "haarcascade_frontalface_alt.xml"))

	cfg := Config{
		DataDirectory:          absDataDir,
		DatabasePath:           dbPath,
		ImagesPath:             absImagesPath,
		ModelsPath:             absModelsPath,
		FaceCascadePath:        cascadePath,
		CascadeScaleFactor:     getEnvFloatOrDefault("CASCADE_SCALE_FACTOR", 1.1),
		CascadeMinNeighbors:    getEnvIntOrDefault("CASCADE_MIN_NEIGHBORS", 5),
		MinFaceSize:            getEnvIntOrDefault("MIN_FACE_SIZE", defaultMinFaceSize),
		SampleQuota:            getEnvIntOrDefault("SAMPLE_QUOTA", defaultSampleQuota),
		FaceSize:               getEnvIntOrDefault("FACE_SIZE", defaultFaceSize),
		RecognitionMaxDistance: getEnvFloatOrDefault("RECOGNITION_MAX_DISTANCE", 0),
	}

	return cfg, nil
}
