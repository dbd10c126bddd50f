package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/camden-git/faceserver/config"
	"github.com/camden-git/faceserver/database"
	"github.com/camden-git/faceserver/handlers"
	"github.com/camden-git/faceserver/realtime"
	"github.com/camden-git/faceserver/repository"
	"github.com/camden-git/faceserver/services"
	"github.com/camden-git/faceserver/vision"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.ImagesPath, cfg.ModelsPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}

	labelRepo := repository.NewLabelRepository(db)
	sampleRepo := repository.NewSampleRepository(db)

	detector := vision.NewCascadeDetector(cfg.FaceCascadePath, cfg.CascadeScaleFactor, cfg.CascadeMinNeighbors, cfg.MinFaceSize)
	if !detector.Enabled {
		log.Fatalf("FATAL: Face cascade could not be loaded from %s", cfg.FaceCascadePath)
	}
	defer detector.Close()
	normalizer := vision.NewFaceNormalizer(cfg.FaceSize)
	imageIO := vision.NewDiskImageIO()

	store := services.NewSampleStore(labelRepo, sampleRepo, detector, normalizer, imageIO, cfg.ImagesPath, cfg.SampleQuota)
	if err := store.Reconcile(); err != nil {
		log.Fatalf("FATAL: Sample store reconciliation failed: %v", err)
	}

	artifacts := services.NewModelArtifactStore(cfg.ModelsPath, vision.NewLBPHClassifier)
	if err := artifacts.LoadExisting(); err != nil {
		log.Fatalf("FATAL: Failed to restore published model: %v", err)
	}
	trainer := services.NewTrainer(sampleRepo, imageIO, vision.NewLBPHClassifier, artifacts, cfg.ModelsPath)
	recognizer := services.NewRecognizer(artifacts, detector, normalizer, labelRepo)

	hub := realtime.NewHub()
	go hub.Run()

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing samples in: %s (quota %d per label)", cfg.ImagesPath, cfg.SampleQuota)
	log.Printf("Storing model artifacts in: %s", cfg.ModelsPath)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	labelHandler := &handlers.LabelHandler{Labels: labelRepo, Samples: sampleRepo, Store: store}
	enrollHandler := &handlers.EnrollHandler{Labels: labelRepo, Store: store, Hub: hub}
	recognizeHandler := &handlers.RecognizeHandler{Recognizer: recognizer, MaxDistance: cfg.RecognitionMaxDistance}
	trainHandler := &handlers.TrainHandler{Trainer: trainer, Artifacts: artifacts, Hub: hub}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/labels", func(r chi.Router) {
			r.Post("/", labelHandler.BindLabel)
			r.Get("/", labelHandler.ListLabels)
			r.Route("/{label_name}", func(r chi.Router) {
				r.Get("/samples", labelHandler.ListSamples)
				r.Get("/samples/{filename}/thumbnail", labelHandler.ServeSampleThumbnail)
			})
		})

		r.Post("/train", trainHandler.Train)
		r.Get("/model", trainHandler.GetModel)
	})

	// persistent connections live outside the request timeout middleware
	r.Get("/ws/enroll", enrollHandler.ServeWS)
	r.Get("/ws/recognize", recognizeHandler.ServeWS)
	r.Get("/ws/events", hub.ServeWS)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     r,
		ReadTimeout: 0, // websocket connections stay open indefinitely
		IdleTimeout: 120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
