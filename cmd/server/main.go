package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Brownie44l1/tomjerry-api/internal/config"
	"github.com/Brownie44l1/tomjerry-api/internal/handlers"
	"github.com/Brownie44l1/tomjerry-api/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnvFile(); err != nil {
		return err
	}

	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := model.InitializeRuntime(cfg.OnnxRuntimeLib); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}
	defer model.DestroyRuntime()

	metadata := model.NewMetadata(cfg.ImageSize, model.Layout(strings.ToLower(cfg.TensorLayout)))

	resnet, err := model.NewServer("resnet", cfg.ResNetModelPath, metadata)
	if err != nil {
		return fmt.Errorf("failed to load ResNet50 model: %w", err)
	}
	defer resnet.Close()

	densenet, err := model.NewServer("densenet", cfg.DenseNetModelPath, metadata)
	if err != nil {
		return fmt.Errorf("failed to load DenseNet121 model: %w", err)
	}
	defer densenet.Close()

	gateway := model.NewGateway(
		model.Artifact{Name: resnet.Name, Title: "ResNet50", Classifier: resnet},
		model.Artifact{Name: densenet.Name, Title: "DenseNet121", Classifier: densenet},
	)

	uploads := handlers.NewUploadStore(cfg.UploadDir)
	handler := handlers.NewHandler(handlers.Options{
		Gateway:        gateway,
		Uploads:        uploads,
		Metadata:       metadata,
		PixelScale:     cfg.PixelScale,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	handler.AddRoutes(r)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Addr(), "classes", metadata.Classes,
		"resnet", cfg.ResNetModelPath, "densenet", cfg.DenseNetModelPath, "upload_dir", uploads.Dir())

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed on %s: %w", cfg.Addr(), err)
	}
	<-drained

	slog.Info("server stopped")
	return nil
}
