package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/Brownie44l1/tomjerry-api/internal/model"
	"github.com/Brownie44l1/tomjerry-api/internal/preprocess"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	msgNoFilePart    = "No file part in the request."
	msgNoFileChosen  = "No file selected."
	msgNotAllowed    = "File type not allowed."
	msgTooLarge      = "File too large."
	msgInvalidImage  = "Invalid image file."
	msgPredictFailed = "Prediction failed."
)

type Options struct {
	Gateway        *model.Gateway
	Uploads        *UploadStore
	Metadata       model.Metadata
	PixelScale     float32
	MaxUploadBytes int64
	Metrics        *Metrics
}

type Handler struct {
	gateway        *model.Gateway
	uploads        *UploadStore
	metadata       model.Metadata
	pixelScale     float32
	maxUploadBytes int64
	metrics        *Metrics
}

func NewHandler(opts Options) *Handler {
	if opts.PixelScale <= 0 {
		opts.PixelScale = 1
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Handler{
		gateway:        opts.Gateway,
		uploads:        opts.Uploads,
		metadata:       opts.Metadata,
		pixelScale:     opts.PixelScale,
		maxUploadBytes: opts.MaxUploadBytes,
		metrics:        opts.Metrics,
	}
}

func (h *Handler) AddRoutes(r chi.Router) {
	r.Use(h.metrics.Middleware)

	r.Get("/", h.Index)
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.With(middleware.RequestSize(h.maxUploadBytes)).Post("/predict", HTMLHandler(h.Predict))
	r.With(middleware.RequestSize(h.maxUploadBytes)).Post("/api/predict", RestHandler(h.PredictJSON))
	r.With(middleware.RequestSize(h.maxUploadBytes)).Post("/api/classify", RestHandler(h.ClassifyTensor))
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(indexPage)); err != nil {
		slog.Error("error writing index page", "error", err)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJsonResponse(w, map[string]string{"status": "healthy"})
}

func (h *Handler) reject(reason string, code int, msg string) error {
	h.metrics.observeRejection(reason)
	return CodedErrorf(code, "%s", msg)
}

// ClassifyTensor runs every model on a tensor the caller preprocessed.
func (h *Handler) ClassifyTensor(r *http.Request) (any, error) {
	req, err := ParseRequest[model.PredictionRequest](r)
	if err != nil {
		return nil, err
	}

	expectedSize := h.metadata.InputSize()
	if len(req.Image) != expectedSize {
		return nil, CodedErrorf(http.StatusBadRequest, "Expected %d values, got %d", expectedSize, len(req.Image))
	}

	predictions, err := h.runModels(req.Image)
	if err != nil {
		return nil, err
	}

	return model.NewPredictionResponse("", predictions), nil
}

type classifiedUpload struct {
	name        string
	mime        string
	raw         []byte
	predictions []model.Prediction
}

// Predict renders the HTML result page for an uploaded image.
func (h *Handler) Predict(r *http.Request) (string, error) {
	res, err := h.classifyUpload(r)
	if err != nil {
		return "", err
	}
	return renderResult(res.mime, res.raw, res.predictions)
}

// PredictJSON is Predict for API clients.
func (h *Handler) PredictJSON(r *http.Request) (any, error) {
	res, err := h.classifyUpload(r)
	if err != nil {
		return nil, err
	}
	return model.NewPredictionResponse(res.name, res.predictions), nil
}

// classifyUpload saves the upload, runs every model on it and removes the
// saved copy again on every return path.
func (h *Handler) classifyUpload(r *http.Request) (*classifiedUpload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		slog.Debug("request is not multipart", "error", err)
		return nil, h.reject("no_file_part", http.StatusBadRequest, msgNoFilePart)
	}

	part, filename, err := filePart(mr)
	if err != nil {
		if tooLarge(err) {
			return nil, h.reject("too_large", http.StatusRequestEntityTooLarge, msgTooLarge)
		}
		if !errors.Is(err, io.EOF) {
			slog.Debug("unable to read multipart body", "error", err)
		}
		return nil, h.reject("no_file_part", http.StatusBadRequest, msgNoFilePart)
	}
	defer part.Close()

	if filename == "" {
		return nil, h.reject("empty_filename", http.StatusBadRequest, msgNoFileChosen)
	}
	if !AllowedFile(filename) {
		return nil, h.reject("extension", http.StatusBadRequest, msgNotAllowed)
	}

	start := time.Now()

	upload, err := h.uploads.Save(part, filename)
	if err != nil {
		if tooLarge(err) {
			return nil, h.reject("too_large", http.StatusRequestEntityTooLarge, msgTooLarge)
		}
		slog.Error("error saving upload", "filename", filename, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "%s", msgPredictFailed)
	}
	defer upload.Remove()

	raw, err := os.ReadFile(upload.Path)
	if err != nil {
		slog.Error("error reading saved upload", "path", upload.Path, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "%s", msgPredictFailed)
	}

	mimeType := MIMEFromExtension(Extension(filename))
	if detected, mismatch := sniffMismatch(raw, mimeType); mismatch {
		slog.Warn("upload content does not match its extension", "filename", upload.Name, "declared", mimeType, "detected", detected)
	}

	tensor, err := preprocess.LoadTensor(upload.Path, h.metadata, h.pixelScale)
	if err != nil {
		slog.Info("rejecting undecodable upload", "filename", upload.Name, "error", err)
		return nil, h.reject("decode", http.StatusBadRequest, msgInvalidImage)
	}

	predictions, err := h.runModels(tensor)
	if err != nil {
		return nil, err
	}

	attrs := []any{"filename", upload.Name, "duration", time.Since(start)}
	for _, pred := range predictions {
		attrs = append(attrs, pred.Model, pred.Display())
	}
	slog.Info("prediction complete", attrs...)

	return &classifiedUpload{
		name:        upload.Name,
		mime:        mimeType,
		raw:         raw,
		predictions: predictions,
	}, nil
}

// filePart returns the first part named "file" whose Content-Disposition
// carries a filename parameter, even an empty one. A "file" part without
// that parameter is an ordinary form value and is skipped. io.EOF means no
// such part exists.
func filePart(mr *multipart.Reader) (*multipart.Part, string, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, "", err
		}
		if part.FormName() == "file" {
			_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
			if err == nil {
				if filename, ok := params["filename"]; ok {
					return part, filename, nil
				}
			}
		}
		part.Close()
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// runModels calls each artifact in turn on the same tensor.
func (h *Handler) runModels(tensor []float32) ([]model.Prediction, error) {
	artifacts := h.gateway.Artifacts()
	predictions := make([]model.Prediction, 0, len(artifacts))
	for _, artifact := range artifacts {
		start := time.Now()
		pred, err := h.gateway.Classify(artifact, tensor)
		if err != nil {
			slog.Error("prediction error", "model", artifact.Name, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "%s", msgPredictFailed)
		}
		h.metrics.observePrediction(artifact.Name, pred.Label.String(), time.Since(start))
		predictions = append(predictions, pred)
	}
	return predictions, nil
}
