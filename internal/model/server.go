package model

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ErrInputSize = errors.New("input tensor size mismatch")

// Classifier maps one preprocessed input tensor to a class index.
type Classifier interface {
	Classify(input []float32) (int, error)
}

// InitializeRuntime loads the onnxruntime shared library. libPath may be
// empty to use the library's default lookup.
func InitializeRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	if !ort.IsInitialized() {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Error("failed to destroy ONNX environment", "error", err)
	}
}

// Server owns one loaded ONNX graph and its bound input and output tensors.
// The tensors are reused across calls, so Classify serializes on mu.
type Server struct {
	Name     string
	Metadata Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

var _ Classifier = (*Server)(nil)

// NewServer loads the graph at modelPath. InitializeRuntime must have been
// called first. Input and output names are read from the graph itself.
func NewServer(name, modelPath string, metadata Metadata) (*Server, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", modelPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model %s must have exactly one input and one output, got %d and %d",
			modelPath, len(inputs), len(outputs))
	}

	if shape, ok := staticShape(outputs[0].Dimensions); ok {
		metadata.OutputShape = shape
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}

	slog.Info("loaded model", "name", name, "path", modelPath,
		"input", inputs[0].Name, "output", outputs[0].Name,
		"input_shape", metadata.InputShape, "output_shape", metadata.OutputShape)

	return &Server{
		Name:         name,
		Metadata:     metadata,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Server) Classify(input []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.inputTensor.GetData()
	if len(input) != len(data) {
		return -1, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, len(data), len(input))
	}
	copy(data, input)

	if err := s.session.Run(); err != nil {
		return -1, fmt.Errorf("inference failed: %w", err)
	}

	return Argmax(s.outputTensor.GetData()), nil
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return
	}
	s.inputTensor.Destroy()
	s.outputTensor.Destroy()
	s.session.Destroy()
	s.session = nil
}

// staticShape reports the graph's declared shape with a dynamic batch
// dimension pinned to one. Any other dynamic dimension makes it unusable.
func staticShape(dims ort.Shape) ([]int64, bool) {
	if len(dims) == 0 {
		return nil, false
	}
	shape := make([]int64, len(dims))
	for i, d := range dims {
		switch {
		case d > 0:
			shape[i] = d
		case i == 0:
			shape[i] = 1
		default:
			return nil, false
		}
	}
	return shape, true
}
