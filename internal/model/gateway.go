package model

import (
	"fmt"
	"log/slog"
)

// Artifact is one loaded classifier together with the title shown to users.
type Artifact struct {
	Name       string
	Title      string
	Classifier Classifier
}

// Gateway holds the process-wide, read-only set of artifacts. It is built
// once at startup and shared by every request.
type Gateway struct {
	artifacts []Artifact
}

func NewGateway(artifacts ...Artifact) *Gateway {
	return &Gateway{artifacts: artifacts}
}

func (g *Gateway) Artifacts() []Artifact {
	return g.artifacts
}

// Classify runs one artifact and maps the result onto the label table.
func (g *Gateway) Classify(artifact Artifact, input []float32) (Prediction, error) {
	idx, err := artifact.Classifier.Classify(input)
	if err != nil {
		return Prediction{}, fmt.Errorf("%s: %w", artifact.Name, err)
	}

	label := LabelFromIndex(idx)
	if label == LabelUnknown {
		slog.Warn("model returned index outside the label table", "model", artifact.Name, "index", idx, "labels", len(classNames))
	}

	return Prediction{Model: artifact.Title, Index: idx, Label: label}, nil
}

// Predict classifies input with every artifact in order.
func (g *Gateway) Predict(input []float32) ([]Prediction, error) {
	predictions := make([]Prediction, 0, len(g.artifacts))
	for _, artifact := range g.artifacts {
		pred, err := g.Classify(artifact, input)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, pred)
	}
	return predictions, nil
}
