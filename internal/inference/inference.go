package inference

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoPredictedClass is returned when the service answers without any class.
var ErrNoPredictedClass = errors.New("inference response has no predicted classes")

// Prediction is the per-class record returned by the classification service.
type Prediction struct {
	ClassID    int     `json:"class_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Result is the classification payload consumed by the prediction flow.
type Result struct {
	PredictedClasses []string              `json:"predicted_classes"`
	Predictions      map[string]Prediction `json:"predictions"`
	InferenceID      string                `json:"inference_id,omitempty"`
	Time             float64               `json:"time,omitempty"`
}

// Top returns the first predicted class and its confidence.
func (r *Result) Top() (string, float64, error) {
	if r == nil || len(r.PredictedClasses) == 0 {
		return "", 0, ErrNoPredictedClass
	}
	class := r.PredictedClasses[0]
	prediction, ok := r.Predictions[class]
	if !ok {
		return "", 0, fmt.Errorf("predicted class %q missing from predictions", class)
	}
	return class, prediction.Confidence, nil
}

// Client classifies an image stored at path with the given model.
type Client interface {
	Infer(ctx context.Context, path, modelID string) (*Result, error)
}
