package usecase

import "errors"

// FailureKind classifies why a prediction did not produce a result.
type FailureKind int

const (
	// FailureProcessing covers storage, inference and response extraction failures.
	FailureProcessing FailureKind = iota
	// FailureValidation means the caller sent an unusable request.
	FailureValidation
)

var (
	// ErrMissingImage is reported when the upload carries no image part.
	ErrMissingImage = errors.New("No image file provided") //nolint:stylecheck // surfaced to clients verbatim
	// ErrHistoryDisabled is returned by history lookups when no store is configured.
	ErrHistoryDisabled = errors.New("prediction history is not enabled")
)

// PredictionError tags a failed prediction with its kind. Error returns the
// underlying message unchanged so it can be forwarded to the caller.
type PredictionError struct {
	Kind      FailureKind
	Operation string
	RequestID string
	Err       error
}

func (e *PredictionError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *PredictionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func processingError(operation, requestID string, err error) *PredictionError {
	return &PredictionError{Kind: FailureProcessing, Operation: operation, RequestID: requestID, Err: err}
}
