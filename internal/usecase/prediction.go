package usecase

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/pinkeye-api/internal/inference"
	"github.com/example/pinkeye-api/internal/logging"
	"github.com/example/pinkeye-api/internal/repository"
)

// PredictionRepository defines the persistence operations needed by the use case.
type PredictionRepository interface {
	SaveLog(ctx context.Context, log *repository.PredictionLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.PredictionLog, error)
	AggregateByLabel(ctx context.Context) ([]repository.LabelAggregate, error)
}

// Options carries the fixed settings shared by every request.
type Options struct {
	UploadDir string
	ModelID   string
	Labels    LabelMap
}

// PredictRequest is one inbound upload.
type PredictRequest struct {
	Filename    string
	Image       io.Reader
	SubjectName string
	// SubjectType is recorded but does not select the model.
	SubjectType string
}

// Prediction is the outcome of a successful request.
type Prediction struct {
	RequestID   string
	SubjectName string
	SubjectType string
	Class       string
	Label       string
	Confidence  float64
	ModelID     string
	CreatedAt   time.Time
}

// PredictionUseCase saves an upload to scratch storage, classifies it and
// always removes the scratch file before returning.
type PredictionUseCase struct {
	processor inference.Client
	repo      PredictionRepository
	cache     Cache
	uploadDir string
	modelID   string
	labels    LabelMap
	logger    *zap.Logger
}

// NewPredictionUseCase constructs a use case. repo and cache may be nil, in
// which case predictions are not recorded.
func NewPredictionUseCase(processor inference.Client, repo PredictionRepository, cache Cache, opts Options, logger *zap.Logger) *PredictionUseCase {
	labels := opts.Labels
	if labels == nil {
		labels = DefaultLabels()
	}
	return &PredictionUseCase{
		processor: processor,
		repo:      repo,
		cache:     cache,
		uploadDir: opts.UploadDir,
		modelID:   opts.ModelID,
		labels:    labels,
		logger:    logger.Named("prediction_usecase"),
	}
}

// HistoryEnabled reports whether results can be looked up after the fact.
func (uc *PredictionUseCase) HistoryEnabled() bool {
	return uc.repo != nil || uc.cache != nil
}

// Predict runs one upload through the inference service. Failures are
// returned as *PredictionError.
func (uc *PredictionUseCase) Predict(ctx context.Context, req PredictRequest) (*Prediction, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	if req.Image == nil {
		return nil, &PredictionError{Kind: FailureValidation, Operation: "usecase.predict", RequestID: requestID, Err: ErrMissingImage}
	}

	name := SecureFilename(req.Filename)
	if name == "" {
		name = "upload"
	}

	path, err := writeScratch(uc.uploadDir, requestID+"_"+name, req.Image)
	if err != nil {
		opLogger.Error("failed to save upload", logging.ErrorFields(logging.NewOperationError("usecase.save_upload", requestID, err))...)
		return nil, processingError("usecase.save_upload", requestID, err)
	}
	defer func() {
		if err := removeScratch(path); err != nil {
			opLogger.Error("failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()

	opLogger.Debug("running inference",
		zap.String("model_id", uc.modelID),
		zap.String("filename", name),
		zap.String("subject_type", req.SubjectType),
	)

	result, err := uc.processor.Infer(ctx, path, uc.modelID)
	if err != nil {
		opLogger.Error("inference failed", logging.ErrorFields(logging.NewOperationError("usecase.infer", requestID, err))...)
		return nil, processingError("usecase.infer", requestID, err)
	}

	class, confidence, err := result.Top()
	if err != nil {
		opLogger.Error("malformed inference result", logging.ErrorFields(logging.NewOperationError("usecase.extract", requestID, err))...)
		return nil, processingError("usecase.extract", requestID, err)
	}

	prediction := &Prediction{
		RequestID:   requestID,
		SubjectName: req.SubjectName,
		SubjectType: req.SubjectType,
		Class:       class,
		Label:       uc.labels.Describe(class),
		Confidence:  confidence,
		ModelID:     uc.modelID,
		CreatedAt:   time.Now().UTC(),
	}
	uc.record(ctx, prediction, opLogger)

	return prediction, nil
}

// record stores the prediction for later lookup. Failures only get logged.
func (uc *PredictionUseCase) record(ctx context.Context, p *Prediction, opLogger *zap.Logger) {
	log := &repository.PredictionLog{
		RequestID:   p.RequestID,
		SubjectName: p.SubjectName,
		SubjectType: p.SubjectType,
		Class:       p.Class,
		Label:       p.Label,
		Confidence:  p.Confidence,
		ModelID:     p.ModelID,
		CreatedAt:   p.CreatedAt,
	}

	if uc.repo != nil {
		if err := uc.repo.SaveLog(ctx, log); err != nil {
			opLogger.Warn("failed to persist prediction log", logging.ErrorFields(err)...)
		}
	}

	if uc.cache != nil {
		serialized, err := encodeCachedLog(log)
		if err != nil {
			opLogger.Warn("failed to serialize prediction", zap.Error(err))
			return
		}
		if err := uc.cache.Set(ctx, resultCacheKey(p.RequestID), serialized, resultTTL); err != nil {
			opLogger.Warn("failed to cache prediction", zap.Error(err))
		}
	}
}

// GetResult retrieves a recorded prediction from the cache or the repository.
func (uc *PredictionUseCase) GetResult(ctx context.Context, requestID string) (*repository.PredictionLog, error) {
	if !uc.HistoryEnabled() {
		return nil, ErrHistoryDisabled
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	if uc.cache != nil {
		cached, err := uc.cache.Get(ctx, resultCacheKey(requestID))
		switch {
		case err == nil:
			log, decodeErr := decodeCachedLog(cached)
			if decodeErr == nil {
				return log, nil
			}
			opLogger.Warn("failed to decode cached result", zap.Error(decodeErr))
		case !errors.Is(err, redis.Nil):
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, repository.ErrNotFound
	}
	return uc.repo.FindByRequestID(ctx, requestID)
}
