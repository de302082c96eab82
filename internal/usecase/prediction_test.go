package usecase

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/pinkeye-api/internal/inference"
	"github.com/example/pinkeye-api/internal/repository"
)

type stubRepository struct {
	savedLogs  []*repository.PredictionLog
	saveErr    error
	findLog    *repository.PredictionLog
	findErr    error
	findCalls  int
	aggregates []repository.LabelAggregate
}

func (s *stubRepository) SaveLog(ctx context.Context, log *repository.PredictionLog) error {
	s.savedLogs = append(s.savedLogs, log)
	return s.saveErr
}

func (s *stubRepository) FindByRequestID(ctx context.Context, requestID string) (*repository.PredictionLog, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findLog != nil {
		return s.findLog, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepository) AggregateByLabel(ctx context.Context) ([]repository.LabelAggregate, error) {
	return s.aggregates, nil
}

type stubCache struct {
	values  map[string]string
	setErr  error
	getErr  error
	setKeys []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if s.setErr != nil {
		return s.setErr
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value.(string)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

// stubProcessor records the scratch path and whether it existed during the call.
type stubProcessor struct {
	result   *inference.Result
	err      error
	paths    []string
	existed  []bool
	contents []string
	modelIDs []string
}

func (s *stubProcessor) Infer(ctx context.Context, path, modelID string) (*inference.Result, error) {
	s.paths = append(s.paths, path)
	s.modelIDs = append(s.modelIDs, modelID)
	data, err := os.ReadFile(path)
	s.existed = append(s.existed, err == nil)
	s.contents = append(s.contents, string(data))
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func classResult(class string, confidence float64) *inference.Result {
	return &inference.Result{
		PredictedClasses: []string{class},
		Predictions:      map[string]inference.Prediction{class: {Confidence: confidence}},
	}
}

func newTestUseCase(t *testing.T, processor inference.Client, repo PredictionRepository, cache Cache) (*PredictionUseCase, string) {
	t.Helper()
	dir := t.TempDir()
	uc := NewPredictionUseCase(processor, repo, cache, Options{UploadDir: dir, ModelID: "pink-eye-on-goat/1"}, zap.NewNop())
	return uc, dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected upload dir to be empty, found %d entries", len(entries))
	}
}

func TestPredictMapsNormalClass(t *testing.T) {
	processor := &stubProcessor{result: classResult("normal", 0.93)}
	uc, dir := newTestUseCase(t, processor, nil, nil)

	got, err := uc.Predict(context.Background(), PredictRequest{
		Filename:    "eye1.jpg",
		Image:       strings.NewReader("jpeg"),
		SubjectName: "Bimo",
		SubjectType: "kambing",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got.SubjectName != "Bimo" || got.Label != "Mata Terlihat Sehat" || got.Confidence != 0.93 {
		t.Fatalf("unexpected prediction: %+v", got)
	}
	if got.RequestID == "" {
		t.Fatal("expected request id")
	}
	if processor.modelIDs[0] != "pink-eye-on-goat/1" {
		t.Fatalf("unexpected model id: %s", processor.modelIDs[0])
	}
	if !processor.existed[0] || processor.contents[0] != "jpeg" {
		t.Fatal("expected upload to be on disk during inference")
	}
	assertDirEmpty(t, dir)
}

func TestPredictLabelMapping(t *testing.T) {
	cases := map[string]string{
		"pink-eye": "Mata Terjangkit PinkEye",
		"normal":   "Mata Terlihat Sehat",
		"cataract": UnknownLabel,
		"":         UnknownLabel,
	}
	for class, want := range cases {
		for _, confidence := range []float64{0, 0.42, 1} {
			uc, _ := newTestUseCase(t, &stubProcessor{result: classResult(class, confidence)}, nil, nil)
			got, err := uc.Predict(context.Background(), PredictRequest{Filename: "x.jpg", Image: strings.NewReader("x")})
			if err != nil {
				t.Fatalf("class %q: unexpected error %v", class, err)
			}
			if got.Label != want {
				t.Fatalf("class %q: expected label %q, got %q", class, want, got.Label)
			}
		}
	}
}

func TestPredictInferenceFailureCleansUp(t *testing.T) {
	processor := &stubProcessor{err: errors.New("dial tcp: connection refused")}
	uc, dir := newTestUseCase(t, processor, nil, nil)

	_, err := uc.Predict(context.Background(), PredictRequest{Filename: "eye1.jpg", Image: strings.NewReader("jpeg")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %T", err)
	}
	if predErr.Kind != FailureProcessing || predErr.Operation != "usecase.infer" {
		t.Fatalf("unexpected error tagging: %+v", predErr)
	}
	if err.Error() != "dial tcp: connection refused" {
		t.Fatalf("expected message to be forwarded verbatim, got %q", err.Error())
	}
	if !processor.existed[0] {
		t.Fatal("expected upload to exist during inference")
	}
	assertDirEmpty(t, dir)
}

func TestPredictMalformedResultIsProcessingFailure(t *testing.T) {
	processor := &stubProcessor{result: &inference.Result{
		PredictedClasses: []string{"pink-eye"},
		Predictions:      map[string]inference.Prediction{"normal": {Confidence: 0.5}},
	}}
	uc, dir := newTestUseCase(t, processor, nil, nil)

	_, err := uc.Predict(context.Background(), PredictRequest{Filename: "eye1.jpg", Image: strings.NewReader("jpeg")})
	var predErr *PredictionError
	if !errors.As(err, &predErr) || predErr.Kind != FailureProcessing {
		t.Fatalf("expected processing failure, got %v", err)
	}
	if predErr.Error() == "" {
		t.Fatal("expected non-empty message")
	}
	assertDirEmpty(t, dir)
}

func TestPredictWithoutImageIsValidationFailure(t *testing.T) {
	processor := &stubProcessor{}
	uc, _ := newTestUseCase(t, processor, nil, nil)

	_, err := uc.Predict(context.Background(), PredictRequest{Filename: "eye1.jpg"})
	var predErr *PredictionError
	if !errors.As(err, &predErr) || predErr.Kind != FailureValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if !errors.Is(err, ErrMissingImage) {
		t.Fatalf("expected ErrMissingImage, got %v", err)
	}
	if len(processor.paths) != 0 {
		t.Fatal("processor must not be called without an image")
	}
}

func TestPredictUsesUniqueScratchFilesInsideUploadDir(t *testing.T) {
	processor := &stubProcessor{result: classResult("normal", 0.5)}
	uc, dir := newTestUseCase(t, processor, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := uc.Predict(context.Background(), PredictRequest{Filename: "../../etc/eye.jpg", Image: bytes.NewReader([]byte("x"))}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if processor.paths[0] == processor.paths[1] {
		t.Fatalf("expected distinct scratch paths, got %s twice", processor.paths[0])
	}
	for _, path := range processor.paths {
		if filepath.Dir(path) != dir {
			t.Fatalf("scratch file %s escaped upload dir %s", path, dir)
		}
		if !strings.HasSuffix(path, "_etc_eye.jpg") {
			t.Fatalf("expected sanitized name suffix, got %s", path)
		}
	}
	assertDirEmpty(t, dir)
}

func TestPredictSaveFailureIsProcessingFailure(t *testing.T) {
	processor := &stubProcessor{result: classResult("normal", 0.5)}
	uc := NewPredictionUseCase(processor, nil, nil, Options{UploadDir: filepath.Join(t.TempDir(), "missing")}, zap.NewNop())

	_, err := uc.Predict(context.Background(), PredictRequest{Filename: "eye1.jpg", Image: strings.NewReader("x")})
	var predErr *PredictionError
	if !errors.As(err, &predErr) || predErr.Operation != "usecase.save_upload" {
		t.Fatalf("expected save failure, got %v", err)
	}
	if len(processor.paths) != 0 {
		t.Fatal("processor must not be called when the upload cannot be saved")
	}
}

func TestPredictRecordsHistoryBestEffort(t *testing.T) {
	repo := &stubRepository{saveErr: errors.New("db down")}
	cache := &stubCache{}
	uc, _ := newTestUseCase(t, &stubProcessor{result: classResult("pink-eye", 0.7)}, repo, cache)

	got, err := uc.Predict(context.Background(), PredictRequest{Filename: "a.jpg", Image: strings.NewReader("x"), SubjectName: "Bimo", SubjectType: "kambing"})
	if err != nil {
		t.Fatalf("history failures must not fail the prediction: %v", err)
	}
	if len(repo.savedLogs) != 1 || repo.savedLogs[0].RequestID != got.RequestID {
		t.Fatalf("expected one saved log for %s", got.RequestID)
	}
	if len(cache.setKeys) != 1 || cache.setKeys[0] != "prediction:"+got.RequestID {
		t.Fatalf("unexpected cache keys: %v", cache.setKeys)
	}

	log, err := uc.GetResult(context.Background(), got.RequestID)
	if err != nil {
		t.Fatalf("expected cached result, got %v", err)
	}
	if log.Label != "Mata Terjangkit PinkEye" || log.SubjectName != "Bimo" {
		t.Fatalf("unexpected cached log: %+v", log)
	}
	if repo.findCalls != 0 {
		t.Fatal("expected cache hit to skip repository")
	}
}

func TestGetResultFallsBackToRepositoryWhenCacheMiss(t *testing.T) {
	expected := &repository.PredictionLog{RequestID: "req", Label: "Mata Terlihat Sehat"}
	repo := &stubRepository{findLog: expected}
	uc, _ := newTestUseCase(t, &stubProcessor{}, repo, &stubCache{})

	log, err := uc.GetResult(context.Background(), "req")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if log != expected {
		t.Fatalf("expected %+v, got %+v", expected, log)
	}
	if repo.findCalls != 1 {
		t.Fatalf("expected repository to be queried once, got %d", repo.findCalls)
	}
}

func TestGetResultWithoutHistory(t *testing.T) {
	uc, _ := newTestUseCase(t, &stubProcessor{}, nil, nil)
	if _, err := uc.GetResult(context.Background(), "req"); !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("expected ErrHistoryDisabled, got %v", err)
	}
	if _, err := uc.GetMetricsSummary(context.Background()); !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("expected ErrHistoryDisabled, got %v", err)
	}
}

func TestGetMetricsSummary(t *testing.T) {
	repo := &stubRepository{aggregates: []repository.LabelAggregate{
		{Class: "normal", Label: "Mata Terlihat Sehat", Count: 3, AverageConfidence: 0.9},
		{Class: "pink-eye", Label: "Mata Terjangkit PinkEye", Count: 1, AverageConfidence: 0.5},
	}}
	uc, _ := newTestUseCase(t, &stubProcessor{}, repo, nil)

	summary, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalPredictions != 4 {
		t.Fatalf("expected 4 predictions, got %d", summary.TotalPredictions)
	}
	if diff := summary.AverageConfidence - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected weighted average 0.8, got %v", summary.AverageConfidence)
	}
	if len(summary.Labels) != 2 {
		t.Fatalf("expected 2 label rows, got %d", len(summary.Labels))
	}
}
