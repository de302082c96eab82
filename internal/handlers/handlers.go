package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/pinkeye-api/internal/repository"
	"github.com/example/pinkeye-api/internal/usecase"
)

// DefaultMaxUploadSize caps request bodies when Options leaves it unset.
const DefaultMaxUploadSize = 10 << 20

// Options configures the HTTP surface.
type Options struct {
	MaxUploadSize      int64
	DefaultSubjectType string
	// HistoryMiddleware guards the history endpoints, e.g. JWT auth.
	HistoryMiddleware []gin.HandlerFunc
}

// PredictResponse is the success payload of /api/predict.
type PredictResponse struct {
	AnimalName    string  `json:"Animal_Name"`
	LabelPrediksi string  `json:"label_prediksi"`
	Confidence    float64 `json:"confidence"`
}

// ResultResponse describes a recorded prediction.
type ResultResponse struct {
	RequestID  string    `json:"request_id"`
	AnimalName string    `json:"Animal_Name"`
	Type       string    `json:"type"`
	Class      string    `json:"class"`
	Label      string    `json:"label_prediksi"`
	Confidence float64   `json:"confidence"`
	ModelID    string    `json:"model_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.PredictionUseCase, opts Options) {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Service aktif")
	})

	router.POST("/api/predict", func(c *gin.Context) {
		if c.Request.ContentLength > opts.MaxUploadSize {
			tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxUploadSize)

		file, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				tooLarge(c)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": usecase.ErrMissingImage.Error()})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer src.Close()

		prediction, err := uc.Predict(c.Request.Context(), usecase.PredictRequest{
			Filename:    file.Filename,
			Image:       src,
			SubjectName: c.PostForm("Animal_Name"),
			SubjectType: c.DefaultPostForm("type", opts.DefaultSubjectType),
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		c.Header("X-Request-ID", prediction.RequestID)
		c.JSON(http.StatusOK, PredictResponse{
			AnimalName:    prediction.SubjectName,
			LabelPrediksi: prediction.Label,
			Confidence:    prediction.Confidence,
		})
	})

	history := router.Group("/api", opts.HistoryMiddleware...)

	history.GET("/results/:id", func(c *gin.Context) {
		log, err := uc.GetResult(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, ResultResponse{
			RequestID:  log.RequestID,
			AnimalName: log.SubjectName,
			Type:       log.SubjectType,
			Class:      log.Class,
			Label:      log.Label,
			Confidence: log.Confidence,
			ModelID:    log.ModelID,
			CreatedAt:  log.CreatedAt,
		})
	})

	history.GET("/metrics", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func statusFor(err error) int {
	var predErr *usecase.PredictionError
	switch {
	case errors.As(err, &predErr) && predErr.Kind == usecase.FailureValidation:
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrHistoryDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
}
