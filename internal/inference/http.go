package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/pinkeye-api/internal/logging"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// HTTPClient talks to a hosted classification endpoint that accepts a
// base64 encoded image body at {baseURL}/{modelID}?api_key=...
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient builds a client. A zero timeout leaves the call unbounded
// apart from the caller's context.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("inference_client"),
	}
}

// Infer uploads the image at path and decodes the classification result.
func (c *HTTPClient) Infer(ctx context.Context, path, modelID string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	endpoint, err := c.endpoint(modelID)
	if err != nil {
		return nil, err
	}

	body := base64.StdEncoding.EncodeToString(data)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		fields := append(logging.ErrorFields(logging.NewOperationError("inference.infer", "", err)), zap.String("model_id", modelID))
		c.logger.Error("inference call failed", fields...)
		return nil, err
	}
	defer resp.Body.Close()

	c.logger.Debug("inference call completed",
		zap.String("model_id", modelID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return &result, nil
}

func (c *HTTPClient) endpoint(modelID string) (string, error) {
	modelID = strings.Trim(modelID, "/")
	if modelID == "" {
		return "", fmt.Errorf("model id is required")
	}
	u, err := url.Parse(c.baseURL + "/" + modelID)
	if err != nil {
		return "", fmt.Errorf("invalid inference url: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("api_key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return fmt.Errorf("inference service returned %d: %s", resp.StatusCode, payload.Message)
		}
		if payload.Error != "" {
			return fmt.Errorf("inference service returned %d: %s", resp.StatusCode, payload.Error)
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return fmt.Errorf("inference service returned %d: %s", resp.StatusCode, text)
	}
	return fmt.Errorf("inference service returned %s", resp.Status)
}
