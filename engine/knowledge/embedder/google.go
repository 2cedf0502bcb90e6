package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/compozy/docqa/pkg/logger"
)

const (
	defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGoogleTimeout = 30 * time.Second
)

// googleClient calls the Gemini batchEmbedContents REST endpoint, which
// accepts a task type and output dimensionality per request.
type googleClient struct {
	http      *resty.Client
	model     string
	taskTypes map[Intent]string
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googleEmbedRequest struct {
	Model                string        `json:"model"`
	Content              googleContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type googleBatchRequest struct {
	Requests []googleEmbedRequest `json:"requests"`
}

type googleEmbedding struct {
	Values []float32 `json:"values"`
}

type googleEmbedResponse struct {
	Embeddings []googleEmbedding `json:"embeddings"`
}

type googleErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GoogleAPIError is returned for non-2xx responses.
type GoogleAPIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *GoogleAPIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("google api %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("google api %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *GoogleAPIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func newGoogleClient(ctx context.Context, cfg *Config) *googleClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGoogleTimeout
	}
	taskTypes := DefaultTaskTypes()
	for intent, task := range cfg.TaskTypes {
		if task != "" {
			taskTypes[intent] = task
		}
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryCondition)
	logger.FromContext(ctx).Debug("Google embedding client configured", "base_url", baseURL, "model", cfg.Model)
	return &googleClient{http: client, model: cfg.Model, taskTypes: taskTypes}
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (c *googleClient) modelPath() string {
	if strings.HasPrefix(c.model, "models/") {
		return c.model
	}
	return "models/" + c.model
}

// EmbedBatch sends one batchEmbedContents request for texts.
func (c *googleClient) EmbedBatch(
	ctx context.Context,
	texts []string,
	intent Intent,
	dimension int,
) ([][]float32, error) {
	model := c.modelPath()
	body := googleBatchRequest{Requests: make([]googleEmbedRequest, len(texts))}
	for i, text := range texts {
		body.Requests[i] = googleEmbedRequest{
			Model:                model,
			Content:              googleContent{Parts: []googlePart{{Text: text}}},
			TaskType:             c.taskTypes[intent],
			OutputDimensionality: dimension,
		}
	}
	var out googleEmbedResponse
	var apiErr googleErrorEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/" + model + ":batchEmbedContents")
	if err != nil {
		return nil, fmt.Errorf("batchEmbedContents request: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, &GoogleAPIError{StatusCode: resp.StatusCode(), Status: apiErr.Error.Status, Message: msg}
	}
	vectors := make([][]float32, len(out.Embeddings))
	for i := range out.Embeddings {
		vectors[i] = out.Embeddings[i].Values
	}
	return vectors, nil
}
