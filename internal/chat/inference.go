package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultInferenceURL = "https://api-inference.huggingface.co"
	DefaultModel        = "gpt2"
	maxNewTokens        = 250
)

// ErrInference is returned when the inference API cannot answer.
var ErrInference = errors.New("inference request failed")

// Inferer completes a prompt.
type Inferer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	MaxNewTokens int `json:"max_new_tokens"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// InferenceClient talks to a hosted text generation model.
type InferenceClient struct {
	http  *resty.Client
	model string
}

// NewInferenceClient creates a client for model served under baseURL.
func NewInferenceClient(baseURL, model, apiKey string) *InferenceClient {
	if baseURL == "" {
		baseURL = DefaultInferenceURL
	}
	if model == "" {
		model = DefaultModel
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &InferenceClient{http: c, model: model}
}

// Generate returns the first generated text for prompt. An empty string means the
// model produced nothing.
func (c *InferenceClient) Generate(ctx context.Context, prompt string) (string, error) {
	var out []generation
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(inferenceRequest{
			Inputs:     prompt,
			Parameters: inferenceParameters{MaxNewTokens: maxNewTokens},
		}).
		SetResult(&out).
		Post("/models/" + url.PathEscape(c.model))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}
	if res.IsError() {
		return "", fmt.Errorf("%w: status %d", ErrInference, res.StatusCode())
	}
	if len(out) == 0 {
		return "", nil
	}
	return out[0].GeneratedText, nil
}
