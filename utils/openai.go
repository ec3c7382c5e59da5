package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Perceptus-Labs/perceptus-object-detector/config"
	"github.com/Perceptus-Labs/perceptus-object-detector/models"
	"go.uber.org/zap"
)

// APIStatusError is returned for any non-2xx response.
type APIStatusError struct {
	StatusCode int
	Body       string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("OpenAI API returned status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// OpenAIClient talks to the Responses API. It is the only outbound network
// dependency of the detector.
type OpenAIClient struct {
	APIKey  string
	BaseURL string
	Model   string
	Client  *http.Client
}

type responsesRequest struct {
	Model string          `json:"model"`
	Input []responseInput `json:"input"`
}

type responseInput struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

type inputContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesResponse struct {
	OutputText *string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func NewOpenAIClient(cfg config.OpenAIConfig) (*OpenAIClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, config.ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}

	return &OpenAIClient{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
		Client:  &http.Client{Timeout: cfg.Timeout()},
	}, nil
}

// Infer sends the instruction and the inline image and returns the response
// text. A response without text yields "" and no error.
func (c *OpenAIClient) Infer(ctx context.Context, req models.InferenceRequest) (string, error) {
	if req.ImageBase64 == "" {
		return "", errors.New("inference request has no image payload")
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	body := responsesRequest{
		Model: c.Model,
		Input: []responseInput{
			{
				Role: "user",
				Content: []inputContent{
					{Type: "input_text", Text: req.Instruction},
					{Type: "input_image", ImageURL: fmt.Sprintf("data:%s;base64,%s", mimeType, req.ImageBase64)},
				},
			},
		},
	}

	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/responses", bytes.NewReader(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIStatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var parsed responsesResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal response JSON: %w", err)
	}

	text := parsed.text()
	zap.L().Debug("OpenAI response text", zap.String("model", c.Model), zap.Int("length", len(text)))
	return text, nil
}

func (r responsesResponse) text() string {
	if r.OutputText != nil {
		return strings.TrimSpace(*r.OutputText)
	}
	var parts []string
	for _, item := range r.Output {
		for _, content := range item.Content {
			if content.Type == "output_text" && content.Text != "" {
				parts = append(parts, content.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, ""))
}
