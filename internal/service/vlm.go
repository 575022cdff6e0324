package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/memehustle/internal/config"
	"github.com/timmy/memehustle/internal/domain"
	"github.com/timmy/memehustle/internal/prompts"
)

// Generator turns an image plus an instruction into a short text.
type Generator interface {
	Generate(ctx context.Context, media *Media, prompt string) (string, error)
}

// VLMService calls an OpenAI-compatible chat-completions endpoint with a
// vision model. Gemini, OpenAI and most gateways speak this protocol.
type VLMService struct {
	client   *resty.Client
	provider string
	model    string
	apiKey   string
	endpoint string
}

// NewVLMService creates a generator client from configuration.
func NewVLMService(cfg *config.GeneratorConfig) *VLMService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(60 * time.Second)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &VLMService{
		client:   client,
		provider: cfg.Provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		endpoint: baseURL + "/chat/completions",
	}
}

// Enabled reports whether an API key is configured.
func (s *VLMService) Enabled() bool {
	return s.apiKey != ""
}

// GetProvider returns the configured provider label.
func (s *VLMService) GetProvider() string {
	return s.provider
}

// GetModel returns the model name being used.
func (s *VLMService) GetModel() string {
	return s.model
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends the image inline as a data URL together with prompt. Every
// failure is a *domain.GenerationError.
func (s *VLMService) Generate(ctx context.Context, media *Media, prompt string) (string, error) {
	if !s.Enabled() {
		return "", &domain.GenerationError{Kind: domain.GenerationDisabled, Err: errors.New("no API key configured")}
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", media.MIMEType, base64.StdEncoding.EncodeToString(media.Data))
	req := openAIRequest{
		Model: s.model,
		Messages: []openAIMessage{
			{
				Role:    "system",
				Content: prompts.SystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{Type: "text", Text: prompt},
					openAIImageContent{
						Type:     "image_url",
						ImageURL: openAIImageURL{URL: dataURL, Detail: "auto"},
					},
				},
			},
		},
		MaxTokens: 100,
	}

	var resp openAIResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return "", &domain.GenerationError{Kind: classifyTransportError(err), Err: err}
	}

	status := httpResp.StatusCode()
	if status == http.StatusTooManyRequests {
		return "", &domain.GenerationError{Kind: domain.GenerationQuota, Err: apiError(status, &resp, httpResp.Body())}
	}
	if status < 200 || status >= 300 {
		return "", &domain.GenerationError{Kind: domain.GenerationNetwork, Err: apiError(status, &resp, httpResp.Body())}
	}
	if resp.Error != nil {
		return "", &domain.GenerationError{Kind: domain.GenerationMalformed, Err: errors.New(resp.Error.Message)}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.GenerationError{Kind: domain.GenerationMalformed, Err: errors.New("no choices in response")}
	}

	text := prompts.CleanOutput(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &domain.GenerationError{Kind: domain.GenerationMalformed, Err: errors.New("empty completion")}
	}
	return text, nil
}

func apiError(status int, resp *openAIResponse, body []byte) error {
	if resp.Error != nil {
		return fmt.Errorf("HTTP %d: %s", status, resp.Error.Message)
	}
	return fmt.Errorf("HTTP %d: %s", status, string(body))
}

func classifyTransportError(err error) domain.GenerationErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.GenerationTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.GenerationTimeout
	}
	return domain.GenerationNetwork
}
