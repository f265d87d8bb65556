package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com"
	defaultGeminiModel    = "gemini-2.5-flash"
	geminiProvider        = "gemini"
	defaultHTTPTimeout    = 2 * time.Minute
	generationTemperature = 0.2
)

// GeminiConfig wires the Gemini generateContent backend.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// GeminiModel calls models/{model}:generateContent with a response schema.
type GeminiModel struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGeminiModel constructs a GeminiModel.
func NewGeminiModel(cfg GeminiConfig) (*GeminiModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiModel{apiKey: cfg.APIKey, model: model, baseURL: baseURL, httpClient: client, logger: logger}, nil
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate sends the instruction and optional inline audio and returns the JSON reply.
func (m *GeminiModel) Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error) {
	parts := []geminiPart{{Text: prompt.Instruction}}
	if prompt.Media != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: prompt.Media.MIMEType,
			Data:     prompt.Media.Base64(),
		}})
	}
	generationConfig := map[string]any{
		"responseMimeType": "application/json",
		"temperature":      generationTemperature,
	}
	if prompt.Schema != nil {
		generationConfig["responseSchema"] = prompt.Schema.geminiJSON()
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", m.baseURL, m.model)
	resp, err := postJSON(ctx, m.httpClient, endpoint, map[string]string{"x-goog-api-key": m.apiKey}, geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(geminiProvider, resp)
	}

	var payload geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if payload.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini blocked prompt %s: %s", prompt.Name, payload.PromptFeedback.BlockReason)
	}
	if len(payload.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range payload.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	m.logger.Debug("gemini generation completed",
		zap.String("prompt", prompt.Name),
		zap.String("model", m.model),
		zap.String("finish_reason", payload.Candidates[0].FinishReason))
	return jsonDocument(text.String())
}
