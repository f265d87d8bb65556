package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-audio-preview"
	openAIProvider       = "openai"
)

// input_audio accepts only these encodings.
var openAIAudioFormats = map[string]string{
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
}

// OpenAIConfig wires the Chat Completions backend.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// OpenAIModel calls /chat/completions with a strict json_schema response format.
type OpenAIModel struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenAIModel constructs an OpenAIModel.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIModel{apiKey: cfg.APIKey, model: model, baseURL: baseURL, httpClient: client, logger: logger}, nil
}

type openAIContentPart struct {
	Type       string            `json:"type"`
	Text       string            `json:"text,omitempty"`
	InputAudio *openAIInputAudio `json:"input_audio,omitempty"`
}

type openAIInputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat map[string]any  `json:"response_format,omitempty"`
}

// Generate sends the instruction and optional audio and returns the JSON reply.
func (m *OpenAIModel) Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error) {
	content := []openAIContentPart{{Type: "text", Text: prompt.Instruction}}
	if prompt.Media != nil {
		format, ok := openAIAudioFormats[prompt.Media.MIMEType]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, prompt.Media.MIMEType)
		}
		content = append(content, openAIContentPart{
			Type:       "input_audio",
			InputAudio: &openAIInputAudio{Data: prompt.Media.Base64(), Format: format},
		})
	}

	request := openAIRequest{
		Model:       m.model,
		Messages:    []openAIMessage{{Role: "user", Content: content}},
		Temperature: generationTemperature,
	}
	if prompt.Schema != nil {
		request.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   prompt.Name,
				"schema": prompt.Schema.openAIJSON(),
				"strict": true,
			},
		}
	} else {
		request.ResponseFormat = map[string]any{"type": "json_object"}
	}

	resp, err := postJSON(ctx, m.httpClient, m.baseURL+"/chat/completions", map[string]string{"Authorization": "Bearer " + m.apiKey}, request)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(openAIProvider, resp)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := response.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("openai refused prompt %s: %s", prompt.Name, choice.Message.Refusal)
	}
	m.logger.Debug("openai generation completed",
		zap.String("prompt", prompt.Name),
		zap.String("model", m.model),
		zap.String("finish_reason", choice.FinishReason))
	return jsonDocument(choice.Message.Content)
}
