package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
)

var (
	// ErrEmptyResponse indicates a provider reply without usable content.
	ErrEmptyResponse = errors.New("ai: empty model response")
	// ErrUnsupportedMedia indicates media the provider cannot accept inline.
	ErrUnsupportedMedia = errors.New("ai: unsupported media for provider")
	errMissingAPIKey    = errors.New("ai: api key is not configured")
	errMissingModel     = errors.New("ai: model is required")
)

// Prompt is one structured-output request.
type Prompt struct {
	Name        string
	Instruction string
	Media       *audio.DataURI
	Schema      *Schema
}

// Model generates a JSON document that follows Prompt.Schema.
type Model interface {
	Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error)
}

// APIError reports a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s api error: status %d type %s message %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s api error: status %d message %s", e.Provider, e.StatusCode, e.Message)
}

// decodeAPIError reads {"error":{"message","type"|"status"}} bodies shared by both providers.
func decodeAPIError(provider string, resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		errType := apiErr.Error.Type
		if errType == "" {
			errType = apiErr.Error.Status
		}
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Type: errType, Message: apiErr.Error.Message}
	}
	return &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, payload any) (*http.Response, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode request payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return client.Do(req)
}

// jsonDocument checks that text is a JSON object and returns it raw.
func jsonDocument(text string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return nil, ErrEmptyResponse
	}
	if !json.Valid(trimmed) || trimmed[0] != '{' {
		return nil, fmt.Errorf("ai: model returned non-object output")
	}
	return json.RawMessage(trimmed), nil
}
