package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
)

func TestGeminiModelGenerate(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"summary\":"},{"text":"\"hello\"}"}]},"finishReason":"STOP"}]}`))
	}))
	t.Cleanup(server.Close)

	model, err := NewGeminiModel(GeminiConfig{APIKey: "secret", Model: "gemini-test", BaseURL: server.URL})
	require.NoError(t, err)

	media := audio.DataURI{MIMEType: "audio/webm", Data: []byte("voice")}
	raw, err := model.Generate(context.Background(), Prompt{Name: promptTranscribe, Instruction: "transcribe", Media: &media, Schema: summarySchema})
	require.NoError(t, err)
	require.JSONEq(t, `{"summary":"hello"}`, string(raw))

	contents := captured["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	inline := parts[1].(map[string]any)["inline_data"].(map[string]any)
	require.Equal(t, "audio/webm", inline["mime_type"])
	require.Equal(t, media.Base64(), inline["data"])

	generationConfig := captured["generationConfig"].(map[string]any)
	require.Equal(t, "application/json", generationConfig["responseMimeType"])
	responseSchema := generationConfig["responseSchema"].(map[string]any)
	require.Equal(t, "OBJECT", responseSchema["type"])
}

func TestGeminiModelSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	t.Cleanup(server.Close)

	model, err := NewGeminiModel(GeminiConfig{APIKey: "secret", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = model.Generate(context.Background(), Prompt{Name: promptClassify, Instruction: "classify"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Type)
	require.Equal(t, "quota exhausted", apiErr.Message)
}

func TestGeminiModelRejectsEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	t.Cleanup(server.Close)

	model, err := NewGeminiModel(GeminiConfig{APIKey: "secret", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = model.Generate(context.Background(), Prompt{Name: promptClassify, Instruction: "classify"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIModelGenerate(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"topic\":\"Work\",\"confidence\":0.9}"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(server.Close)

	model, err := NewOpenAIModel(OpenAIConfig{APIKey: "secret", Model: "gpt-test", BaseURL: server.URL})
	require.NoError(t, err)

	media := audio.DataURI{MIMEType: "audio/wav", Data: []byte("voice")}
	raw, err := model.Generate(context.Background(), Prompt{Name: promptClassify, Instruction: "classify", Media: &media, Schema: classificationSchema})
	require.NoError(t, err)
	require.JSONEq(t, `{"topic":"Work","confidence":0.9}`, string(raw))

	require.Equal(t, "gpt-test", captured["model"])
	responseFormat := captured["response_format"].(map[string]any)
	require.Equal(t, "json_schema", responseFormat["type"])
	jsonSchema := responseFormat["json_schema"].(map[string]any)
	require.Equal(t, true, jsonSchema["strict"])
	schema := jsonSchema["schema"].(map[string]any)
	require.Equal(t, false, schema["additionalProperties"])

	messages := captured["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	inputAudio := content[1].(map[string]any)["input_audio"].(map[string]any)
	require.Equal(t, "wav", inputAudio["format"])
}

func TestOpenAIModelRejectsUnsupportedAudio(t *testing.T) {
	model, err := NewOpenAIModel(OpenAIConfig{APIKey: "secret", BaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	media := audio.DataURI{MIMEType: "audio/webm", Data: []byte("voice")}
	_, err = model.Generate(context.Background(), Prompt{Name: promptTranscribe, Instruction: "transcribe", Media: &media})
	require.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestOpenAIModelSurfacesRefusals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"cannot help"}}]}`))
	}))
	t.Cleanup(server.Close)

	model, err := NewOpenAIModel(OpenAIConfig{APIKey: "secret", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = model.Generate(context.Background(), Prompt{Name: promptClassify, Instruction: "classify"})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrEmptyResponse))
}

func TestBackendsRequireAPIKey(t *testing.T) {
	_, err := NewGeminiModel(GeminiConfig{})
	require.ErrorIs(t, err, errMissingAPIKey)
	_, err = NewOpenAIModel(OpenAIConfig{})
	require.ErrorIs(t, err, errMissingAPIKey)
}

func TestSchemaRendering(t *testing.T) {
	gemini := classificationSchema.geminiJSON()
	require.Equal(t, "OBJECT", gemini["type"])
	require.Equal(t, []string{"topic", "confidence"}, gemini["required"])
	topic := gemini["properties"].(map[string]any)["topic"].(map[string]any)
	require.Equal(t, []string{"Work", "Personal", "Study", "Other"}, topic["enum"])

	openAI := nextStepsSchema.openAIJSON()
	require.Equal(t, "object", openAI["type"])
	steps := openAI["properties"].(map[string]any)["nextSteps"].(map[string]any)
	require.Equal(t, "array", steps["type"])
	require.Equal(t, "string", steps["items"].(map[string]any)["type"])
}
