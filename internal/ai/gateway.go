package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
)

const defaultCallTimeout = 60 * time.Second

const (
	opTranscribe = "ai.transcribe"
	opSummarize  = "ai.summarize"
	opClassify   = "ai.classify"
	opNextSteps  = "ai.next_steps"
	opGatewayNew = "ai.gateway.new"

	reasonInvalidInput    = "invalid_input"
	reasonRenderFailed    = "render_failed"
	reasonCallFailed      = "call_failed"
	reasonTimeout         = "timeout"
	reasonSchemaViolation = "schema_violation"
	reasonUnknownTopic    = "unknown_topic"
	reasonMissingModel    = "missing_model"
)

var (
	// ErrEmptyInput indicates a text capability invoked without text.
	ErrEmptyInput = errors.New("ai: input text is empty")
	// ErrSchemaViolation indicates model output that does not satisfy the prompt contract.
	ErrSchemaViolation = errors.New("ai: model output violates schema")
)

// GatewayError carries a stable code for a failed capability call.
type GatewayError struct {
	code string
	err  error
}

func (e *GatewayError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *GatewayError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *GatewayError) Code() string {
	return e.code
}

func newGatewayError(operation, reason string, cause error) error {
	return &GatewayError{code: operation + "." + reason, err: cause}
}

// Classification is the classifier capability result.
type Classification struct {
	Topic      notes.Topic
	Confidence float64
}

// NextSteps is the next-steps capability result. Both lists are non-nil.
type NextSteps struct {
	NextSteps  []string
	References []string
}

type summaryOutput struct {
	Summary *string `json:"summary" validate:"required"`
}

type classificationOutput struct {
	Topic      *string  `json:"topic" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"required,gte=0,lte=1"`
}

type nextStepsOutput struct {
	NextSteps  []string `json:"nextSteps" validate:"required"`
	References []string `json:"references" validate:"required"`
}

// GatewayConfig wires the capability gateway.
type GatewayConfig struct {
	Model       Model
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Gateway exposes the schema-constrained capabilities used to process voice notes.
type Gateway struct {
	model       Model
	callTimeout time.Duration
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewGateway constructs a Gateway over the configured model.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Model == nil {
		return nil, newGatewayError(opGatewayNew, reasonMissingModel, errMissingModel)
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		model:       cfg.Model,
		callTimeout: timeout,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}, nil
}

// Transcribe returns the verbatim transcription of the audio. An empty string is a valid result.
func (g *Gateway) Transcribe(ctx context.Context, payload audio.DataURI) (string, error) {
	var output summaryOutput
	err := g.call(ctx, opTranscribe, promptTranscribe, transcribeTemplate, struct{ Hint string }{Hint: transcriptionHint}, &payload, summarySchema, &output)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(*output.Summary), nil
}

// Summarize returns a summary of the audio framed by topic. transcription is optional context.
func (g *Gateway) Summarize(ctx context.Context, payload audio.DataURI, transcription string, topic notes.Topic) (string, error) {
	data := struct {
		Topic         string
		Transcription string
	}{Topic: topic.String(), Transcription: strings.TrimSpace(transcription)}
	var output summaryOutput
	if err := g.call(ctx, opSummarize, promptSummarize, summarizeTemplate, data, &payload, summarySchema, &output); err != nil {
		return "", err
	}
	return strings.TrimSpace(*output.Summary), nil
}

// Classify assigns one of the closed topics to the transcription. Unknown labels fail.
func (g *Gateway) Classify(ctx context.Context, transcription string) (Classification, error) {
	trimmed := strings.TrimSpace(transcription)
	if trimmed == "" {
		return Classification{}, newGatewayError(opClassify, reasonInvalidInput, ErrEmptyInput)
	}
	data := struct {
		Topics        string
		Transcription string
	}{Topics: topicList(), Transcription: trimmed}
	var output classificationOutput
	if err := g.call(ctx, opClassify, promptClassify, classifyTemplate, data, nil, classificationSchema, &output); err != nil {
		return Classification{}, err
	}
	topic, err := notes.ParseTopic(*output.Topic)
	if err != nil {
		g.logError(opClassify, reasonUnknownTopic, err, zap.String("label", *output.Topic))
		return Classification{}, newGatewayError(opClassify, reasonUnknownTopic, err)
	}
	return Classification{Topic: topic, Confidence: *output.Confidence}, nil
}

// GenerateNextSteps proposes actionable steps and references for the summary.
func (g *Gateway) GenerateNextSteps(ctx context.Context, summary string, topic notes.Topic) (NextSteps, error) {
	trimmed := strings.TrimSpace(summary)
	if trimmed == "" {
		return NextSteps{}, newGatewayError(opNextSteps, reasonInvalidInput, ErrEmptyInput)
	}
	data := struct {
		Topic   string
		Summary string
	}{Topic: topic.String(), Summary: trimmed}
	var output nextStepsOutput
	if err := g.call(ctx, opNextSteps, promptNextSteps, nextStepsTemplate, data, nil, nextStepsSchema, &output); err != nil {
		return NextSteps{}, err
	}
	return NextSteps{NextSteps: output.NextSteps, References: output.References}, nil
}

func (g *Gateway) call(ctx context.Context, operation, name string, tmpl *template.Template, data any, media *audio.DataURI, schema *Schema, output any) error {
	instruction, err := renderPrompt(tmpl, data)
	if err != nil {
		g.logError(operation, reasonRenderFailed, err)
		return newGatewayError(operation, reasonRenderFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	started := time.Now()
	raw, err := g.model.Generate(callCtx, Prompt{Name: name, Instruction: instruction, Media: media, Schema: schema})
	if err != nil {
		reason := reasonCallFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = reasonTimeout
		}
		g.logError(operation, reason, err, zap.Duration("elapsed", time.Since(started)))
		return newGatewayError(operation, reason, err)
	}

	if err := g.decode(raw, output); err != nil {
		g.logError(operation, reasonSchemaViolation, err, zap.ByteString("output", truncate(raw, 512)))
		return newGatewayError(operation, reasonSchemaViolation, err)
	}

	g.logger.Debug("ai capability completed",
		zap.String("operation", operation),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (g *Gateway) decode(raw json.RawMessage, output any) error {
	if err := json.Unmarshal(raw, output); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if err := g.validate.Struct(output); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

func (g *Gateway) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	g.logger.Error("ai gateway error", attrs...)
}

func truncate(raw []byte, limit int) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit]
}
