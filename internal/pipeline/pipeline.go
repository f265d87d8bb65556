package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/ai"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
)

var errMissingGateway = errors.New("pipeline: gateway is required")

// Gateway is the set of AI capabilities a run drives.
type Gateway interface {
	Transcribe(ctx context.Context, payload audio.DataURI) (string, error)
	Summarize(ctx context.Context, payload audio.DataURI, transcription string, topic notes.Topic) (string, error)
	Classify(ctx context.Context, transcription string) (ai.Classification, error)
	GenerateNextSteps(ctx context.Context, summary string, topic notes.Topic) (ai.NextSteps, error)
}

// Config wires the pipeline.
type Config struct {
	Gateway Gateway
	Logger  *zap.Logger
}

// Pipeline turns one audio payload into one processed note.
type Pipeline struct {
	gateway Gateway
	logger  *zap.Logger
}

// New constructs a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Gateway == nil {
		return nil, errMissingGateway
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{gateway: cfg.Gateway, logger: logger}, nil
}

// ProcessVoiceNote runs transcribe, classify, summarize and, for Study and
// Work, next steps. Runs are not cancelled by ctx; per-call timeouts apply.
// Fatal failures return a *ProcessingError matching ErrProcessingFailed.
func (p *Pipeline) ProcessVoiceNote(ctx context.Context, audioDataURI string) (notes.ProcessedNote, error) {
	runCtx := context.WithoutCancel(ctx)
	started := time.Now()

	payload, err := audio.ParseDataURI(audioDataURI)
	if err != nil {
		return notes.ProcessedNote{}, p.fail(StageDecode, err)
	}

	transcription, err := p.gateway.Transcribe(runCtx, payload)
	if err != nil {
		return notes.ProcessedNote{}, p.fail(StageTranscribe, err)
	}
	if transcription == "" {
		return notes.ProcessedNote{}, p.fail(StageTranscribe, errEmptyTranscription)
	}

	classification, err := p.gateway.Classify(runCtx, transcription)
	if err != nil {
		return notes.ProcessedNote{}, p.fail(StageClassify, err)
	}

	summary, err := p.gateway.Summarize(runCtx, payload, transcription, classification.Topic)
	if err != nil {
		return notes.ProcessedNote{}, p.fail(StageSummarize, err)
	}

	nextSteps := []string{}
	references := []string{}
	if classification.Topic.WantsNextSteps() {
		generated, err := p.gateway.GenerateNextSteps(runCtx, summary, classification.Topic)
		if err != nil {
			p.logger.Warn("could not generate next steps",
				zap.String("topic", classification.Topic.String()),
				zap.Error(err))
		} else {
			nextSteps = nonNil(generated.NextSteps)
			references = nonNil(generated.References)
		}
	}

	processed := notes.ProcessedNote{
		Transcription: transcription,
		Summary:       summary,
		Topic:         classification.Topic,
		Confidence:    classification.Confidence,
		NextSteps:     nextSteps,
		References:    references,
	}
	p.logger.Debug("voice note processed",
		zap.String("topic", processed.Topic.String()),
		zap.Float64("confidence", processed.Confidence),
		zap.Int("next_steps", len(processed.NextSteps)),
		zap.Duration("elapsed", time.Since(started)))
	return processed, nil
}

func (p *Pipeline) fail(stage Stage, cause error) error {
	p.logger.Error("error processing voice note",
		zap.String("stage", string(stage)),
		zap.Error(cause))
	return &ProcessingError{stage: stage, cause: cause}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
