package pipeline

import "errors"

// ProcessingFailedMessage is the only failure text exposed to end users.
const ProcessingFailedMessage = "An error occurred while processing the voice note with AI. Please try again."

// ErrProcessingFailed matches every fatal pipeline failure.
var ErrProcessingFailed = errors.New(ProcessingFailedMessage)

// errEmptyTranscription marks audio that produced no transcript.
var errEmptyTranscription = errors.New("transcription failed: the audio could not be transcribed")

// Stage names the step at which a run aborted.
type Stage string

const (
	StageDecode     Stage = "decode"
	StageTranscribe Stage = "transcribe"
	StageClassify   Stage = "classify"
	StageSummarize  Stage = "summarize"
)

// ProcessingError is the opaque failure returned by ProcessVoiceNote.
// Error never includes the cause; the cause is logged and kept for errors.Is.
type ProcessingError struct {
	stage Stage
	cause error
}

func (e *ProcessingError) Error() string {
	return ProcessingFailedMessage
}

// Is matches ErrProcessingFailed.
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessingFailed
}

func (e *ProcessingError) Unwrap() error {
	return e.cause
}

// Stage reports where the run aborted.
func (e *ProcessingError) Stage() Stage {
	return e.stage
}
