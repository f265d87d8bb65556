package ai

import (
	"strings"
	"text/template"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
)

const (
	promptTranscribe = "transcribeVoiceNote"
	promptSummarize  = "summarizeVoiceNote"
	promptClassify   = "classifyVoiceNoteTopic"
	promptNextSteps  = "generateNextStepsAndReferences"

	transcriptionHint = "a detailed and accurate transcription of the audio"
)

var (
	transcribeTemplate = template.Must(template.New(promptTranscribe).Parse(
		`Produce {{.Hint}}. Write out every spoken word of the attached voice note verbatim in the language it is spoken. ` +
			`If nothing intelligible is said, return an empty summary.

Voice Note: (attached audio)

Respond with JSON containing a single "summary" field holding the transcription.`))

	summarizeTemplate = template.Must(template.New(promptSummarize).Parse(
		`Summarize the following voice note about {{.Topic}}.

Voice Note: (attached audio)
{{- if .Transcription}}

Transcription for reference: {{.Transcription}}
{{- end}}

Summary:`))

	classifyTemplate = template.Must(template.New(promptClassify).Parse(
		`You are an AI assistant specializing in classifying voice notes into predefined topics.

Given the transcription of a voice note, classify it into one of the following categories: {{.Topics}}.
Also provide a confidence level for your classification (0-1).

Transcription: {{.Transcription}}`))

	nextStepsTemplate = template.Must(template.New(promptNextSteps).Parse(
		`You are a helpful AI assistant that provides next steps and references for a given topic based on a voice note summary. ` +
			`The topic is described as {{.Topic}}. Provide the answer in a JSON format. ` +
			`Make sure the nextSteps and references list are actionable and specific.

Voice Note Summary: {{.Summary}}`))
)

var (
	summarySchema = &Schema{
		Type: SchemaObject,
		Properties: []Property{
			{Name: "summary", Schema: &Schema{Type: SchemaString, Description: "The AI-generated summary of the voice note."}},
		},
	}

	classificationSchema = &Schema{
		Type: SchemaObject,
		Properties: []Property{
			{Name: "topic", Schema: &Schema{
				Type:        SchemaString,
				Description: "The classified topic of the voice note. Must be one of: " + topicList() + ".",
				Enum:        topicNames(),
			}},
			{Name: "confidence", Schema: &Schema{
				Type:        SchemaNumber,
				Description: "The confidence level of the classification, between 0 and 1.",
				Minimum:     floatPtr(0),
				Maximum:     floatPtr(1),
			}},
		},
	}

	nextStepsSchema = &Schema{
		Type: SchemaObject,
		Properties: []Property{
			{Name: "nextSteps", Schema: &Schema{Type: SchemaArray, Description: "A list of next steps.", Items: &Schema{Type: SchemaString}}},
			{Name: "references", Schema: &Schema{Type: SchemaArray, Description: "A list of relevant references (e.g., URLs, book titles).", Items: &Schema{Type: SchemaString}}},
		},
	}
)

func topicNames() []string {
	names := make([]string, 0, len(notes.Topics))
	for _, topic := range notes.Topics {
		names = append(names, topic.String())
	}
	return names
}

func topicList() string {
	names := topicNames()
	if len(names) < 2 {
		return strings.Join(names, "")
	}
	return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
}

func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var builder strings.Builder
	if err := tmpl.Execute(&builder, data); err != nil {
		return "", err
	}
	return builder.String(), nil
}
