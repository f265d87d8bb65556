package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	dataURIScheme   = "data:"
	base64Marker    = "base64"
	defaultAudioExt = ".bin"
)

var (
	// ErrInvalidDataURI indicates input that is not data:<mime>;base64,<payload>.
	ErrInvalidDataURI = errors.New("audio: invalid data uri")
	// ErrUnsupportedMIMEType indicates a payload that is not audio or video.
	ErrUnsupportedMIMEType = errors.New("audio: unsupported mime type")
	// ErrEmptyAudio indicates a data URI without payload bytes.
	ErrEmptyAudio = errors.New("audio: empty payload")
)

var mimeExtensions = map[string]string{
	"audio/webm":      ".webm",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/aac":       ".aac",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/wave":      ".wav",
	"audio/flac":      ".flac",
	"video/webm":      ".webm",
	"video/mp4":       ".m4a",
	"video/quicktime": ".m4a",
}

// DataURI is a decoded self-describing audio payload.
type DataURI struct {
	// MIMEType is the lower-cased media type without parameters.
	MIMEType string
	// Params holds media type parameters such as codecs=opus, in order.
	Params []string
	Data   []byte
}

// ParseDataURI decodes data:<mime>[;param=value]*;base64,<payload>.
func ParseDataURI(raw string) (DataURI, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(trimmed), dataURIScheme) {
		return DataURI{}, fmt.Errorf("%w: missing data scheme", ErrInvalidDataURI)
	}
	header, payload, found := strings.Cut(trimmed[len(dataURIScheme):], ",")
	if !found {
		return DataURI{}, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	segments := strings.Split(header, ";")
	if len(segments) < 2 || !strings.EqualFold(strings.TrimSpace(segments[len(segments)-1]), base64Marker) {
		return DataURI{}, fmt.Errorf("%w: payload must be base64 encoded", ErrInvalidDataURI)
	}
	mimeType, err := normalizeMIMEType(segments[0])
	if err != nil {
		return DataURI{}, err
	}

	params, err := parseParams(segments[1 : len(segments)-1])
	if err != nil {
		return DataURI{}, err
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return DataURI{}, fmt.Errorf("%w: invalid base64", ErrInvalidDataURI)
	}
	if len(data) == 0 {
		return DataURI{}, ErrEmptyAudio
	}

	return DataURI{MIMEType: mimeType, Params: params, Data: data}, nil
}

// NewDataURI wraps raw audio bytes of the given media type.
func NewDataURI(mimeType string, data []byte) (DataURI, error) {
	normalized, params, err := ParseMIMEType(mimeType)
	if err != nil {
		return DataURI{}, err
	}
	if len(data) == 0 {
		return DataURI{}, ErrEmptyAudio
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return DataURI{MIMEType: normalized, Params: params, Data: copied}, nil
}

// ParseMIMEType splits "audio/webm;codecs=opus" into its lower-cased media
// type and parameters, rejecting anything that is not audio or video.
func ParseMIMEType(raw string) (string, []string, error) {
	segments := strings.Split(raw, ";")
	normalized, err := normalizeMIMEType(segments[0])
	if err != nil {
		return "", nil, err
	}
	params, err := parseParams(segments[1:])
	if err != nil {
		return "", nil, err
	}
	return normalized, params, nil
}

// Base64 returns the standard base64 encoding of the payload.
func (d DataURI) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Data)
}

// String renders the data URI form.
func (d DataURI) String() string {
	var builder strings.Builder
	builder.WriteString(dataURIScheme)
	builder.WriteString(d.MIMEType)
	for _, param := range d.Params {
		builder.WriteString(";")
		builder.WriteString(param)
	}
	builder.WriteString(";" + base64Marker + ",")
	builder.WriteString(d.Base64())
	return builder.String()
}

// Extension returns the file extension conventionally used for the media type.
func (d DataURI) Extension() string {
	if ext, ok := mimeExtensions[d.MIMEType]; ok {
		return ext
	}
	return defaultAudioExt
}

// parseParams keeps non-empty key=value segments; a bare token is rejected so
// that every accepted parameter survives String and ParseDataURI unchanged.
func parseParams(segments []string) ([]string, error) {
	var params []string
	for _, segment := range segments {
		param := strings.TrimSpace(segment)
		if param == "" {
			continue
		}
		key, value, found := strings.Cut(param, "=")
		if !found || strings.TrimSpace(key) == "" || strings.Contains(value, ",") {
			return nil, fmt.Errorf("%w: malformed parameter %q", ErrInvalidDataURI, param)
		}
		params = append(params, param)
	}
	return params, nil
}

func normalizeMIMEType(raw string) (string, error) {
	mimeType := strings.ToLower(strings.TrimSpace(raw))
	major, minor, found := strings.Cut(mimeType, "/")
	if !found || major == "" || minor == "" {
		return "", fmt.Errorf("%w: malformed mime type %q", ErrInvalidDataURI, raw)
	}
	if major != "audio" && major != "video" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMIMEType, mimeType)
	}
	return mimeType, nil
}
