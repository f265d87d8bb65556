package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseDataURI(t *testing.T) {
	testCases := []struct {
		name       string
		raw        string
		wantMIME   string
		wantParams int
		wantData   []byte
		wantErr    error
	}{
		{name: "plain", raw: "data:audio/webm;base64,AQID", wantMIME: "audio/webm", wantData: []byte{1, 2, 3}},
		{name: "codec-param", raw: "data:audio/webm;codecs=opus;base64,AQID", wantMIME: "audio/webm", wantParams: 1, wantData: []byte{1, 2, 3}},
		{name: "upper-case-mime", raw: "  data:Audio/WAV;BASE64,AQID ", wantMIME: "audio/wav", wantData: []byte{1, 2, 3}},
		{name: "video-container", raw: "data:video/webm;base64,AQID", wantMIME: "video/webm", wantData: []byte{1, 2, 3}},
		{name: "missing-scheme", raw: "audio/webm;base64,AQID", wantErr: ErrInvalidDataURI},
		{name: "missing-comma", raw: "data:audio/webm;base64", wantErr: ErrInvalidDataURI},
		{name: "not-base64", raw: "data:audio/webm,hello", wantErr: ErrInvalidDataURI},
		{name: "bad-base64", raw: "data:audio/webm;base64,***", wantErr: ErrInvalidDataURI},
		{name: "bad-param", raw: "data:audio/webm;opus;base64,AQID", wantErr: ErrInvalidDataURI},
		{name: "image", raw: "data:image/png;base64,AQID", wantErr: ErrUnsupportedMIMEType},
		{name: "empty-payload", raw: "data:audio/webm;base64,", wantErr: ErrEmptyAudio},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			parsed, err := ParseDataURI(testCase.raw)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parsed.MIMEType != testCase.wantMIME {
				t.Fatalf("unexpected mime %q", parsed.MIMEType)
			}
			if len(parsed.Params) != testCase.wantParams {
				t.Fatalf("unexpected params %v", parsed.Params)
			}
			if !bytes.Equal(parsed.Data, testCase.wantData) {
				t.Fatalf("unexpected payload %v", parsed.Data)
			}
		})
	}
}

func TestDataURIStringRoundTrips(t *testing.T) {
	original, err := NewDataURI("audio/webm;codecs=opus", []byte("voice"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rendered := original.String()
	if rendered != "data:audio/webm;codecs=opus;base64,dm9pY2U=" {
		t.Fatalf("unexpected rendering %q", rendered)
	}
	parsed, err := ParseDataURI(rendered)
	if err != nil {
		t.Fatalf("failed to parse rendered uri: %v", err)
	}
	if string(parsed.Data) != "voice" || parsed.Params[0] != "codecs=opus" {
		t.Fatalf("unexpected round trip %#v", parsed)
	}
}

func TestNewDataURIRejectsEmptyAudio(t *testing.T) {
	if _, err := NewDataURI("audio/ogg", nil); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected empty audio error, got %v", err)
	}
}

func TestDataURIExtension(t *testing.T) {
	known := DataURI{MIMEType: "audio/mpeg"}
	if known.Extension() != ".mp3" {
		t.Fatalf("unexpected extension %q", known.Extension())
	}
	unknown := DataURI{MIMEType: "audio/x-custom"}
	if unknown.Extension() != ".bin" {
		t.Fatalf("unexpected fallback extension %q", unknown.Extension())
	}
}

func TestParseMIMETypeOutputSurvivesDataURIRoundTrip(t *testing.T) {
	for _, raw := range []string{"audio/webm", "audio/webm;codecs=opus", " Audio/Ogg ; codecs=vorbis ;", "video/mp4;codecs=mp4a.40.2;rate=48000"} {
		mimeType, params, err := ParseMIMEType(raw)
		if err != nil {
			t.Fatalf("ParseMIMEType(%q) failed: %v", raw, err)
		}
		rendered := DataURI{MIMEType: mimeType, Params: params, Data: []byte{1, 2, 3}}.String()
		parsed, err := ParseDataURI(rendered)
		if err != nil {
			t.Fatalf("accepted mime type %q rendered unparseable uri %q: %v", raw, rendered, err)
		}
		if parsed.MIMEType != mimeType || len(parsed.Params) != len(params) {
			t.Fatalf("round trip of %q changed the media type: %#v", raw, parsed)
		}
	}
}

func TestParseMIMETypeRejectsBareParameters(t *testing.T) {
	for _, raw := range []string{"audio/webm;opus", "audio/webm;=opus", "audio/webm;codecs=a,b"} {
		if _, _, err := ParseMIMEType(raw); !errors.Is(err, ErrInvalidDataURI) {
			t.Fatalf("expected invalid data uri error for %q, got %v", raw, err)
		}
	}
}
