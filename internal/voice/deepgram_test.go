package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ent0n29/tgvoicechat/internal/config"
)

func TestBuildDeepgramRequestValidatesOptions(t *testing.T) {
	req := BuildDeepgramRequest("hi", config.TTSConfig{
		Speaker:    "nonexistent",
		Encoding:   "wav",
		Container:  "ogg",
		SampleRate: "-5",
		BitRate:    "44100",
	})
	if req.Speaker != "angus" {
		t.Fatalf("Speaker = %q, want angus", req.Speaker)
	}
	if req.Encoding != "" {
		t.Fatalf("Encoding = %q, want omitted", req.Encoding)
	}
	if req.Container != "ogg" {
		t.Fatalf("Container = %q, want ogg", req.Container)
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"text":"hi","speaker":"angus","container":"ogg","bit_rate":44100}`
	if string(encoded) != want {
		t.Fatalf("request = %s, want %s", encoded, want)
	}
}

func TestBuildDeepgramRequestIncludesSampleRate(t *testing.T) {
	req := BuildDeepgramRequest("hi", config.TTSConfig{Speaker: "luna", Encoding: "linear16", SampleRate: "44100"})
	if req.SampleRate != 44100 {
		t.Fatalf("SampleRate = %v, want 44100", req.SampleRate)
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"text":"hi","speaker":"luna","encoding":"linear16","sample_rate":44100}`
	if string(encoded) != want {
		t.Fatalf("request = %s, want %s", encoded, want)
	}
}

func TestBuildDeepgramRequestRejectsNonFiniteRates(t *testing.T) {
	for _, raw := range []string{"NaN", "Inf", "0", "abc", ""} {
		req := BuildDeepgramRequest("hi", config.TTSConfig{SampleRate: raw, BitRate: raw})
		if req.SampleRate != 0 || req.BitRate != 0 {
			t.Fatalf("rates for %q = %v/%v, want omitted", raw, req.SampleRate, req.BitRate)
		}
	}
}

func TestDeepgramMIME(t *testing.T) {
	cases := []struct {
		req  DeepgramRequest
		want string
	}{
		{req: DeepgramRequest{Container: "wav", Encoding: "mp3"}, want: "audio/wav"},
		{req: DeepgramRequest{Encoding: "linear16"}, want: "audio/wav"},
		{req: DeepgramRequest{Container: "ogg"}, want: "audio/ogg"},
		{req: DeepgramRequest{Encoding: "opus"}, want: "audio/ogg"},
		{req: DeepgramRequest{Encoding: "aac"}, want: "audio/aac"},
		{req: DeepgramRequest{Encoding: "flac"}, want: "audio/mpeg"},
		{req: DeepgramRequest{}, want: "audio/mpeg"},
	}
	for _, tc := range cases {
		if got := DeepgramMIME(tc.req); got != tc.want {
			t.Fatalf("DeepgramMIME(%+v) = %q, want %q", tc.req, got, tc.want)
		}
	}
}

type blobShape struct {
	data []byte
	mime string
}

func (b blobShape) Blob() ([]byte, string, error) { return b.data, b.mime, nil }

type bufferShape []byte

func (b bufferShape) Bytes() []byte { return b }

type bodyShape struct{ r io.Reader }

func (b bodyShape) Body() io.Reader { return b.r }

func TestDeepgramNormalizesTransportShapes(t *testing.T) {
	audio := []byte("audio-bytes")
	cases := []struct {
		name     string
		raw      any
		wantMIME string
	}{
		{
			name: "response with audio content type",
			raw: &http.Response{
				Header: http.Header{"Content-Type": []string{"audio/mp3; charset=binary"}},
				Body:   io.NopCloser(bytes.NewReader(audio)),
			},
			wantMIME: "audio/mp3",
		},
		{
			name: "response with non-audio content type",
			raw: &http.Response{
				Header: http.Header{"Content-Type": []string{"application/octet-stream"}},
				Body:   io.NopCloser(bytes.NewReader(audio)),
			},
			wantMIME: "audio/mpeg",
		},
		{name: "blob with own type", raw: blobShape{data: audio, mime: "audio/x-custom"}, wantMIME: "audio/x-custom"},
		{name: "blob without type", raw: blobShape{data: audio}, wantMIME: "audio/mpeg"},
		{name: "buffer", raw: bufferShape(audio), wantMIME: "audio/mpeg"},
		{name: "body", raw: bodyShape{r: bytes.NewReader(audio)}, wantMIME: "audio/mpeg"},
		{name: "stream", raw: strings.NewReader(string(audio)), wantMIME: "audio/mpeg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewDeepgramProvider(&stubBackend{raw: tc.raw}, config.TTSConfig{})
			payload, err := p.Synthesize(context.Background(), "hi")
			if err != nil {
				t.Fatalf("Synthesize() error = %v", err)
			}
			if !bytes.Equal(payload.Data, audio) {
				t.Fatalf("Data = %q, want %q", payload.Data, audio)
			}
			if payload.MIMEType != tc.wantMIME {
				t.Fatalf("MIMEType = %q, want %q", payload.MIMEType, tc.wantMIME)
			}
		})
	}
}

func TestDeepgramUnsupportedShape(t *testing.T) {
	if _, err := normalizeDeepgram(42, "audio/mpeg"); !errors.Is(err, ErrUnsupportedResponse) {
		t.Fatalf("normalizeDeepgram(42) error = %v, want %v", err, ErrUnsupportedResponse)
	}
	p := NewDeepgramProvider(&stubBackend{raw: map[string]string{"audio": "x"}}, config.TTSConfig{})
	if _, err := p.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrVoiceGeneration) {
		t.Fatalf("Synthesize() error = %v, want %v", err, ErrVoiceGeneration)
	}
}

func TestDeepgramWrapsRawPCM(t *testing.T) {
	pcm := []byte{0, 1, 0, 2}
	backend := &stubBackend{raw: bufferShape(pcm)}
	p := NewDeepgramProvider(backend, config.TTSConfig{Encoding: "linear16", Container: "none", SampleRate: "16000"})
	payload, err := p.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if payload.MIMEType != "audio/wav" {
		t.Fatalf("MIMEType = %q, want audio/wav", payload.MIMEType)
	}
	if len(payload.Data) != 44+len(pcm) || string(payload.Data[:4]) != "RIFF" {
		t.Fatalf("Data is not a wav container: %q", payload.Data)
	}
	req := backend.input.(DeepgramRequest)
	if req.SampleRate != 16000 || req.Container != "none" {
		t.Fatalf("request = %+v, want sample_rate=16000 container=none", req)
	}
}

func TestDeepgramBackendFailure(t *testing.T) {
	p := NewDeepgramProvider(&stubBackend{err: errors.New("boom")}, config.TTSConfig{})
	if _, err := p.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrVoiceGeneration) {
		t.Fatalf("Synthesize() error = %v, want %v", err, ErrVoiceGeneration)
	}
}
