package voice

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// BlobSource materializes its audio together with its own MIME type.
type BlobSource interface {
	Blob() ([]byte, string, error)
}

// BufferSource exposes already-buffered audio bytes.
type BufferSource interface {
	Bytes() []byte
}

// BodySource wraps a streaming body.
type BodySource interface {
	Body() io.Reader
}

type shapeMatcher struct {
	name    string
	match   func(raw any) bool
	extract func(raw any, mimeType string) (AudioPayload, error)
}

// deepgramShapes is tried in order; the first match wins.
var deepgramShapes = []shapeMatcher{
	{name: "response", match: is[*http.Response], extract: fromResponse},
	{name: "blob", match: is[BlobSource], extract: fromBlob},
	{name: "buffer", match: is[BufferSource], extract: fromBuffer},
	{name: "body", match: is[BodySource], extract: fromBody},
	{name: "stream", match: is[io.Reader], extract: fromStream},
}

func is[T any](raw any) bool {
	_, ok := raw.(T)
	return ok
}

func normalizeDeepgram(raw any, mimeType string) (AudioPayload, error) {
	for _, shape := range deepgramShapes {
		if !shape.match(raw) {
			continue
		}
		payload, err := shape.extract(raw, mimeType)
		if err != nil {
			return AudioPayload{}, fmt.Errorf("%s shape: %w", shape.name, err)
		}
		return payload, nil
	}
	return AudioPayload{}, fmt.Errorf("%w %T", ErrUnsupportedResponse, raw)
}

func fromResponse(raw any, mimeType string) (AudioPayload, error) {
	res := raw.(*http.Response)
	if res == nil || res.Body == nil {
		return AudioPayload{}, errors.New("empty response")
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return AudioPayload{}, err
	}
	if mt, _, err := mime.ParseMediaType(res.Header.Get("Content-Type")); err == nil && strings.HasPrefix(mt, "audio/") {
		mimeType = mt
	}
	return AudioPayload{Data: data, MIMEType: mimeType}, nil
}

func fromBlob(raw any, mimeType string) (AudioPayload, error) {
	data, mt, err := raw.(BlobSource).Blob()
	if err != nil {
		return AudioPayload{}, err
	}
	if mt != "" {
		mimeType = mt
	}
	return AudioPayload{Data: data, MIMEType: mimeType}, nil
}

func fromBuffer(raw any, mimeType string) (AudioPayload, error) {
	data := raw.(BufferSource).Bytes()
	out := make([]byte, len(data))
	copy(out, data)
	return AudioPayload{Data: out, MIMEType: mimeType}, nil
}

func fromBody(raw any, mimeType string) (AudioPayload, error) {
	body := raw.(BodySource).Body()
	if body == nil {
		return AudioPayload{}, errors.New("nil body")
	}
	return fromStream(body, mimeType)
}

func fromStream(raw any, mimeType string) (AudioPayload, error) {
	r := raw.(io.Reader)
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return AudioPayload{}, err
	}
	return AudioPayload{Data: data, MIMEType: mimeType}, nil
}
